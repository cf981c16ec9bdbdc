// Package main provides the searchflowd server implementation.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/wayfarer/ampc"
	"github.com/BaSui01/wayfarer/api/handlers"
	"github.com/BaSui01/wayfarer/cluster"
	"github.com/BaSui01/wayfarer/config"
	"github.com/BaSui01/wayfarer/distsearch"
	"github.com/BaSui01/wayfarer/httpapi"
	"github.com/BaSui01/wayfarer/internal/database"
	"github.com/BaSui01/wayfarer/internal/metrics"
	"github.com/BaSui01/wayfarer/internal/server"
	"github.com/BaSui01/wayfarer/internal/telemetry"
	"github.com/BaSui01/wayfarer/ranking"
	"github.com/BaSui01/wayfarer/registry"
	"github.com/BaSui01/wayfarer/sonic"
)

// =============================================================================
// 🖥️ Server 结构（重构版）
// =============================================================================

// Server 是 searchflowd 的主服务器
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// Handlers
	healthHandler *handlers.HealthHandler
	searchHandler *httpapi.Handler

	// 集群元数据注册表（分片段、节点成员关系），dbPool 为 nil 时禁用
	dbPool   *database.PoolManager
	registry *registry.Registry

	// 集群成员视图（gossip）与 shard 间 RPC 连接池
	clusterRegistry *cluster.Registry
	sonicPool       *sonic.Pool

	// OpenTelemetry 提供者，由 main 初始化并注入以便随服务器一起关闭
	otelProviders *telemetry.Providers

	// 生命周期 context，供依赖 ctx 的中间件（限流器）使用
	ctx    context.Context
	cancel context.CancelFunc

	// 指标收集器
	metricsCollector *metrics.Collector

	// 热更新管理器
	hotReloadManager *config.HotReloadManager
	configAPIHandler *config.ConfigAPIHandler

	// AMPC 轮次进度广播中心，供 /debug/ampc/watch 的 WebSocket 客户端订阅
	ampcHub *ampc.ProgressHub

	wg sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, otelProviders *telemetry.Providers, dbPool *database.PoolManager) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:           cfg,
		configPath:    configPath,
		logger:        logger,
		otelProviders: otelProviders,
		dbPool:        dbPool,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("searchflowd", s.logger)

	// 2. 初始化 Handlers
	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	// 3. 初始化热更新管理器
	if err := s.initHotReloadManager(); err != nil {
		return fmt.Errorf("failed to init hot reload manager: %w", err)
	}

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 6. 加入 gossip 集群并启动本分片的 RPC 服务端口
	if err := s.joinCluster(); err != nil {
		s.logger.Warn("Cluster gossip disabled", zap.Error(err))
	}
	if err := s.startShardRPCServer(); err != nil {
		s.logger.Warn("Shard RPC server disabled", zap.Error(err))
	}
	if s.clusterRegistry != nil {
		s.wg.Add(1)
		go s.refreshShardsLoop()
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() error {
	// 健康检查 handler
	s.healthHandler = handlers.NewHealthHandler(s.logger)

	// 集群元数据注册表：分片段位置和节点成员关系持久化在这里，
	// dbPool 不可用时整个注册表功能被禁用（单机只读模式）。
	if s.dbPool != nil {
		reg, err := registry.New(s.dbPool.DB(), s.logger)
		if err != nil {
			return fmt.Errorf("failed to init cluster registry: %w", err)
		}
		s.registry = reg
		s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck("registry", s.dbPool.Ping))
	}

	// 搜索 handler：shard 列表由集群成员在运行时通过 registry/cluster
	// 上报后注册到 Fanout 上（见 cluster 包），启动时先以空 shard 集合
	// 构造，保证进程在 shard 尚未加入前也能对外服务（返回空结果集）。
	fanout := &distsearch.Fanout{
		CollectorTopN:    s.cfg.Collector.TopN,
		PerShardDeadline: s.cfg.Ranking.PerShardDeadline,
	}
	s.searchHandler = httpapi.NewHandler(fanout, nil, nil, nil, s.logger)

	// AMPC 轮次进度广播中心：任何在本进程内运行的 Coordinator（例如
	// centrality 批处理任务）都可以把自己的 Progress 字段指向这里，
	// /debug/ampc/watch 的 WebSocket 客户端即可实时观察其轮次进度。
	s.ampcHub = ampc.NewProgressHub()

	s.logger.Info("Handlers initialized")
	return nil
}

// joinCluster 启动 gossip 成员视图，向集群广播本节点服务的 shard id 及
// 其生命周期状态（InSetup -> Ready，见 §4.11 "Live-index warmup"）。
func (s *Server) joinCluster() error {
	if s.cfg.Gossip.BindPort == 0 {
		return fmt.Errorf("gossip bind_port not configured")
	}

	self := cluster.NodeMeta{
		ShardID: s.cfg.Shard.ID,
		IsLive:  s.cfg.Shard.IsLive,
		State:   cluster.StateInSetup,
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Gossip.BindAddr, s.cfg.Server.RPCPort),
	}

	reg, err := cluster.Join(cluster.Config{
		NodeID:         fmt.Sprintf("shard-%d", s.cfg.Shard.ID),
		BindAddr:       s.cfg.Gossip.BindAddr,
		BindPort:       s.cfg.Gossip.BindPort,
		JoinAddrs:      s.cfg.Gossip.JoinAddrs,
		ProbeInterval:  s.cfg.Gossip.ProbeInterval,
		GossipInterval: s.cfg.Gossip.GossipInterval,
		Self:           self,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("join gossip cluster: %w", err)
	}

	s.clusterRegistry = reg
	s.sonicPool = sonic.NewPool(8)
	s.clusterRegistry.SetState(cluster.StateReady)
	return nil
}

// startShardRPCServer 在 RPCPort 上接受来自其他节点的 distsearch
// fan-out 请求。本进程不挂载本地索引，localSearch 对每个请求都返回
// 空结果集，保持协议完整而不是拒绝连接。
func (s *Server) startShardRPCServer() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Server.RPCPort))
	if err != nil {
		return fmt.Errorf("listen rpc port: %w", err)
	}

	localSearch := func(ctx context.Context, query string, offset, count int) ([]ranking.Ranked, error) {
		return nil, nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := distsearch.ServeShard(s.ctx, ln, localSearch, s.logger); err != nil {
			s.logger.Warn("Shard RPC server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("Shard RPC server started", zap.Int("port", s.cfg.Server.RPCPort))
	return nil
}

// refreshShardsLoop periodically rebuilds the search handler's Fanout
// from the live gossip membership view, so a shard joining or leaving
// the cluster is picked up without a restart.
func (s *Server) refreshShardsLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.refreshShards()
		}
	}
}

func (s *Server) refreshShards() {
	members := s.clusterRegistry.Members()
	shards := make([]distsearch.Shard, 0, len(members))
	for _, m := range members {
		if m.State != cluster.StateReady || m.Addr == "" {
			continue
		}
		shards = append(shards, distsearch.RemoteShard(m.ShardID, m.IsLive, m.Addr, s.sonicPool, s.logger))
	}
	s.searchHandler.Fanout.Shards = shards
}

// initHotReloadManager 初始化热更新管理器
func (s *Server) initHotReloadManager() error {
	opts := []config.HotReloadOption{
		config.WithHotReloadLogger(s.logger),
	}

	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}

	s.hotReloadManager = config.NewHotReloadManager(s.cfg, opts...)

	// 注册配置变更回调
	s.hotReloadManager.OnChange(func(change config.ConfigChange) {
		s.logger.Info("Configuration changed",
			zap.String("path", change.Path),
			zap.String("source", change.Source),
			zap.Bool("requires_restart", change.RequiresRestart),
		)
	})

	// 注册配置重载回调
	s.hotReloadManager.OnReload(func(oldConfig, newConfig *config.Config) {
		s.logger.Info("Configuration reloaded")
		s.cfg = newConfig
	})

	// 启动热更新管理器
	ctx := context.Background()
	if err := s.hotReloadManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hot reload manager: %w", err)
	}

	// 创建配置 API 处理器
	s.configAPIHandler = config.NewConfigAPIHandler(s.hotReloadManager)

	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器（使用新的 handlers）
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点（使用新的 HealthHandler）
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// 搜索 API
	// ========================================
	httpapi.Register(mux, s.searchHandler)

	// ========================================
	// 配置管理 API
	// ========================================
	if s.configAPIHandler != nil {
		s.configAPIHandler.RegisterRoutes(mux)
		s.logger.Info("Configuration API registered")
	}

	// ========================================
	// AMPC 轮次进度调试流（WebSocket）
	// ========================================
	mux.HandleFunc("/debug/ampc/watch", s.handleAMPCWatch)

	// ========================================
	// 构建中间件链
	// ========================================
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics", "/debug/ampc/watch"}
	handler := Chain(mux,
		Recovery(s.logger),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(s.ctx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, false, s.logger),
	)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout, // 2x ReadTimeout
		MaxHeaderBytes:  1 << 20,                        // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	// 使用 httpManager 的 WaitForShutdown（它会监听信号）
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	// 执行清理
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	if s.cancel != nil {
		s.cancel()
	}

	ctx := context.Background()

	// 1. 停止热更新管理器
	if s.hotReloadManager != nil {
		if err := s.hotReloadManager.Stop(); err != nil {
			s.logger.Error("Hot reload manager shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 4. 关闭 OpenTelemetry 提供者
	if s.otelProviders != nil {
		if err := s.otelProviders.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	// 5. 退出集群并关闭 shard RPC 资源
	if s.clusterRegistry != nil {
		if err := s.clusterRegistry.Leave(s.cfg.Server.ShutdownTimeout); err != nil {
			s.logger.Error("Cluster leave error", zap.Error(err))
		}
	}
	if s.sonicPool != nil {
		if err := s.sonicPool.Close(); err != nil {
			s.logger.Error("Sonic pool close error", zap.Error(err))
		}
	}
	if s.dbPool != nil {
		if err := s.dbPool.Close(); err != nil {
			s.logger.Error("Database pool close error", zap.Error(err))
		}
	}

	// 6. 等待所有 goroutine 完成
	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}
