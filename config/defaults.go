// =============================================================================
// 📦 Wayfarer 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig returns the default node configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Shard:     DefaultShardConfig(),
		Raft:      DefaultRaftConfig(),
		Gossip:    DefaultGossipConfig(),
		Collector: DefaultCollectorConfig(),
		Ranking:   DefaultRankingConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the default listener configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:          8080,
		RPCPort:           9090,
		MetricsPort:       9091,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		RPCRequestTimeout: 90 * time.Second,
		RPCConnectTimeout: 30 * time.Second,
		RPCIdleTTL:        60 * time.Second,
		RateLimitRPS:      100,
		RateLimitBurst:    200,
	}
}

// DefaultShardConfig returns the default shard identity.
func DefaultShardConfig() ShardConfig {
	return ShardConfig{
		ID:                  0,
		IsLive:              false,
		DataDir:             "./data",
		ConsistencyFraction: 0.5,
	}
}

// DefaultRaftConfig returns the default Raft consensus configuration.
func DefaultRaftConfig() RaftConfig {
	return RaftConfig{
		NodeID:            "node-0",
		BindAddr:          "127.0.0.1:7000",
		DataDir:           "./data/raft",
		Bootstrap:         false,
		SnapshotInterval:  2 * time.Minute,
		SnapshotThreshold: 8192,
		HeartbeatTimeout:  1 * time.Second,
		ElectionTimeout:   1 * time.Second,
		AdminRetries:      5,
	}
}

// DefaultGossipConfig returns the default memberlist configuration.
func DefaultGossipConfig() GossipConfig {
	return GossipConfig{
		BindAddr:       "0.0.0.0",
		BindPort:       7946,
		JoinAddrs:      nil,
		ProbeInterval:  1 * time.Second,
		GossipInterval: 200 * time.Millisecond,
	}
}

// DefaultCollectorConfig returns the default bucketed top-K collector tuning (§4.4).
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		TopN:                 20,
		BucketScale:          14.0,
		SitePenalty:          1.0,
		TitlePenalty:         1.0,
		URLPenalty:           1.0,
		URLWithoutTLDPenalty: 1.0,
	}
}

// DefaultRankingConfig returns the default ranking pipeline configuration.
func DefaultRankingConfig() RankingConfig {
	return RankingConfig{
		RecallTopN:       100,
		RerankEnabled:    true,
		PerShardDeadline: 2 * time.Second,
	}
}

// DefaultRedisConfig returns the default result-cache configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig returns the default metadata-registry database configuration.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:              "sqlite",
		Host:                "localhost",
		Port:                5432,
		User:                "wayfarer",
		Password:            "",
		Name:                "wayfarer.db",
		SSLMode:             "disable",
		MaxOpenConns:        25,
		MaxIdleConns:        5,
		ConnMaxLifetime:     5 * time.Minute,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultLogConfig returns the default zap configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default OpenTelemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "searchflowd",
		SampleRate:   0.1,
	}
}
