// =============================================================================
// 📦 Wayfarer 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("WAYFARER").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config is the complete node configuration for a searchflowd process.
type Config struct {
	// Server HTTP/RPC listener configuration
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Shard identifies this node's place in the cluster
	Shard ShardConfig `yaml:"shard" env:"SHARD"`

	// Raft controls the AMPC DHT's consensus group
	Raft RaftConfig `yaml:"raft" env:"RAFT"`

	// Gossip controls the cluster membership layer
	Gossip GossipConfig `yaml:"gossip" env:"GOSSIP"`

	// Collector controls the bucketed top-K collector defaults
	Collector CollectorConfig `yaml:"collector" env:"COLLECTOR"`

	// Ranking controls the recall/rerank pipeline defaults
	Ranking RankingConfig `yaml:"ranking" env:"RANKING"`

	// Redis result-cache configuration
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database metadata-store configuration (segment/cluster registry)
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log logging configuration
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry OpenTelemetry configuration
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the HTTP search API and the sonic RPC listener.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	RPCPort         int           `yaml:"rpc_port" env:"RPC_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// RPCRequestTimeout is not read; sonic uses its DefaultRequestTimeout
	// constant (§6: 90s).
	RPCRequestTimeout time.Duration `yaml:"rpc_request_timeout" env:"RPC_REQUEST_TIMEOUT"`
	// RPCConnectTimeout is not read; sonic uses its DefaultConnectTimeout
	// constant (§6: 30s).
	RPCConnectTimeout time.Duration `yaml:"rpc_connect_timeout" env:"RPC_CONNECT_TIMEOUT"`
	// RPCIdleTTL closes idle pooled connections past this age (§5: 60s).
	RPCIdleTTL time.Duration `yaml:"rpc_idle_ttl" env:"RPC_IDLE_TTL"`

	// CORSAllowedOrigins is the explicit allow-list for cross-origin
	// search requests; empty means no cross-origin access is granted.
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// RateLimitRPS bounds sustained requests per second per caller.
	RateLimitRPS int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// RateLimitBurst bounds the token-bucket burst size per caller.
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// APIKeys is the static set of keys accepted by APIKeyAuth for the
	// cluster-admin surface (registry/cluster endpoints), separate from
	// the public, unauthenticated /beta/api/search endpoint.
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// JWT holds the settings read by the JWTAuth middleware.
	JWT JWTConfig `yaml:"jwt" env:"JWT"`
}

// JWTConfig configures the JWTAuth bearer-token middleware. The
// searchflowd server's middleware chain does not include JWTAuth.
type JWTConfig struct {
	Secret    string `yaml:"secret" env:"JWT_SECRET"`
	PublicKey string `yaml:"public_key" env:"JWT_PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"JWT_ISSUER"`
	Audience  string `yaml:"audience" env:"JWT_AUDIENCE"`
}

// ShardConfig identifies this node's role in the distributed search fabric.
type ShardConfig struct {
	// ID is this shard's opaque identifier, unique within the cluster.
	ID uint64 `yaml:"id" env:"ID"`
	// IsLive marks this shard as the append-only live index (§4.11).
	IsLive bool `yaml:"is_live" env:"IS_LIVE"`
	// DataDir holds committed webgraph/index/spelling/LM segments.
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`
	// ConsistencyFraction is the default IndexWebpages ack fraction (§4.11).
	ConsistencyFraction float64 `yaml:"consistency_fraction" env:"CONSISTENCY_FRACTION"`
}

// RaftConfig configures the Raft-backed DHT (§4.8) used by AMPC jobs.
type RaftConfig struct {
	NodeID            string        `yaml:"node_id" env:"NODE_ID"`
	BindAddr          string        `yaml:"bind_addr" env:"BIND_ADDR"`
	DataDir           string        `yaml:"data_dir" env:"DATA_DIR"`
	Bootstrap         bool          `yaml:"bootstrap" env:"BOOTSTRAP"`
	SnapshotInterval  time.Duration `yaml:"snapshot_interval" env:"SNAPSHOT_INTERVAL"`
	SnapshotThreshold uint64        `yaml:"snapshot_threshold" env:"SNAPSHOT_THRESHOLD"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout" env:"HEARTBEAT_TIMEOUT"`
	ElectionTimeout   time.Duration `yaml:"election_timeout" env:"ELECTION_TIMEOUT"`
	// AdminRetries is not read; ampcdht.RemoteClient uses a fixed
	// policy of 5 retries (§7: 5x).
	AdminRetries int `yaml:"admin_retries" env:"ADMIN_RETRIES"`
}

// GossipConfig configures the memberlist-backed service registry (§4.11).
type GossipConfig struct {
	BindAddr         string        `yaml:"bind_addr" env:"BIND_ADDR"`
	BindPort         int           `yaml:"bind_port" env:"BIND_PORT"`
	JoinAddrs        []string      `yaml:"join_addrs" env:"JOIN_ADDRS"`
	ProbeInterval    time.Duration `yaml:"probe_interval" env:"PROBE_INTERVAL"`
	GossipInterval   time.Duration `yaml:"gossip_interval" env:"GOSSIP_INTERVAL"`
}

// CollectorConfig configures the bucketed top-K deduplicating collector (§4.4).
type CollectorConfig struct {
	TopN              int     `yaml:"top_n" env:"TOP_N"`
	BucketScale       float64 `yaml:"bucket_scale" env:"BUCKET_SCALE"`
	SitePenalty       float64 `yaml:"site_penalty" env:"SITE_PENALTY"`
	TitlePenalty      float64 `yaml:"title_penalty" env:"TITLE_PENALTY"`
	URLPenalty        float64 `yaml:"url_penalty" env:"URL_PENALTY"`
	URLWithoutTLDPenalty float64 `yaml:"url_without_tld_penalty" env:"URL_WITHOUT_TLD_PENALTY"`
}

// RankingConfig configures the recall/rerank pipeline (§4.5).
type RankingConfig struct {
	RecallTopN       int           `yaml:"recall_top_n" env:"RECALL_TOP_N"`
	RerankEnabled    bool          `yaml:"rerank_enabled" env:"RERANK_ENABLED"`
	PerShardDeadline time.Duration `yaml:"per_shard_deadline" env:"PER_SHARD_DEADLINE"`
}

// RedisConfig configures the query-result cache.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig configures the SQL-backed segment/cluster metadata registry.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME"`

	// HealthCheckInterval 为 0 时关闭后台健康检查探活 goroutine。
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader loads configuration using the builder pattern.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "WAYFARER",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator registers an additional config validator.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load loads configuration: defaults → YAML file → environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad loads configuration, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate validates the configuration, failing fast on obviously broken values.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Collector.TopN <= 0 {
		errs = append(errs, "collector.top_n must be positive")
	}
	if c.Shard.ConsistencyFraction < 0 || c.Shard.ConsistencyFraction > 1 {
		errs = append(errs, "shard.consistency_fraction must be in [0,1]")
	}
	if c.Ranking.RecallTopN <= 0 {
		errs = append(errs, "ranking.recall_top_n must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the database connection string for the configured driver.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
