package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	ServerID string `mapstructure:"serverId"`
}

// HTTPAuthConfig 管理接口 API Key 认证
type HTTPAuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"apiKeys"`
}

// HTTPConfig HTTP 服务配置（健康检查、指标、动作表查询）
// DebugDispatch 开启后暴露 POST /api/v1/dispatch，仅用于联调。
type HTTPConfig struct {
	Addr          string         `mapstructure:"addr"`
	ReadTimeout   time.Duration  `mapstructure:"readTimeout"`
	WriteTimeout  time.Duration  `mapstructure:"writeTimeout"`
	Auth          HTTPAuthConfig `mapstructure:"auth"`
	DebugDispatch bool           `mapstructure:"debugDispatch"`
}

// TCPConfig TCP 网关监听配置
type TCPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// GatewayConfig 请求网关限流与帧配置
type GatewayConfig struct {
	MaxConnections int           `mapstructure:"maxConnections"`
	AcquireTimeout time.Duration `mapstructure:"acquireTimeout"`
	RatePerSec     int           `mapstructure:"ratePerSec"`
	Burst          int           `mapstructure:"burst"`
	MaxFrameBytes  int           `mapstructure:"maxFrameBytes"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// RedisConfig Redis 连接配置
// Shards 非空时按玩家ID分片，每个分片一个独立客户端；为空时仅使用 Addr。
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Shards       []string      `mapstructure:"shards"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"poolSize"`
	MinIdleConns int           `mapstructure:"minIdleConns"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// Addrs 返回全部分片地址
func (c RedisConfig) Addrs() []string {
	if len(c.Shards) > 0 {
		return c.Shards
	}
	return []string{c.Addr}
}

// 锁后端
const (
	LockBackendRedis  = "redis"
	LockBackendMemory = "memory"
)

// LockConfig 玩家互斥锁配置
// WaitTimeout 为 0 表示无限等待，直到获得锁；
// 锁后端连续失败 BreakerThreshold 次后熔断 BreakerCooldown，阈值为 0 关闭熔断。
type LockConfig struct {
	Backend          string        `mapstructure:"backend"`
	Namespace        string        `mapstructure:"namespace"`
	TTL              time.Duration `mapstructure:"ttl"`
	RetryInterval    time.Duration `mapstructure:"retryInterval"`
	WaitTimeout      time.Duration `mapstructure:"waitTimeout"`
	BreakerThreshold int           `mapstructure:"breakerThreshold"`
	BreakerCooldown  time.Duration `mapstructure:"breakerCooldown"`
}

// Config 顶层配置结构
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	TCP     TCPConfig     `mapstructure:"tcp"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Lock    LockConfig    `mapstructure:"lock"`
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 GAME_CONFIG 读取；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	// 环境变量覆盖：前缀 GAME_，并将点号替换为下划线
	v.SetEnvPrefix("GAME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("config")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置之间的约束
func (c *Config) Validate() error {
	switch c.Lock.Backend {
	case LockBackendRedis:
		if !c.Redis.Enabled {
			return errors.New("config: lock.backend=redis requires redis.enabled")
		}
	case LockBackendMemory:
	default:
		return fmt.Errorf("config: unknown lock.backend %q", c.Lock.Backend)
	}
	if c.Lock.Namespace == "" {
		return errors.New("config: lock.namespace is empty")
	}
	if c.Lock.TTL <= 0 {
		return errors.New("config: lock.ttl must be positive")
	}
	if c.Lock.RetryInterval <= 0 || c.Lock.RetryInterval >= c.Lock.TTL {
		return errors.New("config: lock.retryInterval must be in (0, lock.ttl)")
	}
	if c.Lock.WaitTimeout < 0 {
		return errors.New("config: lock.waitTimeout must not be negative")
	}
	if c.HTTP.Auth.Enabled && len(c.HTTP.Auth.APIKeys) == 0 {
		return errors.New("config: http.auth.enabled requires at least one api key")
	}
	if c.Gateway.MaxFrameBytes <= 0 {
		return errors.New("config: gateway.maxFrameBytes must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "game-server")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.serverId", "")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")
	v.SetDefault("http.auth.enabled", false)
	v.SetDefault("http.debugDispatch", false)

	v.SetDefault("tcp.addr", ":7000")
	v.SetDefault("tcp.readTimeout", "300s")
	v.SetDefault("tcp.writeTimeout", "10s")

	v.SetDefault("gateway.maxConnections", 5000)
	v.SetDefault("gateway.acquireTimeout", "1s")
	v.SetDefault("gateway.ratePerSec", 200)
	v.SetDefault("gateway.burst", 400)
	v.SetDefault("gateway.maxFrameBytes", 64*1024)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/game-server.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 50)
	v.SetDefault("redis.minIdleConns", 5)
	v.SetDefault("redis.dialTimeout", "5s")
	v.SetDefault("redis.readTimeout", "3s")
	v.SetDefault("redis.writeTimeout", "3s")

	v.SetDefault("lock.backend", LockBackendMemory)
	v.SetDefault("lock.namespace", "player")
	v.SetDefault("lock.ttl", "30s")
	v.SetDefault("lock.retryInterval", "20ms")
	v.SetDefault("lock.waitTimeout", "0s")
	v.SetDefault("lock.breakerThreshold", 5)
	v.SetDefault("lock.breakerCooldown", "5s")
}
