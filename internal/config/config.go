package config

import (
	"bytes"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/jmehdipour/esim-gateway/internal/esimaccess"
	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	MySQL       DatabaseConfig    `mapstructure:"mysql"`
	ClickHouse  DatabaseConfig    `mapstructure:"clickhouse"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	ESIM        ESIMConfig        `mapstructure:"esim"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Provisioner ProvisionerConfig `mapstructure:"provisioner"`
	Usage       UsageConfig       `mapstructure:"usage"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

type ClientRateConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// ESIMConfig configures the upstream provisioning API client.
type ESIMConfig struct {
	BaseURL    string           `mapstructure:"base_url"`
	AccessCode string           `mapstructure:"access_code"`
	SecretKey  string           `mapstructure:"secret_key"`
	TimeoutMs  int              `mapstructure:"timeout_ms"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	RateLimit  ClientRateConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig is the default per-customer fixed-window limit.
type RateLimitConfig struct {
	RPS int `mapstructure:"rps"`
}

type CatalogConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type ProvisionerConfig struct {
	WorkerCount int           `mapstructure:"worker_count"`
	BatchSize   int           `mapstructure:"batch_size"`
	BatchWait   time.Duration `mapstructure:"batch_wait"`
}

type UsageConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	PageSize     int           `mapstructure:"page_size"`
}

var (
	ErrMissingAccessCode = errors.New("config: esim.access_code is required")
	ErrMissingSecretKey  = errors.New("config: esim.secret_key is required")
)

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (ESIMGW_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (ESIMGW_ESIM_SECRET_KEY -> esim.secret_key)
	v.SetEnvPrefix("ESIMGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidateESIM checks the credentials needed by commands that call upstream.
func (c Config) ValidateESIM() error {
	if strings.TrimSpace(c.ESIM.AccessCode) == "" {
		return ErrMissingAccessCode
	}
	if c.ESIM.SecretKey == "" {
		return ErrMissingSecretKey
	}
	return nil
}

// ClientConfig maps the esim section onto the API client settings.
func (e ESIMConfig) ClientConfig() esimaccess.Config {
	return esimaccess.Config{
		BaseURL:          e.BaseURL,
		AccessCode:       e.AccessCode,
		SecretKey:        e.SecretKey,
		Timeout:          time.Duration(e.TimeoutMs) * time.Millisecond,
		BreakerThreshold: e.Breaker.FailThreshold,
		BreakerOpenFor:   time.Duration(e.Breaker.OpenForMs) * time.Millisecond,
		RateLimitRPS:     e.RateLimit.RPS,
		RateLimitBurst:   e.RateLimit.Burst,
	}
}
