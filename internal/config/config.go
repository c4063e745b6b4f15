package config

import (
	"fmt"
	"time"

	"github.com/aescanero/dagent/pkg/adapters/credentials"
	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for dagent
type Config struct {
	// Server configuration
	HTTPPort int    `env:"DAGENT_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"DAGENT_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Redis configuration
	Redis RedisConfig

	// LLM configuration
	LLM LLMConfig

	// Scheduler configuration
	Scheduler SchedulerConfig

	// Resource monitor configuration
	Monitor MonitorConfig

	// Unsafe-operation gate
	Gate GateConfig

	// Timeouts
	Timeouts TimeoutConfig

	// Credentials collected from the numbered environment variables.
	Credentials []credentials.Source
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	// Enabled switches storage and events from memory to Redis.
	Enabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	StateTTL time.Duration `env:"REDIS_STATE_TTL" envDefault:"24h"`
	// StreamMaxLen trims event streams to roughly this many entries.
	StreamMaxLen int64 `env:"REDIS_STREAM_MAXLEN" envDefault:"10000"`
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	// Provider is anthropic, ollama, lmstudio or hybrid.
	Provider    string   `env:"LLM_PROVIDER" envDefault:"anthropic"`
	HybridOrder []string `env:"LLM_HYBRID_ORDER" envSeparator:"," envDefault:"anthropic,ollama"`

	// CredentialPrefix names the key variables: PREFIX, PREFIX_1, PREFIX_2...
	CredentialPrefix string        `env:"LLM_CREDENTIAL_PREFIX" envDefault:"ANTHROPIC_API_KEY"`
	QuotaCooldown    time.Duration `env:"LLM_QUOTA_COOLDOWN" envDefault:"0s"`

	// Rate limiting
	RequestsPerSecond float64       `env:"LLM_REQUESTS_PER_SECOND" envDefault:"0"`
	RequestTimeout    time.Duration `env:"LLM_REQUEST_TIMEOUT" envDefault:"120s"`

	// Default model settings
	DefaultModel       string  `env:"LLM_DEFAULT_MODEL" envDefault:"claude-3-5-sonnet-20241022"`
	DefaultTemperature float64 `env:"LLM_DEFAULT_TEMPERATURE" envDefault:"0.7"`
	DefaultMaxTokens   int     `env:"LLM_DEFAULT_MAX_TOKENS" envDefault:"4096"`

	// Local providers
	OllamaURL     string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaModel   string `env:"OLLAMA_MODEL"`
	LMStudioURL   string `env:"LMSTUDIO_URL" envDefault:"http://localhost:1234"`
	LMStudioModel string `env:"LMSTUDIO_MODEL"`
}

// SchedulerConfig holds execution scheduler configuration
type SchedulerConfig struct {
	BaseConcurrency     int           `env:"SCHEDULER_BASE_CONCURRENCY" envDefault:"2"`
	MaxRetries          int           `env:"SCHEDULER_MAX_RETRIES" envDefault:"2"`
	MaxSteps            int           `env:"SCHEDULER_MAX_STEPS" envDefault:"50"`
	ScalingInterval     time.Duration `env:"SCHEDULER_SCALING_INTERVAL" envDefault:"5s"`
	HealthCheckInterval time.Duration `env:"SCHEDULER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// MonitorConfig holds resource monitor configuration
type MonitorConfig struct {
	SampleWindow time.Duration `env:"MONITOR_SAMPLE_WINDOW" envDefault:"200ms"`
}

// GateConfig holds the unsafe tool set
type GateConfig struct {
	UnsafeTools []string `env:"GATE_UNSAFE_TOOLS" envSeparator:"," envDefault:"delete_file,execute_command,git_push,shell,write_file"`
	// AutoApprove confirms every unsafe tool. Without it a headless server
	// refuses them all.
	AutoApprove bool `env:"GATE_AUTO_APPROVE" envDefault:"false"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	RunTimeout      time.Duration `env:"TIMEOUT_RUN" envDefault:"3600s"` // 1 hour
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Credentials = LoadCredentials(cfg.LLM.CredentialPrefix)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	// Validate Redis config
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	// Validate LLM config
	providers, err := c.LLM.Providers()
	if err != nil {
		return err
	}
	for _, p := range providers {
		if p == credentials.ProviderAnthropic && len(c.Credentials) == 0 {
			return fmt.Errorf("anthropic provider requires %s or %s_1..N", c.LLM.CredentialPrefix, c.LLM.CredentialPrefix)
		}
	}
	if c.LLM.RequestTimeout <= 0 {
		return fmt.Errorf("LLM request timeout must be positive")
	}

	// Validate scheduler config
	if c.Scheduler.BaseConcurrency < 1 {
		return fmt.Errorf("scheduler base concurrency must be at least 1")
	}
	if c.Scheduler.MaxRetries < 0 {
		return fmt.Errorf("scheduler max retries must not be negative")
	}
	if c.Scheduler.ScalingInterval <= 0 {
		return fmt.Errorf("scheduler scaling interval must be positive")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// Providers returns the concrete providers the configuration selects.
func (c *LLMConfig) Providers() ([]string, error) {
	providers := []string{c.Provider}
	if c.Provider == "hybrid" {
		if len(c.HybridOrder) == 0 {
			return nil, fmt.Errorf("hybrid provider requires LLM_HYBRID_ORDER")
		}
		providers = c.HybridOrder
	}

	for _, p := range providers {
		switch p {
		case credentials.ProviderAnthropic, credentials.ProviderOllama, credentials.ProviderLMStudio:
		default:
			return nil, fmt.Errorf("unsupported LLM provider: %s", p)
		}
	}
	return providers, nil
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
