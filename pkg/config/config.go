package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"learnhub-backend/pkg/constants"
	"learnhub-backend/pkg/env"
)

// Config holds all configuration for the realtime service
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	LiveKit   LiveKitConfig   `yaml:"livekit"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Environment     string        `yaml:"environment"` // development, staging, production
	ServiceName     string        `yaml:"service_name"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects and configures the call store
type DatabaseConfig struct {
	Driver      string `yaml:"driver"` // postgres, sqlite
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Database    string `yaml:"database"`
	SSLMode     string `yaml:"ssl_mode"`
	MaxConns    int    `yaml:"max_conns"`
	MinConns    int    `yaml:"min_conns"`
	SQLitePath  string `yaml:"sqlite_path"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LiveKitConfig holds the external media-routing service settings
type LiveKitConfig struct {
	URL             string        `yaml:"url"`
	APIKey          string        `yaml:"api_key"`
	APISecret       string        `yaml:"api_secret"`
	TokenTTL        time.Duration `yaml:"token_ttl"`
	EmptyTimeout    time.Duration `yaml:"empty_timeout"`
	MaxParticipants int           `yaml:"max_participants"`
}

// WebSocketConfig holds socket endpoint limits
type WebSocketConfig struct {
	MaxConnections int           `yaml:"max_connections"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongWait       time.Duration `yaml:"pong_wait"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	SendBuffer     int           `yaml:"send_buffer"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// WebhookConfig holds webhook ingestion settings
type WebhookConfig struct {
	LedgerTTL time.Duration `yaml:"ledger_ttl"`
}

// RateLimitConfig holds REST rate limiting
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string `yaml:"level"`  // debug, info, warn, error
	Format   string `yaml:"format"` // json, text
	Output   string `yaml:"output"` // stdout, file
	FilePath string `yaml:"file_path"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8085,
			Environment:     "development",
			ServiceName:     "realtime-service",
			ShutdownTimeout: constants.GracefulShutdownTimeout,
		},
		Database: DatabaseConfig{
			Driver:      "postgres",
			Host:        "localhost",
			Port:        5432,
			User:        "postgres",
			Database:    "learnhub",
			SSLMode:     "disable",
			MaxConns:    25,
			MinConns:    5,
			SQLitePath:  "./data/learnhub.db",
			AutoMigrate: true,
		},
		Redis: RedisConfig{
			Enabled:  true,
			Host:     "localhost",
			Port:     6379,
			PoolSize: 10,
			Timeout:  5 * time.Second,
		},
		LiveKit: LiveKitConfig{
			URL:          "http://localhost:7880",
			TokenTTL:     constants.MediaTokenTTL,
			EmptyTimeout: constants.MediaRoomEmptyTimeout,
		},
		WebSocket: WebSocketConfig{
			MaxConnections: constants.WebSocketMaxConnections,
			PingInterval:   constants.WebSocketPingInterval,
			PongWait:       constants.WebSocketPongWait,
			WriteTimeout:   constants.WebSocketWriteTimeout,
			SendBuffer:     constants.WebSocketSendBuffer,
			AllowedOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		},
		Webhook: WebhookConfig{
			LedgerTTL: constants.WebhookLedgerTTL,
		},
		RateLimit: RateLimitConfig{
			Requests: 120,
			Window:   time.Minute,
		},
		Log: LogConfig{
			Level:    "info",
			Format:   "json",
			Output:   "stdout",
			FilePath: "/logs/realtime.log",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if any),
// then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = env.GetInt("PORT", c.Server.Port)
	c.Server.Environment = env.GetString("ENV", c.Server.Environment)
	c.Server.ServiceName = env.GetString("SERVICE_NAME", c.Server.ServiceName)

	c.Database.Driver = env.GetString("DB_DRIVER", c.Database.Driver)
	c.Database.Host = env.GetString("DB_HOST", c.Database.Host)
	c.Database.Port = env.GetInt("DB_PORT", c.Database.Port)
	c.Database.User = env.GetString("DB_USER", c.Database.User)
	c.Database.Password = env.GetStringFromFile("DB_PASSWORD", c.Database.Password)
	c.Database.Database = env.GetString("DB_NAME", c.Database.Database)
	c.Database.SSLMode = env.GetString("DB_SSL_MODE", c.Database.SSLMode)
	c.Database.MaxConns = env.GetInt("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = env.GetInt("DB_MIN_CONNS", c.Database.MinConns)
	c.Database.SQLitePath = env.GetString("SQLITE_PATH", c.Database.SQLitePath)
	c.Database.AutoMigrate = env.GetBool("DB_AUTO_MIGRATE", c.Database.AutoMigrate)

	c.Redis.Enabled = env.GetBool("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Host = env.GetString("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = env.GetInt("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = env.GetStringFromFile("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = env.GetInt("REDIS_DB", c.Redis.DB)
	c.Redis.PoolSize = env.GetInt("REDIS_POOL_SIZE", c.Redis.PoolSize)
	c.Redis.Timeout = env.GetDuration("REDIS_TIMEOUT", c.Redis.Timeout)

	c.LiveKit.URL = env.GetString("LIVEKIT_URL", c.LiveKit.URL)
	c.LiveKit.APIKey = env.GetStringFromFile("LIVEKIT_API_KEY", c.LiveKit.APIKey)
	c.LiveKit.APISecret = env.GetStringFromFile("LIVEKIT_API_SECRET", c.LiveKit.APISecret)
	c.LiveKit.TokenTTL = env.GetDuration("LIVEKIT_TOKEN_TTL", c.LiveKit.TokenTTL)
	c.LiveKit.EmptyTimeout = env.GetDuration("LIVEKIT_EMPTY_TIMEOUT", c.LiveKit.EmptyTimeout)
	c.LiveKit.MaxParticipants = env.GetInt("LIVEKIT_MAX_PARTICIPANTS", c.LiveKit.MaxParticipants)

	c.WebSocket.MaxConnections = env.GetInt("WS_MAX_CONNECTIONS", c.WebSocket.MaxConnections)
	c.WebSocket.PingInterval = env.GetDuration("WS_PING_INTERVAL", c.WebSocket.PingInterval)
	c.WebSocket.PongWait = env.GetDuration("WS_PONG_WAIT", c.WebSocket.PongWait)
	c.WebSocket.WriteTimeout = env.GetDuration("WS_WRITE_TIMEOUT", c.WebSocket.WriteTimeout)
	c.WebSocket.SendBuffer = env.GetInt("WS_SEND_BUFFER", c.WebSocket.SendBuffer)
	c.WebSocket.AllowedOrigins = env.GetStringSlice("CORS_ALLOWED_ORIGINS", c.WebSocket.AllowedOrigins)

	c.Webhook.LedgerTTL = env.GetDuration("WEBHOOK_LEDGER_TTL", c.Webhook.LedgerTTL)

	c.RateLimit.Requests = env.GetInt("RATE_LIMIT_REQUESTS", c.RateLimit.Requests)
	c.RateLimit.Window = env.GetDuration("RATE_LIMIT_WINDOW", c.RateLimit.Window)

	c.Log.Level = env.GetString("LOG_LEVEL", c.Log.Level)
	c.Log.Format = env.GetString("LOG_FORMAT", c.Log.Format)
	c.Log.Output = env.GetString("LOG_OUTPUT", c.Log.Output)
	c.Log.FilePath = env.GetString("LOG_FILE_PATH", c.Log.FilePath)
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q (want postgres or sqlite)", c.Database.Driver)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("websocket send buffer must be positive")
	}

	if c.IsProduction() {
		if c.LiveKit.APIKey == "" || c.LiveKit.APISecret == "" {
			return fmt.Errorf("LIVEKIT_API_KEY and LIVEKIT_API_SECRET must be set in production")
		}
		if len(c.LiveKit.APISecret) < 32 {
			return fmt.Errorf("LIVEKIT_API_SECRET must be at least 32 characters in production")
		}
	}

	return nil
}

// PostgresDSN returns the pgx connection string
func (c *DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}
