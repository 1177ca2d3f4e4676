package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr        string        `mapstructure:"HTTP_ADDR"`
	NodeID          string        `mapstructure:"NODE_ID"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	LogPretty       bool          `mapstructure:"LOG_PRETTY"`
	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	StoreDriver     string        `mapstructure:"STORE_DRIVER"`
	SQLitePath      string        `mapstructure:"SQLITE_PATH"`
	MongoURI        string        `mapstructure:"MONGO_URI"`
	MongoDatabase   string        `mapstructure:"MONGO_DATABASE"`
	PresenceDriver  string        `mapstructure:"PRESENCE_DRIVER"`
	RedisAddr       string        `mapstructure:"REDIS_ADDR"`
	RedisKey        string        `mapstructure:"REDIS_PRESENCE_KEY"`
	AckTimeout      time.Duration `mapstructure:"ACK_TIMEOUT"`
	HistoryPageSize int           `mapstructure:"HISTORY_PAGE_SIZE"`
	NotifyToken     string        `mapstructure:"NOTIFY_TOKEN"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

var defaults = map[string]any{
	"HTTP_ADDR":          "127.0.0.1:3000",
	"NODE_ID":            "",
	"LOG_LEVEL":          "info",
	"LOG_PRETTY":         false,
	"JWT_SECRET":         "",
	"STORE_DRIVER":       "sqlite",
	"SQLITE_PATH":        "pelusa_chat.db",
	"MONGO_URI":          "mongodb://localhost:27017",
	"MONGO_DATABASE":     "pelusa_chat",
	"PRESENCE_DRIVER":    "memory",
	"REDIS_ADDR":         "localhost:6379",
	"REDIS_PRESENCE_KEY": "presence",
	"ACK_TIMEOUT":        5 * time.Second,
	"HISTORY_PAGE_SIZE":  50,
	"NOTIFY_TOKEN":       "",
	"SHUTDOWN_TIMEOUT":   30 * time.Second,
}

// Load reads .env (when present), the optional YAML file and the environment,
// in increasing order of precedence.
func Load(file string) (*Config, error) {
	_ = godotenv.Load() // a missing .env is fine, the environment is authoritative

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.NodeID == "" {
		c.NodeID = defaultNodeID()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// defaultNodeID names this process in connection handles. Nodes sharing a
// presence registry must not share an id.
func defaultNodeID() string {
	if host, err := os.Hostname(); err == nil && host != "" && !strings.Contains(host, ":") {
		return host
	}
	return uuid.NewString()
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.NodeID == "" || strings.Contains(c.NodeID, ":") {
		return errors.New("NODE_ID must be non-empty and must not contain ':'")
	}
	switch strings.ToLower(c.StoreDriver) {
	case "memory", "sqlite", "mongo":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch strings.ToLower(c.PresenceDriver) {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown PRESENCE_DRIVER %q", c.PresenceDriver)
	}
	if c.AckTimeout <= 0 {
		return errors.New("ACK_TIMEOUT must be positive")
	}
	if c.HistoryPageSize <= 0 || c.HistoryPageSize > 500 {
		return errors.New("HISTORY_PAGE_SIZE must be between 1 and 500")
	}
	return nil
}
