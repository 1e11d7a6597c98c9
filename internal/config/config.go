package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr string `mapstructure:"http_addr"`
	LogLevel string `mapstructure:"log_level"`

	// STORE_BACKEND=memory keeps conversations in-process only (lost on restart).
	StoreBackend string `mapstructure:"store_backend"`
	DBDriver     string `mapstructure:"db_driver"`
	DBDSN        string `mapstructure:"db_dsn"`

	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTTTL    time.Duration `mapstructure:"jwt_ttl"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`

	ChatContextWindowSize int           `mapstructure:"chat_context_window_size"`
	InferenceTimeout      time.Duration `mapstructure:"inference_timeout"`
	GuestTTL              time.Duration `mapstructure:"guest_ttl"`
	CatalogFile           string        `mapstructure:"catalog_file"`

	// AI providers
	HFBaseURL         string `mapstructure:"hf_base_url"`
	HFAPIKey          string `mapstructure:"hf_api_key"`
	OllamaBaseURL     string `mapstructure:"ollama_base_url"`
	OllamaKeepAlive   string `mapstructure:"ollama_keep_alive"`
	OpenRouterBaseURL string `mapstructure:"openrouter_base_url"`
	OpenRouterAPIKey  string `mapstructure:"openrouter_api_key"`
	OpenRouterSiteURL string `mapstructure:"openrouter_site_url"`
	OpenRouterAppName string `mapstructure:"openrouter_app_name"`

	// rabbitMQ; empty URL disables async turns
	RabbitURL         string `mapstructure:"rabbit_url"`
	RabbitQueue       string `mapstructure:"rabbit_queue"`
	WorkerConcurrency int    `mapstructure:"worker_concurrency"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")

	v.SetDefault("store_backend", "memory")
	v.SetDefault("db_driver", "mysql")
	// DSN demo：
	// app:apppass@tcp(127.0.0.1:3306)/mygpt?charset=utf8mb4&parseTime=true&loc=Local
	v.SetDefault("db_dsn", fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=Local",
		"app", "apppass", "127.0.0.1", "3306", "mygpt",
	))

	v.SetDefault("jwt_secret", "dev-secret-change-me")
	v.SetDefault("jwt_ttl", 7*24*time.Hour)

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("rate_limit_per_minute", 30)

	v.SetDefault("chat_context_window_size", 10)
	v.SetDefault("inference_timeout", 30*time.Second)
	v.SetDefault("guest_ttl", 24*time.Hour)
	v.SetDefault("catalog_file", "")

	v.SetDefault("hf_base_url", "https://router.huggingface.co/v1")
	v.SetDefault("hf_api_key", "")
	v.SetDefault("ollama_base_url", "http://localhost:11434")
	v.SetDefault("ollama_keep_alive", "")
	v.SetDefault("openrouter_base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openrouter_api_key", "")
	v.SetDefault("openrouter_site_url", "")
	v.SetDefault("openrouter_app_name", "")

	v.SetDefault("rabbit_url", "")
	v.SetDefault("rabbit_queue", "chat_turns")
	v.SetDefault("worker_concurrency", 2)
}

// Load reads defaults, an optional config file (CONFIG_FILE) and environment
// variables, in increasing order of precedence.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if file := strings.TrimSpace(v.GetString("config_file")); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case "", "memory":
		c.StoreBackend = "memory"
	case "sql":
	default:
		return fmt.Errorf("unsupported STORE_BACKEND=%q", c.StoreBackend)
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if c.ChatContextWindowSize <= 0 || c.ChatContextWindowSize > 100 {
		c.ChatContextWindowSize = 10
	}
	if c.InferenceTimeout <= 0 {
		c.InferenceTimeout = 30 * time.Second
	}
	if c.WorkerConcurrency <= 0 {
		c.WorkerConcurrency = 2
	}
	if c.WorkerConcurrency > 50 {
		c.WorkerConcurrency = 50
	}
	return nil
}

// AsyncEnabled reports whether queued turns can be served: they need a broker
// and a store shared with the worker process.
func (c Config) AsyncEnabled() bool {
	return c.RabbitURL != "" && c.StoreBackend == "sql"
}
