package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the ReviewRelay server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AI       AIConfig
	Minio    MinioConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	APIKeyHash         string
	CORSAllowedOrigins []string
	RateLimitPerMin    int
	MaxImageBytes      int64
}

type DatabaseConfig struct {
	Driver          string
	URL             string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig is optional; an empty URL disables answer caching and rate limiting.
type RedisConfig struct {
	URL string
}

type AIConfig struct {
	InferenceTimeout time.Duration
	Temperature      float32
	MaxRetries       int
	AnswerCacheTTL   time.Duration
	PromptsFile      string
	Text             ProviderConfig
	Vision           ProviderConfig
}

// ProviderConfig describes one OpenAI-compatible endpoint. A missing APIKey is
// reported when the gateway is called, not at startup.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// MinioConfig is optional; an empty Endpoint disables image archiving.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Enabled reports whether image archiving is configured.
func (m MinioConfig) Enabled() bool {
	return m.Endpoint != ""
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var validDrivers = map[string]bool{
	DriverSQLite:   true,
	DriverPostgres: true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("RELAY_PORT", 8000),
			Env:                envString("RELAY_ENV", "development"),
			APIKeyHash:         os.Getenv("RELAY_API_KEY_HASH"),
			CORSAllowedOrigins: envList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			RateLimitPerMin:    envInt("RATE_LIMIT_PER_MIN", 60),
			MaxImageBytes:      int64(envInt("MAX_IMAGE_BYTES", 10<<20)),
		},
		Database: DatabaseConfig{
			Driver:          envString("STORE_DRIVER", DriverSQLite),
			URL:             os.Getenv("DATABASE_URL"),
			SQLitePath:      envString("SQLITE_PATH", "mistakes.db"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		AI: AIConfig{
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 120*time.Second),
			Temperature:      envFloat32("AI_TEMPERATURE", 0.3),
			MaxRetries:       envInt("AI_MAX_RETRIES", 1),
			AnswerCacheTTL:   envDuration("AI_ANSWER_CACHE_TTL", 24*time.Hour),
			PromptsFile:      os.Getenv("PROMPTS_FILE"),
			Text: ProviderConfig{
				APIKey:  os.Getenv("TEXT_API_KEY"),
				BaseURL: envString("TEXT_BASE_URL", "https://api.deepseek.com"),
				Model:   envString("TEXT_MODEL", "deepseek-chat"),
			},
			Vision: ProviderConfig{
				APIKey:  os.Getenv("VISION_API_KEY"),
				BaseURL: envString("VISION_BASE_URL", "https://api.siliconflow.cn/v1"),
				Model:   envString("VISION_MODEL", "Qwen/Qwen2.5-VL-72B-Instruct"),
			},
		},
		Minio: MinioConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    envString("MINIO_BUCKET", "question-images"),
			Region:    envString("MINIO_REGION", "us-east-1"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("RELAY_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxImageBytes <= 0 {
		return fmt.Errorf("MAX_IMAGE_BYTES must be positive, got %d", c.Server.MaxImageBytes)
	}

	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("STORE_DRIVER must be one of sqlite, postgres; got %q", c.Database.Driver)
	}
	if c.Database.Driver == DriverPostgres && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is postgres")
	}
	if c.Database.Driver == DriverSQLite && c.Database.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER is sqlite")
	}

	for name, p := range map[string]ProviderConfig{"TEXT": c.AI.Text, "VISION": c.AI.Vision} {
		if p.Model == "" {
			return fmt.Errorf("%s_MODEL is required", name)
		}
		if !strings.HasPrefix(p.BaseURL, "http://") && !strings.HasPrefix(p.BaseURL, "https://") {
			return fmt.Errorf("%s_BASE_URL must start with http:// or https://, got %q", name, p.BaseURL)
		}
	}

	if c.AI.MaxRetries < 0 {
		return fmt.Errorf("AI_MAX_RETRIES must not be negative, got %d", c.AI.MaxRetries)
	}

	if c.Minio.Enabled() && (c.Minio.AccessKey == "" || c.Minio.SecretKey == "") {
		return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when MINIO_ENDPOINT is set")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat32(key string, defaultVal float32) float32 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return defaultVal
	}
	return float32(f)
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
