package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvConfig holds environment variables
type EnvConfig struct {
	// Server
	Port           int
	SharedSecret   string
	MaxMsgLen      int
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int

	// Reply shaping
	MaxPopular   int
	MaxRecent    int
	ForceRewrite bool

	// Document store
	Store     string
	MongoURI  string
	DBName    string
	DBTimeout time.Duration

	// Language model
	LLMProvider     string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GeminiAPIKey    string
	LLMModel        string
	LLMBaseURL      string
	LLMTimeout      time.Duration
	LLMMaxTokens    int
	LLMTrace        bool

	// Long-term memory
	UseMemory     bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MemoryTimeout time.Duration

	// Remote order service
	OrderServiceURL  string
	OrderRequireAuth bool
	OrderTimeout     time.Duration
	OrderAuthHeader  string
	OrderRoutesFile  string

	// Logging
	LogLevel  string
	LogFormat string
}

// Store backends.
const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
	StoreNone   = "none"
)

// LoadEnv loads environment variables
func LoadEnv() (*EnvConfig, error) {
	// Try to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	cfg := &EnvConfig{
		SharedSecret:   getEnv("SHARED_SECRET", "dev-secret"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),

		MongoURI: getEnv("MONGO_URI", ""),
		DBName:   getEnv("DB_NAME", "food-delivery"),

		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", getEnv("GOOGLE_API_KEY", "")),
		LLMModel:        getEnv("LLM_MODEL", getEnv("OPENAI_MODEL", "")),
		LLMBaseURL:      getEnv("LLM_BASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		OrderServiceURL: strings.TrimRight(getEnv("ORDER_SERVICE_URL", ""), "/"),
		OrderAuthHeader: getEnv("ORDER_AUTH_HEADER", "token"),
		OrderRoutesFile: getEnv("ORDER_ROUTES_FILE", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}

	cfg.Port = getEnvInt("PORT", 8000)
	cfg.MaxMsgLen = getEnvInt("MAX_MSG_LEN", 2000)
	cfg.RateLimitRPS = getEnvFloat("RATE_LIMIT_RPS", 5)
	cfg.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
	cfg.MaxPopular = getEnvInt("MAX_POPULAR", 5)
	cfg.MaxRecent = getEnvInt("MAX_RECENT", 5)
	cfg.ForceRewrite = getEnvBool("FORCE_LLM_REWRITE", false)
	cfg.DBTimeout = getEnvDuration("DB_TIMEOUT", 3*time.Second)
	cfg.LLMTimeout = getEnvDuration("LLM_TIMEOUT", 10*time.Second)
	cfg.LLMMaxTokens = getEnvInt("LLM_MAX_TOKENS", getEnvInt("OPENAI_MAX_TOKENS", 300))
	cfg.LLMTrace = getEnvBool("LLM_TRACE", false)
	cfg.UseMemory = getEnvBool("USE_MEMORY", false)
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)
	cfg.MemoryTimeout = getEnvDuration("MEMORY_TIMEOUT", 2*time.Second)
	cfg.OrderRequireAuth = getEnvBool("ORDER_REQUIRE_AUTH", true)
	cfg.OrderTimeout = getEnvDuration("ORDER_TIMEOUT", 8*time.Second)

	// mongo when a URI is configured, otherwise the in-process menu
	defStore := StoreMemory
	if cfg.MongoURI != "" {
		defStore = StoreMongo
	}
	cfg.Store = strings.ToLower(getEnv("STORE", defStore))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *EnvConfig) Validate() error {
	switch c.Store {
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("STORE=mongo requires MONGO_URI")
		}
	case StoreMemory, StoreNone:
	default:
		return fmt.Errorf("unsupported STORE: %s (supported: mongo, memory, none)", c.Store)
	}
	switch c.LLMProvider {
	case "openai", "anthropic", "gemini":
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER: %s (supported: openai, anthropic, gemini)", c.LLMProvider)
	}
	if c.MaxMsgLen <= 0 {
		return fmt.Errorf("MAX_MSG_LEN must be positive")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	return nil
}

// LLMAPIKey returns the key of the selected provider.
func (c *EnvConfig) LLMAPIKey() string {
	switch c.LLMProvider {
	case "anthropic":
		return c.AnthropicAPIKey
	case "gemini":
		return c.GeminiAPIKey
	default:
		return c.OpenAIAPIKey
	}
}

// Addr is the listen address.
func (c *EnvConfig) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "on", "yes":
		return true
	case "0", "false", "off", "no":
		return false
	default:
		return defaultValue
	}
}

// getEnvDuration accepts Go durations ("3s") or plain seconds ("2.5").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func expandEnvVars(s string) string {
	// Replace ${VAR_NAME} with environment variable values
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}
