package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	LogLevel        string
	CORSAllowOrigin []string

	DatabaseURL string
	SQLitePath  string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	OpenAIAPIKey     string
	AnthropicAPIKey  string
	WriterModel      string
	ReviewerModel    string
	HumanizerModel   string
	LLMCallTimeout   time.Duration
	OptimizeHumanize bool
	OptimizeQueueURL string
	AdminJWTSecret   string

	EvidenceCacheTTL time.Duration
	AIRatePerMinute  float64
	AIRateBurst      int
}

// IsProduction reports whether the service runs with production safeguards.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:              getEnv("PORT", "8080"),
		Env:               env,
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		CORSAllowOrigin:   splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		DatabaseURL:       dbURL,
		SQLitePath:        getEnv("SQLITE_PATH", ""),
		ObjectStoreType:   normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:     getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:         getEnv("AWS_REGION", ""),
		S3Bucket:          getEnv("S3_BUCKET", ""),
		S3Prefix:          getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:       getEnv("SSE_KMS_KEY_ID", ""),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
		WriterModel:       getEnv("LLM_WRITER_MODEL", "gpt-4o-mini"),
		ReviewerModel:     getEnv("LLM_REVIEWER_MODEL", "gpt-4o-mini"),
		HumanizerModel:    getEnv("LLM_HUMANIZER_MODEL", "gpt-4o-mini"),
		LLMCallTimeout:    getSeconds("LLM_CALL_TIMEOUT_SECONDS", 90*time.Second),
		OptimizeHumanize:  getBool("OPTIMIZE_HUMANIZE", false),
		OptimizeQueueURL:  getEnv("OPTIMIZE_QUEUE_URL", ""),
		AdminJWTSecret:    getEnv("ADMIN_JWT_SECRET", ""),
		EvidenceCacheTTL:  getSeconds("EVIDENCE_CACHE_TTL_SECONDS", 5*time.Minute),
		AIRatePerMinute:   getFloat("AI_RATE_PER_MINUTE", 12),
		AIRateBurst:       getInt("AI_RATE_BURST", 4),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func getFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func getSeconds(key string, def time.Duration) time.Duration {
	n := getInt(key, 0)
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
