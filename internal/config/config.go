package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DBDriver    string
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Gemini AI
	GeminiAPIKey         string
	GeminiModel          string
	GeminiRequestsPerMin int
	GeminiConcurrentReqs int
	ShortAnswerScorer    string

	// Quiz mix and attempts
	MixMultipleChoice   int
	MixTrueFalse        int
	MixShortAnswer      int
	QuestionsPerAttempt int
	AdaptiveByDefault   bool

	// Attempt sessions
	SessionStore    string
	SessionTTL      time.Duration
	SubmitRateLimit int

	// Workers
	WorkerCount int

	// Storage
	StoragePath string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		Env:                  getEnvOrDefault("ENV", "development"),
		DBDriver:             getEnvOrDefault("DB_DRIVER", "postgres"),
		DatabaseURL:          mustGetEnv("DATABASE_URL"),
		RedisURL:             mustGetEnv("REDIS_URL"),
		JWTSecret:            mustGetEnv("JWT_SECRET"),
		GeminiAPIKey:         getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:          getEnvOrDefault("GEMINI_MODEL", "gemini-3-flash-preview"),
		GeminiRequestsPerMin: getEnvAsIntOrDefault("GEMINI_REQUESTS_PER_MINUTE", 60),
		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
		ShortAnswerScorer:    getEnvOrDefault("SHORT_ANSWER_SCORER", "gemini"),
		MixMultipleChoice:    getEnvAsIntOrDefault("QUIZ_MIX_MULTIPLE_CHOICE", 8),
		MixTrueFalse:         getEnvAsIntOrDefault("QUIZ_MIX_TRUE_FALSE", 4),
		MixShortAnswer:       getEnvAsIntOrDefault("QUIZ_MIX_SHORT_ANSWER", 3),
		QuestionsPerAttempt:  getEnvAsIntOrDefault("QUESTIONS_PER_ATTEMPT", 10),
		AdaptiveByDefault:    getEnvAsBoolOrDefault("QUIZ_ADAPTIVE_DEFAULT", true),
		SessionStore:         getEnvOrDefault("SESSION_STORE", "redis"),
		SessionTTL:           getEnvAsDurationOrDefault("SESSION_TTL", 30*time.Minute),
		SubmitRateLimit:      getEnvAsIntOrDefault("SUBMIT_RATE_LIMIT", 30),
		WorkerCount:          getEnvAsIntOrDefault("WORKER_COUNT", 3),
		StoragePath:          getEnvOrDefault("STORAGE_PATH", "./uploads"),
		FrontendURL:          getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

// UseGeminiScorer reports whether short answers go to Gemini before the
// local rule.
func (c *Config) UseGeminiScorer() bool {
	return c.GeminiAPIKey != "" && c.ShortAnswerScorer == "gemini"
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
