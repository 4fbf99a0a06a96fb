package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort  string
	LogLevel  string
	JWTSecret string

	DatabaseURL string
	RedisAddr   string

	GitHubAPIBase string
	GitHubToken   string // fallback token for demo/public reads

	LLMProvider  string // "gemini" or "openai"
	GeminiAPIKey string
	OpenAIAPIKey string
	OpenAIBase   string
	OpenAIModel  string

	Timezone     *time.Location
	DemoRepo     string
	DemoBranch   string
	FetchTimeout time.Duration
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		HTTPPort:      getEnv("HTTP_PORT", "8080"),
		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		DatabaseURL:   getEnv("DATABASE_URL", "commitdeck.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		GitHubAPIBase: getEnv("GITHUB_API_BASE", "https://api.github.com"),
		GitHubToken:   getEnv("GITHUB_TOKEN", ""),
		LLMProvider:   getEnv("LLM_PROVIDER", "openai"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBase:    getEnv("OPENAI_API_BASE", "https://api.openai.com/v1"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		DemoRepo:      getEnv("DEMO_REPO", ""),
		DemoBranch:    getEnv("DEMO_BRANCH", "main"),
		FetchTimeout:  time.Duration(getEnvAsInt("FETCH_TIMEOUT_SECONDS", 15)) * time.Second,
	}

	tzName := getEnv("TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		log.Fatalf("Invalid TIMEZONE %q: %v", tzName, err)
	}
	AppConfig.Timezone = loc

	if AppConfig.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	switch AppConfig.LLMProvider {
	case "gemini":
		if AppConfig.GeminiAPIKey == "" {
			log.Fatal("GEMINI_API_KEY environment variable is required when LLM_PROVIDER=gemini")
		}
	case "openai":
		if AppConfig.OpenAIAPIKey == "" {
			log.Fatal("OPENAI_API_KEY environment variable is required when LLM_PROVIDER=openai")
		}
	default:
		log.Fatalf("Unknown LLM_PROVIDER %q (expected gemini or openai)", AppConfig.LLMProvider)
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
