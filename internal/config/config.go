package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey   string
	GeminiModel    string
	DatabaseURL    string
	HTTPPort       string
	LogLevel       string
	AppEnv         string
	UseMockLLM     bool
	ProfilePath    string
	SpeechLanguage string
	MaxUploadBytes int64

	Profile Profile
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		DatabaseURL:    getEnv("DATABASE_URL", "assistant.db"),
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),
		AppEnv:         getEnv("APP_ENV", "dev"),
		UseMockLLM:     getEnv("USE_MOCK_LLM", "") == "1",
		ProfilePath:    getEnv("ASSISTANT_PROFILE", ""),
		SpeechLanguage: getEnv("SPEECH_LANGUAGE", "en-US"),
		MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10<<20)),
	}

	profile, err := LoadProfile(AppConfig.ProfilePath)
	if err != nil {
		log.Printf("Failed to load assistant profile %q, using defaults: %v", AppConfig.ProfilePath, err)
		profile = DefaultProfile()
	}
	AppConfig.Profile = profile
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	var problems []string
	if !c.UseMockLLM && c.GeminiAPIKey == "" {
		problems = append(problems, "GEMINI_API_KEY environment variable is required (or set USE_MOCK_LLM=1)")
	}
	if c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL must not be empty")
	}
	if c.MaxUploadBytes <= 0 {
		problems = append(problems, "MAX_UPLOAD_BYTES must be positive")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
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
