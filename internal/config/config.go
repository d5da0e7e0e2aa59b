// Package config loads client configuration from the environment and builds
// the shared logger.
package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/careguide/careguide-go/internal/models"
)

// LLM providers for the dev agent backend.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// Agent backend
	AgentURL      string
	AgentID       string
	AgentName     string
	ClientTimeout time.Duration

	// Conversation defaults
	DefaultProfile models.AudienceProfile

	// Session cache
	SessionCachePath string

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Dev agent backend (careguide-agentd)
	AgentdPort   string
	ScenarioPath string

	// Optional LLM replies in agentd
	LLMProvider     string
	LLMModel        string
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	AWSRegion       string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	profile, err := models.ParseProfile(getEnv("CAREGUIDE_PROFILE", "general"))
	if err != nil {
		profile = models.ProfileGeneral
	}

	return Config{
		AgentURL:      getEnv("CAREGUIDE_AGENT_URL", "http://localhost:8811"),
		AgentID:       getEnv("CAREGUIDE_AGENT_ID", "ckd-educator"),
		AgentName:     getEnv("CAREGUIDE_AGENT_NAME", "CareGuide Educator"),
		ClientTimeout: getDuration("CAREGUIDE_CLIENT_TIMEOUT", 30*time.Second),

		DefaultProfile: profile,

		SessionCachePath: getEnv("CAREGUIDE_SESSION_CACHE", defaultCachePath()),

		LogFile:  getEnv("CAREGUIDE_LOG_FILE", "/tmp/careguide.log"),
		LogLevel: parseLogLevel(getEnv("CAREGUIDE_LOG_LEVEL", "INFO")),

		AgentdPort:   getEnv("CAREGUIDE_AGENTD_PORT", "8811"),
		ScenarioPath: getEnv("CAREGUIDE_SCENARIO", ""),

		LLMProvider:     getEnv("CAREGUIDE_LLM_PROVIDER", ""),
		LLMModel:        getEnv("CAREGUIDE_LLM_MODEL", "llama3.2"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
	}
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "careguide-session.db"
	}
	return dir + "/careguide/session.db"
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
