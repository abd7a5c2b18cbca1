package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	TelegramBotToken string
	GeminiAPIKey     string
	DatabaseURL      string
	HTTPPort         string
	BotStatusPort    string
	LogLevel         string
	JWTSecret        string
	RAGServiceURL    string
	WebAppURL        string
	ResourcesFile    string
	LearningFile     string
	BlockedTerms     []string

	SessionTimeout       time.Duration
	SessionRefreshAfter  time.Duration
	SessionSweepInterval time.Duration
	AnswerTimeout        time.Duration
	DispatchWorkers      int
}

var AppConfig Config

// LoadConfig reads envFile (or .env when empty) if present and fills AppConfig
// from the environment.
func LoadConfig(envFile string) {
	var err error
	if envFile != "" {
		err = godotenv.Load(envFile)
	} else {
		err = godotenv.Load() // Load .env file if it exists
	}
	if err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		DatabaseURL:      getEnv("DATABASE_URL", "prukaya.db"),
		HTTPPort:         getEnv("HTTP_PORT", "5000"),
		BotStatusPort:    getEnv("BOT_STATUS_PORT", ""),
		LogLevel:         strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		RAGServiceURL:    strings.TrimRight(getEnv("RAG_SERVICE_URL", "http://localhost:5000"), "/"),
		WebAppURL:        getEnv("WEB_APP_URL", "https://profound-gingersnap-339331.netlify.app/"),
		ResourcesFile:    getEnv("RESOURCES_FILE", "resources.yaml"),
		LearningFile:     getEnv("LEARNING_FILE", "learning.yaml"),
		BlockedTerms:     getEnvAsList("BLOCKED_TERMS"),

		SessionTimeout:       getEnvAsDuration("SESSION_TIMEOUT", 5*time.Minute),
		SessionRefreshAfter:  getEnvAsDuration("SESSION_REFRESH_AFTER", 2*time.Minute),
		SessionSweepInterval: getEnvAsDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		AnswerTimeout:        getEnvAsDuration("ANSWER_TIMEOUT", 90*time.Second),
		DispatchWorkers:      getEnvAsInt("DISPATCH_WORKERS", 16),
	}
}

// RequireBot checks the settings the Telegram bot cannot start without.
func (c Config) RequireBot() error {
	var errs []error
	if c.TelegramBotToken == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN environment variable is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable is required"))
	}
	if c.SessionRefreshAfter > c.SessionTimeout {
		errs = append(errs, errors.New("SESSION_REFRESH_AFTER must not exceed SESSION_TIMEOUT"))
	}
	return errors.Join(errs...)
}

// RequireRAG checks the settings the answer service cannot start without.
func (c Config) RequireRAG() error {
	var errs []error
	if c.GeminiAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY environment variable is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable is required"))
	}
	return errors.Join(errs...)
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to Info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
