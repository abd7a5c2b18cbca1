package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("SESSION_TIMEOUT", "")
	t.Setenv("DISPATCH_WORKERS", "")
	t.Setenv("LEARNING_FILE", "")
	require.NoError(t, os.Unsetenv("LEARNING_FILE"))
	LoadConfig(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, 5*time.Minute, AppConfig.SessionTimeout)
	assert.Equal(t, 2*time.Minute, AppConfig.SessionRefreshAfter)
	assert.Equal(t, time.Minute, AppConfig.SessionSweepInterval)
	assert.Equal(t, 16, AppConfig.DispatchWorkers)
	assert.Equal(t, "learning.yaml", AppConfig.LearningFile)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	contents := "TELEGRAM_BOT_TOKEN=tok\nJWT_SECRET=s3cret\nSESSION_TIMEOUT=10m\nRAG_SERVICE_URL=http://rag:5000/\nBLOCKED_TERMS=scam, ponzi ,,\n"
	require.NoError(t, os.WriteFile(envFile, []byte(contents), 0o600))

	// godotenv does not override variables that already exist.
	for _, key := range []string{"TELEGRAM_BOT_TOKEN", "JWT_SECRET", "SESSION_TIMEOUT", "RAG_SERVICE_URL", "BLOCKED_TERMS"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	LoadConfig(envFile)

	assert.Equal(t, "tok", AppConfig.TelegramBotToken)
	assert.Equal(t, 10*time.Minute, AppConfig.SessionTimeout)
	assert.Equal(t, "http://rag:5000", AppConfig.RAGServiceURL)
	assert.Equal(t, []string{"scam", "ponzi"}, AppConfig.BlockedTerms)
	assert.NoError(t, AppConfig.RequireBot())
}

func TestRequireBot(t *testing.T) {
	cfg := Config{SessionTimeout: time.Minute, SessionRefreshAfter: 2 * time.Minute}
	err := cfg.RequireBot()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "SESSION_REFRESH_AFTER")
}

func TestRequireRAG(t *testing.T) {
	assert.Error(t, Config{JWTSecret: "x"}.RequireRAG())
	assert.NoError(t, Config{JWTSecret: "x", GeminiAPIKey: "k"}.RequireRAG())
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, Config{LogLevel: "DEBUG"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, Config{LogLevel: "WARNING"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, Config{LogLevel: "chatty"}.SlogLevel())
}
