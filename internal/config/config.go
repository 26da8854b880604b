package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/seantiz/cinder/internal/vm"
)

const (
	defaultListenAddr      = ":8080"
	defaultDBPath          = "cinder.db"
	defaultScriptTimeoutMS = 5000
	defaultCacheMaxCount   = 256
	defaultCacheExpiration = 600 // seconds

	envListenAddr         = "CINDER_LISTEN_ADDR"
	envDBPath             = "CINDER_DB_PATH"
	envLogLevel           = "CINDER_LOG_LEVEL"
	envScriptTimeoutMS    = "CINDER_SCRIPT_TIMEOUT_MS"
	envCacheMaxCount      = "CINDER_CACHE_MAX_COUNT"
	envCacheExpirationS   = "CINDER_CACHE_EXPIRATION_S"
	envMaxExecutableBytes = "CINDER_MAX_EXECUTABLE_BYTES"
	envMaxOldSpaceBytes   = "CINDER_MAX_OLD_SPACE_BYTES"
	envMaxNewSpaceBytes   = "CINDER_MAX_NEW_SPACE_BYTES"
	envMaxCallStackSize   = "CINDER_MAX_CALL_STACK_SIZE"
	envEnableConsole      = "CINDER_ENABLE_CONSOLE"
)

// Config holds application configuration loaded from environment variables.
// It is set once at startup and shared read-only by all executions.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level

	// ScriptTimeout bounds each script execution.
	ScriptTimeout time.Duration
	// CacheMaxCount bounds the compiled-script cache; zero or negative
	// disables caching.
	CacheMaxCount int
	// CacheExpiration is the default freshness window for cached artifacts.
	CacheExpiration time.Duration

	// Limits are the per-instance engine resource ceilings.
	Limits vm.Limits
	// EnableConsole exposes a console binding in every script's global scope.
	EnableConsole bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:      defaultListenAddr,
		DBPath:          defaultDBPath,
		LogLevel:        slog.LevelInfo,
		ScriptTimeout:   defaultScriptTimeoutMS * time.Millisecond,
		CacheMaxCount:   defaultCacheMaxCount,
		CacheExpiration: defaultCacheExpiration * time.Second,
		EnableConsole:   true,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if ms, ok := intEnv(envScriptTimeoutMS); ok && ms > 0 {
		cfg.ScriptTimeout = time.Duration(ms) * time.Millisecond
	}
	if n, ok := intEnv(envCacheMaxCount); ok {
		cfg.CacheMaxCount = n
	}
	if s, ok := intEnv(envCacheExpirationS); ok {
		cfg.CacheExpiration = time.Duration(s) * time.Second
	}
	if n, ok := intEnv(envMaxExecutableBytes); ok {
		cfg.Limits.MaxExecutableBytes = int64(n)
	}
	if n, ok := intEnv(envMaxOldSpaceBytes); ok {
		cfg.Limits.MaxOldSpaceBytes = int64(n)
	}
	if n, ok := intEnv(envMaxNewSpaceBytes); ok {
		cfg.Limits.MaxNewSpaceBytes = int64(n)
	}
	if n, ok := intEnv(envMaxCallStackSize); ok {
		cfg.Limits.MaxCallStackSize = n
	}
	if v := os.Getenv(envEnableConsole); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.EnableConsole = b
		}
	}

	return cfg
}

func intEnv(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
