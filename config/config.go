package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"saturuang/pkg/logger"
)

const defaultWSURL = "ws://127.0.0.1:1234"

type Config struct {
	Port         string
	DBUser       string
	DBPassword   string
	DBHost       string
	DBPort       string
	DBName       string
	DBSSLMode    string
	JWTSecret    string
	WSURL        string
	LogLevel     string
	SaveInterval time.Duration
	MaxUsers     int
	// FileRoot is the directory served under /fs; empty turns it off.
	FileRoot string
}

// LoadEnv copies a .env file in the working directory into the process
// environment. Variables already set win.
func LoadEnv() error {
	return godotenv.Load()
}

// LogLevel is read on its own so the logger can be built before FromEnv
// reports bad values through it.
func LogLevel() string {
	return env("LOG_LEVEL", "info")
}

// WSURL is the relay url handed to clients.
func WSURL() string {
	return env("COLLAB_WS_URL", defaultWSURL)
}

func FromEnv() Config {
	return Config{
		Port:         env("PORT", "8080"),
		DBUser:       env("user", ""),
		DBPassword:   env("password", ""),
		DBHost:       env("host", ""),
		DBPort:       env("port", "5432"),
		DBName:       env("dbname", ""),
		DBSSLMode:    env("DB_SSLMODE", "require"),
		JWTSecret:    env("SUPABASE_JWT_SECRET", ""),
		WSURL:        WSURL(),
		LogLevel:     LogLevel(),
		SaveInterval: envDuration("SAVE_INTERVAL", 10*time.Second),
		MaxUsers:     envInt("ROOM_MAX_USERS", 10),
		FileRoot:     env("FILE_ROOT", ""),
	}
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := env(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		logger.Sugar.Warnf("Invalid %s %q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func envInt(key string, fallback int) int {
	v := env(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		logger.Sugar.Warnf("Invalid %s %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
