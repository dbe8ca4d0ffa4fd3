/*
Package config loads server configuration from the environment.

PURPOSE:
  Centralizes configuration for the obligation engine server. Values
  come from environment variables, optionally seeded from a .env file
  via godotenv. Every value has a sensible default so the server runs
  with zero configuration.

VARIABLES:
  PORT             HTTP server port (default: 8080)
  DB_PATH          SQLite database path (default: obligations.db)
                   Use ":memory:" for an in-memory database
  LOG_LEVEL        logrus level: debug, info, warn, error (default: info)
  SCAN_CRON        cron expression for the due-obligation scan
                   (default: "@hourly")
  SCAN_ENABLED     enable the background scan (default: true)

SEE ALSO:
  - cmd/server/main.go: Consumes this configuration
  - api/scheduler.go: Uses ScanCron / ScanEnabled
*/
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds all server configuration.
type Config struct {
	Port        int
	DBPath      string
	LogLevel    logrus.Level
	ScanCron    string
	ScanEnabled bool
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first if present; real environment
// variables win over .env values.
func Load() Config {
	godotenv.Load()

	return Config{
		Port:        envInt("PORT", 8080),
		DBPath:      envString("DB_PATH", "obligations.db"),
		LogLevel:    envLogLevel("LOG_LEVEL", logrus.InfoLevel),
		ScanCron:    envString("SCAN_CRON", "@hourly"),
		ScanEnabled: envBool("SCAN_ENABLED", true),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envLogLevel(key string, fallback logrus.Level) logrus.Level {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	level, err := logrus.ParseLevel(v)
	if err != nil {
		return fallback
	}
	return level
}
