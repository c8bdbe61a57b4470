// Package config loads process configuration from the environment, with an
// optional local .env overlay for development.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Load overlays .env / .env.local onto the process environment, if
// present. Missing files are not an error: in production, configuration
// comes from the real environment. .env.local is gitignored and meant for
// a developer's own overrides when running the gateway or collector
// binary against a local Postgres instance.
func Load(logger *logrus.Logger) {
	files := []string{".env", ".env.local"}
	var loaded []string
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			if logger != nil {
				logger.WithError(err).Warnf("failed to load %s", file)
			}
			continue
		}
		loaded = append(loaded, file)
	}
	if logger == nil {
		return
	}
	if len(loaded) == 0 {
		logger.Debug("no local env files loaded; relying on process environment")
	} else {
		logger.Debugf("loaded env files: %s", strings.Join(loaded, ", "))
	}
}

// GetEnv returns an environment variable, or defaultValue if unset or empty.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt returns an integer environment variable, or defaultValue if
// unset or unparsable.
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvBool returns a boolean environment variable, or defaultValue if
// unset or unparsable.
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetLogLevel reads LOG_LEVEL from the environment, defaulting to info.
func GetLogLevel() logrus.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// RequireEnv reads a required environment variable, exiting the process if
// it is empty. This is the "configuration invalid → fatal at startup" path.
func RequireEnv(key string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		logrus.Fatalf("environment variable %s is required but not set", key)
	}
	return value
}
