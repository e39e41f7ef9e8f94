// Package config loads the engine's own bootstrap settings from
// environment variables, applying a default for anything unset.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-sourced setting the daemon needs
// before it can build its collaborators.
type Config struct {
	HTTPPort             string
	CatalogPath          string
	HookRunnerBinaryPath string
	CORSAllowedOrigins   []string
	SubmissionRPM        int
	SubmissionBurst      int
	RequestTimeout       time.Duration
	ShutdownGracePeriod  time.Duration
	Environment          string
}

// Load reads .env (if present, falling back to ../.env) and then the
// process environment, applying defaults for anything unset.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		_ = godotenv.Load("../.env")
	}

	return Config{
		HTTPPort:             getenvDefault("HTTP_PORT", "8080"),
		CatalogPath:          getenvDefault("CATALOG_PATH", "./catalog.yaml"),
		HookRunnerBinaryPath: getenvDefault("HOOKRUNNER_BINARY_PATH", "./bin/hookrunner"),
		CORSAllowedOrigins:   splitCSV(getenvDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		SubmissionRPM:        getenvInt("SUBMISSION_RATE_LIMIT_RPM", 60),
		SubmissionBurst:      getenvInt("SUBMISSION_RATE_LIMIT_BURST", 10),
		RequestTimeout:       getenvDuration("HTTP_REQUEST_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod:  getenvDuration("SHUTDOWN_GRACE_PERIOD", 15*time.Second),
		Environment:          getenvDefault("ENVIRONMENT", "development"),
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
