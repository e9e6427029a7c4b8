// Package config collects the SDK configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Impressions modes.
const (
	ImpressionsModeDebug     = "debug"
	ImpressionsModeOptimized = "optimized"
	ImpressionsModeNone      = "none"
)

// SDKVersion identifies this client build to the backend.
const SDKVersion = "flagclient-go-1.0.0"

// Config is the resolved SDK configuration.
type Config struct {
	APIKey  string
	SDKURL  string
	AuthURL string

	// LocalhostFile switches the client to local-file mode when non-empty.
	LocalhostFile string
	WatchFile     bool

	FeaturesRefreshRate  time.Duration
	ImpressionsMode      string
	ImpressionsQueueSize int
	ObserverSize         int

	InstanceID  string
	MachineName string
}

// FromEnv builds a Config from environment variables, applying defaults for
// anything unset. Invalid values fall back with a logged warning.
func FromEnv(logger *logrus.Logger) *Config {
	cfg := &Config{
		APIKey:               getEnv("FLAGCLIENT_API_KEY", ""),
		SDKURL:               getEnv("FLAGCLIENT_SDK_URL", "https://sdk.split.io/api"),
		AuthURL:              getEnv("FLAGCLIENT_AUTH_URL", "https://auth.split.io/api"),
		LocalhostFile:        getEnv("FLAGCLIENT_SPLIT_FILE", ""),
		WatchFile:            getEnvBool(logger, "FLAGCLIENT_WATCH_SPLIT_FILE", false),
		FeaturesRefreshRate:  getEnvDuration(logger, "FLAGCLIENT_FEATURES_REFRESH_SEC", 30*time.Second),
		ImpressionsMode:      getEnv("FLAGCLIENT_IMPRESSIONS_MODE", ImpressionsModeOptimized),
		ImpressionsQueueSize: getEnvInt(logger, "FLAGCLIENT_IMPRESSIONS_QUEUE_SIZE", 10000),
		ObserverSize:         getEnvInt(logger, "FLAGCLIENT_OBSERVER_SIZE", 500),
		InstanceID:           uuid.New().String(),
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	cfg.MachineName = getEnv("FLAGCLIENT_MACHINE_NAME", hostname)

	switch cfg.ImpressionsMode {
	case ImpressionsModeDebug, ImpressionsModeOptimized, ImpressionsModeNone:
	default:
		logger.Warnf("unknown impressions mode %q, falling back to optimized", cfg.ImpressionsMode)
		cfg.ImpressionsMode = ImpressionsModeOptimized
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvBool(logger *logrus.Logger, key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logger.Warnf("invalid value %q for %s, using %t", value, key, fallback)
		return fallback
	}
	return parsed
}

func getEnvInt(logger *logrus.Logger, key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		logger.Warnf("invalid value %q for %s, using %d", value, key, fallback)
		return fallback
	}
	return parsed
}

func getEnvDuration(logger *logrus.Logger, key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		logger.Warnf("invalid value %q for %s, using %s", value, key, fallback)
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
