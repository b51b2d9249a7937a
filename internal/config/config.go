// Package config loads devcore's runtime settings from the environment,
// directly modeled on the teacher's internal/config/config.go: hand-rolled
// os.Getenv reads with typed defaults and getEnv*/Int/Bool/Duration
// helpers, no flag/env binding library.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every setting a devcore process needs.
type Config struct {
	// StorePath is the badger directory backing chdb/devdb.
	StorePath string
	// AdapterRoot is the device tree devmonitor polls.
	AdapterRoot string
	// DishMovePenalty and ResourceReuseBonus are the arbitration scoring
	// constants passed to devdb.TuneOptions.
	DishMovePenalty    int32
	ResourceReuseBonus int32
	// MayMoveDish and UseBlindTune are the default tuning policy knobs for
	// subscribe verbs that don't override them explicitly.
	MayMoveDish  bool
	UseBlindTune bool

	// IntrospectAddr is the listen address for the healthz/metrics/debug
	// HTTP surface; IntrospectMaxConns bounds concurrent connections to it.
	IntrospectAddr     string
	IntrospectMaxConns int

	// DeviceEventRate and DeviceEventBurst bound devmonitor's debounce
	// rate.Limiter; DevicePollInterval is how often it rescans AdapterRoot.
	DeviceEventRate    float64
	DeviceEventBurst   int
	DevicePollInterval time.Duration

	// SvcDBPath is the sqlite file backing the service/scan-history index.
	SvcDBPath string

	// AuditLogPath is the JSON-lines decision log path.
	AuditLogPath         string
	AuditMaxSegmentBytes int64
}

// Load reads Config from the environment. Call LoadEnvFile(".env") before
// Load to source a .env file first.
func Load() *Config {
	c := &Config{
		StorePath:            getEnv("DEVCORE_STORE_PATH", "/var/lib/devcore/store"),
		AdapterRoot:          getEnv("DEVCORE_ADAPTER_ROOT", "/dev/dvb"),
		DishMovePenalty:      int32(getEnvInt("DEVCORE_DISH_MOVE_PENALTY", 10)),
		ResourceReuseBonus:   int32(getEnvInt("DEVCORE_RESOURCE_REUSE_BONUS", 5)),
		MayMoveDish:          getEnvBool("DEVCORE_MAY_MOVE_DISH", true),
		UseBlindTune:         getEnvBool("DEVCORE_USE_BLIND_TUNE", false),
		IntrospectAddr:       getEnv("DEVCORE_INTROSPECT_ADDR", ":9870"),
		IntrospectMaxConns:   getEnvInt("DEVCORE_INTROSPECT_MAX_CONNS", 16),
		DeviceEventRate:      getEnvFloat("DEVCORE_DEVICE_EVENT_RATE", 5),
		DeviceEventBurst:     getEnvInt("DEVCORE_DEVICE_EVENT_BURST", 10),
		DevicePollInterval:   getEnvDuration("DEVCORE_DEVICE_POLL_INTERVAL", 2*time.Second),
		SvcDBPath:            getEnv("DEVCORE_SVCDB_PATH", "/var/lib/devcore/svc.sqlite"),
		AuditLogPath:         getEnv("DEVCORE_AUDIT_LOG_PATH", "/var/log/devcore/audit.jsonl"),
		AuditMaxSegmentBytes: getEnvInt64("DEVCORE_AUDIT_MAX_SEGMENT_BYTES", 8<<20),
	}
	if c.IntrospectMaxConns <= 0 {
		c.IntrospectMaxConns = 16
	}
	if c.DeviceEventRate <= 0 {
		c.DeviceEventRate = 5
	}
	if c.DeviceEventBurst <= 0 {
		c.DeviceEventBurst = 10
	}
	if c.DevicePollInterval <= 0 {
		c.DevicePollInterval = 2 * time.Second
	}
	if c.AuditMaxSegmentBytes <= 0 {
		c.AuditMaxSegmentBytes = 8 << 20
	}
	return c
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
