// Package mock provides an environment-configurable mock XCLI array for testing.
//
// Environment Variables:
//
// Timing Control:
//   - MOCK_ARRAY_REALISTIC_TIMING: Enable realistic timing simulation (default: false)
//   - MOCK_ARRAY_SSH_LATENCY_MS: SSH session latency in ms (default: 200)
//   - MOCK_ARRAY_SSH_LATENCY_JITTER_MS: Latency jitter range in ms (default: 50)
//   - MOCK_ARRAY_MAP_DELAY_MS: map_vol delay in ms (default: 300)
//   - MOCK_ARRAY_UNMAP_DELAY_MS: unmap_vol delay in ms (default: 200)
//
// Error Injection:
//   - MOCK_ARRAY_ERROR_MODE: Error injection mode (none|lun_collision|ssh_timeout|command_fail|access_denied)
//   - MOCK_ARRAY_ERROR_AFTER_N: Fail after N operations (default: 0 = immediate)
//
// Credentials:
//   - MOCK_ARRAY_USERNAME: Accepted SSH user (default: "admin")
//   - MOCK_ARRAY_PASSWORD: Accepted SSH password (default: "passw0rd")
//
// Observability:
//   - MOCK_ARRAY_ENABLE_HISTORY: Enable command history tracking (default: true)
//   - MOCK_ARRAY_HISTORY_DEPTH: Maximum history entries (default: 100)
package mock

import (
	"os"
	"strconv"
)

// MockArrayConfig holds configuration for mock array behavior
type MockArrayConfig struct {
	// Timing control
	RealisticTiming    bool // MOCK_ARRAY_REALISTIC_TIMING (default: false)
	SSHLatencyMs       int  // MOCK_ARRAY_SSH_LATENCY_MS (default: 200)
	SSHLatencyJitterMs int  // MOCK_ARRAY_SSH_LATENCY_JITTER_MS (default: 50, gives 150-250ms range)
	MapDelayMs         int  // MOCK_ARRAY_MAP_DELAY_MS (default: 300)
	UnmapDelayMs       int  // MOCK_ARRAY_UNMAP_DELAY_MS (default: 200)

	// Error injection
	ErrorMode   string // MOCK_ARRAY_ERROR_MODE (none|lun_collision|ssh_timeout|command_fail|access_denied)
	ErrorAfterN int    // MOCK_ARRAY_ERROR_AFTER_N (fail after N operations, default: 0 = immediate)

	// Credentials
	Username string // MOCK_ARRAY_USERNAME (default: "admin")
	Password string // MOCK_ARRAY_PASSWORD (default: "passw0rd")

	// Observability
	EnableHistory bool // MOCK_ARRAY_ENABLE_HISTORY (default: true)
	HistoryDepth  int  // MOCK_ARRAY_HISTORY_DEPTH (default: 100)
}

// LoadConfigFromEnv loads mock array configuration from environment variables
func LoadConfigFromEnv() MockArrayConfig {
	return MockArrayConfig{
		RealisticTiming:    getEnvBool("MOCK_ARRAY_REALISTIC_TIMING", false),
		SSHLatencyMs:       getEnvInt("MOCK_ARRAY_SSH_LATENCY_MS", 200),
		SSHLatencyJitterMs: getEnvInt("MOCK_ARRAY_SSH_LATENCY_JITTER_MS", 50),
		MapDelayMs:         getEnvInt("MOCK_ARRAY_MAP_DELAY_MS", 300),
		UnmapDelayMs:       getEnvInt("MOCK_ARRAY_UNMAP_DELAY_MS", 200),
		ErrorMode:          getEnvString("MOCK_ARRAY_ERROR_MODE", "none"),
		ErrorAfterN:        getEnvInt("MOCK_ARRAY_ERROR_AFTER_N", 0),
		Username:           getEnvString("MOCK_ARRAY_USERNAME", "admin"),
		Password:           getEnvString("MOCK_ARRAY_PASSWORD", "passw0rd"),
		EnableHistory:      getEnvBool("MOCK_ARRAY_ENABLE_HISTORY", true),
		HistoryDepth:       getEnvInt("MOCK_ARRAY_HISTORY_DEPTH", 100),
	}
}

// getEnvBool reads a boolean environment variable with a default value
func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val == "true" || val == "1" || val == "yes"
}

// getEnvInt reads an integer environment variable with a default value
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

// getEnvString reads a string environment variable with a default value
func getEnvString(key string, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}
