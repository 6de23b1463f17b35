// Package config handles environment-based configuration loading and
// hot-reloadable runtime policy knobs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// EnvConfig holds all environment-variable-driven settings fixed for the
// lifetime of the process (not hot-reloadable; see RuntimeConfig for that).
type EnvConfig struct {
	// Directories
	CacheDir string
	StateDir string
	LogDir   string

	// Network
	ListenAddress string
	APIPort       int

	APIMaxBodyBytes int

	// Directory topology
	TopologyPath     string
	TopologyReload   time.Duration
	TopologySchedule string

	// Replica Locator
	LocatorConcurrency   int
	LocatorProbeTimeout  time.Duration
	LocatorCacheTTL      time.Duration
	LocatorBatchRetries  int
	LocatorBatchBackoff  time.Duration

	// Subscription Planner
	SubscriptionListRetries int
	SubscriptionListBackoff time.Duration

	// Assignment worker pool
	AssignWorkerCount int
	AssignPollInterval time.Duration

	// Auth (must be defined; empty means auth disabled)
	AdminToken string

	// Boundary collaborators (spec.md §6; wire protocol out of scope, only
	// the base URL each thin HTTP adapter targets is configured here).
	CatalogueBaseURL string
	DDMBaseURL       string
	TaskDBBaseURL    string
	CallerDN         string
}

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
// Returns an error if any required variable is missing or any value is invalid.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	// --- Directories ---
	cfg.CacheDir = envStr("GRIDASSIGN_CACHE_DIR", "/var/cache/gridassign")
	cfg.StateDir = envStr("GRIDASSIGN_STATE_DIR", "/var/lib/gridassign")
	cfg.LogDir = envStr("GRIDASSIGN_LOG_DIR", "/var/log/gridassign")

	// --- Network ---
	cfg.ListenAddress = strings.TrimSpace(envStr("GRIDASSIGN_LISTEN_ADDRESS", "0.0.0.0"))
	cfg.APIPort = envInt("GRIDASSIGN_API_PORT", 8080, &errs)
	cfg.APIMaxBodyBytes = envInt("GRIDASSIGN_API_MAX_BODY_BYTES", 1<<20, &errs)

	// --- Directory topology ---
	cfg.TopologyPath = envStr("GRIDASSIGN_TOPOLOGY_PATH", "/etc/gridassign/clouds.yaml")
	cfg.TopologyReload = envDuration("GRIDASSIGN_TOPOLOGY_RELOAD", 5*time.Minute, &errs)
	cfg.TopologySchedule = envStr("GRIDASSIGN_TOPOLOGY_SCHEDULE", "0 */6 * * *")

	// --- Replica Locator ---
	cfg.LocatorConcurrency = envInt("GRIDASSIGN_LOCATOR_CONCURRENCY", 32, &errs)
	cfg.LocatorProbeTimeout = envDuration("GRIDASSIGN_LOCATOR_PROBE_TIMEOUT", 15*time.Second, &errs)
	cfg.LocatorCacheTTL = envDuration("GRIDASSIGN_LOCATOR_CACHE_TTL", 30*time.Second, &errs)
	cfg.LocatorBatchRetries = envInt("GRIDASSIGN_LOCATOR_BATCH_RETRIES", 3, &errs)
	cfg.LocatorBatchBackoff = envDuration("GRIDASSIGN_LOCATOR_BATCH_BACKOFF", 60*time.Second, &errs)

	// --- Subscription Planner ---
	cfg.SubscriptionListRetries = envInt("GRIDASSIGN_SUBSCRIPTION_LIST_RETRIES", 3, &errs)
	cfg.SubscriptionListBackoff = envDuration("GRIDASSIGN_SUBSCRIPTION_LIST_BACKOFF", 30*time.Second, &errs)

	// --- Assignment worker pool ---
	cfg.AssignWorkerCount = envInt("GRIDASSIGN_WORKER_COUNT", 8, &errs)
	cfg.AssignPollInterval = envDuration("GRIDASSIGN_POLL_INTERVAL", 2*time.Second, &errs)

	// --- Auth ---
	adminToken, hasAdminToken := os.LookupEnv("GRIDASSIGN_ADMIN_TOKEN")
	cfg.AdminToken = adminToken

	// --- Boundary collaborators ---
	cfg.CatalogueBaseURL = envStr("GRIDASSIGN_CATALOGUE_BASE_URL", "http://localhost:9001")
	cfg.DDMBaseURL = envStr("GRIDASSIGN_DDM_BASE_URL", "http://localhost:9002")
	cfg.TaskDBBaseURL = envStr("GRIDASSIGN_TASKDB_BASE_URL", "http://localhost:9003")
	cfg.CallerDN = envStr("GRIDASSIGN_CALLER_DN", "/O=Grid/CN=gridassignd")

	// --- Validation ---
	if !hasAdminToken {
		errs = append(errs, "GRIDASSIGN_ADMIN_TOKEN must be defined (can be empty)")
	}
	if cfg.ListenAddress == "" {
		errs = append(errs, "GRIDASSIGN_LISTEN_ADDRESS must not be empty")
	}
	if cfg.StateDir == "" {
		errs = append(errs, "GRIDASSIGN_STATE_DIR must not be empty")
	}
	if cfg.TopologyPath == "" {
		errs = append(errs, "GRIDASSIGN_TOPOLOGY_PATH must not be empty")
	}

	validatePort("GRIDASSIGN_API_PORT", cfg.APIPort, &errs)
	validatePositive("GRIDASSIGN_API_MAX_BODY_BYTES", cfg.APIMaxBodyBytes, &errs)
	validatePositive("GRIDASSIGN_LOCATOR_CONCURRENCY", cfg.LocatorConcurrency, &errs)
	validatePositive("GRIDASSIGN_LOCATOR_BATCH_RETRIES", cfg.LocatorBatchRetries, &errs)
	validatePositive("GRIDASSIGN_SUBSCRIPTION_LIST_RETRIES", cfg.SubscriptionListRetries, &errs)
	validatePositive("GRIDASSIGN_WORKER_COUNT", cfg.AssignWorkerCount, &errs)

	if cfg.TopologyReload <= 0 {
		errs = append(errs, "GRIDASSIGN_TOPOLOGY_RELOAD must be positive")
	}
	if cfg.LocatorProbeTimeout <= 0 {
		errs = append(errs, "GRIDASSIGN_LOCATOR_PROBE_TIMEOUT must be positive")
	}
	if cfg.LocatorCacheTTL <= 0 {
		errs = append(errs, "GRIDASSIGN_LOCATOR_CACHE_TTL must be positive")
	}
	if cfg.LocatorBatchBackoff <= 0 {
		errs = append(errs, "GRIDASSIGN_LOCATOR_BATCH_BACKOFF must be positive")
	}
	if cfg.SubscriptionListBackoff <= 0 {
		errs = append(errs, "GRIDASSIGN_SUBSCRIPTION_LIST_BACKOFF must be positive")
	}
	if cfg.AssignPollInterval <= 0 {
		errs = append(errs, "GRIDASSIGN_POLL_INTERVAL must be positive")
	}
	if _, err := parseCronLoosely(cfg.TopologySchedule); err != nil {
		errs = append(errs, fmt.Sprintf("GRIDASSIGN_TOPOLOGY_SCHEDULE: invalid cron expression %q: %v", cfg.TopologySchedule, err))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}

func parseCronLoosely(expr string) (cron.Schedule, error) {
	return cron.ParseStandard(expr)
}
