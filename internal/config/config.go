// Package config builds the supervisor's immutable Config from defaults, an
// optional JSONC or YAML file, and CLI flags, in that precedence order
// (flags win, then file, then defaults) — the same layering
// HyphaGroup-oubliette's internal/config package uses for oubliette.jsonc.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/cronutil"
)

// BreakerSettings configures the gobreaker.CircuitBreaker guarding the
// Lifecycle Manager's initial-spawn retries.
type BreakerSettings struct {
	MaxFailures    int   `json:"maxFailures" yaml:"maxFailures"`
	ResetTimeoutMs int64 `json:"resetTimeoutMs" yaml:"resetTimeoutMs"`
}

// DefaultBreakerSettings matches SPEC_FULL.md §3.1's defaults.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{MaxFailures: 5, ResetTimeoutMs: 30000}
}

// Config is the supervisor's fully resolved, immutable-after-construction
// configuration. Field names track spec.md §3's Config entries plus
// SPEC_FULL.md §3.1's additions.
type Config struct {
	ServerCommand string            `json:"serverCommand" yaml:"serverCommand"`
	ServerArgs    []string          `json:"serverArgs" yaml:"serverArgs"`
	Cwd           string            `json:"cwd" yaml:"cwd"`
	Env           map[string]string `json:"env" yaml:"env"`

	WatchPattern   interface{} `json:"watchPattern" yaml:"watchPattern"`
	DebounceMs     int         `json:"debounceMs" yaml:"debounceMs"`
	BuildCommand   string      `json:"buildCommand" yaml:"buildCommand"`
	BuildTimeoutMs int         `json:"buildTimeoutMs" yaml:"buildTimeoutMs"`

	LogLevel    string `json:"logLevel" yaml:"logLevel"`
	LogFormat   string `json:"logFormat" yaml:"logFormat"`
	MetricsAddr string `json:"metricsAddr" yaml:"metricsAddr"`

	SpawnBreaker   BreakerSettings `json:"spawnBreaker" yaml:"spawnBreaker"`
	PriorityQueue  bool            `json:"priorityQueue" yaml:"priorityQueue"`
	PendingSweepMs int             `json:"pendingSweepMs" yaml:"pendingSweepMs"`

	// HealthCron is an optional standard 5-field cron expression scheduling
	// a periodic self-check log line (child pid and liveness). Empty disables it.
	HealthCron string `json:"healthCron" yaml:"healthCron"`
}

// Defaults returns a Config populated with every spec-mandated default.
// ServerCommand is left empty; it is required and validated by Validate.
func Defaults() Config {
	return Config{
		ServerArgs:     []string{},
		Env:            map[string]string{},
		DebounceMs:     300,
		BuildTimeoutMs: 60000,
		LogLevel:       "info",
		LogFormat:      "", // resolved by supervisor.ResolveLogFormat: text on a TTY, json otherwise
		SpawnBreaker:   DefaultBreakerSettings(),
		PendingSweepMs: 30000,
	}
}

// FileConfig is the subset of Config recognized in a config file. A pointer
// field left nil in the decoded file means "not set" and the default (or
// prior layer) is kept; this mirrors the flags-win merge precedence below.
type FileConfig struct {
	ServerCommand *string           `json:"serverCommand" yaml:"serverCommand"`
	ServerArgs    []string          `json:"serverArgs" yaml:"serverArgs"`
	Cwd           *string           `json:"cwd" yaml:"cwd"`
	Env           map[string]string `json:"env" yaml:"env"`

	WatchPattern   interface{} `json:"watchPattern" yaml:"watchPattern"`
	DebounceMs     *int        `json:"debounceMs" yaml:"debounceMs"`
	BuildCommand   *string     `json:"buildCommand" yaml:"buildCommand"`
	BuildTimeoutMs *int        `json:"buildTimeoutMs" yaml:"buildTimeoutMs"`

	LogLevel    *string `json:"logLevel" yaml:"logLevel"`
	LogFormat   *string `json:"logFormat" yaml:"logFormat"`
	MetricsAddr *string `json:"metricsAddr" yaml:"metricsAddr"`

	SpawnBreaker   *BreakerSettings `json:"spawnBreaker" yaml:"spawnBreaker"`
	PriorityQueue  *bool            `json:"priorityQueue" yaml:"priorityQueue"`
	PendingSweepMs *int             `json:"pendingSweepMs" yaml:"pendingSweepMs"`

	HealthCron *string `json:"healthCron" yaml:"healthCron"`
}

// LoadFile reads and parses a config file. YAML is used for .yaml/.yml
// extensions; everything else is treated as JSONC (plain JSON parses fine
// once comment-stripped, since StripJSONComments is a no-op on comment-free
// input).
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var fc FileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(StripJSONComments(data), &fc); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	return &fc, nil
}

// ApplyFile overlays a parsed FileConfig onto base, returning the merged
// result. Only fields the file actually set are overridden.
func ApplyFile(base Config, fc *FileConfig) Config {
	if fc == nil {
		return base
	}
	if fc.ServerCommand != nil {
		base.ServerCommand = *fc.ServerCommand
	}
	if fc.ServerArgs != nil {
		base.ServerArgs = fc.ServerArgs
	}
	if fc.Cwd != nil {
		base.Cwd = *fc.Cwd
	}
	if fc.Env != nil {
		base.Env = mergeEnv(base.Env, fc.Env)
	}
	if fc.WatchPattern != nil {
		base.WatchPattern = fc.WatchPattern
	}
	if fc.DebounceMs != nil {
		base.DebounceMs = *fc.DebounceMs
	}
	if fc.BuildCommand != nil {
		base.BuildCommand = *fc.BuildCommand
	}
	if fc.BuildTimeoutMs != nil {
		base.BuildTimeoutMs = *fc.BuildTimeoutMs
	}
	if fc.LogLevel != nil {
		base.LogLevel = *fc.LogLevel
	}
	if fc.LogFormat != nil {
		base.LogFormat = *fc.LogFormat
	}
	if fc.MetricsAddr != nil {
		base.MetricsAddr = *fc.MetricsAddr
	}
	if fc.SpawnBreaker != nil {
		base.SpawnBreaker = *fc.SpawnBreaker
	}
	if fc.PriorityQueue != nil {
		base.PriorityQueue = *fc.PriorityQueue
	}
	if fc.PendingSweepMs != nil {
		base.PendingSweepMs = *fc.PendingSweepMs
	}
	if fc.HealthCron != nil {
		base.HealthCron = *fc.HealthCron
	}
	return base
}

func mergeEnv(base, overlay map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// Validate checks the invariants Config construction promises: a required
// serverCommand and non-negative timing fields.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.ServerCommand) == "" {
		return fmt.Errorf("config: serverCommand is required")
	}
	if cfg.DebounceMs < 0 {
		return fmt.Errorf("config: debounceMs must be non-negative, got %d", cfg.DebounceMs)
	}
	if cfg.BuildTimeoutMs < 0 {
		return fmt.Errorf("config: buildTimeoutMs must be non-negative, got %d", cfg.BuildTimeoutMs)
	}
	if cfg.PendingSweepMs < 0 {
		return fmt.Errorf("config: pendingSweepMs must be non-negative, got %d", cfg.PendingSweepMs)
	}
	switch cfg.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: logFormat must be %q or %q, got %q", "text", "json", cfg.LogFormat)
	}
	if cfg.HealthCron != "" {
		if err := cronutil.ValidateCron(cfg.HealthCron); err != nil {
			return fmt.Errorf("config: healthCron: %w", err)
		}
	}
	return nil
}
