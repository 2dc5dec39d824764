// Package config loads Leon's YAML configuration: server ports, storage
// location, resolver/provider defaults, memory-manager thresholds, and
// logging, grounded on internal/config/config.go's yaml.v3 +
// KnownFields(true) + env-override + validate idiom.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config is Leon's top-level configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Providers ProvidersConfig `yaml:"providers"`
	Memory    MemoryConfig    `yaml:"memory"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the ports leond listens on (§6 HTTP surface;
// gRPC reserved for a future provider-facing control plane).
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// StorageConfig points at the embedded sqlite file and, optionally, a
// read-only Postgres mirror for the operator dashboard (§1 Non-goals: no
// cross-host durability, so Postgres is a mirror, not the system of
// record).
type StorageConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// ResolverConfig mirrors internal/resolver.Config (§4.2).
type ResolverConfig struct {
	ConvergeTimeout time.Duration `yaml:"converge_timeout"`
	ConvergePoll    time.Duration `yaml:"converge_poll"`
	DefaultProvider string        `yaml:"default_provider"`
	OrphanScanEvery time.Duration `yaml:"orphan_scan_every"`
}

// ProvidersConfig configures the built-in Firecracker provider and any
// out-of-process gRPC providers the resolver's registry should dial at
// startup (§6 "concrete sandbox providers are external collaborators").
type ProvidersConfig struct {
	Firecracker FirecrackerConfig       `yaml:"firecracker"`
	GRPC        []GRPCProviderEndpoint  `yaml:"grpc"`
}

// FirecrackerConfig mirrors internal/provider.FirecrackerConfig.
type FirecrackerConfig struct {
	Enabled    bool   `yaml:"enabled"`
	KernelPath string `yaml:"kernel_path"`
	RootFSPath string `yaml:"rootfs_path"`
	SocketDir  string `yaml:"socket_dir"`
	VCPUs      int64  `yaml:"vcpus"`
	MemSizeMB  int64  `yaml:"mem_size_mb"`
}

// GRPCProviderEndpoint configures one remote provider dial target.
type GRPCProviderEndpoint struct {
	Name   string `yaml:"name"`
	Target string `yaml:"target"`
}

// MemoryConfig mirrors internal/memorymgr's thresholds (§4.3).
type MemoryConfig struct {
	ContextLimit       int     `yaml:"context_limit"`
	CompactionThreshold float64 `yaml:"compaction_threshold"`
	KeepLast           int     `yaml:"keep_last"`
}

// LoggingConfig controls the slog handler (§1 AMBIENT STACK).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads path (resolving $include directives via LoadRaw), applies
// $LEON_HOME-relative defaults and environment overrides, then validates.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func leonHome() string {
	if home := strings.TrimSpace(os.Getenv("LEON_HOME")); home != "" {
		return home
	}
	if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
		return filepath.Join(home, ".leon")
	}
	return ".leon"
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = filepath.Join(leonHome(), "leon.db")
	}
	if cfg.Resolver.ConvergeTimeout == 0 {
		cfg.Resolver.ConvergeTimeout = 30 * time.Second
	}
	if cfg.Resolver.ConvergePoll == 0 {
		cfg.Resolver.ConvergePoll = 250 * time.Millisecond
	}
	if cfg.Resolver.DefaultProvider == "" {
		cfg.Resolver.DefaultProvider = "firecracker"
	}
	if cfg.Resolver.OrphanScanEvery == 0 {
		cfg.Resolver.OrphanScanEvery = 5 * time.Minute
	}
	if cfg.Providers.Firecracker.SocketDir == "" {
		cfg.Providers.Firecracker.SocketDir = "/var/run/leon/firecracker"
	}
	if cfg.Providers.Firecracker.VCPUs == 0 {
		cfg.Providers.Firecracker.VCPUs = 1
	}
	if cfg.Providers.Firecracker.MemSizeMB == 0 {
		cfg.Providers.Firecracker.MemSizeMB = 512
	}
	if cfg.Memory.ContextLimit == 0 {
		cfg.Memory.ContextLimit = 128000
	}
	if cfg.Memory.CompactionThreshold == 0 {
		cfg.Memory.CompactionThreshold = 0.70
	}
	if cfg.Memory.KeepLast == 0 {
		cfg.Memory.KeepLast = 6
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("LEON_HOST")); v != "" {
		cfg.Server.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("LEON_HTTP_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.HTTPPort = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("LEON_METRICS_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("LEON_SQLITE_PATH")); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.Storage.PostgresDSN = v
	}
}

// ValidationError collects every config problem found, matching the
// teacher's "report everything wrong in one pass" idiom rather than
// failing on the first issue.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(cfg *Config) error {
	var issues []string

	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		issues = append(issues, "server.http_port must be between 1 and 65535")
	}
	if cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535 {
		issues = append(issues, "server.metrics_port must be between 1 and 65535")
	}
	if cfg.Resolver.ConvergeTimeout <= 0 {
		issues = append(issues, "resolver.converge_timeout must be > 0")
	}
	if cfg.Resolver.ConvergePoll <= 0 {
		issues = append(issues, "resolver.converge_poll must be > 0")
	}
	if cfg.Resolver.ConvergePoll >= cfg.Resolver.ConvergeTimeout {
		issues = append(issues, "resolver.converge_poll must be smaller than converge_timeout")
	}
	if cfg.Memory.ContextLimit <= 0 {
		issues = append(issues, "memory.context_limit must be > 0")
	}
	if cfg.Memory.CompactionThreshold <= 0 || cfg.Memory.CompactionThreshold > 1 {
		issues = append(issues, "memory.compaction_threshold must be in (0, 1]")
	}
	if cfg.Memory.KeepLast < 0 {
		issues = append(issues, "memory.keep_last must be >= 0")
	}
	for i, ep := range cfg.Providers.GRPC {
		if strings.TrimSpace(ep.Name) == "" {
			issues = append(issues, fmt.Sprintf("providers.grpc[%d].name is required", i))
		}
		if strings.TrimSpace(ep.Target) == "" {
			issues = append(issues, fmt.Sprintf("providers.grpc[%d].target is required", i))
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "json", "text":
	default:
		issues = append(issues, "logging.format must be \"json\" or \"text\"")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
