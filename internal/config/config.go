// Package config provides configuration management for the scanner.
//
// Config file locations (priority order):
//  1. $PROVENANCE_CONFIG
//  2. ./provenance-scan.yaml
//  3. ~/.config/provenance-scan/config.yaml
//  4. /etc/provenance-scan/config.yaml
//
// Connection secrets (NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD) are read from
// the environment rather than the file, so the file stays safe to commit.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load finds and loads the config file, or returns defaults if none found.
func Load() (*Config, string, error) {
	path := FindConfigPath()
	if path == "" {
		return DefaultConfig(), "", nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path.
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, path, nil
}

// Save writes config to the specified path.
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("config: create dir for %s: %w", path, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// DefaultConfig returns sensible defaults for a fresh run with no config
// file and no prior bootstrap.
func DefaultConfig() *Config {
	return &Config{
		Version:      1,
		DataDir:      "./provenance-data",
		Posture:      PostureBalanced,
		ProbeMethods: []string{"arp", "tcp_connect"},
		MaxHosts:     1024,
		SQLite:       SQLiteConfig{Enabled: true, Path: "./provenance-data/snapshots.db"},
		SSH:          SSHConfig{Port: 22},
		WinRM:        WinRMConfig{Port: 5985},
	}
}

// applyDefaults fills in zero-valued fields after a file load.
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.DataDir == "" {
		c.DataDir = "./provenance-data"
	}
	if c.Posture == "" {
		c.Posture = PostureBalanced
	}
	if c.MaxHosts == 0 {
		c.MaxHosts = 1024
	}
	if len(c.ProbeMethods) == 0 {
		c.ProbeMethods = []string{"arp", "tcp_connect"}
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = c.DataDir + "/snapshots.db"
	}
	if c.SSH.Port == 0 {
		c.SSH.Port = 22
	}
	if c.WinRM.Port == 0 {
		c.WinRM.Port = 5985
	}
}

// EffectiveMode returns the mode to use: explicit override, else bootstrap
// recommendation, else the conservative default.
func (c *Config) EffectiveMode() Mode {
	if c.Mode != nil {
		return *c.Mode
	}
	if c.Bootstrap != nil {
		return c.Bootstrap.Recommendation.Mode
	}
	return ModeLocalOnly
}

// EffectiveWorkerProfile returns the posture's worker profile with any
// explicit overrides applied. A cgroup CPU limit below one core (bootstrap's
// "cpu_limit" evidence) scales the pool down first, since a posture sized
// for a full core starves under a fractional quota rather than just running
// slower.
func (c *Config) EffectiveWorkerProfile() WorkerProfile {
	base := c.Posture.GetProfile()
	if c.Bootstrap != nil && c.Bootstrap.Resources.CPULimit > 0 && c.Bootstrap.Resources.CPULimit < 1.0 {
		base.TCPWorkers = scaleWorkersToCPULimit(base.TCPWorkers, c.Bootstrap.Resources.CPULimit)
		base.ICMPWorkers = scaleWorkersToCPULimit(base.ICMPWorkers, c.Bootstrap.Resources.CPULimit)
	}
	if c.Worker == nil {
		return base
	}
	if c.Worker.TCPWorkers != nil {
		base.TCPWorkers = *c.Worker.TCPWorkers
	}
	if c.Worker.ICMPWorkers != nil {
		base.ICMPWorkers = *c.Worker.ICMPWorkers
	}
	if c.Worker.TCPTimeout != nil {
		base.TCPTimeout = c.Worker.TCPTimeout.Duration()
	}
	if c.Worker.ICMPTimeout != nil {
		base.ICMPTimeout = c.Worker.ICMPTimeout.Duration()
	}
	return base
}

// scaleWorkersToCPULimit shrinks a worker count proportionally to a
// fractional CPU quota, with a floor so a 0.1-core container still gets a
// usable pool instead of being scanned one host at a time.
func scaleWorkersToCPULimit(n int, cpuLimit float64) int {
	scaled := int(float64(n) * cpuLimit)
	if scaled < 4 {
		return 4
	}
	return scaled
}

// NeedsBootstrap reports whether Phase 0 bootstrap should run.
func (c *Config) NeedsBootstrap() bool {
	return c.Bootstrap == nil
}

// SetBootstrapResult records bootstrap findings onto the config.
func (c *Config) SetBootstrapResult(result *BootstrapResult) {
	c.Bootstrap = result
}

// ModeExceedsRecommendation reports whether an explicit mode override asks
// for more than the bootstrap recommended.
func (c *Config) ModeExceedsRecommendation() bool {
	if c.Mode == nil || c.Bootstrap == nil {
		return false
	}
	return c.Mode.Level() > c.Bootstrap.Recommendation.Mode.Level()
}

// HasProbeMethod reports whether the named probe method is enabled.
func (c *Config) HasProbeMethod(method string) bool {
	for _, m := range c.ProbeMethods {
		if m == method {
			return true
		}
	}
	return false
}

// Summary returns a human-readable one-line config summary, printed at
// startup so an operator can see the effective configuration at a glance.
func (c *Config) Summary() string {
	profile := c.EffectiveWorkerProfile()
	return fmt.Sprintf("mode=%s posture=%s probes=%v tcp_workers=%d icmp_workers=%d max_hosts=%d",
		c.EffectiveMode(), c.Posture, c.ProbeMethods, profile.TCPWorkers, profile.ICMPWorkers, c.MaxHosts)
}
