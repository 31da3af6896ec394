package config

import "time"

// Config is the root scan configuration, decoded from an optional YAML
// file and overridden by flags and environment variables at startup.
type Config struct {
	Version   int              `yaml:"version"`
	DataDir   string           `yaml:"data_dir"`
	Mode      *Mode            `yaml:"mode"` // nil = use bootstrap recommendation
	Posture   Posture          `yaml:"posture"`
	Worker    *WorkerOverride  `yaml:"worker,omitempty"`
	ProbeMethods []string      `yaml:"probe_methods,omitempty"` // arp, tcp_connect, icmp, nmap
	MaxHosts  int              `yaml:"max_hosts"`
	Targets   TargetConfig     `yaml:"targets"`
	Neo4j     Neo4jConfig      `yaml:"neo4j"`
	SQLite    SQLiteConfig     `yaml:"sqlite"`
	Listen    string           `yaml:"listen,omitempty"`
	SSH       SSHConfig        `yaml:"ssh"`
	WinRM     WinRMConfig      `yaml:"winrm"`
	Bootstrap *BootstrapResult `yaml:"bootstrap,omitempty"`
}

// BootstrapResult stores Phase-0 self-discovery findings, persisted
// alongside the config so a re-run can skip re-probing capabilities.
type BootstrapResult struct {
	Timestamp      time.Time          `yaml:"timestamp"`
	Environment    EnvironmentInfo    `yaml:"environment"`
	Resources      ResourceInfo       `yaml:"resources"`
	Permissions    PermissionInfo     `yaml:"permissions"`
	Network        NetworkInfo        `yaml:"network"`
	Recommendation ModeRecommendation `yaml:"recommendation"`
}

// EnvironmentInfo describes the execution environment.
type EnvironmentInfo struct {
	Type          string  `yaml:"type"`    // bare_metal, vm, container
	Runtime       string  `yaml:"runtime"` // none, docker, kubernetes, podman, ...
	Confidence    float64 `yaml:"confidence"`
	CloudProvider string  `yaml:"cloud_provider,omitempty"` // aws, gcp, azure, virtualbox, unknown
}

// ResourceInfo describes resources available to the scanner process.
type ResourceInfo struct {
	CPUCores     int     `yaml:"cpu_cores"`
	MemoryMB     int     `yaml:"memory_mb"`
	Architecture string  `yaml:"architecture"`
	CPULimit     float64 `yaml:"cpu_limit,omitempty"` // cgroup quota/period ratio; 0 = uncapped
}

// PermissionInfo describes probed network/process permissions.
type PermissionInfo struct {
	CanICMPPing   bool   `yaml:"can_icmp_ping"`
	CanRawSocket  bool   `yaml:"can_raw_socket"`
	CanReadProcFS bool   `yaml:"can_read_procfs"`
	HasNmap       bool   `yaml:"has_nmap"`
	EffectiveUser string `yaml:"effective_user"`
	EffectiveUID  int    `yaml:"effective_uid"`
}

// NetworkInfo describes the scanner's own network configuration.
type NetworkInfo struct {
	Hostname   string          `yaml:"hostname"`
	Interfaces []InterfaceInfo `yaml:"interfaces,omitempty"`
	Gateway    string          `yaml:"gateway,omitempty"`
	DNSServers []string        `yaml:"dns_servers,omitempty"`
}

// InterfaceInfo describes one candidate scanning interface.
type InterfaceInfo struct {
	Name   string `yaml:"name"`
	IP     string `yaml:"ip"`
	Subnet string `yaml:"subnet,omitempty"`
}

// ModeRecommendation is the bootstrap's suggested mode and probe methods.
type ModeRecommendation struct {
	Mode         Mode     `yaml:"mode"`
	ProbeMethods []string `yaml:"probe_methods"`
	Confidence   float64  `yaml:"confidence"`
	Reasons      []string `yaml:"reasons,omitempty"`
}

// WorkerOverride allows overriding posture-derived worker profile fields.
type WorkerOverride struct {
	TCPWorkers  *int      `yaml:"tcp_workers,omitempty"`
	ICMPWorkers *int      `yaml:"icmp_workers,omitempty"`
	TCPTimeout  *Duration `yaml:"tcp_timeout,omitempty"`
	ICMPTimeout *Duration `yaml:"icmp_timeout,omitempty"`
}

// TargetConfig lists the networks in scope for discovery, beyond what the
// interface selector infers from the scanner's own interfaces.
type TargetConfig struct {
	Networks []string `yaml:"networks,omitempty"`
}

// Neo4jConfig holds the remote Graph Sink's connection settings. Values are
// expected to come from NEO4J_URI / NEO4J_USER / NEO4J_PASSWORD rather than
// the config file, so the file itself stays safe to commit.
type Neo4jConfig struct {
	Enabled bool   `yaml:"enabled"`
	URI     string `yaml:"uri,omitempty"`
	User    string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// SQLiteConfig holds the local snapshot repository's settings.
type SQLiteConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SSHConfig holds default credentials for the SSH Agent Transport.
type SSHConfig struct {
	User       string `yaml:"user,omitempty"`
	KeyPath    string `yaml:"key_path,omitempty"`
	Password   string `yaml:"password,omitempty"`
	Port       int    `yaml:"port"`
	AcceptAny  bool   `yaml:"accept_any_host_key"`
}

// WinRMConfig holds default credentials for the WinRM Agent Transport.
type WinRMConfig struct {
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	Port     int    `yaml:"port"`
	UseHTTPS bool   `yaml:"use_https"`
}

// Duration wraps time.Duration for YAML (un)marshaling as a duration string.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
