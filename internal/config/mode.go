package config

import "time"

// Mode is the capability ceiling for a scan run: whether remote extraction
// (Phase 2, requiring SSH/WinRM credentials) is in scope at all.
type Mode string

const (
	// ModeLocalOnly runs Phase 0 self-discovery and Phase 1 local network
	// discovery, producing a snapshot with an empty Phase2 map.
	ModeLocalOnly Mode = "local_only"
	// ModeFull adds Phase 2 remote extraction against Phase-1 responders.
	ModeFull Mode = "full"
)

// ParseMode converts a string to Mode, defaulting to ModeLocalOnly -- the
// safer ceiling when the flag or config file is silent.
func ParseMode(s string) Mode {
	switch s {
	case "local_only":
		return ModeLocalOnly
	case "full":
		return ModeFull
	default:
		return ModeLocalOnly
	}
}

// Level returns a numeric level for comparison (higher = more capable).
func (m Mode) Level() int {
	if m == ModeFull {
		return 1
	}
	return 0
}

// Allows reports whether this mode's capabilities cover the required mode.
func (m Mode) Allows(required Mode) bool {
	return m.Level() >= required.Level()
}

// Posture is the behavioral aggressiveness of Phase 1/Phase 2 probing.
type Posture string

const (
	PostureStealth    Posture = "stealth"
	PostureCautious   Posture = "cautious"
	PostureBalanced   Posture = "balanced"
	PostureAggressive Posture = "aggressive"
)

// ParsePosture converts a string to Posture, defaulting to PostureBalanced.
func ParsePosture(s string) Posture {
	switch s {
	case "stealth":
		return PostureStealth
	case "cautious":
		return PostureCautious
	case "balanced":
		return PostureBalanced
	case "aggressive":
		return PostureAggressive
	default:
		return PostureBalanced
	}
}

// WorkerProfile holds the concurrency and timeout knobs Phase 1 and Phase 2
// read to size their worker pools and per-probe deadlines.
type WorkerProfile struct {
	TCPWorkers   int           `yaml:"tcp_workers"`
	ICMPWorkers  int           `yaml:"icmp_workers"`
	TCPTimeout   time.Duration `yaml:"tcp_timeout"`
	ICMPTimeout  time.Duration `yaml:"icmp_timeout"`
	SSHTimeout   time.Duration `yaml:"ssh_timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	JitterPercent int          `yaml:"jitter_percent"`
}

// PostureProfiles maps postures to their default worker profiles. Balanced
// carries the scanner's documented defaults (60 TCP workers, 80 ICMP
// workers, 150ms TCP connect timeout, 1s ICMP timeout, 60s SSH timeout);
// the other postures scale concurrency and timing around that baseline.
var PostureProfiles = map[Posture]WorkerProfile{
	PostureStealth: {
		TCPWorkers:    5,
		ICMPWorkers:   5,
		TCPTimeout:    2 * time.Second,
		ICMPTimeout:   3 * time.Second,
		SSHTimeout:    60 * time.Second,
		MaxRetries:    0,
		JitterPercent: 40,
	},
	PostureCautious: {
		TCPWorkers:    20,
		ICMPWorkers:   30,
		TCPTimeout:    500 * time.Millisecond,
		ICMPTimeout:   2 * time.Second,
		SSHTimeout:    60 * time.Second,
		MaxRetries:    1,
		JitterPercent: 20,
	},
	PostureBalanced: {
		TCPWorkers:    60,
		ICMPWorkers:   80,
		TCPTimeout:    150 * time.Millisecond,
		ICMPTimeout:   1 * time.Second,
		SSHTimeout:    60 * time.Second,
		MaxRetries:    2,
		JitterPercent: 0,
	},
	PostureAggressive: {
		TCPWorkers:    150,
		ICMPWorkers:   200,
		TCPTimeout:    75 * time.Millisecond,
		ICMPTimeout:   500 * time.Millisecond,
		SSHTimeout:    30 * time.Second,
		MaxRetries:    3,
		JitterPercent: 0,
	},
}

// GetProfile returns the worker profile for a posture, falling back to
// Balanced for an unrecognized value.
func (p Posture) GetProfile() WorkerProfile {
	if profile, ok := PostureProfiles[p]; ok {
		return profile
	}
	return PostureProfiles[PostureBalanced]
}
