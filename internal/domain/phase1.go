package domain

// OSHint is the TTL-based OS guess made from a single ping response.
type OSHint string

const (
	OSHintLinux         OSHint = "linux_like"
	OSHintWindows       OSHint = "windows_like"
	OSHintNetworkDevice OSHint = "network_device_like"
	OSHintUnknown       OSHint = "unknown"
)

// HostType is the role assigned to a Phase-1 responder.
type HostType string

const (
	HostTypeGateway       HostType = "gateway"
	HostTypeNetworkDevice HostType = "network_device"
	HostTypePrinter       HostType = "printer"
	HostTypeWebService    HostType = "web_service"
	HostTypeSSHService    HostType = "ssh_service"
	HostTypeDNSLike       HostType = "dns_like"
	HostTypeUnknown       HostType = "unknown"
)

// UDPEvidence is one UDP-port observation with a confidence score.
type UDPEvidence struct {
	Port       int     `json:"port" yaml:"port"`
	Evidence   string  `json:"evidence" yaml:"evidence"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// HostDetail is everything Phase 1 learned about one responder.
type HostDetail struct {
	TCP        []int         `json:"tcp" yaml:"tcp"`
	UDP        []UDPEvidence `json:"udp,omitempty" yaml:"udp,omitempty"`
	OSHint     OSHint        `json:"os_hint" yaml:"os_hint"`
	Type       HostType      `json:"type" yaml:"type"`
}

// Phase1Result is the discovery result for a single scanned interface.
type Phase1Result struct {
	Network         string                `json:"network" yaml:"network"`
	DiscoveredHosts []string              `json:"discovered_hosts" yaml:"discovered_hosts"`
	Details         map[string]HostDetail `json:"details" yaml:"details"`
	Methods         []string              `json:"methods" yaml:"methods"`
	ScannerIP       string                `json:"scanner_ip" yaml:"scanner_ip"`
}
