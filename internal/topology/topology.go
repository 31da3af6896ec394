// Package topology infers a system-level description of the scanned
// environment -- the scanner's own deployment type and hosting provider,
// the discovered network, and one summarized node per host -- from the
// already-collected Phase 0/1/2 results. It runs after Phase 2 and is
// persisted under the "system_construction" label.
package topology

import (
	"sort"
	"strings"

	"provenance-scan/internal/domain"
)

// Topology is the full inferred system description.
type Topology struct {
	System  System  `json:"system" yaml:"system"`
	Network Network `json:"network" yaml:"network"`
	Nodes   []Node  `json:"nodes" yaml:"nodes"`
}

// System describes the scanner's own deployment.
type System struct {
	Type       string   `json:"type" yaml:"type"` // bare_metal, virtual_machine, containerized
	Confidence float64  `json:"confidence" yaml:"confidence"`
	Provider   Provider `json:"provider" yaml:"provider"`
	Evidence   []string `json:"evidence" yaml:"evidence"`
}

// Provider describes the inferred hosting provider.
type Provider struct {
	Name       string   `json:"name" yaml:"name"` // aws, gcp, azure, virtualbox, unknown
	Confidence float64  `json:"confidence" yaml:"confidence"`
	Evidence   []string `json:"evidence" yaml:"evidence"`
}

// Network is the discovered network-level summary.
type Network struct {
	CIDRs   []string `json:"cidrs" yaml:"cidrs"`
	Gateway string   `json:"gateway,omitempty" yaml:"gateway,omitempty"`
	DNS     []string `json:"dns,omitempty" yaml:"dns,omitempty"`
}

// Resources is one node's summarized hardware.
type Resources struct {
	CPUs     int   `json:"cpus,omitempty" yaml:"cpus,omitempty"`
	MemoryMB int64 `json:"memory_mb,omitempty" yaml:"memory_mb,omitempty"`
}

// Services is one node's summarized listening ports.
type Services struct {
	OpenPorts []int `json:"open_ports,omitempty" yaml:"open_ports,omitempty"`
}

// Node is one inferred host in the topology.
type Node struct {
	Name      string    `json:"name" yaml:"name"`
	Hostname  string    `json:"hostname" yaml:"hostname"`
	IP        string    `json:"ip" yaml:"ip"`
	OS        string    `json:"os,omitempty" yaml:"os,omitempty"`
	Role      string    `json:"role" yaml:"role"`
	Resources Resources `json:"resources" yaml:"resources"`
	Services  Services  `json:"services" yaml:"services"`
	Users     []string  `json:"users,omitempty" yaml:"users,omitempty"`
}

// Input bundles the already-computed scanner results a Build call needs.
// EnvironmentType/CloudProvider come from bootstrap evidence rather than a
// local Phase 2 record: the scanner never runs the remote extractor against
// itself, so the scanner's own virtualization and provider signal has to
// come from Phase 0, not a self-targeted Phase 2 HostRecord.
type Input struct {
	ScannerHost     domain.ScannerHost
	Phase1          map[string]domain.Phase1Result
	Phase2          map[string]domain.HostRecord
	EnvironmentType string // bare_metal, vm, containerized (bootstrap's environment_type)
	EnvConfidence   float64
	CloudProvider   string // bootstrap's cloud_provider evidence value, "" if none
	CloudConfidence float64
}

// Build infers a Topology from the scanner's own Phase 0 self-discovery and
// the Phase 1/2 results of the run it just completed.
func Build(in Input) Topology {
	return Topology{
		System:  buildSystem(in),
		Network: buildNetwork(in),
		Nodes:   buildNodes(in),
	}
}

func buildSystem(in Input) System {
	sysType, confidence, sysEvidence := detectSystemType(in)
	provider, provConfidence, provEvidence := detectProvider(in)

	return System{
		Type:       sysType,
		Confidence: confidence,
		Evidence:   sysEvidence,
		Provider: Provider{
			Name:       provider,
			Confidence: provConfidence,
			Evidence:   provEvidence,
		},
	}
}

func detectSystemType(in Input) (string, float64, []string) {
	switch in.EnvironmentType {
	case "vm":
		return "virtual_machine", confidenceOrDefault(in.EnvConfidence, 0.85), []string{"bootstrap environment_type=vm"}
	case "containerized":
		return "containerized", confidenceOrDefault(in.EnvConfidence, 0.90), []string{"bootstrap environment_type=containerized"}
	case "bare_metal":
		return "bare_metal", confidenceOrDefault(in.EnvConfidence, 0.60), []string{"no container or VM indicators detected"}
	default:
		return "unknown", 0.0, nil
	}
}

func confidenceOrDefault(c, def float64) float64 {
	if c > 0 {
		return c
	}
	return def
}

// detectProvider prefers the bootstrap's own cloud/hypervisor vendor
// detection (DMI strings, metadata-service reachability) and falls back to
// a Vagrant/VirtualBox-guest heuristic -- a vagrant session, a
// 192.168.56.0/24 neighbor, or the VirtualBox NAT gateway 10.0.2.2 -- when
// bootstrap found no direct vendor evidence.
func detectProvider(in Input) (string, float64, []string) {
	if in.CloudProvider != "" {
		return in.CloudProvider, confidenceOrDefault(in.CloudConfidence, 0.6), []string{"bootstrap cloud_provider evidence: " + in.CloudProvider}
	}

	var evidence []string
	score := 0.0

	for _, rec := range in.Phase2 {
		for _, s := range rec.Users.Sessions {
			if s.Username == "vagrant" {
				score += 0.4
				evidence = append(evidence, "vagrant user session present")
				break
			}
		}
	}

	for _, result := range in.Phase1 {
		if strings.HasPrefix(result.Network, "192.168.56.") {
			score += 0.3
			evidence = append(evidence, "192.168.56.0/24 private network")
			break
		}
	}

	if in.ScannerHost.DefaultGateway == "10.0.2.2" {
		score += 0.2
		evidence = append(evidence, "VirtualBox NAT gateway 10.0.2.2")
	}

	if score >= 0.6 {
		return "virtualbox", round2(score), evidence
	}
	return "unknown", round2(score), evidence
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func buildNetwork(in Input) Network {
	seen := make(map[string]bool)
	var cidrs []string
	for _, result := range in.Phase1 {
		if result.Network == "" || seen[result.Network] {
			continue
		}
		seen[result.Network] = true
		cidrs = append(cidrs, result.Network)
	}
	sort.Strings(cidrs)

	return Network{
		CIDRs:   cidrs,
		Gateway: in.ScannerHost.DefaultGateway,
		DNS:     in.ScannerHost.DNSServers,
	}
}

// buildNodes builds one node per host discovered across every scanned
// interface, falling back to the scanner's own IP when Phase 1 found
// nothing -- the scanner is itself always a node in its own topology.
func buildNodes(in Input) []Node {
	seen := make(map[string]bool)
	var ips []string
	for _, result := range in.Phase1 {
		for _, ip := range result.DiscoveredHosts {
			if !seen[ip] {
				seen[ip] = true
				ips = append(ips, ip)
			}
		}
	}
	if len(ips) == 0 && in.ScannerHost.PrimaryIPv4 != "" {
		ips = []string{in.ScannerHost.PrimaryIPv4}
	}
	sort.Strings(ips)

	nodes := make([]Node, 0, len(ips))
	for _, ip := range ips {
		nodes = append(nodes, buildNode(in, ip))
	}
	return nodes
}

func buildNode(in Input, ip string) Node {
	hostname := ip
	if ip == in.ScannerHost.PrimaryIPv4 && in.ScannerHost.Hostname != "" {
		hostname = in.ScannerHost.Hostname
	}

	rec, hasRecord := in.Phase2[ip]

	openPorts := servicePorts(in, ip, rec, hasRecord)

	node := Node{
		Name:     hostname,
		Hostname: hostname,
		IP:       ip,
		Role:     inferRole(openPorts),
		Services: Services{OpenPorts: openPorts},
	}
	if hasRecord {
		node.OS = rec.OS.SystemName
		node.Resources = Resources{
			CPUs:     rec.Hardware.CPULogicalCores,
			MemoryMB: rec.Hardware.MemoryTotalMB,
		}
		node.Users = loggedInUsers(rec)
	}
	return node
}

// servicePorts prefers the Phase 2 extractor's listening-socket table and
// falls back to Phase 1's TCP-open evidence for hosts never selected for
// remote extraction -- most discovered hosts have only a Phase 1 record.
func servicePorts(in Input, ip string, rec domain.HostRecord, hasRecord bool) []int {
	if hasRecord {
		seen := make(map[int]bool)
		var ports []int
		for _, s := range rec.Services.Listening {
			if !strings.EqualFold(s.Status, "listen") || s.LocalPort == 0 || seen[s.LocalPort] {
				continue
			}
			seen[s.LocalPort] = true
			ports = append(ports, s.LocalPort)
		}
		sort.Ints(ports)
		if len(ports) > 0 {
			return ports
		}
	}

	for _, result := range in.Phase1 {
		if detail, ok := result.Details[ip]; ok && len(detail.TCP) > 0 {
			ports := append([]int(nil), detail.TCP...)
			sort.Ints(ports)
			return ports
		}
	}
	return nil
}

func loggedInUsers(rec domain.HostRecord) []string {
	seen := make(map[string]bool)
	var users []string
	for _, s := range rec.Users.Sessions {
		if s.Username == "" || seen[s.Username] {
			continue
		}
		seen[s.Username] = true
		users = append(users, s.Username)
	}
	sort.Strings(users)
	return users
}

// inferRole maps a node's open ports to a coarse role by port precedence:
// DNS, then printer, then a generic Linux node via SSH.
func inferRole(ports []int) string {
	has := func(p int) bool {
		for _, open := range ports {
			if open == p {
				return true
			}
		}
		return false
	}
	switch {
	case has(53):
		return "dns"
	case has(9100), has(631):
		return "printer"
	case has(22):
		return "linux_node"
	default:
		return "generic"
	}
}
