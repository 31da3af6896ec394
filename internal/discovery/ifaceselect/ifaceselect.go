// Package ifaceselect ranks the host's network interfaces by suitability
// for active scanning. Phase 1 probes from every candidate that survives
// the rejection rules, and Phase 2 draws its targets from the top-ranked
// one; the rules here keep loopback, container bridges, VPN tunnels, and
// other dead ends out of that list.
package ifaceselect

import (
	"net"
	"sort"
	"strings"
)

// virtualMACPrefixes are the OUI prefixes hypervisors stamp on synthetic
// adapters. Ported from the scanner's original interface-selection
// constants; a synthetic adapter is only disqualifying when the scanner
// itself is not running inside a VM guest (of any hypervisor).
var virtualMACPrefixes = []string{
	"02:42",    // Docker bridge
	"00:15:5d", // Hyper-V
	"08:00:27", // VirtualBox
	"00:0c:29", // VMware
	"00:05:69", // VMware
	"00:50:56", // VMware
}

// ignoredInterfacePrefixes name interfaces that are never candidates for
// active scanning regardless of addressing: loopback, container bridges,
// tunnel and VPN adapters.
var ignoredInterfacePrefixes = []string{
	"lo", "docker", "br-", "veth", "virbr", "vboxnet", "vmnet",
	"tap", "tun", "zt", "tailscale",
}

// Interface describes one of the host's network adapters as seen by the
// selector. Callers build this from net.Interfaces plus whatever extra
// signal (Wi-Fi SSID presence, DNS search suffix) their platform exposes.
type Interface struct {
	Name      string
	MAC       string
	IP        string // IPv4 dotted-quad, empty if the interface has none
	PrefixLen int    // CIDR prefix length of IP's subnet, e.g. 24
	IsWiFi    bool
	DNSSuffix string
}

// ARPEntry is one row of the kernel ARP/neighbor cache.
type ARPEntry struct {
	IP  string
	MAC string
}

// Candidate is a scored, non-rejected interface.
type Candidate struct {
	Interface Interface
	Score     int
	Reasons   []string
}

// Select scores every interface with an IPv4 address and returns the
// survivors sorted by descending score. gateway is the host's default
// gateway IP, if known. inVM reports whether the scanner process itself is
// running inside a virtual machine (from Phase 0 bootstrap evidence).
func Select(ifaces []Interface, arp []ARPEntry, gateway string, inVM bool) []Candidate {
	var out []Candidate
	for _, iface := range ifaces {
		score, reasons, ok := evaluate(iface, arp, gateway, inVM)
		if !ok {
			continue
		}
		out = append(out, Candidate{Interface: iface, Score: score, Reasons: reasons})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func evaluate(iface Interface, arp []ARPEntry, gateway string, inVM bool) (int, []string, bool) {
	if iface.IP == "" || iface.PrefixLen == 0 {
		return 0, nil, false
	}
	ip := net.ParseIP(iface.IP).To4()
	if ip == nil {
		return 0, nil, false
	}

	if isAPIPA(ip) {
		return 0, nil, false
	}
	if hasIgnoredPrefix(iface.Name) {
		return 0, nil, false
	}
	if inVM {
		if vagrant, score, reason := vagrantSpecialCase(ip); vagrant {
			return score, []string{reason}, true
		}
	}
	if isVirtualMAC(iface.MAC) && !inVM {
		return 0, nil, false
	}
	// NAT adapter on a host OS: the scanner is not itself a guest, yet the
	// interface sits in VirtualBox's conventional NAT range -- this is the
	// host side of someone else's NAT, not a network worth scanning.
	if !inVM && ip[0] == 10 && ip[1] == 0 && ip[2] == 2 {
		return 0, nil, false
	}
	if isPublicWiFi(iface) {
		return 0, nil, false
	}

	score := 0
	var reasons []string

	if isRFC1918(ip) {
		score += 4
		reasons = append(reasons, "RFC1918 private subnet")
	}

	neighbors := countSameOctetNeighbors(arp, ip)
	switch {
	case neighbors >= 3:
		score += 3
		reasons = append(reasons, "3+ ARP neighbors on subnet")
	case len(arp) == 0:
		score -= 2
		reasons = append(reasons, "empty ARP cache")
	}

	if gateway != "" && hostsGateway(ip, iface.PrefixLen, gateway) {
		score += 3
		reasons = append(reasons, "hosts default gateway")
	}

	if iface.PrefixLen <= 20 {
		score -= 3
		reasons = append(reasons, "broad subnet (/20 or larger)")
	}

	return score, reasons, true
}

func isAPIPA(ip net.IP) bool {
	return ip[0] == 169 && ip[1] == 254
}

func hasIgnoredPrefix(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range ignoredInterfacePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func isVirtualMAC(mac string) bool {
	lower := strings.ToLower(mac)
	for _, p := range virtualMACPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func isRFC1918(ip net.IP) bool {
	switch {
	case ip[0] == 10:
		return true
	case ip[0] == 172 && ip[1] >= 16 && ip[1] <= 31:
		return true
	case ip[0] == 192 && ip[1] == 168:
		return true
	}
	return false
}

// vagrantSpecialCase applies the fixed Vagrant/VirtualBox guest scoring:
// the host-only adapter always wins, the NAT adapter is a distant second,
// and nothing else in a Vagrant guest is worth scanning.
func vagrantSpecialCase(ip net.IP) (applies bool, score int, reason string) {
	if ip[0] == 192 && ip[1] == 168 && ip[2] == 56 {
		return true, 100, "Vagrant Host-Only"
	}
	if ip[0] == 10 && ip[1] == 0 && ip[2] == 2 {
		return true, 80, "Vagrant NAT"
	}
	return false, 0, ""
}

func isPublicWiFi(iface Interface) bool {
	if !iface.IsWiFi {
		return false
	}
	return iface.PrefixLen <= 20 || iface.DNSSuffix == ""
}

func countSameOctetNeighbors(arp []ARPEntry, ifaceIP net.IP) int {
	count := 0
	for _, e := range arp {
		ip := net.ParseIP(e.IP).To4()
		if ip == nil {
			continue
		}
		if ip[0] == ifaceIP[0] {
			count++
		}
	}
	return count
}

func hostsGateway(ip net.IP, prefixLen int, gateway string) bool {
	gw := net.ParseIP(gateway).To4()
	if gw == nil {
		return false
	}
	mask := net.CIDRMask(prefixLen, 32)
	return ip.Mask(mask).Equal(gw.Mask(mask))
}
