package extract

import (
	"os"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"provenance-scan/internal/domain"
)

var windowsDefaultRoute = regexp.MustCompile(`^\s*0\.0\.0\.0\s+0\.0\.0\.0`)

// Routing gathers IP forwarding state, the routing table, and NAT rules:
// sysctl/ip route/iptables on Linux, Get-NetIPInterface/route
// print/Get-NetNat on Windows.
func Routing() domain.RoutingInfo {
	info := domain.RoutingInfo{}

	switch runtime.GOOS {
	case "linux":
		linuxRouting(&info)
	case "windows":
		windowsRouting(&info)
	case "darwin":
		darwinRouting(&info)
	}

	return info
}

func linuxRouting(info *domain.RoutingInfo) {
	if data, err := os.ReadFile("/proc/sys/net/ipv4/ip_forward"); err == nil {
		info.IPForwarding = strings.TrimSpace(string(data)) == "1"
	} else if out, err := runCmd("sysctl", quickTimeout, "-n", "net.ipv4.ip_forward"); err == nil {
		info.IPForwarding = strings.TrimSpace(out) == "1"
	} else {
		info.Err = &domain.ExtractorError{Source: "routing.ip_forward", Error: errString(err)}
	}

	out, err := runCmd("ip", quickTimeout, "route")
	if err != nil {
		if info.Err == nil {
			info.Err = &domain.ExtractorError{Source: "routing.routes", Error: errString(err)}
		}
	} else {
		for _, line := range strings.Split(out, "\n") {
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			rec := domain.RouteRecord{Destination: fields[0]}
			for i, f := range fields {
				if f == "via" && i+1 < len(fields) {
					rec.Gateway = fields[i+1]
				}
				if f == "dev" && i+1 < len(fields) {
					rec.Interface = fields[i+1]
				}
			}
			info.Routes = append(info.Routes, rec)
		}
	}

	if hasCommand("iptables") {
		if rules, err := runCmd("iptables", quickTimeout, "-t", "nat", "-L", "-n"); err == nil {
			for _, line := range strings.Split(rules, "\n") {
				line = strings.TrimSpace(line)
				if line != "" {
					info.NATRules = append(info.NATRules, line)
				}
			}
		}
	}
}

func windowsRouting(info *domain.RoutingInfo) {
	out, err := runCmd("powershell", quickTimeout, "-NoProfile", "-Command",
		"(Get-NetIPInterface | Where-Object Forwarding -eq 'Enabled').Count")
	if err == nil {
		if n, convErr := strconv.Atoi(strings.TrimSpace(out)); convErr == nil {
			info.IPForwarding = n > 0
		}
	} else {
		info.Err = &domain.ExtractorError{Source: "routing.ip_forward", Error: errString(err)}
	}

	routeOut, err := runCmd("route", quickTimeout, "print")
	if err == nil {
		for _, line := range strings.Split(routeOut, "\n") {
			if windowsDefaultRoute.MatchString(line) {
				fields := strings.Fields(line)
				if len(fields) >= 3 {
					info.Routes = append(info.Routes, domain.RouteRecord{
						Destination: fields[0],
						Gateway:     fields[2],
					})
				}
			}
		}
	}

	if natOut, err := runCmd("powershell", quickTimeout, "-NoProfile", "-Command", "Get-NetNat | Format-List"); err == nil {
		for _, line := range strings.Split(natOut, "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				info.NATRules = append(info.NATRules, line)
			}
		}
	}
}

func darwinRouting(info *domain.RoutingInfo) {
	out, err := runCmd("sysctl", quickTimeout, "-n", "net.inet.ip.forwarding")
	if err != nil {
		info.Err = &domain.ExtractorError{Source: "routing.ip_forward", Error: errString(err)}
		return
	}
	info.IPForwarding = strings.TrimSpace(out) == "1"

	if routeOut, err := runCmd("netstat", quickTimeout, "-nr", "-f", "inet"); err == nil {
		for _, line := range strings.Split(routeOut, "\n") {
			if strings.HasPrefix(line, "default") {
				fields := strings.Fields(line)
				if len(fields) >= 2 {
					info.Routes = append(info.Routes, domain.RouteRecord{
						Destination: "default",
						Gateway:     fields[1],
					})
				}
			}
		}
	}
}
