package extract

import (
	"strings"

	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"provenance-scan/internal/domain"
)

// Network gathers interfaces and sockets: gopsutil's net.Interfaces for
// interfaces and net.Connections("inet") for sockets on every platform,
// each socket normalized through the same bind/exposure/direction
// classification.
func Network() domain.NetworkInfo {
	info := domain.NetworkInfo{}

	ifaces, err := gnet.Interfaces()
	if err != nil {
		info.Err = &domain.ExtractorError{Source: "network.interfaces", Error: errString(err)}
	} else {
		for _, iface := range ifaces {
			hi := domain.HostInterface{Name: iface.Name, MAC: iface.HardwareAddr}
			for _, addr := range iface.Addrs {
				family := "ipv4"
				if strings.Contains(addr.Addr, ":") {
					family = "ipv6"
				}
				ip := addr.Addr
				if idx := strings.Index(ip, "/"); idx >= 0 {
					ip = ip[:idx]
				}
				hi.Addrs = append(hi.Addrs, domain.IfaceAddr{Address: ip, Family: family})
			}
			info.Interfaces = append(info.Interfaces, hi)
		}
	}

	conns, err := gnet.Connections("inet")
	if err != nil {
		if info.Err == nil {
			info.Err = &domain.ExtractorError{Source: "network.connections", Error: errString(err)}
		}
		return info
	}

	procCache := make(map[int32]*process.Process)
	for _, c := range conns {
		rec := normalizeConnection(c, procCache)
		info.Sockets = append(info.Sockets, rec)
	}

	return info
}

func normalizeConnection(c gnet.ConnectionStat, procCache map[int32]*process.Process) domain.SocketRecord {
	proto := "tcp"
	if c.Type == 2 { // syscall.SOCK_DGRAM
		proto = "udp"
	}

	rec := domain.SocketRecord{
		Proto:      proto,
		LocalAddr:  c.Laddr.IP,
		LocalPort:  int(c.Laddr.Port),
		RemoteAddr: c.Raddr.IP,
		RemotePort: int(c.Raddr.Port),
		Status:     strings.ToLower(c.Status),
	}
	if rec.Status == "" {
		rec.Status = "unknown"
	}

	rec.Direction = inferDirection(c)
	rec.Bind, rec.Exposure = classifyBind(c.Laddr.IP)

	if c.Pid > 0 {
		proc, ok := procCache[c.Pid]
		if !ok {
			proc, _ = process.NewProcess(c.Pid)
			procCache[c.Pid] = proc
		}
		if proc != nil {
			rec.PID = int(c.Pid)
			if name, err := proc.Name(); err == nil {
				rec.ProcessName = name
			}
			if exe, err := proc.Exe(); err == nil {
				rec.ProcessExe = exe
			}
			if user, err := proc.Username(); err == nil {
				rec.ProcessUser = user
			}
		}
	}

	rec.NATSuspected = natSuspected(rec)

	return rec
}

// inferDirection mirrors infer_direction: a listening status wins outright;
// otherwise a non-empty, non-wildcard remote address means outbound.
func inferDirection(c gnet.ConnectionStat) domain.SocketDirection {
	if strings.EqualFold(c.Status, "LISTEN") {
		return domain.DirectionListening
	}
	if c.Raddr.IP != "" && c.Raddr.IP != "0.0.0.0" && c.Raddr.IP != "::" && c.Raddr.Port != 0 {
		return domain.DirectionOutbound
	}
	return domain.DirectionUnknown
}

// classifyBind mirrors normalize_laddr: 0.0.0.0/:: binds every interface
// (public exposure), 127.0.0.1/::1 is loopback-only (local exposure),
// anything else is a specific address (internal exposure).
func classifyBind(laddr string) (domain.BindClass, domain.Exposure) {
	switch laddr {
	case "0.0.0.0", "::":
		return domain.BindAllInterfaces, domain.ExposurePublic
	case "127.0.0.1", "::1":
		return domain.BindLoopback, domain.ExposureLocal
	default:
		if strings.HasPrefix(laddr, "127.") {
			return domain.BindLoopback, domain.ExposureLocal
		}
		return domain.BindSpecific, domain.ExposureInternal
	}
}

// isPrivateIP checks only the 10., 172., and 192.168. prefixes --
// notably not the full RFC1918 172.16.0.0/12 range restriction. Kept
// loose deliberately: the graph builder's nat_suspected semantics depend
// on this exact definition.
func isPrivateIP(ip string) bool {
	return strings.HasPrefix(ip, "10.") ||
		strings.HasPrefix(ip, "192.168.") ||
		strings.HasPrefix(ip, "172.")
}

// natSuspected flags an outbound socket bound to a private local address
// but talking to a non-private remote address -- it looks like it's
// behind a NAT gateway translating it.
func natSuspected(rec domain.SocketRecord) bool {
	if rec.Direction != domain.DirectionOutbound {
		return false
	}
	if rec.RemoteAddr == "" {
		return false
	}
	return isPrivateIP(rec.LocalAddr) && !isPrivateIP(rec.RemoteAddr)
}
