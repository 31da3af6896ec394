package extract

import (
	"testing"

	gnet "github.com/shirou/gopsutil/v3/net"

	"provenance-scan/internal/domain"
)

func TestClassifyBind(t *testing.T) {
	cases := []struct {
		laddr    string
		wantBind domain.BindClass
		wantExp  domain.Exposure
	}{
		{"0.0.0.0", domain.BindAllInterfaces, domain.ExposurePublic},
		{"::", domain.BindAllInterfaces, domain.ExposurePublic},
		{"127.0.0.1", domain.BindLoopback, domain.ExposureLocal},
		{"::1", domain.BindLoopback, domain.ExposureLocal},
		{"127.0.0.5", domain.BindLoopback, domain.ExposureLocal},
		{"192.168.1.10", domain.BindSpecific, domain.ExposureInternal},
	}
	for _, c := range cases {
		bind, exp := classifyBind(c.laddr)
		if bind != c.wantBind || exp != c.wantExp {
			t.Errorf("classifyBind(%q) = (%v, %v), want (%v, %v)", c.laddr, bind, exp, c.wantBind, c.wantExp)
		}
	}
}

func TestIsPrivateIP(t *testing.T) {
	cases := map[string]bool{
		"10.0.0.5":      true,
		"192.168.1.1":   true,
		"172.31.0.1":    true,
		"172.200.0.1":   true, // original's loose check: any 172.* counts
		"8.8.8.8":       false,
		"203.0.113.5":   false,
	}
	for ip, want := range cases {
		if got := isPrivateIP(ip); got != want {
			t.Errorf("isPrivateIP(%q) = %v, want %v", ip, got, want)
		}
	}
}

func TestInferDirection(t *testing.T) {
	listening := gnet.ConnectionStat{Status: "LISTEN"}
	if got := inferDirection(listening); got != domain.DirectionListening {
		t.Errorf("listening status = %v, want listening", got)
	}

	outbound := gnet.ConnectionStat{Status: "ESTABLISHED", Raddr: gnet.Addr{IP: "93.184.216.34", Port: 443}}
	if got := inferDirection(outbound); got != domain.DirectionOutbound {
		t.Errorf("outbound conn = %v, want outbound", got)
	}

	unknown := gnet.ConnectionStat{Status: "CLOSE", Raddr: gnet.Addr{IP: "0.0.0.0", Port: 0}}
	if got := inferDirection(unknown); got != domain.DirectionUnknown {
		t.Errorf("wildcard raddr = %v, want unknown", got)
	}
}

func TestNATSuspected(t *testing.T) {
	rec := domain.SocketRecord{
		Direction:  domain.DirectionOutbound,
		LocalAddr:  "192.168.1.50",
		RemoteAddr: "8.8.8.8",
	}
	if !natSuspected(rec) {
		t.Error("private local + public remote outbound should be NAT-suspected")
	}

	rec.RemoteAddr = "192.168.1.1"
	if natSuspected(rec) {
		t.Error("private local + private remote should not be NAT-suspected")
	}

	rec.Direction = domain.DirectionListening
	rec.RemoteAddr = "8.8.8.8"
	if natSuspected(rec) {
		t.Error("listening sockets are never NAT-suspected")
	}
}
