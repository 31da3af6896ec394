package snapshot

import (
	"testing"

	"provenance-scan/internal/discovery/phase2"
	"provenance-scan/internal/domain"
)

func TestBuildCollapsesNAT(t *testing.T) {
	rawPhase1 := map[string]domain.Phase1Result{
		"eth0": {
			Network:         "192.168.1.0/24",
			DiscoveredHosts: []string{"192.168.1.10", "192.168.1.1"},
			Details: map[string]domain.HostDetail{
				"192.168.1.10": {Type: domain.HostTypeUnknown},
				"192.168.1.1":  {Type: domain.HostTypeGateway},
			},
		},
		"nat0": {
			Network:         "10.0.2.0/24",
			DiscoveredHosts: []string{"10.0.2.2", "10.0.2.15"},
			Details: map[string]domain.HostDetail{
				"10.0.2.2":  {Type: domain.HostTypeGateway},
				"10.0.2.15": {Type: domain.HostTypeUnknown},
			},
		},
	}

	snap, raw := Build(domain.ScannerHost{Hostname: "scanner"}, rawPhase1, nil)

	if snap.Infrastructure == nil || snap.Infrastructure.NAT == nil {
		t.Fatal("expected infrastructure.nat to be populated")
	}
	if !snap.Infrastructure.NAT.Present {
		t.Error("expected nat.present = true")
	}
	if snap.Infrastructure.NAT.CIDR != natCIDR {
		t.Errorf("nat.cidr = %q, want %q", snap.Infrastructure.NAT.CIDR, natCIDR)
	}
	if snap.Infrastructure.NAT.Gateway != natGatewayIP {
		t.Errorf("nat.gateway = %q, want %q", snap.Infrastructure.NAT.Gateway, natGatewayIP)
	}
	if _, ok := snap.LocalNetworkDiscovery["nat0"]; ok {
		t.Error("pure-NAT interface result should be dropped from the cleaned map")
	}
	eth0 := snap.LocalNetworkDiscovery["eth0"]
	if len(eth0.DiscoveredHosts) != 2 {
		t.Errorf("eth0 hosts = %v, want 2 untouched entries", eth0.DiscoveredHosts)
	}

	if len(raw) != 2 {
		t.Errorf("raw map should retain both interfaces uncollapsed, got %d", len(raw))
	}
}

func TestBuildNoNAT(t *testing.T) {
	rawPhase1 := map[string]domain.Phase1Result{
		"eth0": {
			Network:         "192.168.1.0/24",
			DiscoveredHosts: []string{"192.168.1.10"},
			Details:         map[string]domain.HostDetail{"192.168.1.10": {Type: domain.HostTypeUnknown}},
		},
	}
	snap, _ := Build(domain.ScannerHost{}, rawPhase1, nil)
	if snap.Infrastructure != nil {
		t.Error("expected no infrastructure note when no NAT network is present")
	}
}

func TestBuildPhase2Map(t *testing.T) {
	results := []phase2.TargetResult{
		{IP: "192.168.56.10", HostRecord: &domain.HostRecord{SchemaVersion: 1}},
		{IP: "192.168.56.11", Err: nil},
	}
	snap, _ := Build(domain.ScannerHost{}, nil, results)
	if len(snap.Phase2) != 1 {
		t.Errorf("expected only the target with a populated HostRecord, got %d entries", len(snap.Phase2))
	}
	if _, ok := snap.Phase2["192.168.56.10"]; !ok {
		t.Error("missing expected phase2 host record")
	}
}
