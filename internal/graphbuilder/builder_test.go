package graphbuilder

import (
	"testing"
	"time"

	"provenance-scan/internal/domain"
)

func testSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		SnapshotID:  "snap-1",
		CollectedAt: time.Unix(0, 0).UTC(),
		ScannerHost: domain.ScannerHost{
			Hostname:    "scanner01",
			PrimaryIPv4: "192.168.1.5",
			Interfaces: []domain.ScannerInterface{
				{Name: "eth0", IPv4: "192.168.1.5", MAC: "aa:bb:cc:dd:ee:ff", Class: domain.IfacePhysical},
			},
		},
		LocalNetworkDiscovery: map[string]domain.Phase1Result{
			"eth0": {
				Network:         "192.168.1.0/24",
				DiscoveredHosts: []string{"192.168.1.1"},
				Details: map[string]domain.HostDetail{
					"192.168.1.1": {Type: domain.HostTypeGateway, OSHint: domain.OSHintLinux},
				},
			},
		},
		Phase2: map[string]domain.HostRecord{
			"192.168.1.5": {
				SchemaVersion: 1,
				OS:            domain.OSInfo{Hostname: "scanner01", SystemName: "Linux", Release: "6.1", Architecture: "amd64"},
				Hardware:      domain.HardwareInfo{CPUPhysicalCores: 2, MemoryTotalMB: 4096},
				Services: domain.ServicesInfo{
					Processes: []domain.ProcessRecord{
						{PID: 1, PPID: 0, Exe: "/sbin/init", User: "root", Type: domain.ProcessSystem},
						{PID: 100, PPID: 1, Exe: "/usr/sbin/sshd", User: "root", Type: domain.ProcessSystem},
					},
					Listening: []domain.SocketRecord{
						{Proto: "tcp", LocalAddr: "0.0.0.0", LocalPort: 22, Status: "listen", Direction: domain.DirectionListening, Bind: domain.BindAllInterfaces, Exposure: domain.ExposurePublic},
					},
				},
				Network: domain.NetworkInfo{
					Sockets: []domain.SocketRecord{
						{Proto: "tcp", LocalAddr: "0.0.0.0", LocalPort: 22, PID: 100, Status: "listen", Direction: domain.DirectionListening},
						{Proto: "tcp", LocalAddr: "192.168.1.5", LocalPort: 51000, RemoteAddr: "8.8.8.8", RemotePort: 443, PID: 100, Status: "established", Direction: domain.DirectionOutbound},
					},
				},
				Software: domain.SoftwareInfo{
					Packages: []domain.SoftwarePackage{
						{Name: "python3", Version: "3.11.2", Source: "dpkg", Scope: "system", Confidence: domain.ConfidenceHigh},
					},
				},
				Users: domain.UsersInfo{
					Accounts: []domain.AccountRecord{
						{Username: "root", UID: 0, Roles: []domain.AccountRole{domain.RoleRoot, domain.RoleAdmin}, Source: "passwd"},
					},
					Sessions: []domain.SessionRecord{
						{Username: "root", TTY: "tty1", Source: "local", StartedAt: "2026-01-01T00:00:00Z"},
					},
				},
			},
		},
	}
}

func TestBuildProducesScannerHostAndOS(t *testing.T) {
	g := Build(testSnapshot())

	hostID := domain.NodeID(domain.KindHost, "192.168.1.5")
	host, ok := g.Node(hostID)
	if !ok {
		t.Fatalf("expected scanner host node %s", hostID)
	}
	if host.GetString("hostname") != "scanner01" {
		t.Errorf("host hostname = %q", host.GetString("hostname"))
	}

	var sawRunsOS bool
	for _, e := range g.EdgesFrom(hostID) {
		if e.RelType == domain.RelRunsOS {
			sawRunsOS = true
		}
	}
	if !sawRunsOS {
		t.Error("expected a RUNS_OS edge from the scanner host")
	}
}

func TestBuildDeduplicatesHostByIP(t *testing.T) {
	g := Build(testSnapshot())

	// the scanner host appears once via Phase 0 and once via Phase 2;
	// get_or_create_host must merge them into a single Host node.
	hosts := g.NodesByKind(domain.KindHost)
	var matches int
	for _, h := range hosts {
		if h.GetString("ip") == "192.168.1.5" {
			matches++
		}
	}
	if matches != 1 {
		t.Errorf("expected exactly one Host node for 192.168.1.5, found %d", matches)
	}
}

func TestBuildSocketBindsToPortCarriesProcessUser(t *testing.T) {
	g := Build(testSnapshot())

	var foundBindsTo bool
	for _, e := range g.Edges() {
		if e.RelType != domain.RelBindsTo {
			continue
		}
		sock, ok := g.Node(e.From)
		if !ok || sock.Kind != domain.KindSocket {
			t.Fatalf("BINDS_TO edge must originate from a Socket node, got %v", sock)
		}
		if sock.GetString("user") != "root" {
			t.Errorf("socket user = %q, want root (copied from owning process)", sock.GetString("user"))
		}
		foundBindsTo = true
	}
	if !foundBindsTo {
		t.Error("expected at least one BINDS_TO edge")
	}
}

func TestBuildMetricsNodeAttached(t *testing.T) {
	g := Build(testSnapshot())

	snapID := domain.NodeID(domain.KindSnapshot, "snap-1")
	var sawMetrics bool
	for _, e := range g.EdgesFrom(snapID) {
		if e.RelType == domain.RelHasMetrics {
			sawMetrics = true
			if m, ok := g.Node(e.To); !ok || m.Kind != domain.KindMetrics {
				t.Error("HAS_METRICS edge must point to a Metrics node")
			}
		}
	}
	if !sawMetrics {
		t.Error("expected a HAS_METRICS edge from the snapshot root")
	}
}

func TestNormalizeSoftwareFamilyAppliesAliasesAndStripsVersions(t *testing.T) {
	cases := map[string]string{
		"python3":     "python",
		"nodejs":      "node",
		"nginx-1.18":  "nginx",
		"openjdk-17":  "openjdk",
		"":            "",
		"  Foo-Bar  ": "foo-bar",
	}
	for in, want := range cases {
		if got := normalizeSoftwareFamily(in); got != want {
			t.Errorf("normalizeSoftwareFamily(%q) = %q, want %q", in, got, want)
		}
	}
}
