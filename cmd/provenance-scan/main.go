// Command provenance-scan is the scanner's single entrypoint: Phase 0
// self-discovery, Phase 1 local network discovery, optional Phase 2 remote
// extraction, graph construction, and an optional push to a local SQLite
// sink, a remote Neo4j instance, and a read-only HTTP status surface.
//
// No flags are required for a default run; every flag has a working
// default so `provenance-scan` alone produces a snapshot.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"provenance-scan/internal/codec"
	"provenance-scan/internal/config"
	"provenance-scan/internal/core/bootstrap"
	"provenance-scan/internal/discovery/ifaceselect"
	"provenance-scan/internal/discovery/phase1"
	"provenance-scan/internal/discovery/phase2"
	"provenance-scan/internal/domain"
	"provenance-scan/internal/graphbuilder"
	"provenance-scan/internal/handler"
	"provenance-scan/internal/hub"
	"provenance-scan/internal/sink"
	"provenance-scan/internal/snapshot"
	"provenance-scan/internal/topology"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	var (
		configPath  = flag.String("config", "", "path to scan config YAML (default: auto-discovered)")
		dataDir     = flag.String("data-dir", "", "override the config's persisted-state directory")
		listen      = flag.String("listen", "", "address for the local HTTP status surface, e.g. :8090 (disabled if empty)")
		modeFlag    = flag.String("mode", "", "override the bootstrap-recommended mode: local_only or full")
		agentBinary = flag.String("agent-binary", "./provenance-agent", "path to the compiled remote agent binary")
		sshUser     = flag.String("ssh-user", "", "SSH username for Phase 2 extraction")
		sshKeyPath  = flag.String("ssh-key", "", "SSH private key path for Phase 2 extraction")
	)
	flag.Parse()

	if code := run(*configPath, *dataDir, *listen, *modeFlag, *agentBinary, *sshUser, *sshKeyPath); code != 0 {
		os.Exit(code)
	}
}

func run(configPath, dataDirOverride, listen, modeOverride, agentBinary, sshUser, sshKeyPath string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	events := hub.New()
	go events.Run()

	cfg, path, err := loadConfig(configPath)
	if err != nil {
		log.Printf("Config: %v, falling back to defaults", err)
		cfg = config.DefaultConfig()
	}
	if path != "" {
		log.Printf("Config: loaded %s", path)
	} else {
		log.Printf("Config: no config file found, using defaults")
	}
	if dataDirOverride != "" {
		cfg.DataDir = dataDirOverride
	}
	applyEnvOverrides(cfg)
	if modeOverride != "" {
		m := config.ParseMode(modeOverride)
		cfg.Mode = &m
	}
	if incompleteGraphSinkCredentials() {
		log.Printf("Sink: NEO4J_URI/NEO4J_USER/NEO4J_PASSWORD partially set -- refusing to start with incomplete credentials")
		return 1
	}

	events.Broadcast(hub.PhaseEvent{Phase: "phase0", Message: "self-discovery starting"})
	var bootResult *bootstrap.Result
	if cfg.NeedsBootstrap() {
		bootResult, err = bootstrap.Run(ctx)
		if err != nil {
			log.Printf("Bootstrap: %v", err)
			events.Broadcast(hub.PhaseEvent{Phase: "phase0", Message: "self-discovery failed: " + err.Error()})
			return 1
		}
		cfg.SetBootstrapResult(bootResult.ToConfigBootstrap())
	}
	log.Printf("Config: %s", cfg.Summary())
	if err := codec.WriteLabeled(cfg.DataDir, "phase0", time.Now(), cfg.Bootstrap); err != nil {
		log.Printf("Phase0: persist: %v", err)
	}
	events.Broadcast(hub.PhaseEvent{Phase: "phase0", Message: "self-discovery complete: " + cfg.Summary()})

	scannerHost, ifaces, arpEntries, inVM := buildScannerHost(cfg, bootResult)
	if scannerHost.Hostname == "" {
		scannerHost.Hostname = "unknown-host"
	}

	candidates := ifaceselect.Select(ifaces, arpEntries, scannerHost.DefaultGateway, inVM)
	if len(candidates) == 0 {
		log.Printf("Phase0: no suitable scanning interface found")
		return 1
	}
	winner := candidates[0]
	reason := strings.Join(winner.Reasons, "; ")
	log.Printf("Phase0: selected interface %s (score %d, %s)", winner.Interface.Name, winner.Score, reason)
	scannerHost.PrimaryIPv4 = winner.Interface.IP
	scannerHost.PrimaryNetmask = netmaskFromPrefix(winner.Interface.PrefixLen)

	rawPhase1 := make(map[string]domain.Phase1Result, len(ifaces))
	var winningResult *phase1.Result
	wp := cfg.EffectiveWorkerProfile()

	events.Broadcast(hub.PhaseEvent{Phase: "phase1", Message: fmt.Sprintf("scanning %d interface(s)", len(candidates))})
	for _, c := range candidates {
		netmask := netmaskFromPrefix(c.Interface.PrefixLen)
		log.Printf("Phase1: scanning %s (%s/%d)", c.Interface.Name, c.Interface.IP, c.Interface.PrefixLen)
		result, err := phase1.Run(ctx, c.Interface.IP, netmask, phase1.Options{
			Methods:  cfg.ProbeMethods,
			Gateway:  scannerHost.DefaultGateway,
			Worker:   wp,
			MaxHosts: cfg.MaxHosts,
		})
		if err != nil {
			log.Printf("Phase1: %s: %v", c.Interface.Name, err)
			continue
		}
		log.Printf("Phase1: %s found %d hosts on %s", c.Interface.Name, len(result.DiscoveredHosts), result.Network)
		events.Broadcast(hub.PhaseEvent{Phase: "phase1", Message: fmt.Sprintf("%s: found %d hosts on %s", c.Interface.Name, len(result.DiscoveredHosts), result.Network), HostCount: len(result.DiscoveredHosts)})
		rawPhase1[c.Interface.Name] = result.ToDomain()
		if c.Interface.Name == winner.Interface.Name {
			winningResult = result
		}
	}
	if err := codec.WriteLabeled(cfg.DataDir, "phase1", time.Now(), &rawPhase1); err != nil {
		log.Printf("Phase1: persist: %v", err)
	}

	var phase2Results []phase2.TargetResult
	if cfg.EffectiveMode() == config.ModeFull && winningResult != nil {
		targets := phase2.SelectTargets(phase2.SelectionInput{
			Phase1Result:    winningResult,
			InterfaceReason: reason,
			ScannerIPs:      localIPs(ifaces),
			ScannerHostname: scannerHost.Hostname,
		})
		if len(targets) == 0 {
			log.Printf("Phase2: no eligible targets")
			events.Broadcast(hub.PhaseEvent{Phase: "phase2_distributed", Message: "no eligible targets"})
		} else {
			log.Printf("Phase2: extracting from %d target(s)", len(targets))
			events.Broadcast(hub.PhaseEvent{Phase: "phase2_distributed", Message: fmt.Sprintf("extracting from %d target(s)", len(targets)), HostCount: len(targets)})
			creds := phase2.Credentials{
				SSHUser:       firstNonEmpty(sshUser, cfg.SSH.User),
				SSHKeyPath:    firstNonEmpty(sshKeyPath, cfg.SSH.KeyPath),
				SSHPassword:   cfg.SSH.Password,
				SSHPort:       cfg.SSH.Port,
				WinRMUser:     cfg.WinRM.User,
				WinRMPassword: cfg.WinRM.Password,
				WinRMPort:     cfg.WinRM.Port,
				WinRMHTTPS:    cfg.WinRM.UseHTTPS,
			}
			collectDir := cfg.DataDir + "/phase2"
			phase2Results = phase2.Run(ctx, targets, creds, agentBinary, collectDir)
			for _, r := range phase2Results {
				if r.Err != nil {
					log.Printf("Phase2: %s: %v", r.IP, r.Err)
				}
			}
			events.Broadcast(hub.PhaseEvent{Phase: "phase2_distributed", Message: "extraction complete", HostCount: len(phase2Results)})
		}
	} else if cfg.EffectiveMode() == config.ModeFull {
		log.Printf("Phase2: skipped (winning interface produced no Phase 1 result)")
		events.Broadcast(hub.PhaseEvent{Phase: "phase2_distributed", Message: "skipped: winning interface produced no Phase 1 result"})
	} else {
		log.Printf("Phase2: skipped (mode=%s)", cfg.EffectiveMode())
		events.Broadcast(hub.PhaseEvent{Phase: "phase2_distributed", Message: "skipped: mode=" + string(cfg.EffectiveMode())})
	}

	phase2Map := make(map[string]domain.HostRecord, len(phase2Results))
	for _, r := range phase2Results {
		if r.HostRecord != nil {
			phase2Map[r.IP] = *r.HostRecord
		}
	}
	if err := codec.WriteLabeled(cfg.DataDir, "phase2_distributed", time.Now(), &phase2Map); err != nil {
		log.Printf("Phase2: persist: %v", err)
	}

	snap, raw := snapshot.Build(scannerHost, rawPhase1, phase2Results)
	log.Printf("Snapshot: built %s (%d phase1 interfaces, %d phase2 hosts)", snap.SnapshotID, len(snap.LocalNetworkDiscovery), len(snap.Phase2))
	events.Broadcast(hub.PhaseEvent{Phase: "snapshot", Message: fmt.Sprintf("built %s", snap.SnapshotID)})

	snapDir := cfg.DataDir + "/" + snap.SnapshotID
	if err := snapshot.Persist(snapDir, snap, raw); err != nil {
		log.Printf("Snapshot: persist: %v", err)
	}

	topo := buildTopology(cfg, scannerHost, rawPhase1, phase2Map)
	log.Printf("Topology: inferred system type=%s provider=%s with %d node(s)", topo.System.Type, topo.System.Provider.Name, len(topo.Nodes))
	events.Broadcast(hub.PhaseEvent{Phase: "system_construction", Message: fmt.Sprintf("inferred %s/%s topology", topo.System.Type, topo.System.Provider.Name), HostCount: len(topo.Nodes)})
	if err := codec.WriteLabeled(cfg.DataDir, "system_construction", time.Now(), &topo); err != nil {
		log.Printf("Topology: persist: %v", err)
	}

	g := graphbuilder.Build(snap)
	log.Printf("GraphBuilder: built graph with %d nodes, %d edges", len(g.Nodes()), len(g.Edges()))
	events.Broadcast(hub.PhaseEvent{Phase: "graph", Message: fmt.Sprintf("built graph with %d nodes, %d edges", len(g.Nodes()), len(g.Edges()))})

	sinks, sqliteSink := openSinks(ctx, cfg)
	for _, s := range sinks {
		if err := s.Push(ctx, snap, g); err != nil {
			log.Printf("Sink: push failed: %v", err)
		}
	}
	defer func() {
		for _, s := range sinks {
			s.Close()
		}
	}()

	if listen == "" {
		listen = cfg.Listen
	}
	if listen != "" && sqliteSink != nil {
		serveStatus(ctx, listen, sqliteSink, events)
	}

	return 0
}

// buildTopology assembles the topology package's Input from whatever
// bootstrap evidence is available: a freshly loaded or cached
// config.BootstrapResult always carries environment/cloud-provider fields,
// so the topology builder never needs the raw EvidenceSet directly.
func buildTopology(cfg *config.Config, scannerHost domain.ScannerHost, rawPhase1 map[string]domain.Phase1Result, phase2Map map[string]domain.HostRecord) topology.Topology {
	in := topology.Input{
		ScannerHost: scannerHost,
		Phase1:      rawPhase1,
		Phase2:      phase2Map,
	}
	if cfg.Bootstrap != nil {
		in.EnvironmentType = cfg.Bootstrap.Environment.Type
		in.EnvConfidence = cfg.Bootstrap.Environment.Confidence
		in.CloudProvider = cfg.Bootstrap.Environment.CloudProvider
		in.CloudConfidence = cfg.Bootstrap.Environment.Confidence
	}
	return topology.Build(in)
}

// incompleteGraphSinkCredentials reports whether exactly one or two of the
// three NEO4J_* environment variables are set -- a partial credential set
// is an operator mistake, not a signal to silently disable the remote
// Graph Sink, so refusing to start is preferable to a scan that quietly
// never pushes.
func incompleteGraphSinkCredentials() bool {
	set := 0
	for _, v := range []string{"NEO4J_URI", "NEO4J_USER", "NEO4J_PASSWORD"} {
		if os.Getenv(v) != "" {
			set++
		}
	}
	return set > 0 && set < 3
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("PROVENANCE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PROVENANCE_PROBE_METHODS"); v != "" {
		cfg.ProbeMethods = strings.Split(v, ",")
	}
	if v := os.Getenv("PROVENANCE_MAX_HOSTS"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			cfg.MaxHosts = n
		}
	}
	cfg.Neo4j.URI = os.Getenv("NEO4J_URI")
	cfg.Neo4j.User = os.Getenv("NEO4J_USER")
	cfg.Neo4j.Password = os.Getenv("NEO4J_PASSWORD")
	cfg.Neo4j.Enabled = cfg.Neo4j.URI != "" && cfg.Neo4j.User != "" && cfg.Neo4j.Password != ""
}

// buildScannerHost converts bootstrap evidence into a domain.ScannerHost
// plus the ifaceselect.Interface/ARPEntry views the interface selector
// needs. Bootstrap only ever surfaces interfaces net.Interfaces() already
// filtered down to non-loopback, non-virtual adapters, so every one of
// them is classified as physical here.
func buildScannerHost(cfg *config.Config, bootResult *bootstrap.Result) (domain.ScannerHost, []ifaceselect.Interface, []ifaceselect.ARPEntry, bool) {
	host := domain.ScannerHost{}
	var selIfaces []ifaceselect.Interface
	var scanIfaces []domain.ScannerInterface
	inVM := false

	if bootResult != nil {
		es := bootResult.Evidence
		envType, _, _ := es.BestValue(bootstrap.CategoryEnvironment, "environment_type")
		inVM = envType == string(bootstrap.EnvTypeVM)

		for _, e := range es.ByProperty(bootstrap.CategoryNetwork, "interface") {
			raw := e.Raw
			if raw == nil {
				continue
			}
			name, _ := raw["name"].(string)
			ip, _ := raw["ip"].(string)
			mac, _ := raw["mac"].(string)
			maskBits, _ := raw["mask_bits"].(int)
			if name == "" || ip == "" {
				continue
			}
			selIfaces = append(selIfaces, ifaceselect.Interface{
				Name:      name,
				MAC:       mac,
				IP:        ip,
				PrefixLen: maskBits,
			})
			scanIfaces = append(scanIfaces, domain.ScannerInterface{
				Name:    name,
				IPv4:    ip,
				Netmask: netmaskFromPrefix(maskBits),
				MAC:     mac,
				Class:   domain.IfacePhysical,
			})
		}
	}

	if cfg.Bootstrap != nil {
		host.Hostname = cfg.Bootstrap.Network.Hostname
		host.DefaultGateway = cfg.Bootstrap.Network.Gateway
		host.DNSServers = cfg.Bootstrap.Network.DNSServers
	}
	if host.Hostname == "" || host.Hostname == "unknown" {
		if name, err := os.Hostname(); err == nil {
			host.Hostname = name
		}
	}
	host.Interfaces = scanIfaces

	arp := phase1.ReadARPCache()
	selARP := make([]ifaceselect.ARPEntry, 0, len(arp))
	domainARP := make([]domain.ARPEntry, 0, len(arp))
	for _, e := range arp {
		selARP = append(selARP, ifaceselect.ARPEntry{IP: e.IP, MAC: e.MAC})
		domainARP = append(domainARP, domain.ARPEntry{IP: e.IP, MAC: e.MAC})
	}
	host.ARPCache = domainARP

	return host, selIfaces, selARP, inVM
}

func netmaskFromPrefix(prefixLen int) string {
	if prefixLen <= 0 || prefixLen > 32 {
		return ""
	}
	mask := net.CIDRMask(prefixLen, 32)
	return net.IP(mask).String()
}

func localIPs(ifaces []ifaceselect.Interface) []string {
	ips := make([]string, 0, len(ifaces))
	for _, i := range ifaces {
		if i.IP != "" {
			ips = append(ips, i.IP)
		}
	}
	return ips
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// openSinks opens the configured persistence sinks. The SQLite sink, when
// enabled, is also returned directly so it can back the HTTP status
// surface's read-only query API.
func openSinks(ctx context.Context, cfg *config.Config) ([]sink.Sink, *sink.SQLiteSink) {
	var sinks []sink.Sink
	var sqliteSink *sink.SQLiteSink

	if cfg.SQLite.Enabled {
		s, err := sink.OpenSQLiteSink(cfg.SQLite.Path)
		if err != nil {
			log.Printf("Sink: sqlite: %v", err)
		} else {
			sinks = append(sinks, s)
			sqliteSink = s
		}
	}

	if cfg.Neo4j.Enabled {
		s, err := sink.NewNeo4jSink(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password, false)
		if err != nil {
			log.Printf("Sink: neo4j: %v", err)
		} else {
			sinks = append(sinks, s)
		}
	}

	return sinks, sqliteSink
}

// serveStatus runs the read-only HTTP status surface until ctx is
// cancelled, shutting down gracefully on the signal context. h is the Hub
// already running for this scan's phase-progress broadcasts; the HTTP
// surface only adds the SSE transport for it, it doesn't own its lifecycle.
func serveStatus(ctx context.Context, addr string, store *sink.SQLiteSink, h *hub.Hub) {
	statusHandler := handler.NewStatusHandler(store)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/snapshots", statusHandler.ListSnapshots)
	mux.HandleFunc("/api/snapshots/", statusHandler.GetSnapshotGraph)
	mux.HandleFunc("/api/events", h.ServeHTTP)

	finalHandler := handler.Chain(mux, handler.Recover, handler.CORS, handler.Logger)

	server := &http.Server{Addr: addr, Handler: finalHandler}

	go func() {
		log.Printf("Status: listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Status: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Status: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Status: shutdown: %v", err)
	}
}
