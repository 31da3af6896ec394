// Package graphbuilder consumes a Snapshot and produces the in-memory
// provenance multigraph: stable identity-keyed nodes, de-duplicated
// edges, and a final Metrics node.
//
// Construction follows a fixed build/add_phase0/add_phase1/
// add_phase2_per_host order with a get_or_create_host merge policy, over
// this module's own arena-style domain.Graph, with the fuller edge
// vocabulary and node kinds this data model adds (OSFamily/OSInstance,
// SoftwareFamily/SoftwareInstance, Session, Role, Group).
package graphbuilder

import (
	"fmt"
	"sort"
	"strings"

	"provenance-scan/internal/domain"
)

// Builder accumulates one snapshot's worth of graph construction. It is
// not safe for concurrent use -- the graph is mutated only by the Graph
// Builder, from a single task.
type Builder struct {
	g             *domain.Graph
	scannerHostID string

	hostByIP       map[string]string
	hostByHostname map[string]string
}

// New creates an empty Builder.
func New() *Builder {
	return &Builder{
		g:              domain.NewGraph(),
		hostByIP:       make(map[string]string),
		hostByHostname: make(map[string]string),
	}
}

// Build runs the full construction order over one snapshot and returns
// the finished graph with its Metrics node attached.
func Build(snap *domain.Snapshot) *domain.Graph {
	b := New()
	b.build(snap)
	return b.g
}

func (b *Builder) build(snap *domain.Snapshot) {
	snapID := domain.NodeID(domain.KindSnapshot, snap.SnapshotID)
	snapNode := domain.NewNode(domain.KindSnapshot, snap.SnapshotID, "Snapshot")
	snapNode.Set("collected_at", snap.CollectedAt.Format("2006-01-02T15:04:05Z07:00"))
	b.g.UpsertNode(snapNode)

	scanner := snap.ScannerHost
	scannerIP := scanner.PrimaryIPv4
	scannerHost := b.getOrCreateHost(scannerIP, scanner.Hostname, "scanner")
	scannerHost.Set("is_scanner", true)
	scannerHost.Set("domain", scanner.Domain)
	b.scannerHostID = scannerHost.ID

	b.g.AddEdge(domain.NewEdge(snapID, scannerHost.ID, domain.RelOnHost))

	b.addPhase0(scanner)
	b.addPhase1(snap.LocalNetworkDiscovery)
	b.addPhase2(snap.Phase2)

	metrics := domain.ComputeMetrics(b.g)
	metricsNode := domain.NewNode(domain.KindMetrics, snap.SnapshotID, "Metrics")
	metricsNode.Set("total_nodes", metrics.TotalNodes)
	metricsNode.Set("total_edges", metrics.TotalEdges)
	metricsNode.Set("ports_total", metrics.PortsTotal)
	metricsNode.Set("public_ports", metrics.PublicPorts)
	metricsNode.Set("local_ports", metrics.LocalPorts)
	metricsNode.Set("internal_ports", metrics.InternalPorts)
	metricsNode.Set("public_exposure_ratio", metrics.PublicExposureRatio)
	metricsNode.Set("processes_total", metrics.ProcessesTotal)
	metricsNode.Set("system_processes", metrics.SystemProcesses)
	metricsNode.Set("process_density", metrics.ProcessDensity)
	metricsNode.Set("ports_with_pid", metrics.PortsWithPID)
	metricsNode.Set("pid_coverage", metrics.PIDCoverage)
	metricsNode.Set("attribution_confidence", metrics.AttributionConfidence)
	metricsNode.Set("privileged_public_listeners", metrics.PrivilegedPublicListeners)
	metricsNode.Set("attack_surface_entropy", metrics.AttackSurfaceEntropy)
	b.g.UpsertNode(metricsNode)
	b.g.AddEdge(domain.NewEdge(snapID, metricsNode.ID, domain.RelHasMetrics))
}

// getOrCreateHost implements the merge policy: look up by IP, then
// hostname, never duplicate.
func (b *Builder) getOrCreateHost(ip, hostname, role string) *domain.Node {
	if ip != "" {
		if id, ok := b.hostByIP[ip]; ok {
			if n, ok := b.g.Node(id); ok {
				return n
			}
		}
	}
	if hostname != "" {
		if id, ok := b.hostByHostname[hostname]; ok {
			if n, ok := b.g.Node(id); ok {
				return n
			}
		}
	}

	key := ip
	if key == "" {
		key = hostname
	}
	n := domain.NewNode(domain.KindHost, key, "Host")
	n.Set("ip", ip)
	n.Set("hostname", hostname)
	n.Set("role", role)
	b.g.UpsertNode(n)

	if ip != "" {
		b.hostByIP[ip] = n.ID
	}
	if hostname != "" {
		b.hostByHostname[hostname] = n.ID
	}
	return n
}

func (b *Builder) addIP(address string) *domain.Node {
	n := domain.NewNode(domain.KindIP, address, "IP")
	n.Set("address", address)
	return b.g.UpsertNode(n)
}

// addPhase0 attaches the scanner's own interfaces and their IPs, both to
// the interface node and directly to the host.
func (b *Builder) addPhase0(scanner domain.ScannerHost) {
	host := b.scannerHostID
	for _, iface := range scanner.Interfaces {
		ifaceNode := domain.NewNode(domain.KindInterface, fmt.Sprintf("%s:%s", host, iface.Name), "Interface")
		ifaceNode.Set("name", iface.Name)
		ifaceNode.Set("mac", iface.MAC)
		ifaceNode.Set("type", string(iface.Class))
		b.g.UpsertNode(ifaceNode)
		b.g.AddEdge(domain.NewEdge(host, ifaceNode.ID, domain.RelHasInterface))

		if iface.IPv4 == "" {
			continue
		}
		ipNode := b.addIP(iface.IPv4)
		b.g.AddEdge(domain.NewEdge(ifaceNode.ID, ipNode.ID, domain.RelHasIP))
		b.g.AddEdge(domain.NewEdge(host, ipNode.ID, domain.RelHasIP))
	}
}

// addPhase1 attaches Network nodes, Discovery provenance, and merges in
// every discovered host.
func (b *Builder) addPhase1(results map[string]domain.Phase1Result) {
	host := b.scannerHostID

	ifaces := make([]string, 0, len(results))
	for iface := range results {
		ifaces = append(ifaces, iface)
	}
	sort.Strings(ifaces)

	for _, iface := range ifaces {
		result := results[iface]
		netNode := domain.NewNode(domain.KindNetwork, result.Network, "Network")
		netNode.Set("cidr", result.Network)
		b.g.UpsertNode(netNode)

		for _, e := range b.g.EdgesFrom(host) {
			if e.RelType != domain.RelHasIP {
				continue
			}
			if ipNode, ok := b.g.Node(e.To); ok && ipNode.Kind == domain.KindIP {
				b.g.AddEdge(domain.NewEdge(ipNode.ID, netNode.ID, domain.RelInNetwork))
			}
		}

		discID := fmt.Sprintf("%s:%s", iface, result.Network)
		discNode := domain.NewNode(domain.KindDiscovery, discID, "Discovery")
		discNode.Set("interface", iface)
		discNode.Set("network", result.Network)
		b.g.UpsertNode(discNode)
		b.g.AddEdge(domain.NewEdge(host, discNode.ID, domain.RelPerformed))
		b.g.AddEdge(domain.NewEdge(discNode.ID, netNode.ID, domain.RelObserved))

		for _, ip := range result.DiscoveredHosts {
			remote := b.getOrCreateHost(ip, "", "discovered")
			ipNode := b.addIP(ip)

			b.g.AddEdge(domain.NewEdge(remote.ID, ipNode.ID, domain.RelHasIP))
			b.g.AddEdge(domain.NewEdge(ipNode.ID, netNode.ID, domain.RelInNetwork))
			b.g.AddEdge(domain.NewEdge(discNode.ID, remote.ID, domain.RelDiscovered))

			if detail, ok := result.Details[ip]; ok {
				remote.Set("os_guess", string(detail.OSHint))
				remote.Set("type_guess", string(detail.Type))
			}
		}
	}
}

func (b *Builder) addPhase2(records map[string]domain.HostRecord) {
	ips := make([]string, 0, len(records))
	for ip := range records {
		ips = append(ips, ip)
	}
	sort.Strings(ips)

	for _, ip := range ips {
		rec := records[ip]
		host := b.getOrCreateHost(ip, rec.OS.Hostname, "")
		b.addPhase2PerHost(host, rec)
	}
}

func (b *Builder) addPhase2PerHost(host *domain.Node, rec domain.HostRecord) {
	b.addOS(host, rec.OS)
	b.addHardware(host, rec.Hardware)

	procIndex := b.addProcesses(host, rec.Services.Processes)
	portIndex := b.addListeningPorts(host, rec.Services.Listening)
	b.linkProcessesToSockets(host, rec.Network.Sockets, procIndex, portIndex)
	b.addSpawnedByEdges(rec.Services.Processes, procIndex)
	b.addInstalledSoftware(host, rec.Software.Packages)
	b.addExecutables(rec.Services.Processes, procIndex)
	userIndex := b.addAccounts(host, rec.Users.Accounts)
	b.addSessions(host, rec.Users.Sessions, userIndex)
	b.attributeProcessesToUsers(rec.Services.Processes, procIndex, userIndex)
}

func (b *Builder) addOS(host *domain.Node, os domain.OSInfo) {
	if os.SystemName == "" {
		return
	}
	familyKey := strings.ToLower(os.SystemName)
	family := domain.NewNode(domain.KindOSFamily, familyKey, "OSFamily")
	family.Set("name", familyKey)
	b.g.UpsertNode(family)

	instKey := fmt.Sprintf("%s:%s:%s", host.ID, os.SystemName, os.Release)
	inst := domain.NewNode(domain.KindOSInstance, instKey, "OSInstance")
	inst.Set("name", os.SystemName)
	inst.Set("version", os.Release)
	inst.Set("arch", os.Architecture)
	inst.Set("hostname", os.Hostname)
	inst.Set("fqdn", os.FQDN)
	b.g.UpsertNode(inst)

	b.g.AddEdge(domain.NewEdge(host.ID, inst.ID, domain.RelRunsOS))
	b.g.AddEdge(domain.NewEdge(inst.ID, family.ID, domain.RelInstanceOf))
}

// addHardware flattens hardware facts onto the Host node's own scalar
// properties rather than minting CPU/Memory/Disk node kinds -- those
// kinds have no entry in the Graph entities table, and "nodes carry only
// scalar attributes" already covers a handful of numeric/boolean facts
// better than three single-purpose child nodes per host would.
func (b *Builder) addHardware(host *domain.Node, hw domain.HardwareInfo) {
	host.Set("cpu_physical_cores", hw.CPUPhysicalCores)
	host.Set("cpu_logical_cores", hw.CPULogicalCores)
	host.Set("cpu_architecture", hw.CPUArchitecture)
	host.Set("memory_total_mb", hw.MemoryTotalMB)
	host.Set("memory_available_mb", hw.MemoryAvailMB)
	host.Set("disk_count", len(hw.Disks))
	host.Set("boot_time", hw.BootTimeEpoch)
	host.Set("virtualized", hw.Virtualized)
}

func (b *Builder) addProcesses(host *domain.Node, procs []domain.ProcessRecord) map[int]*domain.Node {
	index := make(map[int]*domain.Node, len(procs))
	for _, p := range procs {
		key := fmt.Sprintf("%s:%d", host.ID, p.PID)
		n := domain.NewNode(domain.KindProcess, key, "Process")
		n.Set("pid", p.PID)
		n.Set("ppid", p.PPID)
		n.Set("name", p.ParentName)
		n.Set("exe", p.Exe)
		n.Set("user", p.User)
		n.Set("cmdline", p.Cmdline)
		n.Set("process_type", string(p.Type))
		n.Set("process_role", string(p.Role))
		b.g.UpsertNode(n)
		b.g.AddEdge(domain.NewEdge(host.ID, n.ID, domain.RelRuns))
		index[p.PID] = n
	}
	return index
}

// addListeningPorts attaches every listening socket as a Port node with
// its bind/exposure classification, keyed by port number for the
// process-attribution pass that follows.
func (b *Builder) addListeningPorts(host *domain.Node, listening []domain.SocketRecord) map[int]*domain.Node {
	index := make(map[int]*domain.Node, len(listening))
	for _, s := range listening {
		key := fmt.Sprintf("%s:%s:%s:%d", host.ID, s.Proto, s.LocalAddr, s.LocalPort)
		n := domain.NewNode(domain.KindPort, key, "Port")
		n.Set("port", s.LocalPort)
		n.Set("protocol", s.Proto)
		n.Set("bind_ip", s.LocalAddr)
		n.Set("bind", string(s.Bind))
		n.Set("exposure", string(s.Exposure))
		n.Set("state", s.Status)
		b.g.UpsertNode(n)
		b.g.AddEdge(domain.NewEdge(host.ID, n.ID, domain.RelExposes))

		if s.Bind != domain.BindAllInterfaces && s.LocalAddr != "" {
			ipNode := b.addIP(s.LocalAddr)
			b.g.AddEdge(domain.NewEdge(n.ID, ipNode.ID, domain.RelBindsIP))
		}

		index[s.LocalPort] = n
	}
	return index
}

// linkProcessesToSockets builds the Process -USES_SOCKET-> Socket
// -BINDS_TO-> Port chain invariant I6 requires for every socket whose
// pid attribution is known, and CONNECTS_TO edges for outbound sockets
// with a resolvable remote endpoint.
func (b *Builder) linkProcessesToSockets(host *domain.Node, sockets []domain.SocketRecord, procIndex, portIndex map[int]*domain.Node) {
	for _, s := range sockets {
		sockKey := fmt.Sprintf("%s:%d:%s:%s:%s:%s", host.ID, s.PID, s.Proto, s.LocalAddr, s.RemoteAddr, s.Status)
		sockNode := domain.NewNode(domain.KindSocket, sockKey, "Socket")
		sockNode.Set("pid", s.PID)
		sockNode.Set("proto", s.Proto)
		sockNode.Set("laddr", fmt.Sprintf("%s:%d", s.LocalAddr, s.LocalPort))
		if s.RemoteAddr != "" {
			sockNode.Set("raddr", fmt.Sprintf("%s:%d", s.RemoteAddr, s.RemotePort))
		}
		sockNode.Set("status", s.Status)
		sockNode.Set("direction", string(s.Direction))
		sockNode.Set("nat_suspected", s.NATSuspected)
		if proc, ok := procIndex[s.PID]; ok {
			sockNode.Set("user", proc.GetString("user"))
		} else if s.ProcessUser != "" {
			sockNode.Set("user", s.ProcessUser)
		}
		b.g.UpsertNode(sockNode)

		if proc, ok := procIndex[s.PID]; ok {
			b.g.AddEdge(domain.NewEdge(proc.ID, sockNode.ID, domain.RelUsesSocket))
		}

		if s.Direction == domain.DirectionListening {
			if port, ok := portIndex[s.LocalPort]; ok {
				b.g.AddEdge(domain.NewEdge(sockNode.ID, port.ID, domain.RelBindsTo))
			}
			continue
		}

		if s.Direction == domain.DirectionOutbound && s.RemoteAddr != "" {
			remoteIP := b.addIP(s.RemoteAddr)
			b.g.AddEdge(domain.NewEdge(sockNode.ID, remoteIP.ID, domain.RelConnectsTo))
		}
	}
}

// addSpawnedByEdges links a process to its parent when both are present
// in this host's process index.
func (b *Builder) addSpawnedByEdges(procs []domain.ProcessRecord, index map[int]*domain.Node) {
	for _, p := range procs {
		child, ok := index[p.PID]
		if !ok {
			continue
		}
		parent, ok := index[p.PPID]
		if !ok || p.PPID == 0 {
			continue
		}
		b.g.AddEdge(domain.NewEdge(child.ID, parent.ID, domain.RelSpawnedBy))
	}
}

func (b *Builder) addInstalledSoftware(host *domain.Node, packages []domain.SoftwarePackage) {
	for _, pkg := range packages {
		family := normalizeSoftwareFamily(pkg.Name)
		familyNode := domain.NewNode(domain.KindSoftwareFamily, family, "SoftwareFamily")
		familyNode.Set("name", family)
		b.g.UpsertNode(familyNode)

		instKey := fmt.Sprintf("%s:%s:%s", host.ID, pkg.Name, pkg.Version)
		inst := domain.NewNode(domain.KindSoftwareInstance, instKey, "SoftwareInstance")
		inst.Set("name", pkg.Name)
		inst.Set("version", pkg.Version)
		inst.Set("source", pkg.Source)
		inst.Set("scope", pkg.Scope)
		inst.Set("confidence", string(pkg.Confidence))
		b.g.UpsertNode(inst)

		b.g.AddEdge(domain.NewEdge(host.ID, inst.ID, domain.RelHasInstalled))
		b.g.AddEdge(domain.NewEdge(inst.ID, familyNode.ID, domain.RelInstanceOf))
	}
}

// addExecutables normalizes each process's executable basename onto a
// SoftwareFamily -- the per-process analogue of the installed-package
// inventory, catching software observed running but not found in any
// package manager's database.
func (b *Builder) addExecutables(procs []domain.ProcessRecord, index map[int]*domain.Node) {
	for _, p := range procs {
		if p.Exe == "" {
			continue
		}
		proc, ok := index[p.PID]
		if !ok {
			continue
		}
		basename := p.Exe
		if idx := strings.LastIndexAny(basename, `/\`); idx >= 0 {
			basename = basename[idx+1:]
		}
		execKey := fmt.Sprintf("%s:%s", proc.ID, basename)
		execNode := domain.NewNode(domain.KindExecutable, execKey, "Executable")
		execNode.Set("basename", basename)
		execNode.Set("path", p.Exe)
		b.g.UpsertNode(execNode)
		b.g.AddEdge(domain.NewEdge(proc.ID, execNode.ID, domain.RelExecutes))

		family := normalizeSoftwareFamily(basename)
		familyNode := domain.NewNode(domain.KindSoftwareFamily, family, "SoftwareFamily")
		familyNode.Set("name", family)
		b.g.UpsertNode(familyNode)
		b.g.AddEdge(domain.NewEdge(execNode.ID, familyNode.ID, domain.RelPartOf))
	}
}

func (b *Builder) addAccounts(host *domain.Node, accounts []domain.AccountRecord) map[string]*domain.Node {
	index := make(map[string]*domain.Node, len(accounts))
	for _, a := range accounts {
		key := fmt.Sprintf("%s:%s", host.ID, a.Username)
		n := domain.NewNode(domain.KindUser, key, "User")
		n.Set("username", a.Username)
		n.Set("uid", a.UID)
		n.Set("shell", a.Shell)
		n.Set("domain", a.Domain)
		n.Set("source", a.Source)
		b.g.UpsertNode(n)
		b.g.AddEdge(domain.NewEdge(host.ID, n.ID, domain.RelHasAccount))

		for _, role := range a.Roles {
			roleNode := domain.NewNode(domain.KindRole, string(role), "Role")
			roleNode.Set("name", string(role))
			b.g.UpsertNode(roleNode)
			b.g.AddEdge(domain.NewEdge(n.ID, roleNode.ID, domain.RelHasRole))
		}
		for _, group := range a.Groups {
			groupNode := domain.NewNode(domain.KindGroup, group, "Group")
			groupNode.Set("name", group)
			b.g.UpsertNode(groupNode)
			b.g.AddEdge(domain.NewEdge(n.ID, groupNode.ID, domain.RelMemberOf))
		}
		index[a.Username] = n
	}
	return index
}

func (b *Builder) addSessions(host *domain.Node, sessions []domain.SessionRecord, userIndex map[string]*domain.Node) {
	for _, s := range sessions {
		key := fmt.Sprintf("%s:%s:%s:%s:%s", host.ID, s.Username, s.TTY, s.Source, s.StartedAt)
		n := domain.NewNode(domain.KindSession, key, "Session")
		n.Set("username", s.Username)
		n.Set("tty", s.TTY)
		n.Set("source", s.Source)
		n.Set("started_at", s.StartedAt)
		b.g.UpsertNode(n)
		b.g.AddEdge(domain.NewEdge(host.ID, n.ID, domain.RelHasSession))

		if user, ok := userIndex[s.Username]; ok {
			b.g.AddEdge(domain.NewEdge(n.ID, user.ID, domain.RelSessionUser))
		}
	}
}

// attributeProcessesToUsers links a User to every Process it owns by an
// exact username match.
func (b *Builder) attributeProcessesToUsers(procs []domain.ProcessRecord, procIndex map[int]*domain.Node, userIndex map[string]*domain.Node) {
	for _, p := range procs {
		if p.User == "" {
			continue
		}
		user, ok := userIndex[p.User]
		if !ok {
			continue
		}
		proc, ok := procIndex[p.PID]
		if !ok {
			continue
		}
		b.g.AddEdge(domain.NewEdge(user.ID, proc.ID, domain.RelRunsProcess))
	}
}
