package domain

import "math"

// Metrics is the set of graph-derived summary statistics computed once per
// snapshot and attached to the graph as a single Metrics node.
type Metrics struct {
	TotalNodes int `json:"total_nodes" yaml:"total_nodes"`
	TotalEdges int `json:"total_edges" yaml:"total_edges"`

	PortsTotal           int     `json:"ports_total" yaml:"ports_total"`
	PublicPorts          int     `json:"public_ports" yaml:"public_ports"`
	LocalPorts           int     `json:"local_ports" yaml:"local_ports"`
	InternalPorts        int     `json:"internal_ports" yaml:"internal_ports"`
	PublicExposureRatio  float64 `json:"public_exposure_ratio" yaml:"public_exposure_ratio"`

	ProcessesTotal   int     `json:"processes_total" yaml:"processes_total"`
	SystemProcesses  int     `json:"system_processes" yaml:"system_processes"`
	ProcessDensity   float64 `json:"process_density" yaml:"process_density"`

	PortsWithPID           int     `json:"ports_with_pid" yaml:"ports_with_pid"`
	PIDCoverage            float64 `json:"pid_coverage" yaml:"pid_coverage"`
	AttributionConfidence  float64 `json:"attribution_confidence" yaml:"attribution_confidence"`

	PrivilegedPublicListeners int `json:"privileged_public_listeners" yaml:"privileged_public_listeners"`

	EdgeTypes             map[RelType]int `json:"edge_types" yaml:"edge_types"`
	AttackSurfaceEntropy  float64         `json:"attack_surface_entropy" yaml:"attack_surface_entropy"`
}

// isPrivilegedUser reports whether a process's owning user is one of the
// two well-known superuser accounts this scanner recognizes.
func isPrivilegedUser(user string) bool {
	return user == "root" || user == "SYSTEM"
}

// ComputeMetrics derives Metrics from the finished graph. It is pure: it
// never mutates g, and callers decide whether to attach the result as a
// Metrics node.
func ComputeMetrics(g *Graph) *Metrics {
	nodes := g.Nodes()

	var ports, processes, hosts []*Node
	for _, n := range nodes {
		switch n.Kind {
		case KindPort:
			ports = append(ports, n)
		case KindProcess:
			processes = append(processes, n)
		case KindHost:
			hosts = append(hosts, n)
		}
	}

	totalPorts := len(ports)
	var publicPorts, localPorts, internalPorts int
	for _, p := range ports {
		switch Exposure(p.GetString("exposure")) {
		case ExposurePublic:
			publicPorts++
		case ExposureLocal:
			localPorts++
		case ExposureInternal:
			internalPorts++
		}
	}

	totalProcesses := len(processes)
	var systemProcesses, processesWithoutUser int
	for _, p := range processes {
		user := p.GetString("user")
		if isPrivilegedUser(user) {
			systemProcesses++
		}
		if user == "" {
			processesWithoutUser++
		}
	}

	edges := g.Edges()
	bindsTo := make(map[string]struct{}) // distinct port node IDs with a BINDS_TO edge
	for _, e := range edges {
		if e.RelType == RelBindsTo {
			bindsTo[e.To] = struct{}{}
		}
	}
	portsWithPID := len(bindsTo)

	var pidCoverage float64
	if totalPorts > 0 {
		pidCoverage = float64(portsWithPID) / float64(totalPorts)
	}

	var processDensity float64
	if len(hosts) > 0 {
		processDensity = float64(totalProcesses) / float64(len(hosts))
	}

	var publicExposureRatio float64
	if totalPorts > 0 {
		publicExposureRatio = float64(publicPorts) / float64(totalPorts)
	}

	nodeByID := make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		nodeByID[n.ID] = n
	}

	var privilegedListeners int
	for _, e := range edges {
		if e.RelType != RelBindsTo {
			continue
		}
		proc, okProc := nodeByID[e.From]
		port, okPort := nodeByID[e.To]
		if !okProc || !okPort {
			continue
		}
		if isPrivilegedUser(proc.GetString("user")) && Exposure(port.GetString("exposure")) == ExposurePublic {
			privilegedListeners++
		}
	}

	edgeTypes := make(map[RelType]int)
	for _, e := range edges {
		edgeTypes[e.RelType]++
	}

	exposureCounts := []int{publicPorts, localPorts, internalPorts}
	exposureTotal := publicPorts + localPorts + internalPorts
	var entropy float64
	if exposureTotal > 0 {
		for _, c := range exposureCounts {
			if c == 0 {
				continue
			}
			p := float64(c) / float64(exposureTotal)
			entropy -= p * math.Log2(p)
		}
	}

	userCoverage := 1.0
	if totalProcesses > 0 {
		userCoverage = 1 - float64(processesWithoutUser)/float64(totalProcesses)
	}
	attributionConfidence := (pidCoverage + userCoverage) / 2

	return &Metrics{
		TotalNodes: len(nodes),
		TotalEdges: len(edges),

		PortsTotal:          totalPorts,
		PublicPorts:         publicPorts,
		LocalPorts:          localPorts,
		InternalPorts:       internalPorts,
		PublicExposureRatio: publicExposureRatio,

		ProcessesTotal:  totalProcesses,
		SystemProcesses: systemProcesses,
		ProcessDensity:  processDensity,

		PortsWithPID:          portsWithPID,
		PIDCoverage:           pidCoverage,
		AttributionConfidence: attributionConfidence,

		PrivilegedPublicListeners: privilegedListeners,

		EdgeTypes:            edgeTypes,
		AttackSurfaceEntropy: entropy,
	}
}
