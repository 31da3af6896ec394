package bootstrap

import (
	"fmt"

	"provenance-scan/internal/config"
)

// SynthesizeMode recommends a scan mode and probe method set from gathered
// evidence: whether Phase 2 remote extraction is worth attempting at all,
// and which Phase 1 probe methods this host can actually use.
func SynthesizeMode(es *EvidenceSet) (config.Mode, []string, float64, []string) {
	var reasons []string

	canFull := true
	confidence := 0.85
	probeMethods := []string{"tcp_connect"}

	// === ARP Tooling ===
	// can_read_arp (procfs) or has_arp_command (PATH fallback) -- "arp"
	// only belongs in the recommended method set if at least one of
	// Phase 1's two ARP-cache read paths will actually work.
	canReadArp, _, _ := es.BestValue(CategoryCapability, "can_read_arp")
	hasArpCmd, _, _ := es.BestValue(CategoryCapability, "has_arp_command")
	if (canReadArp != nil && canReadArp.(bool)) || (hasArpCmd != nil && hasArpCmd.(bool)) {
		probeMethods = append(probeMethods, "arp")
	} else {
		reasons = append(reasons, "No ARP read path (/proc/net/arp or arp command) -- arp probing disabled")
	}

	// === Memory Constraints ===
	memMB, _, hasMemory := es.BestValue(CategoryResources, "memory_mb")
	memLimit, limitConf, hasLimit := es.BestValue(CategoryResources, "memory_limit_mb")

	effectiveMem := 0
	if hasLimit && limitConf > 0.5 {
		effectiveMem = memLimit.(int)
		reasons = append(reasons, fmt.Sprintf("Container memory limit: %dMB", effectiveMem))
	} else if hasMemory {
		effectiveMem = memMB.(int)
		reasons = append(reasons, fmt.Sprintf("System memory: %dMB", effectiveMem))
	}

	if effectiveMem > 0 {
		if effectiveMem < 128 {
			canFull = false
			reasons = append(reasons, fmt.Sprintf("Insufficient memory: %dMB < 128MB minimum", effectiveMem))
		} else if effectiveMem < 512 {
			canFull = false
			reasons = append(reasons, fmt.Sprintf("Limited memory: %dMB < 512MB for remote extraction", effectiveMem))
		}
	} else {
		confidence -= 0.1
		reasons = append(reasons, "Could not determine available memory")
	}

	// === Environment Type ===
	envType, _, hasEnv := es.BestValue(CategoryEnvironment, "environment_type")
	if hasEnv {
		switch envType.(string) {
		case string(EnvTypeContainerized):
			reasons = append(reasons, "Running in container - network access may be limited")
			if orch, _, has := es.BestValue(CategoryEnvironment, "orchestrator"); has {
				if orch.(string) == string(RuntimeKubernetes) {
					reasons = append(reasons, "Kubernetes pod - cluster network only by default")
					canFull = false
				}
			}
		case string(EnvTypeVM):
			reasons = append(reasons, "Running in VM - full network access likely")
		case string(EnvTypeBareMetal):
			reasons = append(reasons, "Running on bare metal - full network access available")
		}
	}

	// === Nmap Availability ===
	hasNmap, nmapConf, _ := es.BestValue(CategoryCapability, "has_nmap")
	if hasNmap != nil && hasNmap.(bool) {
		probeMethods = append(probeMethods, "nmap")
		reasons = append(reasons, "nmap available for deeper Phase-1 scanning")
	}

	// === Raw Socket / ICMP ===
	canRaw, _, _ := es.BestValue(CategoryCapability, "can_raw_socket")
	canPing, _, _ := es.BestValue(CategoryCapability, "can_icmp_ping")
	if (canRaw != nil && canRaw.(bool)) || (canPing != nil && canPing.(bool)) {
		probeMethods = append(probeMethods, "icmp")
		reasons = append(reasons, "ICMP sweep available")
	} else {
		reasons = append(reasons, "ICMP unavailable - TCP connect probing only")
	}

	// === Root Access ===
	isRoot, _, _ := es.BestValue(CategoryPermissions, "is_root")
	if isRoot != nil && isRoot.(bool) {
		reasons = append(reasons, "Running as root - elevated privileges available")
	}

	// === Network Visibility ===
	if _, _, hasGW := es.BestValue(CategoryNetwork, "gateway"); hasGW {
		reasons = append(reasons, "Default gateway detected")
	} else {
		reasons = append(reasons, "No default gateway - network scanning may be limited")
		canFull = false
		confidence -= 0.1
	}

	// === Disk Space ===
	// Below this, a full run's four labeled phase artifacts plus the
	// SQLite sink risk a failed sink write partway through persistence
	// rather than failing bootstrap up front.
	const minFreeDiskMB = 64
	if diskFreeMB, _, hasDisk := es.BestValue(CategoryResources, "disk_free_mb"); hasDisk {
		if mb, ok := diskFreeMB.(int); ok && mb < minFreeDiskMB {
			canFull = false
			reasons = append(reasons, fmt.Sprintf("Low disk space: %dMB free < %dMB minimum for persisted artifacts", mb, minFreeDiskMB))
		}
	}

	if nmapConf > 0 {
		confidence = (confidence + nmapConf) / 2
	}
	if confidence > 0.95 {
		confidence = 0.95
	}

	if canFull {
		return config.ModeFull, probeMethods, confidence, reasons
	}
	return config.ModeLocalOnly, probeMethods, 0.90, reasons
}

// SynthesisResult contains the full synthesis output.
type SynthesisResult struct {
	Mode         config.Mode
	ProbeMethods []string
	Confidence   float64
	Reasons      []string
	Warnings     []string
}

// FullSynthesis performs complete mode synthesis with warnings.
func FullSynthesis(es *EvidenceSet) SynthesisResult {
	mode, probeMethods, confidence, reasons := SynthesizeMode(es)

	result := SynthesisResult{
		Mode:         mode,
		ProbeMethods: probeMethods,
		Confidence:   confidence,
		Reasons:      reasons,
	}

	if effectiveMem := getEffectiveMemory(es); effectiveMem > 0 && effectiveMem < 512 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Low memory (%dMB) may cause performance issues", effectiveMem))
	}

	isRoot, _, _ := es.BestValue(CategoryPermissions, "is_root")
	envType, _, _ := es.BestValue(CategoryEnvironment, "environment_type")
	if isRoot != nil && isRoot.(bool) && envType != nil && envType.(string) == string(EnvTypeContainerized) {
		result.Warnings = append(result.Warnings,
			"Running as root in container - consider using non-root user")
	}

	return result
}

func getEffectiveMemory(es *EvidenceSet) int {
	if limit, _, has := es.BestValue(CategoryResources, "memory_limit_mb"); has {
		if l, ok := limit.(int); ok {
			return l
		}
	}
	if mem, _, has := es.BestValue(CategoryResources, "memory_mb"); has {
		if m, ok := mem.(int); ok {
			return m
		}
	}
	return 0
}
