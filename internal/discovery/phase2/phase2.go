// Package phase2 selects remote extraction targets from a Phase 1 result
// and dispatches the Agent Transport against each, collecting a parsed
// HostRecord per target.
package phase2

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"provenance-scan/internal/codec"
	"provenance-scan/internal/discovery/phase1"
	"provenance-scan/internal/domain"
	"provenance-scan/internal/transport"
)

// Target is one host selected for remote extraction.
type Target struct {
	IP       string
	UseWinRM bool // true if 5985/5986 is open, else SSH over 22
}

// SelectionInput bundles everything the target-selection rule needs.
type SelectionInput struct {
	Phase1Result    *phase1.Result
	InterfaceReason string // the winning interface's concatenated score reasons
	ScannerIPs      []string
	ScannerHostname string
}

// SelectTargets applies the remote-extraction eligibility rule: the
// winning interface's selection reason must mention a host-only network
// ("laboratory" scope); each candidate IP must differ from every local
// scanner IP and from the scanner's own hostname; its Phase 1 role must
// not be gateway or network_device; and it must expose 22, 5985, or 5986.
func SelectTargets(in SelectionInput) []Target {
	if !strings.Contains(strings.ToLower(in.InterfaceReason), "host-only") {
		return nil
	}
	if in.Phase1Result == nil {
		return nil
	}

	scannerIPs := make(map[string]bool, len(in.ScannerIPs))
	for _, ip := range in.ScannerIPs {
		scannerIPs[ip] = true
	}

	var targets []Target
	for _, ip := range in.Phase1Result.DiscoveredHosts {
		if scannerIPs[ip] || ip == in.ScannerHostname {
			continue
		}
		detail, ok := in.Phase1Result.Details[ip]
		if !ok {
			continue
		}
		if detail.Type == domain.HostTypeGateway || detail.Type == domain.HostTypeNetworkDevice {
			continue
		}
		has22 := containsPort(detail.TCP, 22)
		has5985 := containsPort(detail.TCP, 5985)
		has5986 := containsPort(detail.TCP, 5986)
		if !has22 && !has5985 && !has5986 {
			continue
		}
		targets = append(targets, Target{IP: ip, UseWinRM: has5985 || has5986})
	}
	return targets
}

func containsPort(ports []int, port int) bool {
	for _, p := range ports {
		if p == port {
			return true
		}
	}
	return false
}

// Credentials carries the SSH and WinRM auth material Phase 2 tries
// against every target; per-target overrides are out of scope.
type Credentials struct {
	SSHUser       string
	SSHKeyPath    string
	SSHPassword   string
	SSHPort       int
	WinRMUser     string
	WinRMPassword string
	WinRMPort     int
	WinRMHTTPS    bool
}

// TargetResult is one target's extraction outcome.
type TargetResult struct {
	IP         string
	HostRecord *domain.HostRecord
	Err        error
}

// Run deploys, executes, and collects from every target sequentially,
// uploading agentBinary and writing per-host collection directories
// under collectDir. A failure on one target is recorded, not propagated
// -- the phase never aborts.
func Run(ctx context.Context, targets []Target, creds Credentials, agentBinary, collectDir string) []TargetResult {
	results := make([]TargetResult, 0, len(targets))
	for _, t := range targets {
		results = append(results, runTarget(ctx, t, creds, agentBinary, collectDir))
	}
	return results
}

func runTarget(ctx context.Context, t Target, creds Credentials, agentBinary, collectDir string) TargetResult {
	tr, err := openTransport(ctx, t, creds)
	if err != nil {
		return TargetResult{IP: t.IP, Err: fmt.Errorf("phase2: transport for %s: %w", t.IP, err)}
	}
	defer tr.Close()

	remoteOS, err := tr.Detect(ctx)
	if err != nil {
		return TargetResult{IP: t.IP, Err: fmt.Errorf("phase2: detect %s: %w", t.IP, err)}
	}

	workDir, err := tr.Deploy(ctx, remoteOS, agentBinary)
	if err != nil {
		return TargetResult{IP: t.IP, Err: fmt.Errorf("phase2: deploy %s: %w", t.IP, err)}
	}
	defer tr.Cleanup(context.Background(), workDir)

	if err := tr.Execute(ctx, workDir, 60*time.Second); err != nil {
		return TargetResult{IP: t.IP, Err: fmt.Errorf("phase2: execute %s: %w", t.IP, err)}
	}

	collectedAt := time.Now()
	localDir := fmt.Sprintf("%s/phase2_%s_%s", collectDir, strings.ReplaceAll(t.IP, ".", "_"), collectedAt.UTC().Format("20060102_150405"))
	if err := tr.Collect(ctx, workDir, localDir); err != nil {
		return TargetResult{IP: t.IP, Err: fmt.Errorf("phase2: collect %s: %w", t.IP, err)}
	}

	record, err := parseCollectedRecord(localDir)
	if err != nil {
		return TargetResult{IP: t.IP, Err: fmt.Errorf("phase2: parse %s: %w", t.IP, err)}
	}

	label := fmt.Sprintf("phase2_%s", strings.ReplaceAll(t.IP, ".", "_"))
	if err := codec.WriteLabeled(localDir, label, collectedAt, record); err != nil {
		return TargetResult{IP: t.IP, Err: fmt.Errorf("phase2: persist labeled record for %s: %w", t.IP, err)}
	}

	return TargetResult{IP: t.IP, HostRecord: record}
}

func openTransport(ctx context.Context, t Target, creds Credentials) (transport.Transport, error) {
	if t.UseWinRM {
		port := creds.WinRMPort
		if port == 0 {
			port = 5985
		}
		return transport.NewWinRMTransport(transport.Config{
			Host:     t.IP,
			Port:     port,
			User:     creds.WinRMUser,
			Password: creds.WinRMPassword,
		}, creds.WinRMHTTPS), nil
	}
	port := creds.SSHPort
	if port == 0 {
		port = 22
	}
	return transport.NewSSHTransport(ctx, transport.Config{
		Host:     t.IP,
		Port:     port,
		User:     creds.SSHUser,
		KeyPath:  creds.SSHKeyPath,
		Password: creds.SSHPassword,
		Timeout:  60 * time.Second,
	})
}

// parseCollectedRecord prefers the JSON sibling and falls back to YAML,
// matching the dual-format contract the remote agent writes under.
func parseCollectedRecord(localDir string) (*domain.HostRecord, error) {
	jsonPath := localDir + "/output.json"
	if f, err := os.Open(jsonPath); err == nil {
		defer f.Close()
		return codec.NewJSONCodec[domain.HostRecord]().Decode(f)
	}
	yamlPath := localDir + "/output.yml"
	f, err := os.Open(yamlPath)
	if err != nil {
		return nil, fmt.Errorf("no output.json or output.yml in %s", localDir)
	}
	defer f.Close()
	return codec.NewYAMLCodec[domain.HostRecord]().Decode(f)
}
