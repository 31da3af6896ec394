// Package snapshot builds the immutable Snapshot record that unifies
// Phase 0, Phase 1, and Phase 2 output for a single scanner run, and
// persists it alongside a pre-collapse raw copy for reversibility.
//
// Applies a NAT-collapse rule over a scanner_host/local_network_discovery/
// phase2/infrastructure shape; UUID generation and timestamping use
// google/uuid and time.Now().UTC().
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"provenance-scan/internal/codec"
	"provenance-scan/internal/discovery/phase2"
	"provenance-scan/internal/domain"
)

// natCIDR and natGatewayIP describe the Vagrant/VirtualBox NAT adapter
// the scanner expects to run behind in a lab VM deployment.
const (
	natCIDR      = "10.0.2.0/24"
	natIPPrefix  = "10.0.2."
	natGatewayIP = "10.0.2.2"
)

// Build normalizes Phase 0, Phase 1, and Phase 2 results into one
// Snapshot, collapsing NAT noise out of the Phase 1 results into a single
// infrastructure.nat note. It returns both the collapsed snapshot and
// the uncollapsed raw Phase 1 map, which the caller persists separately
// so the collapse remains reversible.
func Build(scannerHost domain.ScannerHost, rawPhase1 map[string]domain.Phase1Result, phase2Results []phase2.TargetResult) (snap *domain.Snapshot, raw map[string]domain.Phase1Result) {
	cleaned := make(map[string]domain.Phase1Result, len(rawPhase1))
	natDetected := false
	var natGateway string

	ifaceNames := make([]string, 0, len(rawPhase1))
	for name := range rawPhase1 {
		ifaceNames = append(ifaceNames, name)
	}
	sort.Strings(ifaceNames)

	for _, iface := range ifaceNames {
		result := rawPhase1[iface]
		if result.Network == natCIDR {
			natDetected = true
			for _, ip := range result.DiscoveredHosts {
				if ip == natGatewayIP {
					natGateway = ip
				}
			}
			continue
		}

		cleanedHosts := make([]string, 0, len(result.DiscoveredHosts))
		cleanedDetails := make(map[string]domain.HostDetail, len(result.Details))
		for _, ip := range result.DiscoveredHosts {
			if strings.HasPrefix(ip, natIPPrefix) {
				natDetected = true
				if ip == natGatewayIP {
					natGateway = ip
				}
				continue
			}
			cleanedHosts = append(cleanedHosts, ip)
			if d, ok := result.Details[ip]; ok {
				cleanedDetails[ip] = d
			}
		}

		cleaned[iface] = domain.Phase1Result{
			Network:         result.Network,
			DiscoveredHosts: cleanedHosts,
			Details:         cleanedDetails,
			Methods:         result.Methods,
			ScannerIP:       result.ScannerIP,
		}
	}

	phase2Map := make(map[string]domain.HostRecord, len(phase2Results))
	for _, tr := range phase2Results {
		if tr.HostRecord != nil {
			phase2Map[tr.IP] = *tr.HostRecord
		}
	}

	snap = &domain.Snapshot{
		SnapshotID:            uuid.NewString(),
		CollectedAt:           time.Now().UTC(),
		ScannerHost:           scannerHost,
		LocalNetworkDiscovery: cleaned,
		Phase2:                phase2Map,
	}

	if natDetected {
		snap.Infrastructure = &domain.InfrastructureNote{
			NAT: &domain.NATInfo{
				Present: true,
				CIDR:    natCIDR,
				Gateway: natGateway,
				Role:    "egress",
			},
		}
	}

	return snap, rawPhase1
}

// Persist writes the snapshot as both snapshot.json and snapshot.yml
// under dir, plus a raw.json/raw.yml sibling pair holding the
// pre-collapse Phase 1 results -- the only way the NAT collapse is
// reversible.
func Persist(dir string, snap *domain.Snapshot, raw map[string]domain.Phase1Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: persist: %w", err)
	}

	if err := writeBoth(dir, "snapshot", snap); err != nil {
		return err
	}
	return writeBoth(dir, "raw", &raw)
}

func writeBoth[T any](dir, base string, v *T) error {
	jsonPath := filepath.Join(dir, base+".json")
	jf, err := os.Create(jsonPath)
	if err != nil {
		return fmt.Errorf("snapshot: write %s: %w", jsonPath, err)
	}
	defer jf.Close()
	if err := codec.NewJSONCodec[T]().Encode(jf, v); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", jsonPath, err)
	}

	yamlPath := filepath.Join(dir, base+".yml")
	yf, err := os.Create(yamlPath)
	if err != nil {
		return fmt.Errorf("snapshot: write %s: %w", yamlPath, err)
	}
	defer yf.Close()
	if err := codec.NewYAMLCodec[T]().Encode(yf, v); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", yamlPath, err)
	}
	return nil
}
