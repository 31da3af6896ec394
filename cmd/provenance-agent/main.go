// Command provenance-agent is the Remote Agent deployed onto a Phase 2
// target: it runs every extractor in a fixed order and writes its
// findings as a HostRecord, once as JSON and once as YAML, beside its
// own binary for the Agent Transport to collect.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"provenance-scan/internal/codec"
	"provenance-scan/internal/domain"
	"provenance-scan/internal/extract"
)

const hostRecordSchemaVersion = 1

func main() {
	outDir := flag.String("out", ".", "directory to write output.json/output.yml into")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	record := collect()

	if err := writeRecord(*outDir, record); err != nil {
		log.Fatalf("provenance-agent: %v", err)
	}
}

// collect runs every extractor in a fixed order -- OS, hardware, network,
// users, packages, services -- plus routing and virtualization.
// No extractor failure is fatal; each one records its own error in its
// section instead, so the agent always has something to write.
func collect() *domain.HostRecord {
	return &domain.HostRecord{
		SchemaVersion:  hostRecordSchemaVersion,
		OS:             extract.OS(),
		Hardware:       extract.Hardware(),
		Network:        extract.Network(),
		Users:          extract.Users(),
		Services:       extract.Services(),
		Software:       extract.Software(),
		Routing:        extract.Routing(),
		Virtualization: extract.Virtualization(),
	}
}

// writeRecord persists the two output siblings the Agent Transport's
// Collect step expects, matching the scanner's own dual-format
// persistence so a Phase 2 result round-trips through the same codecs.
func writeRecord(dir string, record *domain.HostRecord) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	jsonPath := filepath.Join(dir, "output.json")
	jf, err := os.Create(jsonPath)
	if err != nil {
		return err
	}
	defer jf.Close()
	if err := codec.NewJSONCodec[domain.HostRecord]().Encode(jf, record); err != nil {
		return err
	}

	yamlPath := filepath.Join(dir, "output.yml")
	yf, err := os.Create(yamlPath)
	if err != nil {
		return err
	}
	defer yf.Close()
	return codec.NewYAMLCodec[domain.HostRecord]().Encode(yf, record)
}
