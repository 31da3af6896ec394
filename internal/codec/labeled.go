package codec

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// timestampLayout is the persisted-artifact label suffix, chosen so
// filenames stay comparable across re-runs by lexical sort.
const timestampLayout = "20060102_150405"

// WriteLabeled writes v as both "<label>_<ts>.json" and "<label>_<ts>.yml"
// under dir, where ts is formatted per timestampLayout. This is the phase-
// labeled persistence every phase driver call (phase0, phase1,
// phase2_distributed, system_construction, and per-host phase2_<ip>)
// writes through, one generic function in place of one near-duplicate
// writer per label.
func WriteLabeled[T any](dir, label string, ts time.Time, v *T) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("codec: write labeled %s: %w", label, err)
	}
	stamp := ts.UTC().Format(timestampLayout)
	base := fmt.Sprintf("%s_%s", label, stamp)

	jsonPath := filepath.Join(dir, base+".json")
	jf, err := os.Create(jsonPath)
	if err != nil {
		return fmt.Errorf("codec: write %s: %w", jsonPath, err)
	}
	defer jf.Close()
	if err := NewJSONCodec[T]().Encode(jf, v); err != nil {
		return fmt.Errorf("codec: write %s: %w", jsonPath, err)
	}

	yamlPath := filepath.Join(dir, base+".yml")
	yf, err := os.Create(yamlPath)
	if err != nil {
		return fmt.Errorf("codec: write %s: %w", yamlPath, err)
	}
	defer yf.Close()
	if err := NewYAMLCodec[T]().Encode(yf, v); err != nil {
		return fmt.Errorf("codec: write %s: %w", yamlPath, err)
	}
	return nil
}
