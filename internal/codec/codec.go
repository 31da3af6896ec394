// Package codec reads and writes the scanner's two on-disk record types --
// domain.Snapshot and domain.HostRecord -- in either of the two formats the
// scanner and the remote agent are required to emit side by side: JSON and
// YAML. Both record types already carry json and yaml struct tags, so the
// codec layer is a thin, format-selecting wrapper rather than a field-by-
// field mapper.
package codec

import "io"

// Codec marshals and unmarshals a single record type T in one wire format.
type Codec[T any] interface {
	Encode(w io.Writer, v *T) error
	Decode(r io.Reader) (*T, error)
	Format() string
}

// Ext returns the file extension conventionally used for a codec's format,
// e.g. the Snapshot Formatter writes "snapshot.json" next to "snapshot.yml".
func Ext(c interface{ Format() string }) string {
	if c.Format() == "yaml" {
		return "yml"
	}
	return "json"
}
