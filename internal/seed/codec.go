package seed

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/mnemosyne/internal/ir"
)

// Format is the serialization of a snapshot payload.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml" or "yml". Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", ir.Invalid("unknown snapshot format %q: use json or yaml", s)
	}
}

// FormatForPath guesses the format from a file extension.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Encode writes snap to w.
func Encode(w io.Writer, snap Snapshot, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return ir.IOFailure("encode snapshot", "yaml", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return ir.IOFailure("encode snapshot", "json", err)
		}
		return nil
	}
}

// Decode validates raw against the snapshot schema and decodes it.
func Decode(raw []byte, format Format) (Snapshot, error) {
	if err := ValidatePayload(raw, format); err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(raw, &snap); err != nil {
			return Snapshot{}, ir.Invalid("decode snapshot: %v", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&snap); err != nil {
			return Snapshot{}, ir.Invalid("decode snapshot: %v", err)
		}
	}
	return snap, nil
}
