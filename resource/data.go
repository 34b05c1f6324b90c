// Package resource loads the read-only JSON data sources backing resource
// and hospital lookups. The data is an opaque document passed verbatim into
// prompts; this package only validates that it is well-formed JSON.
package resource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Data is an immutable JSON document loaded once at startup.
type Data struct {
	raw json.RawMessage
}

// LoadFile reads and validates a JSON data file.
func LoadFile(path string) (*Data, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read data file %s: %w", path, err)
	}
	d, err := FromJSON(b)
	if err != nil {
		return nil, fmt.Errorf("data file %s: %w", path, err)
	}
	return d, nil
}

// FromJSON validates raw bytes as JSON.
func FromJSON(b []byte) (*Data, error) {
	if !json.Valid(b) {
		return nil, fmt.Errorf("not valid JSON")
	}
	return &Data{raw: json.RawMessage(bytes.TrimSpace(b))}, nil
}

// JSON returns the document as a string for prompt interpolation.
func (d *Data) JSON() string { return string(d.raw) }
