package archive

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// MetadataSuffix is appended to the payload name to form the sidecar entry name.
const MetadataSuffix = "-metadata.json"

// DumpMetadata describes one dump inside an archive.
type DumpMetadata struct {
	FileName          string            `json:"fileName"          mapstructure:"fileName"`
	SchemaVersion     string            `json:"schemaVersion"     mapstructure:"schemaVersion"`
	SHA256            string            `json:"sha256"            mapstructure:"sha256"`
	LocalStorageItems map[string]string `json:"localStorageItems" mapstructure:"localStorageItems"`
	Compressed        bool              `json:"compressed"        mapstructure:"compressed"`
	Timestamp         int64             `json:"timestamp"         mapstructure:"timestamp"` // epoch milliseconds
}

// MetadataName returns the sidecar entry name for the payload.
func (m DumpMetadata) MetadataName() string {
	return m.FileName + MetadataSuffix
}

// SHA256Hex returns the lowercase hex SHA-256 of text.
func SHA256Hex(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// decodeMetadata parses a sidecar. Fields it does not know are returned
// instead of failing so that newer archives stay readable.
func decodeMetadata(data []byte) (DumpMetadata, []string, error) {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return DumpMetadata{}, nil, fmt.Errorf("decode metadata JSON: %w", err)
	}

	var (
		meta DumpMetadata
		md   mapstructure.Metadata
	)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata: &md,
		Result:   &meta,
	})
	if err != nil {
		return DumpMetadata{}, nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return DumpMetadata{}, nil, fmt.Errorf("decode metadata fields: %w", err)
	}
	return meta, md.Unused, nil
}
