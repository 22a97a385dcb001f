// Package archive builds and reads the zip bundles that carry a dump and its
// metadata sidecar.
package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/kebairia/snapdump/internal/codec"
	"github.com/kebairia/snapdump/internal/compression"
)

// CompressionLevel is the deflate level for every entry.
const CompressionLevel = 7

var (
	ErrMissingMetadata  = errors.New("archive has no metadata entry")
	ErrMissingPayload   = errors.New("archive has no payload entry")
	ErrUnexpectedEntry  = errors.New("archive has an unexpected entry")
	ErrNameMismatch     = errors.New("metadata entry does not match payload name")
	ErrChecksumMismatch = errors.New("payload checksum does not match metadata")
)

// ParseError is returned when the bytes are not a readable zip container.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse archive: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// Result is what could be recovered from an archive.
type Result struct {
	Metadata      *DumpMetadata // nil when no sidecar was found
	Dump          string
	HasDump       bool
	UnknownFields []string // sidecar fields this version does not understand
	Issues        []error  // layout or integrity problems, see Valid
}

// Valid reports whether the archive had exactly the expected layout and the
// payload matched its checksum.
func (r *Result) Valid() bool {
	return r != nil && r.Metadata != nil && r.HasDump && len(r.Issues) == 0
}

// Err joins the issues, or returns nil for a valid result.
func (r *Result) Err() error {
	if r == nil {
		return errors.Join(ErrMissingMetadata, ErrMissingPayload)
	}
	if r.Valid() {
		return nil
	}
	issues := r.Issues
	if r.Metadata == nil && !containsErr(issues, ErrMissingMetadata) {
		issues = append(issues, ErrMissingMetadata)
	}
	if !r.HasDump && !containsErr(issues, ErrMissingPayload) {
		issues = append(issues, ErrMissingPayload)
	}
	return errors.Join(issues...)
}

func containsErr(errs []error, target error) bool {
	for _, err := range errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Pack writes payload and meta into a two-entry zip. The payload is stored as
// given and must already be in the encoding meta.Compressed declares.
func Pack(payload string, meta DumpMetadata) ([]byte, error) {
	if meta.FileName == "" {
		return nil, errors.New("metadata file name is empty")
	}
	if strings.HasSuffix(meta.FileName, ".json") {
		return nil, fmt.Errorf("payload name %q would be read back as metadata", meta.FileName)
	}
	if meta.Compressed {
		if _, err := codec.Base64ToBytes(payload); err != nil {
			return nil, fmt.Errorf("payload marked compressed is not base64: %w", err)
		}
	}

	sidecar, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata JSON: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, CompressionLevel)
	})

	modified := time.UnixMilli(meta.Timestamp)
	entries := []struct {
		name string
		data []byte
	}{
		{name: meta.FileName, data: []byte(payload)},
		{name: meta.MetadataName(), data: sidecar},
	}
	for _, entry := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     entry.name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("create entry %q: %w", entry.name, err)
		}
		if _, err := w.Write(entry.data); err != nil {
			return nil, fmt.Errorf("write entry %q: %w", entry.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish zip: %w", err)
	}
	return buf.Bytes(), nil
}

// Unpack reads an archive produced by Pack. A container that cannot be read
// at all yields *ParseError. Layout problems are collected in Result.Issues
// and whatever could be recovered is still returned. A payload declared
// compressed that fails to decode yields *compression.DecodeError.
func Unpack(data []byte) (*Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	contents := make(map[string][]byte, len(zr.File))
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		b, err := readEntry(f)
		if err != nil {
			return nil, &ParseError{Err: fmt.Errorf("read entry %q: %w", f.Name, err)}
		}
		contents[f.Name] = b
		names = append(names, f.Name)
	}

	res := &Result{}

	metaName := sidecarName(names, contents)
	if metaName != "" {
		meta, unknown, err := decodeMetadata(contents[metaName])
		if err != nil {
			return nil, &ParseError{Err: fmt.Errorf("entry %q: %w", metaName, err)}
		}
		sort.Strings(unknown)
		res.Metadata = &meta
		res.UnknownFields = unknown
	}

	payloadName := ""
	switch {
	case res.Metadata != nil:
		if _, ok := contents[res.Metadata.FileName]; ok {
			payloadName = res.Metadata.FileName
		}
		if metaName != res.Metadata.MetadataName() {
			res.Issues = append(res.Issues, fmt.Errorf("%w: %q describes %q", ErrNameMismatch, metaName, res.Metadata.FileName))
		}
	default:
		res.Issues = append(res.Issues, ErrMissingMetadata)
		for _, name := range names {
			if strings.HasSuffix(name, ".sql") {
				payloadName = name
				break
			}
		}
	}

	for _, name := range names {
		if name != metaName && name != payloadName {
			res.Issues = append(res.Issues, fmt.Errorf("%w: %q", ErrUnexpectedEntry, name))
		}
	}

	if payloadName == "" {
		res.Issues = append(res.Issues, ErrMissingPayload)
		return res, nil
	}

	text := string(contents[payloadName])
	switch {
	case res.Metadata == nil:
		// No sidecar to say how the payload is stored: try the compressed
		// form and fall back to the raw text.
		if plain, err := compression.Decompress(text); err == nil {
			text = plain
		}
	case res.Metadata.Compressed:
		plain, err := compression.Decompress(text)
		if err != nil {
			return res, err
		}
		text = plain
	}
	res.Dump = text
	res.HasDump = true

	if res.Metadata != nil && res.Metadata.SHA256 != "" {
		if got := SHA256Hex(text); !strings.EqualFold(got, res.Metadata.SHA256) {
			res.Issues = append(res.Issues, fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, got, res.Metadata.SHA256))
		}
	}
	return res, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// sidecarName picks the metadata entry. An entry named after a payload present
// in the archive wins, then any other "-metadata.json" entry, then the first
// bare ".json" entry. Everything else is left for the unexpected-entry check.
func sidecarName(names []string, contents map[string][]byte) string {
	fallback := ""
	for _, name := range names {
		if !strings.HasSuffix(name, MetadataSuffix) {
			continue
		}
		if _, ok := contents[strings.TrimSuffix(name, MetadataSuffix)]; ok {
			return name
		}
		if fallback == "" {
			fallback = name
		}
	}
	if fallback != "" {
		return fallback
	}
	for _, name := range names {
		if strings.HasSuffix(name, ".json") {
			return name
		}
	}
	return ""
}
