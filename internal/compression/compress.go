package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/kebairia/snapdump/internal/codec"
)

// DefaultLevel is the gzip level used by Compress.
const DefaultLevel = gzip.DefaultCompression

// DecodeError reports a payload that could not be turned back into text.
type DecodeError struct {
	Stage string // "base64" or "gzip"
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Compress gzips text at DefaultLevel and returns it base64 encoded.
func Compress(text string) (string, error) {
	return CompressLevel(text, DefaultLevel)
}

// CompressLevel is Compress with an explicit gzip level.
func CompressLevel(text string, level int) (string, error) {
	var buf bytes.Buffer
	// The header is left without name or mtime so equal input gives equal output.
	zw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return "", fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := io.WriteString(zw, text); err != nil {
		_ = zw.Close()
		return "", fmt.Errorf("gzip write: %w", err)
	}
	// gzip writes the footer on Close.
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("gzip close: %w", err)
	}
	return codec.BytesToBase64(buf.Bytes()), nil
}

// Decompress reverses Compress.
func Decompress(text string) (string, error) {
	raw, err := codec.Base64ToBytes(text)
	if err != nil {
		return "", &DecodeError{Stage: "base64", Err: err}
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", &DecodeError{Stage: "gzip", Err: err}
	}
	defer zr.Close()

	var out bytes.Buffer
	if _, err := io.Copy(&out, zr); err != nil {
		return "", &DecodeError{Stage: "gzip", Err: err}
	}
	return out.String(), nil
}
