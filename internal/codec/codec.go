// Package codec converts between raw bytes and transport-safe text.
package codec

import (
	"bytes"
	"encoding/base64"
	"fmt"
)

// BytesToBase64 encodes b with the standard, padded alphabet.
func BytesToBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Base64ToBytes is the inverse of BytesToBase64.
func Base64ToBytes(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return b, nil
}

// BytesToBuffer returns a buffer holding a copy of b.
func BytesToBuffer(b []byte) *bytes.Buffer {
	return bytes.NewBuffer(bytes.Clone(b))
}

// BufferToBytes copies the unread portion of buf. A nil buffer yields an empty slice.
func BufferToBytes(buf *bytes.Buffer) []byte {
	if buf == nil {
		return []byte{}
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}
