package compression

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/snapdump/internal/codec"
)

func TestCompressRoundTrip(t *testing.T) {
	tests := map[string]string{
		"empty":      "",
		"ascii":      "CREATE TABLE film (film_id serial PRIMARY KEY);",
		"multi-byte": "INSERT INTO t VALUES ('héllo wörld', '日本語', '🐘');",
		"large":      strings.Repeat("INSERT INTO actor VALUES (1, 'PENELOPE');\n", 5000),
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			enc, err := Compress(in)
			require.NoError(t, err)
			out, err := Decompress(enc)
			require.NoError(t, err)
			require.Equal(t, in, out)
		})
	}
}

func TestCompressLevels(t *testing.T) {
	in := strings.Repeat("abc", 1000)
	for _, level := range []int{gzip.NoCompression, gzip.BestSpeed, 7, gzip.BestCompression} {
		enc, err := CompressLevel(in, level)
		require.NoError(t, err)
		out, err := Decompress(enc)
		require.NoError(t, err)
		require.Equal(t, in, out)
	}

	_, err := CompressLevel(in, 42)
	require.Error(t, err)
}

func TestCompressIsDeterministic(t *testing.T) {
	a, err := Compress("SELECT 1;")
	require.NoError(t, err)
	b, err := Compress("SELECT 1;")
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestDecompressErrors(t *testing.T) {
	valid, err := Compress(strings.Repeat("payload ", 200))
	require.NoError(t, err)
	raw, err := codec.Base64ToBytes(valid)
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
		stage string
	}{
		{name: "bad base64", input: "%%%", stage: "base64"},
		{name: "not gzip", input: codec.BytesToBase64([]byte("plain text")), stage: "gzip"},
		{name: "truncated", input: codec.BytesToBase64(raw[:len(raw)/2]), stage: "gzip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decompress(tt.input)
			var decErr *DecodeError
			require.True(t, errors.As(err, &decErr), "got %v", err)
			require.Equal(t, tt.stage, decErr.Stage)
		})
	}
}

func TestImageRoundTrip(t *testing.T) {
	image := bytes.Repeat([]byte{0, 1, 2, 255}, 4096)

	var packed bytes.Buffer
	n, err := CompressImage(&packed, bytes.NewReader(image))
	require.NoError(t, err)
	require.EqualValues(t, len(image), n)
	require.Less(t, packed.Len(), len(image))

	var unpacked bytes.Buffer
	_, err = DecompressImage(&unpacked, bytes.NewReader(packed.Bytes()))
	require.NoError(t, err)
	require.Equal(t, image, unpacked.Bytes())

	rc, err := ImageReader(bytes.NewReader(packed.Bytes()))
	require.NoError(t, err)
	defer rc.Close()
	var streamed bytes.Buffer
	_, err = streamed.ReadFrom(rc)
	require.NoError(t, err)
	require.Equal(t, image, streamed.Bytes())
}
