package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func allBytes() []byte {
	b := make([]byte, 256)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestBase64RoundTrip(t *testing.T) {
	tests := map[string][]byte{
		"empty":     {},
		"zero":      {0},
		"max":       {255},
		"mixed":     {0, 255, 0, 255, 10},
		"all bytes": allBytes(),
		"text":      []byte("SELECT 1;"),
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			out, err := Base64ToBytes(BytesToBase64(in))
			require.NoError(t, err)
			require.True(t, bytes.Equal(in, out), "got %v want %v", out, in)
		})
	}
}

func TestBytesToBase64MatchesBtoa(t *testing.T) {
	// btoa("hi") == "aGk="
	require.Equal(t, "aGk=", BytesToBase64([]byte("hi")))
	require.Equal(t, "", BytesToBase64(nil))
}

func TestBase64ToBytesRejectsGarbage(t *testing.T) {
	_, err := Base64ToBytes("not*base64")
	require.Error(t, err)
}

func TestBufferAdaptersCopy(t *testing.T) {
	src := []byte{1, 2, 3}
	buf := BytesToBuffer(src)
	src[0] = 9
	require.Equal(t, []byte{1, 2, 3}, buf.Bytes())

	out := BufferToBytes(buf)
	out[1] = 9
	require.Equal(t, []byte{1, 2, 3}, buf.Bytes())

	require.Equal(t, []byte{}, BufferToBytes(nil))
	require.Equal(t, []byte{}, BufferToBytes(BytesToBuffer(nil)))
}
