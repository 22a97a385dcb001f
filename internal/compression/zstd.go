package compression

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// CompressImage streams src into dst as zstd. Used for data-directory images.
func CompressImage(dst io.Writer, src io.Reader) (int64, error) {
	writer, err := zstd.NewWriter(dst)
	if err != nil {
		return 0, fmt.Errorf("failed to create Zstandard writer: %w", err)
	}
	n, err := io.Copy(writer, src)
	if err != nil {
		_ = writer.Close()
		return n, fmt.Errorf("failed to compress image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return n, fmt.Errorf("failed to flush Zstandard writer: %w", err)
	}
	return n, nil
}

// DecompressImage streams the zstd data in src into dst.
func DecompressImage(dst io.Writer, src io.Reader) (int64, error) {
	reader, err := zstd.NewReader(src)
	if err != nil {
		return 0, fmt.Errorf("failed to create Zstandard reader: %w", err)
	}
	defer reader.Close()

	n, err := io.Copy(dst, reader)
	if err != nil {
		return n, fmt.Errorf("failed to decompress image: %w", err)
	}
	return n, nil
}

// ImageReader returns a reader over the decompressed contents of src.
// The caller must Close it.
func ImageReader(src io.Reader) (io.ReadCloser, error) {
	reader, err := zstd.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("failed to create Zstandard reader: %w", err)
	}
	return reader.IOReadCloser(), nil
}
