package operations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"

	"github.com/kebairia/snapdump/internal/archive"
	"github.com/kebairia/snapdump/internal/storage"
)

const archiveContentType = "application/zip"

// Export is an archive handed to the export store.
type Export struct {
	FileName string
	URL      string
	Size     int

	handle storage.Handle
}

// Release frees the stored archive. Callers must call it once the URL is no
// longer needed.
func (e *Export) Release(ctx context.Context) error {
	if e == nil || e.handle == nil {
		return nil
	}
	return e.handle.Release(ctx)
}

// NewMetadata describes res for its archive sidecar, including a copy of
// every state item.
func (o *Operator) NewMetadata(ctx context.Context, res *DumpResult, schemaVersion string) (archive.DumpMetadata, error) {
	items, err := o.state.All(ctx)
	if err != nil {
		return archive.DumpMetadata{}, fmt.Errorf("read state items: %w", err)
	}
	return archive.DumpMetadata{
		FileName:          res.FileName(),
		SchemaVersion:     schemaVersion,
		SHA256:            res.SHA256,
		LocalStorageItems: maps.Clone(items),
		Compressed:        res.Compressed,
		Timestamp:         o.now().UnixMilli(),
	}, nil
}

// ExportToZip packs payload with meta and places the archive in the export
// store as <baseFileName>.zip.
func (o *Operator) ExportToZip(ctx context.Context, payload string, meta archive.DumpMetadata, baseFileName string) (*Export, error) {
	if o.exports == nil {
		return nil, errors.New("no export store configured")
	}
	data, err := archive.Pack(payload, meta)
	if err != nil {
		return nil, fmt.Errorf("pack archive: %w", err)
	}

	fileName := baseFileName + ".zip"
	h, err := o.exports.Put(ctx, fileName, archiveContentType, data)
	if err != nil {
		return nil, fmt.Errorf("store %s in %s: %w", fileName, o.exports.Name(), err)
	}
	o.log.Info("archive exported",
		"file", fileName,
		"store", o.exports.Name(),
		"bytes", len(data),
	)
	return &Export{FileName: fileName, URL: h.URL(), Size: len(data), handle: h}, nil
}

// DecompressZipFile reads a whole archive from r and unpacks it.
func DecompressZipFile(r io.Reader) (*archive.Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	return archive.Unpack(data)
}

// DecompressZipPath unpacks the archive at path.
func DecompressZipPath(path string) (*archive.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	return DecompressZipFile(f)
}
