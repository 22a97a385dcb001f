package operations

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/kebairia/snapdump/internal/archive"
	"github.com/kebairia/snapdump/internal/compression"
)

// DumpResult is one finished dump.
type DumpResult struct {
	Dump         string // plain SQL, or base64 gzip when Compressed
	BaseFileName string // pglite-dump-<epoch ms>
	Size         string // e.g. "1,234.5KB"
	SizeBytes    int    // length of the plain SQL
	SHA256       string // of the plain SQL
	Compressed   bool
}

// FileName is the payload entry name used inside archives.
func (r *DumpResult) FileName() string {
	return r.BaseFileName + ".sql"
}

// CreateDump snapshots the live engine, boots the snapshot in a throwaway
// engine and dumps it as SQL. The live engine is only touched by the snapshot.
// Failures are returned as is and never retried.
func (o *Operator) CreateDump(ctx context.Context, compress bool) (res *DumpResult, err error) {
	start := o.now()
	baseFileName := fmt.Sprintf("pglite-dump-%d", start.UnixMilli())
	log := o.log.With("dump", baseFileName)
	defer func() {
		size := 0
		if res != nil {
			size = res.SizeBytes
		}
		o.metrics.observeDump(o.now().Sub(start), size, err)
		if err != nil {
			log.Error("dump failed", "error", err.Error())
		}
	}()

	snap, err := o.engine.DumpDataDir(ctx)
	if err != nil {
		return nil, &SnapshotError{Err: err}
	}

	inst, err := o.launcher.Launch(ctx, snap)
	if err != nil {
		return nil, &DumpExtractionError{Stage: "launch", Err: err}
	}
	defer func() {
		if cerr := inst.Close(); cerr != nil {
			log.Warn("throwaway engine close failed", "error", cerr.Error())
		}
	}()

	dump, err := inst.Dump(ctx, baseFileName+".sql")
	if err != nil {
		return nil, &DumpExtractionError{Stage: "dump", Err: err}
	}
	if dump == "" {
		return nil, &DumpExtractionError{Stage: "dump", Err: ErrEmptyDump}
	}

	res = &DumpResult{
		Dump:         dump,
		BaseFileName: baseFileName,
		SizeBytes:    len(dump),
		Size:         FormatSize(len(dump)),
		SHA256:       archive.SHA256Hex(dump),
	}
	if compress {
		res.Dump, err = compression.Compress(dump)
		if err != nil {
			return nil, fmt.Errorf("compress dump: %w", err)
		}
		res.Compressed = true
	}

	log.Info("dump created",
		"size", res.Size,
		"compressed", res.Compressed,
		"duration", o.now().Sub(start).String(),
	)
	return res, nil
}

// FormatSize renders a byte count in kilobytes the way an en-US locale
// prints numbers: grouped thousands, at most three fraction digits.
func FormatSize(sizeBytes int) string {
	// toLocaleString rounds ties away from zero; x/text rounds them to even.
	kb := math.Round(float64(sizeBytes)/1024*1000) / 1000
	p := message.NewPrinter(language.English)
	return p.Sprint(number.Decimal(kb, number.MaxFractionDigits(3))) + "KB"
}
