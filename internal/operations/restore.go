package operations

import (
	"context"
	"fmt"

	"github.com/kebairia/snapdump/internal/archive"
	"github.com/kebairia/snapdump/internal/database"
)

// Restore wipes the live engine and replays the archive's dump, then writes
// the archived state items back. The reset commits before the replay starts,
// so a failed replay leaves an empty database.
func (o *Operator) Restore(ctx context.Context, res *archive.Result) (report *database.ResetReport, err error) {
	defer func() { o.metrics.observeRestore(err) }()

	if res == nil {
		return nil, ErrInvalidArchive
	}
	if !res.Valid() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArchive, res.Err())
	}
	log := o.log.With("file", res.Metadata.FileName)

	report, err = o.engine.Reset(ctx)
	if err != nil {
		return nil, fmt.Errorf("reset before restore: %w", err)
	}
	if err := o.engine.ExecScript(ctx, res.Dump); err != nil {
		log.Error("replay failed after reset", "error", err.Error())
		return report, fmt.Errorf("replay dump: %w", err)
	}
	if err := o.state.SetAll(ctx, res.Metadata.LocalStorageItems); err != nil {
		return report, fmt.Errorf("restore state items: %w", err)
	}

	log.Info("restore completed",
		"schemas_dropped", len(report.Schemas),
		"types_dropped", report.Types,
		"state_items", len(res.Metadata.LocalStorageItems),
	)
	return report, nil
}
