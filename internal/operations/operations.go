package operations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kebairia/snapdump/internal/database"
	"github.com/kebairia/snapdump/internal/logger"
	"github.com/kebairia/snapdump/internal/storage"
)

// ErrInvalidArchive is returned by Restore for an archive that did not unpack
// cleanly.
var ErrInvalidArchive = errors.New("archive is not restorable")

// ErrEmptyDump means the throwaway engine produced no SQL at all.
var ErrEmptyDump = errors.New("dump is empty")

// SnapshotError wraps a failure to capture the live engine's data directory.
type SnapshotError struct {
	Err error
}

func (e *SnapshotError) Error() string { return "snapshot failed: " + e.Err.Error() }

func (e *SnapshotError) Unwrap() error { return e.Err }

// DumpExtractionError wraps a failure in the throwaway engine.
type DumpExtractionError struct {
	Stage string // launch or dump
	Err   error
}

func (e *DumpExtractionError) Error() string {
	return fmt.Sprintf("dump extraction failed at %s: %v", e.Stage, e.Err)
}

func (e *DumpExtractionError) Unwrap() error { return e.Err }

// State is the client-side key/value store carried inside each archive.
type State interface {
	All(ctx context.Context) (map[string]string, error)
	SetAll(ctx context.Context, items map[string]string) error
}

// Option customises an Operator.
type Option func(*Operator)

// WithClock replaces time.Now, which names dumps and stamps metadata.
func WithClock(now func() time.Time) Option {
	return func(o *Operator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMetrics records dump and restore outcomes.
func WithMetrics(m *Metrics) Option {
	return func(o *Operator) {
		o.metrics = m
	}
}

// Operator runs dumps, exports and restores against one live engine.
type Operator struct {
	engine   database.Engine
	launcher database.Launcher
	state    State
	exports  storage.Store
	log      logger.Logger
	metrics  *Metrics
	now      func() time.Time
}

// New wires an Operator. exports may be nil when nothing is exported.
func New(
	engine database.Engine,
	launcher database.Launcher,
	state State,
	exports storage.Store,
	log logger.Logger,
	opts ...Option,
) *Operator {
	o := &Operator{
		engine:   engine,
		launcher: launcher,
		state:    state,
		exports:  exports,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
