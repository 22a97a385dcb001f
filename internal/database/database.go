package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrTimeout       = errors.New("operation timed out")
	ErrEngineClosed  = errors.New("engine is not open")
	ErrEmptySnapshot = errors.New("snapshot image is empty")
)

// Snapshot is an opaque image of a cluster's data directory. Image holds a
// zstd-compressed tar stream as produced by pg_basebackup.
type Snapshot struct {
	Image   []byte
	TakenAt time.Time
}

// Engine is the live database handle.
type Engine interface {
	// DumpDataDir captures a point-in-time image of the data directory.
	DumpDataDir(ctx context.Context) (*Snapshot, error)
	// ExecScript runs a multi-statement SQL script.
	ExecScript(ctx context.Context, script string) error
	// Reset drops every user schema and enum type in one transaction.
	Reset(ctx context.Context) (*ResetReport, error)
	Close() error
}

// Launcher boots throwaway engines from snapshots.
type Launcher interface {
	Launch(ctx context.Context, snap *Snapshot) (Instance, error)
}

// Instance is a throwaway engine. It is used for exactly one dump and then closed.
type Instance interface {
	// Dump returns a plain SQL script reconstructing the instance's contents.
	Dump(ctx context.Context, fileName string) (string, error)
	Close() error
}

// Tx is the part of *sql.Tx the reset routine needs.
type Tx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
