package seed

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kebairia/snapdump/internal/logger"
)

// InitKey is the state-store flag recording that the seed scripts ran.
const InitKey = "pglite.init"

// Runner executes a SQL script against the live engine.
type Runner interface {
	ExecScript(ctx context.Context, script string) error
}

// Flags is the slice of the state store seeding reads and writes.
type Flags interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Loader supplies the schema and data scripts.
type Loader interface {
	Schema() (string, error)
	Data() (string, error)
}

// FileLoader reads both scripts from disk. An empty DataPath means no data script.
type FileLoader struct {
	SchemaPath string
	DataPath   string
}

func (l FileLoader) Schema() (string, error) {
	if l.SchemaPath == "" {
		return "", errors.New("seed schema file is not configured")
	}
	return readScript(l.SchemaPath)
}

func (l FileLoader) Data() (string, error) {
	if l.DataPath == "" {
		return "", nil
	}
	return readScript(l.DataPath)
}

func readScript(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read seed script: %w", err)
	}
	return string(b), nil
}

// Apply runs the schema then the data script unless the init flag is already
// "true". The flag is set only after both scripts succeed. It reports whether
// the scripts ran.
func Apply(ctx context.Context, runner Runner, flags Flags, loader Loader, log logger.Logger) (bool, error) {
	done, _, err := flags.Get(ctx, InitKey)
	if err != nil {
		return false, fmt.Errorf("read init flag: %w", err)
	}
	if done == "true" {
		log.Debug("seed skipped", "reason", "already initialised")
		return false, nil
	}

	schema, err := loader.Schema()
	if err != nil {
		return false, err
	}
	data, err := loader.Data()
	if err != nil {
		return false, err
	}

	log.Info("seed started")
	if err := runner.ExecScript(ctx, schema); err != nil {
		return false, fmt.Errorf("apply schema: %w", err)
	}
	if data != "" {
		if err := runner.ExecScript(ctx, data); err != nil {
			return false, fmt.Errorf("apply data: %w", err)
		}
	}
	if err := flags.Set(ctx, InitKey, "true"); err != nil {
		return false, fmt.Errorf("set init flag: %w", err)
	}
	log.Info("seed completed")
	return true, nil
}
