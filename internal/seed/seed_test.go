package seed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kebairia/snapdump/internal/logger"
	"github.com/kebairia/snapdump/internal/state"
)

type fakeRunner struct {
	scripts []string
	failOn  int // 1-based call that fails; 0 never
}

func (r *fakeRunner) ExecScript(_ context.Context, script string) error {
	r.scripts = append(r.scripts, script)
	if r.failOn == len(r.scripts) {
		return errors.New("syntax error at or near \"CREAT\"")
	}
	return nil
}

type staticLoader struct{ schema, data string }

func (l staticLoader) Schema() (string, error) { return l.schema, nil }
func (l staticLoader) Data() (string, error)   { return l.data, nil }

func newStore(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.Open(context.Background(), state.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestApplyRunsOnce(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	runner := &fakeRunner{}
	loader := staticLoader{schema: "CREATE TABLE actor (id int);", data: "INSERT INTO actor VALUES (1);"}

	ran, err := Apply(ctx, runner, store, loader, logger.NewNop())
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, []string{loader.schema, loader.data}, runner.scripts)

	v, ok, err := store.Get(ctx, InitKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "true", v)

	ran, err = Apply(ctx, runner, store, loader, logger.NewNop())
	require.NoError(t, err)
	require.False(t, ran)
	require.Len(t, runner.scripts, 2)
}

func TestApplyFailureLeavesFlagUnset(t *testing.T) {
	tests := []struct {
		name   string
		failOn int
	}{
		{name: "schema", failOn: 1},
		{name: "data", failOn: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			runner := &fakeRunner{failOn: tt.failOn}

			ran, err := Apply(ctx, runner, store, staticLoader{schema: "s", data: "d"}, logger.NewNop())
			require.Error(t, err)
			require.False(t, ran)
			require.Contains(t, err.Error(), tt.name)

			_, ok, err := store.Get(ctx, InitKey)
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestApplySkipsEmptyData(t *testing.T) {
	runner := &fakeRunner{}
	_, err := Apply(context.Background(), runner, newStore(t), staticLoader{schema: "s"}, logger.NewNop())
	require.NoError(t, err)
	require.Equal(t, []string{"s"}, runner.scripts)
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.sql")
	require.NoError(t, os.WriteFile(schemaPath, []byte("CREATE TABLE film (id int);"), 0o600))

	l := FileLoader{SchemaPath: schemaPath}
	schema, err := l.Schema()
	require.NoError(t, err)
	require.Equal(t, "CREATE TABLE film (id int);", schema)
	data, err := l.Data()
	require.NoError(t, err)
	require.Empty(t, data)

	_, err = FileLoader{}.Schema()
	require.Error(t, err)
	_, err = FileLoader{SchemaPath: schemaPath, DataPath: filepath.Join(dir, "missing.sql")}.Data()
	require.ErrorIs(t, err, os.ErrNotExist)
}
