package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromZapCarriesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core)).With("engine", "postgres")

	log.Info("dump started", "file", "pglite-dump-1.sql")
	log.Debug("snapshot taken")

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "dump started", entries[0].Message)
	require.Equal(t, "postgres", entries[0].ContextMap()["engine"])
	require.Equal(t, "pglite-dump-1.sql", entries[0].ContextMap()["file"])
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	_, err := Init(Options{Level: "loud"})
	require.Error(t, err)
}

func TestGlobalBeforeInitIsSafe(t *testing.T) {
	require.NotPanics(t, func() {
		NewNop().Warn("ignored")
		Global().Info("ignored")
	})
}
