package persistence

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/fitstreak/internal/config"
	"example.com/fitstreak/internal/persistence/memory"
	"example.com/fitstreak/internal/persistence/sqlite"
)

func TestOpenMemory(t *testing.T) {
	backend, err := Open(context.Background(), config.Config{StoreDriver: config.DriverMemory}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer backend.Close()

	require.IsType(t, &memory.Store{}, backend.Store)
	require.Nil(t, backend.Pool)
	require.Nil(t, backend.Outbox)
}

func TestOpenSQLiteFile(t *testing.T) {
	cfg := config.Config{StoreDriver: config.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "streaks.db")}
	backend, err := Open(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer backend.Close()

	group, err := backend.Store.GetGroup(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, group)

	require.IsType(t, &sqlite.OutboxQueue{}, backend.Outbox)
	pending, err := backend.Outbox.Pending(context.Background())
	require.NoError(t, err)
	require.Zero(t, pending)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.Config{StoreDriver: "mongo"}, slog.Default())
	require.Error(t, err)
}
