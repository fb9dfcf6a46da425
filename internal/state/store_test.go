package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadMissingFileStartsAtOne(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "state.txt"), zap.NewNop())
	require.Equal(t, 1, store.Load())
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.txt")
	store := New(path, zap.NewNop())

	require.NoError(t, store.Save(42))
	require.Equal(t, 42, store.Load())

	// No temp file left behind after the rename.
	_, err := os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestSaveOverwritesPreviousOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.txt")
	store := New(path, zap.NewNop())

	require.NoError(t, store.Save(10))
	require.NoError(t, store.Save(99))
	require.Equal(t, 99, store.Load())
}

func TestLoadDegradesToOne(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"garbage", "not a number"},
		{"empty", ""},
		{"zero", "0"},
		{"negative", "-7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.txt")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			store := New(path, zap.NewNop())
			require.Equal(t, 1, store.Load())
		})
	}
}

func TestLoadTrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.txt")
	require.NoError(t, os.WriteFile(path, []byte("  17\n"), 0o644))
	store := New(path, zap.NewNop())
	require.Equal(t, 17, store.Load())
}
