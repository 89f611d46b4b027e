package settings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Settings{}, got)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "settings.yaml"))
	want := Settings{
		CaptureDevice: "cap1",
		RenderDevice:  "ren1",
		ExclusiveMode: true,
		AutoStart:     false,
	}

	require.NoError(t, store.Save(want))
	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
