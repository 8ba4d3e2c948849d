package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/bruwatch/internal/types"
)

func TestSnapshotStore(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "ui-state-snapshot.yml"))

	snap, err := s.GetSnapshot("/c")
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, s.Save(types.Snapshot{Pathname: "/c", SelectedEnvironment: "dev"}))
	require.NoError(t, s.Save(types.Snapshot{Pathname: "/d", SelectedEnvironment: "prod"}))
	require.NoError(t, s.Save(types.Snapshot{Pathname: "/c/", SelectedEnvironment: "staging"}))

	snap, err = s.GetSnapshot("/c")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "staging", snap.SelectedEnvironment)

	require.NoError(t, s.Remove("/c"))
	snap, err = s.GetSnapshot("/c")
	require.NoError(t, err)
	assert.Nil(t, snap)

	snap, err = s.GetSnapshot("/d")
	require.NoError(t, err)
	assert.Equal(t, "prod", snap.SelectedEnvironment)
}

func TestSnapshotStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ui.yml")
	require.NoError(t, os.WriteFile(path, []byte("collections: {"), 0o600))

	_, err := NewFileStore(path).GetSnapshot("/c")
	assert.Error(t, err)
}
