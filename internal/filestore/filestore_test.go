package filestore

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Counter int      `yaml:"counter"`
	Names   []string `yaml:"names,omitempty"`
}

func TestLoadMissing(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "missing.yml"))
	d := doc{Counter: 7}
	require.NoError(t, f.Load(&d))
	assert.Equal(t, 7, d.Counter)
}

func TestUpdateThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.yml")
	f := New(path)

	var d doc
	require.NoError(t, f.Update(&d, func() error {
		d.Counter = 1
		d.Names = append(d.Names, "a")
		return nil
	}))

	var got doc
	require.NoError(t, New(path).Load(&got))
	assert.Equal(t, doc{Counter: 1, Names: []string{"a"}}, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestUpdateFailureWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.yml")
	f := New(path)

	var d doc
	err := f.Update(&d, func() error { return errors.New("nope") })
	assert.EqualError(t, err, "nope")
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestConcurrentUpdates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.yml")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var d doc
			assert.NoError(t, New(path).Update(&d, func() error {
				d.Counter++
				return nil
			}))
		}()
	}
	wg.Wait()

	var d doc
	require.NoError(t, New(path).Load(&d))
	assert.Equal(t, 10, d.Counter)
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.yml")
	require.NoError(t, os.WriteFile(path, []byte("counter: [unclosed"), 0o600))

	var d doc
	assert.Error(t, New(path).Load(&d))
}
