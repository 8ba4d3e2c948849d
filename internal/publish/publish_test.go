package publish

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/bruwatch/internal/interfaces"
	"github.com/conneroisu/bruwatch/internal/types"
)

func TestMultiSink(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	var seen int
	m := NewMultiSink(a, nil, interfaces.SinkFunc(func(types.Message) { seen++ }))
	m.Add(b)

	m.Publish(&types.LoadingStateUpdate{CollectionUID: "c1", IsLoading: true})

	assert.Len(t, a.Messages(), 1)
	assert.Len(t, b.Messages(), 1)
	assert.Equal(t, 1, seen)
}

func TestRecorderFilters(t *testing.T) {
	r := NewRecorder()
	r.Publish(&types.LoadingStateUpdate{CollectionUID: "c1", IsLoading: true})
	r.Publish(&types.TreeUpdate{Kind: types.UpdateAddFile})
	r.Publish(&types.LoadingStateUpdate{CollectionUID: "c2", IsLoading: true})
	r.Publish(&types.LoadingStateUpdate{CollectionUID: "c1", IsLoading: false})

	assert.Equal(t, []bool{true, false}, r.LoadingStates("c1"))
	require.Len(t, r.TreeUpdates(), 1)

	select {
	case <-r.Updated():
	default:
		t.Fatal("expected an update signal")
	}

	r.Reset()
	assert.Empty(t, r.Messages())
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleSink(&buf)

	c.Publish(&types.TreeUpdate{Kind: types.UpdateAddFile, Meta: types.FileMeta{Pathname: "/c/a.bru"}, Partial: true})
	c.Publish(&types.TreeUpdate{Kind: types.UpdateChange, Meta: types.FileMeta{Pathname: "/c/b.bru"}, Error: &types.FileError{Message: "bad"}})
	c.Publish(&types.LoadingStateUpdate{CollectionUID: "c1", IsLoading: false})
	c.Publish(&types.ProcessEnvUpdate{CollectionUID: "c1", ProcessEnvVariables: map[string]string{"A": "1"}})
	c.Publish(&types.BrunoConfigUpdate{CollectionUID: "c1", BrunoConfig: &types.BrunoConfig{Name: "api"}})
	c.Publish(&types.SnapshotHydration{CollectionUID: "c1"})
	c.Publish(&types.CommandResult{Command: "rename-item", OK: false, Error: "nope"})

	out := buf.String()
	assert.Contains(t, out, "/c/a.bru (partial)")
	assert.Contains(t, out, "/c/b.bru error: bad")
	assert.Contains(t, out, "c1 loaded")
	assert.Contains(t, out, "1 variables")
	assert.Contains(t, out, `"api"`)
	assert.Contains(t, out, "hydrate-ui")
	assert.Contains(t, out, "rename-item nope")
	assert.NotContains(t, out, "\x1b[", "no escape codes outside a terminal")
}
