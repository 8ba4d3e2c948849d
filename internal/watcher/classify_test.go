package watcher

import (
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/conneroisu/bruwatch/internal/errors"
	"github.com/conneroisu/bruwatch/internal/types"
)

func TestClassify(t *testing.T) {
	root := filepath.FromSlash("/collections/api")
	p := func(rel string) string { return filepath.Join(root, filepath.FromSlash(rel)) }

	tests := []struct {
		name  string
		path  string
		isDir bool
		want  types.FileKind
	}{
		{"root dotenv", p(".env"), false, types.KindDotEnv},
		{"nested dotenv", p("users/.env"), false, types.KindOther},
		{"bruno config", p("bruno.json"), false, types.KindBrunoConfig},
		{"nested bruno config", p("users/bruno.json"), false, types.KindOther},
		{"environment", p("environments/foo.bru"), false, types.KindEnvironmentConfig},
		{"environment non bru", p("environments/notes.txt"), false, types.KindOther},
		{"nested environments dir", p("users/environments/foo.bru"), false, types.KindRequestFile},
		{"collection root", p("collection.bru"), false, types.KindCollectionRootFile},
		{"nested collection.bru", p("users/collection.bru"), false, types.KindRequestFile},
		{"folder meta top", p("users/folder.bru"), false, types.KindFolderMetaFile},
		{"folder meta deep", p("a/b/c/d/folder.bru"), false, types.KindFolderMetaFile},
		{"folder meta at root", p("folder.bru"), false, types.KindFolderMetaFile},
		{"request", p("users/get.bru"), false, types.KindRequestFile},
		{"request at root", p("ping.bru"), false, types.KindRequestFile},
		{"other", p("README.md"), false, types.KindOther},
		{"environments dir", p("environments"), true, types.KindEnvironmentsDirectory},
		{"folder", p("users"), true, types.KindDirectory},
		{"root itself", root, true, types.KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(root, tt.path, tt.isDir))
		})
	}
}

func TestClassifyEvent(t *testing.T) {
	c := types.CollectionRoot{UID: "c1", Pathname: "/c"}
	wf := ClassifyEvent(c, Event{Type: EventAddDir, Path: "/c/environments"})
	assert.Equal(t, types.KindEnvironmentsDirectory, wf.Kind)
	assert.Equal(t, "c1", wf.CollectionUID)
	assert.Equal(t, "environments", wf.Name())
}

func TestFilter(t *testing.T) {
	f := NewFilter("/c", []string{"dist", "./build/"})

	assert.False(t, f.Ignored("/c"))
	assert.False(t, f.Ignored("/c/users/get.bru"))
	assert.True(t, f.Ignored("/c/node_modules"))
	assert.True(t, f.Ignored("/c/a/node_modules/x.bru"))
	assert.True(t, f.Ignored("/c/.git/HEAD"))
	assert.False(t, f.Ignored("/c/.github/x.bru"))
	assert.True(t, f.Ignored("/c/dist"))
	assert.True(t, f.Ignored("/c/dist/a.bru"))
	assert.True(t, f.Ignored("/c/build/a.bru"))
	assert.False(t, f.Ignored("/c/builds/a.bru"))
	assert.True(t, f.Ignored("/elsewhere/a.bru"))
}

func TestWatchError(t *testing.T) {
	err := watchError(syscall.ENOSPC, "/c/users")
	assert.True(t, errors.IsResourceLimit(err))
	assert.True(t, errors.IsType(err, errors.ErrorTypeResourceLimit))

	err = watchError(syscall.EACCES, "/c/users")
	assert.False(t, errors.IsResourceLimit(err))
	assert.True(t, errors.IsType(err, errors.ErrorTypeIO))
}
