package validation

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateItemPath(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "collections", "api")

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{name: "file in root", path: filepath.Join(root, "get.bru")},
		{name: "nested", path: filepath.Join(root, "users", "list.bru")},
		{name: "empty", path: "", wantErr: "empty"},
		{name: "relative", path: "users/list.bru", wantErr: "absolute"},
		{name: "root itself", path: root, wantErr: "collection root"},
		{name: "root with slash", path: root + string(filepath.Separator), wantErr: "collection root"},
		{name: "sibling", path: filepath.Join(filepath.Dir(root), "other", "x.bru"), wantErr: "traversal"},
		{name: "escapes via dots", path: root + string(filepath.Separator) + ".." + string(filepath.Separator) + "x.bru", wantErr: "traversal"},
		{name: "prefix sibling", path: root + "-copy" + string(filepath.Separator) + "x.bru", wantErr: "traversal"},
		{name: "nul byte", path: filepath.Join(root, "a\x00.bru"), wantErr: "NUL"},
		{name: "dotted name inside", path: filepath.Join(root, "..hidden.bru")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateItemPath(root, tt.path)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateItemName(t *testing.T) {
	valid := []string{"list.bru", "Get Users.bru", "v2", "ünïcode.bru", ".hidden"}
	for _, name := range valid {
		assert.NoError(t, ValidateItemName(name), name)
	}

	invalid := []string{"", ".", "..", "a/b", `a\b`, "a:b.bru", "what?.bru", "tab\there", "trailing.", "trailing "}
	for _, name := range invalid {
		assert.Error(t, ValidateItemName(name), name)
	}
}

func TestValidateRename(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "collections", "api")
	file := filepath.Join(root, "a.bru")

	assert.NoError(t, ValidateRename(root, file, filepath.Join(root, "b.bru"), false))
	assert.NoError(t, ValidateRename(root, file, filepath.Join(root, "B.BRU"), false))
	assert.NoError(t, ValidateRename(root, filepath.Join(root, "users"), filepath.Join(root, "people"), true))

	assert.ErrorContains(t, ValidateRename(root, file, filepath.Join(root, "b.json"), false), "extension")
	assert.ErrorContains(t, ValidateRename(root, root, filepath.Join(root, "x"), true), "collection root")
	assert.Error(t, ValidateRename(root, file, filepath.Join(root, "b?.bru"), false))
	assert.Error(t, ValidateRename(root, file, filepath.Join(filepath.Dir(root), "b.bru"), false))
}

func FuzzValidateItemPath(f *testing.F) {
	root := filepath.Join(string(filepath.Separator), "collections", "api")
	f.Add(filepath.Join(root, "a.bru"))
	f.Add(root + "/../../etc/passwd")
	f.Add(root + "-evil/x.bru")
	f.Add("relative.bru")
	f.Add("")
	f.Add(root + "/a\x00b")

	f.Fuzz(func(t *testing.T, path string) {
		if err := ValidateItemPath(root, path); err != nil {
			return
		}
		rel, err := filepath.Rel(root, filepath.Clean(path))
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			t.Errorf("accepted path outside root: %q", path)
		}
	})
}
