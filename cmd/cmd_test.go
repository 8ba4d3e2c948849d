package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/bruwatch/internal/config"
	"github.com/conneroisu/bruwatch/internal/parsecache"
	"github.com/conneroisu/bruwatch/internal/secrets"
	"github.com/conneroisu/bruwatch/internal/testutils"
	"github.com/conneroisu/bruwatch/internal/types"
)

// isolate points every store at a temp dir and resets viper afterwards.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	viper.Reset()
	viper.Set("cache.path", filepath.Join(dir, "cache.db"))
	viper.Set("secrets.path", filepath.Join(dir, "secrets.yml"))
	viper.Set("snapshot.path", filepath.Join(dir, "snapshot.yml"))
	t.Cleanup(viper.Reset)
	return dir
}

func TestResolveRoots(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	testutils.WriteFile(t, file, "x")

	roots, err := resolveRoots([]string{dir})
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, dir, roots[0].Pathname)
	assert.NotEmpty(t, roots[0].UID)

	again, err := resolveRoots([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, roots[0].UID, again[0].UID, "ids are stable across runs")

	_, err = resolveRoots([]string{file})
	assert.ErrorContains(t, err, "not a directory")

	_, err = resolveRoots([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}

func TestClassifyTree(t *testing.T) {
	root := t.TempDir()
	testutils.WriteFile(t, filepath.Join(root, "bruno.json"), `{"name":"api"}`)
	testutils.WriteFile(t, filepath.Join(root, ".env"), "A=1")
	testutils.WriteFile(t, filepath.Join(root, "collection.bru"), "meta {\n  name: api\n}\n")
	testutils.WriteFile(t, filepath.Join(root, "environments", "dev.bru"), "vars {\n}\n")
	testutils.WriteFile(t, filepath.Join(root, "users", "folder.bru"), "meta {\n  name: Users\n}\n")
	testutils.WriteFile(t, filepath.Join(root, "users", "list.bru"), "meta {\n  name: list\n}\n")
	testutils.WriteFile(t, filepath.Join(root, "notes.txt"), "hi")
	testutils.WriteFile(t, filepath.Join(root, "node_modules", "pkg", "x.bru"), "")
	testutils.WriteFile(t, filepath.Join(root, "scratch", "tmp.bru"), "")

	entries, err := classifyTree(root, []string{"scratch"}, false)
	require.NoError(t, err)

	got := make(map[string]string)
	for _, e := range entries {
		got[filepath.ToSlash(e.Path)] = e.Kind
	}
	assert.Equal(t, map[string]string{
		"bruno.json":           types.KindBrunoConfig.String(),
		".env":                 types.KindDotEnv.String(),
		"collection.bru":       types.KindCollectionRootFile.String(),
		"environments":         types.KindEnvironmentsDirectory.String(),
		"environments/dev.bru": types.KindEnvironmentConfig.String(),
		"users":                types.KindDirectory.String(),
		"users/folder.bru":     types.KindFolderMetaFile.String(),
		"users/list.bru":       types.KindRequestFile.String(),
	}, got)

	all, err := classifyTree(root, nil, true)
	require.NoError(t, err)
	var paths []string
	for _, e := range all {
		paths = append(paths, filepath.ToSlash(e.Path))
	}
	assert.Contains(t, paths, "notes.txt")
	assert.Contains(t, paths, "scratch/tmp.bru")
	for _, p := range paths {
		assert.False(t, strings.HasPrefix(p, "node_modules"), p)
	}
}

func TestWriteClassifyTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeClassifyTable(&buf, []classified{{Path: "a.bru", Kind: "request"}}))
	assert.Contains(t, buf.String(), "KIND")
	assert.Contains(t, buf.String(), "request  a.bru")
}

func TestVersionCommandJSON(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	versionFormat = "json"
	defer func() { versionFormat = "text" }()
	require.NoError(t, runVersionCommand(cmd, nil))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Contains(t, out, "version")
	assert.Contains(t, out, "is_release")
}

func TestVersionCommandBadFormat(t *testing.T) {
	versionFormat = "xml"
	defer func() { versionFormat = "text" }()
	assert.Error(t, runVersionCommand(&cobra.Command{}, nil))
}

func TestSecretsSet(t *testing.T) {
	dir := isolate(t)
	viper.Set("secrets.key", "correct horse battery staple")
	collection := t.TempDir()

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	cmd.SetIn(strings.NewReader("from-stdin\n"))

	require.NoError(t, runSecretsSet(cmd, []string{collection, "dev", "token", "s3cr3t"}))
	require.NoError(t, runSecretsSet(cmd, []string{collection, "dev", "other"}))
	assert.Contains(t, buf.String(), "Stored token")

	store, err := secrets.NewFileStore(filepath.Join(dir, "secrets.yml"), "correct horse battery staple")
	require.NoError(t, err)
	stored, err := store.GetSecrets(collection, "dev")
	require.NoError(t, err)
	require.Len(t, stored, 2)

	values := map[string]string{}
	for _, s := range stored {
		plain, err := store.Decrypt(s.Value)
		require.NoError(t, err)
		values[s.Name] = plain
	}
	assert.Equal(t, map[string]string{"token": "s3cr3t", "other": "from-stdin"}, values)
}

func TestSecretsSetRequiresKey(t *testing.T) {
	isolate(t)
	err := runSecretsSet(&cobra.Command{}, []string{t.TempDir(), "dev", "token", "x"})
	assert.ErrorContains(t, err, "secrets.key")
}

func TestCacheCommands(t *testing.T) {
	isolate(t)

	var buf bytes.Buffer
	cacheStatsCmd.SetOut(&buf)
	cacheClearCmd.SetOut(&buf)
	defer cacheStatsCmd.SetOut(nil)
	defer cacheClearCmd.SetOut(nil)

	require.NoError(t, cacheStatsCmd.RunE(cacheStatsCmd, nil))
	assert.Contains(t, buf.String(), "cache.db")

	require.NoError(t, cacheClearCmd.RunE(cacheClearCmd, nil))
	assert.Contains(t, buf.String(), "Cache cleared")
}

func TestCacheClearOneCollection(t *testing.T) {
	dir := isolate(t)
	keep := filepath.Join(dir, "keep")
	drop := filepath.Join(dir, "drop")
	mod := time.Unix(1700000000, 0)

	store, err := parsecache.Open(filepath.Join(dir, "cache.db"), 0, nil)
	require.NoError(t, err)
	req := &types.Request{Name: "list"}
	require.NoError(t, store.Put(keep, filepath.Join(keep, "a.bru"), mod, req))
	require.NoError(t, store.Put(drop, filepath.Join(drop, "a.bru"), mod, req))
	require.NoError(t, store.Close())

	var buf bytes.Buffer
	cacheClearCmd.SetOut(&buf)
	defer cacheClearCmd.SetOut(nil)
	require.NoError(t, cacheClearCmd.RunE(cacheClearCmd, []string{drop}))
	assert.Contains(t, buf.String(), "Cache cleared for "+drop)

	store, err = parsecache.Open(filepath.Join(dir, "cache.db"), 0, nil)
	require.NoError(t, err)
	defer store.Close()
	_, ok := store.Get(drop, filepath.Join(drop, "a.bru"), mod)
	assert.False(t, ok)
	_, ok = store.Get(keep, filepath.Join(keep, "a.bru"), mod)
	assert.True(t, ok)
}

func TestCacheDisabled(t *testing.T) {
	isolate(t)
	viper.Set("cache.enabled", false)
	assert.ErrorContains(t, cacheStatsCmd.RunE(cacheStatsCmd, nil), "disabled")
}

func TestBuildAppWithoutServer(t *testing.T) {
	isolate(t)
	watchNoServer = true
	defer func() { watchNoServer = false }()

	cfg, err := loadConfig()
	require.NoError(t, err)
	a, err := buildApp(cfg, newLogger(cfg.Log))
	require.NoError(t, err)
	defer a.close()

	assert.Nil(t, a.hub)
	assert.NotNil(t, a.watcher)
	assert.NotNil(t, a.cache)
	assert.NotNil(t, a.pool, "worker threads are on by default")
}

func TestBuildAppFollowsRegistry(t *testing.T) {
	isolate(t)

	cfg, err := loadConfig()
	require.NoError(t, err)
	a, err := buildApp(cfg, newLogger(cfg.Log))
	require.NoError(t, err)
	defer a.close()

	require.NotNil(t, a.hub)
	defer a.hub.Shutdown(context.Background())
	assert.NotNil(t, a.events)
}

func TestApplyWatchFlags(t *testing.T) {
	isolate(t)
	viper.Set("server.port", 4000)

	flags := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	flags.Bool("polling", false, "")
	flags.String("host", "", "")
	flags.Int("port", 0, "")
	flags.Bool("sync", false, "")
	require.NoError(t, flags.Parse([]string{"--host", "0.0.0.0", "--sync", "--polling"}))

	applyWatchFlags(flags)
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 4000, cfg.Server.Port, "unset flags keep the configured value")
	assert.False(t, cfg.Parsing.WorkerThreads)
	assert.True(t, cfg.Watcher.ForcePolling)
}

func TestReadBrunoConfig(t *testing.T) {
	root := t.TempDir()
	r := types.CollectionRoot{UID: "c1", Pathname: root}
	logger := newLogger(config.LogConfig{Level: "error"})

	assert.Nil(t, readBrunoConfig(context.Background(), logger, r))

	testutils.WriteFile(t, filepath.Join(root, "bruno.json"), `{"name":"api","ignore":["node_modules","dist"]}`)
	cfg := readBrunoConfig(context.Background(), logger, r)
	require.NotNil(t, cfg)
	assert.Equal(t, []string{"node_modules", "dist"}, cfg.Ignore)

	testutils.WriteFile(t, filepath.Join(root, "bruno.json"), `{not json`)
	assert.Nil(t, readBrunoConfig(context.Background(), logger, r))
}
