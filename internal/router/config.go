package router

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"

	"github.com/conneroisu/bruwatch/internal/errors"
	"github.com/conneroisu/bruwatch/internal/types"
)

// DecodeBrunoConfig decodes the content of bruno.json and resolves the
// exists flag of every protobuf path against collectionPath.
func DecodeBrunoConfig(content []byte, collectionPath string) (*types.BrunoConfig, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, err
	}

	var cfg types.BrunoConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, err
	}

	if cfg.Protobuf != nil {
		resolveProtoPaths(cfg.Protobuf.ProtoFiles, collectionPath)
		resolveProtoPaths(cfg.Protobuf.ImportPaths, collectionPath)
	}
	return &cfg, nil
}

func resolveProtoPaths(paths []types.ProtoPath, collectionPath string) {
	for i := range paths {
		p := paths[i].Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(collectionPath, p)
		}
		_, err := os.Stat(p)
		paths[i].Exists = err == nil
	}
}

// loadBrunoConfig parses bruno.json. On failure the registry keeps the
// previous configuration and nothing is published.
func (r *Router) loadBrunoConfig(ctx context.Context, t Target, f types.WatchedFile) {
	content, err := os.ReadFile(f.Pathname)
	if err != nil {
		r.fail(ctx, t, f, errors.WrapIO(err, errors.ErrCodeReadFailed, f.Pathname, "failed to read bruno.json"), "Config file unreadable")
		return
	}
	cfg, err := DecodeBrunoConfig(content, t.Root.Pathname)
	if err != nil {
		r.fail(ctx, t, f, errors.WrapConfig(err, f.Pathname, "invalid bruno.json"), "Config file rejected, keeping previous")
		return
	}

	r.registry.SetBrunoConfig(t.Root.UID, cfg)
	r.publish(&types.BrunoConfigUpdate{CollectionUID: t.Root.UID, BrunoConfig: cfg})
}

// loadDotEnv parses the collection .env. On failure the previous
// variables stay in effect.
func (r *Router) loadDotEnv(ctx context.Context, t Target, f types.WatchedFile) {
	content, err := os.ReadFile(f.Pathname)
	if err != nil {
		r.fail(ctx, t, f, errors.WrapIO(err, errors.ErrCodeReadFailed, f.Pathname, "failed to read .env"), "Dotenv file unreadable")
		return
	}
	vars, err := r.parser.ParseDotEnv(string(content))
	if err != nil {
		r.fail(ctx, t, f, errors.WrapConfig(err, f.Pathname, "invalid .env"), "Dotenv file rejected, keeping previous")
		return
	}

	r.registry.SetProcessEnv(t.Root.UID, vars)
	copied := make(map[string]string, len(vars))
	for k, v := range vars {
		copied[k] = v
	}
	r.publish(&types.ProcessEnvUpdate{CollectionUID: t.Root.UID, ProcessEnvVariables: copied})
}
