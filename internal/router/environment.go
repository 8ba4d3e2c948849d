package router

import (
	"context"
	"os"

	"github.com/conneroisu/bruwatch/internal/errors"
	"github.com/conneroisu/bruwatch/internal/types"
	"github.com/conneroisu/bruwatch/internal/uid"
)

// loadEnvironment parses an environment file and publishes it as
// addEnvironmentFile for both add and change; the stable uid lets the UI
// replace the existing entry.
func (r *Router) loadEnvironment(ctx context.Context, t Target, f types.WatchedFile) {
	content, err := os.ReadFile(f.Pathname)
	if err != nil {
		r.fail(ctx, t, f, errors.WrapIO(err, errors.ErrCodeReadFailed, f.Pathname, "failed to read environment"), "Environment file unreadable")
		return
	}
	env, err := r.parser.ParseEnvironment(string(content))
	if err != nil {
		r.fail(ctx, t, f, errors.WrapParse(err, f.Pathname, "invalid environment file"), "Environment file rejected")
		return
	}

	env.Name = trimExt(f.Pathname)
	env.UID = r.ids.Requests.GetOrCreate(f.Pathname)
	uid.HydrateEnvironment(env)

	if env.HasSecrets() {
		r.decryptSecrets(ctx, t, env)
	}

	r.publish(&types.TreeUpdate{
		Kind: types.UpdateAddEnvironmentFile,
		Meta: types.FileMeta{
			CollectionUID: t.Root.UID,
			Pathname:      f.Pathname,
			Name:          f.Name(),
		},
		Data: env,
	})
}

// decryptSecrets fills secret variables from the secret store. A value
// that cannot be decrypted is left empty and the variable is kept.
func (r *Router) decryptSecrets(ctx context.Context, t Target, env *types.Environment) {
	if r.secrets == nil {
		return
	}
	stored, err := r.secrets.GetSecrets(t.Root.Pathname, env.Name)
	if err != nil {
		r.errs.Handle(ctx, err, "Secret store unavailable", "environment", env.Name, "collection", t.Root.UID)
		return
	}

	for _, s := range stored {
		if s.Value == "" {
			continue
		}
		for i := range env.Variables {
			v := &env.Variables[i]
			if v.Name != s.Name || !v.Secret {
				continue
			}
			plain, err := r.secrets.Decrypt(s.Value)
			if err != nil {
				v.Value = ""
				serr := errors.NewSecretError("failed to decrypt secret", err).
					WithCollection(t.Root.UID).
					WithContext("environment", env.Name).
					WithContext("variable", v.Name)
				r.errs.Handle(ctx, serr, "Secret left without a value")
				break
			}
			v.Value = plain
			break
		}
	}
}

func (r *Router) unlinkEnvironment(_ context.Context, t Target, f types.WatchedFile) {
	r.publish(&types.TreeUpdate{
		Kind: types.UpdateUnlinkEnvironmentFile,
		Meta: types.FileMeta{
			CollectionUID: t.Root.UID,
			Pathname:      f.Pathname,
			Name:          f.Name(),
		},
		Data: &types.EnvironmentRef{
			UID:  r.releaseID(f.Pathname),
			Name: trimExt(f.Pathname),
		},
	})
}
