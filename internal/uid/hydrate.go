package uid

import "github.com/conneroisu/bruwatch/internal/types"

// HydrateRequest assigns the stable id of path to req and fresh ids to its
// nested list entries. Response examples get their (path, index) ids.
func (c *Caches) HydrateRequest(req *types.Request, path string) {
	if req == nil {
		return
	}
	req.UID = c.Requests.GetOrCreate(path)

	r := &req.Request
	keyValueIDs(r.Params)
	keyValueIDs(r.Headers)
	keyValueIDs(r.Assertions)
	keyValueIDs(r.Body.FormURLEncoded)
	keyValueIDs(r.Body.MultipartForm)
	variableIDs(r.Vars.Req)
	variableIDs(r.Vars.Res)

	uids := make([]string, len(req.Examples))
	for i := range req.Examples {
		if req.Examples[i].UID == "" {
			req.Examples[i].UID = c.Examples.GetOrCreate(path, i)
		}
		uids[i] = req.Examples[i].UID
	}
	c.Examples.Sync(path, uids)
}

// HydrateRoot assigns fresh ids to the list entries of a collection or
// folder root.
func HydrateRoot(root *types.Root) {
	if root == nil {
		return
	}
	keyValueIDs(root.Request.Params)
	keyValueIDs(root.Request.Headers)
	variableIDs(root.Request.Vars.Req)
	variableIDs(root.Request.Vars.Res)
}

// HydrateEnvironment assigns fresh ids to an environment and its variables.
func HydrateEnvironment(env *types.Environment) {
	if env == nil {
		return
	}
	if env.UID == "" {
		env.UID = NewID()
	}
	for i := range env.Variables {
		if env.Variables[i].UID == "" {
			env.Variables[i].UID = NewID()
		}
	}
}

func keyValueIDs(kvs []types.KeyValue) {
	for i := range kvs {
		if kvs[i].UID == "" {
			kvs[i].UID = NewID()
		}
	}
}

func variableIDs(vars []types.Variable) {
	for i := range vars {
		if vars[i].UID == "" {
			vars[i].UID = NewID()
		}
	}
}
