package bru

import (
	"strconv"
	"strings"

	"github.com/subosito/gotenv"

	"github.com/conneroisu/bruwatch/internal/errors"
	"github.com/conneroisu/bruwatch/internal/types"
)

var methods = map[string]bool{
	"get": true, "post": true, "put": true, "delete": true, "patch": true,
	"options": true, "head": true, "connect": true, "trace": true,
}

// Parser implements the structural parser contract for .bru files. It holds
// no state and is safe for concurrent use.
type Parser struct{}

// New returns a parser.
func New() *Parser {
	return &Parser{}
}

// ParseRequest parses a request file.
func (p *Parser) ParseRequest(text string) (*types.Request, error) {
	blocks, err := scan(text)
	if err != nil {
		return nil, err
	}
	return buildRequest(blocks)
}

// ParseMeta extracts the name, type and sequence of a request without
// parsing the rest of the file. Only lines up to the end of the meta block
// are read.
func (p *Parser) ParseMeta(text string) (*types.Request, error) {
	req := &types.Request{Type: types.RequestTypeHTTP, Seq: 1}

	lines := splitLines(text)
	for i := 0; i < len(lines); i++ {
		tag, closing, _, ok := header(lines[i])
		if !ok || tag != "meta" || closing != "}" {
			continue
		}
		b := block{tag: tag, line: i + 1}
		for j := i + 1; j < len(lines); j++ {
			if strings.TrimRight(lines[j], " \t") == "}" {
				m, err := b.dict()
				if err != nil {
					return nil, err
				}
				applyMeta(req, m)
				return req, nil
			}
			b.lines = append(b.lines, lines[j])
		}
		return nil, parseError(i+1, "block %q is not closed", tag)
	}
	return req, nil
}

func applyMeta(req *types.Request, m map[string]string) {
	req.Name = m["name"]
	req.Type = requestType(m["type"])
	req.Seq = sequence(m["seq"])
}

func requestType(t string) string {
	if t == "graphql" {
		return types.RequestTypeGraphQL
	}
	return types.RequestTypeHTTP
}

func sequence(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 1
	}
	return n
}

func keyValues(b block, typ string) ([]types.KeyValue, error) {
	ps, err := b.pairs()
	if err != nil {
		return nil, err
	}
	out := make([]types.KeyValue, 0, len(ps))
	for _, p := range ps {
		out = append(out, types.KeyValue{Name: p.key, Value: p.value, Enabled: p.enabled, Type: typ})
	}
	return out, nil
}

func variables(b block) ([]types.Variable, error) {
	ps, err := b.pairs()
	if err != nil {
		return nil, err
	}
	out := make([]types.Variable, 0, len(ps))
	for _, p := range ps {
		out = append(out, types.Variable{Name: p.key, Value: p.value, Enabled: p.enabled})
	}
	return out, nil
}

// common holds the blocks shared by requests, folders and the collection
// root.
type common struct {
	params  []types.KeyValue
	headers []types.KeyValue
	auth    types.Auth
	script  types.Script
	vars    types.Vars
	tests   string
	docs    string
}

// applyCommon consumes b if it is a shared block.
func (c *common) applyCommon(b block) (bool, error) {
	var err error
	switch {
	case b.tag == "query" || b.tag == "params:query":
		var kv []types.KeyValue
		kv, err = keyValues(b, "query")
		c.params = append(c.params, kv...)
	case b.tag == "params:path":
		var kv []types.KeyValue
		kv, err = keyValues(b, "path")
		c.params = append(c.params, kv...)
	case b.tag == "headers":
		c.headers, err = keyValues(b, "")
	case b.tag == "auth":
		var m map[string]string
		m, err = b.dict()
		if mode, ok := m["mode"]; ok {
			c.auth.Mode = mode
		}
	case strings.HasPrefix(b.tag, "auth:"):
		var m map[string]string
		m, err = b.dict()
		if c.auth.Values == nil {
			c.auth.Values = make(map[string]string, len(m))
		}
		for k, v := range m {
			c.auth.Values[k] = v
		}
	case b.tag == "script:pre-request":
		c.script.Req = b.text()
	case b.tag == "script:post-response":
		c.script.Res = b.text()
	case b.tag == "vars" || b.tag == "vars:pre-request":
		c.vars.Req, err = variables(b)
	case b.tag == "vars:post-response":
		c.vars.Res, err = variables(b)
	case b.tag == "tests":
		c.tests = b.text()
	case b.tag == "docs":
		c.docs = b.text()
	default:
		return false, nil
	}
	return true, err
}

func buildRequest(blocks []block) (*types.Request, error) {
	req := &types.Request{Type: types.RequestTypeHTTP, Seq: 1}
	http := &req.Request
	http.Auth.Mode = "none"
	http.Body.Mode = "none"

	var c common
	for _, b := range blocks {
		handled, err := c.applyCommon(b)
		if err != nil {
			return nil, err
		}
		if handled {
			continue
		}

		switch {
		case b.tag == "meta":
			m, err := b.dict()
			if err != nil {
				return nil, err
			}
			applyMeta(req, m)
		case methods[b.tag]:
			m, err := b.dict()
			if err != nil {
				return nil, err
			}
			http.Method = strings.ToUpper(b.tag)
			http.URL = m["url"]
			if v, ok := m["body"]; ok {
				http.Body.Mode = v
			}
			if v, ok := m["auth"]; ok {
				http.Auth.Mode = v
			}
		case b.tag == "body":
			http.Body.JSON = b.text()
		case b.tag == "body:json", b.tag == "body:text", b.tag == "body:xml",
			b.tag == "body:sparql", b.tag == "body:graphql":
			http.Body.SetField(strings.TrimPrefix(b.tag, "body:"), b.text())
		case b.tag == "body:graphql:vars":
			if http.Body.GraphQL == nil {
				http.Body.GraphQL = &types.GraphQLBody{}
			}
			http.Body.GraphQL.Variables = b.text()
		case b.tag == "body:form-urlencoded":
			kv, err := keyValues(b, "")
			if err != nil {
				return nil, err
			}
			http.Body.FormURLEncoded = kv
		case b.tag == "body:multipart-form":
			kv, err := keyValues(b, "")
			if err != nil {
				return nil, err
			}
			http.Body.MultipartForm = kv
		case b.tag == "assert":
			kv, err := keyValues(b, "")
			if err != nil {
				return nil, err
			}
			http.Assertions = kv
		case b.tag == "example":
			ex, err := parseExample(b)
			if err != nil {
				return nil, err
			}
			req.Examples = append(req.Examples, ex)
		}
		// Unknown blocks (settings, docs of newer formats) are skipped.
	}

	http.Params = nonNil(c.params)
	http.Headers = nonNil(c.headers)
	http.Assertions = nonNil(http.Assertions)
	http.Script = c.script
	http.Vars = types.Vars{Req: nonNilVars(c.vars.Req), Res: nonNilVars(c.vars.Res)}
	http.Tests = c.tests
	http.Docs = c.docs
	if c.auth.Values != nil {
		http.Auth.Values = c.auth.Values
	}
	if c.auth.Mode != "" {
		http.Auth.Mode = c.auth.Mode
	}
	return req, nil
}

// parseExample parses a nested example block. Its content is itself a
// sequence of blocks: meta (name, description) and response:status (code).
func parseExample(b block) (types.Example, error) {
	inner, err := scan(b.text())
	if err != nil {
		return types.Example{}, errors.Wrap(err, errors.ErrorTypeParse, errors.ErrCodeParseFailed, "example block")
	}
	var ex types.Example
	for _, ib := range inner {
		switch ib.tag {
		case "meta":
			m, err := ib.dict()
			if err != nil {
				return types.Example{}, err
			}
			ex.Name = m["name"]
			ex.Description = m["description"]
		case "response:status":
			m, err := ib.dict()
			if err != nil {
				return types.Example{}, err
			}
			ex.Status = m["code"]
		}
	}
	return ex, nil
}

func nonNil(kv []types.KeyValue) []types.KeyValue {
	if kv == nil {
		return []types.KeyValue{}
	}
	return kv
}

func nonNilVars(v []types.Variable) []types.Variable {
	if v == nil {
		return []types.Variable{}
	}
	return v
}

// ParseCollection parses collection.bru.
func (p *Parser) ParseCollection(text string) (*types.Root, error) {
	return parseRoot(text, false)
}

// ParseFolder parses folder.bru.
func (p *Parser) ParseFolder(text string) (*types.Root, error) {
	return parseRoot(text, true)
}

func parseRoot(text string, folder bool) (*types.Root, error) {
	blocks, err := scan(text)
	if err != nil {
		return nil, err
	}

	root := &types.Root{}
	var c common
	for _, b := range blocks {
		handled, err := c.applyCommon(b)
		if err != nil {
			return nil, err
		}
		if handled || b.tag != "meta" || !folder {
			continue
		}
		m, err := b.dict()
		if err != nil {
			return nil, err
		}
		root.Meta = &types.FolderMeta{Name: m["name"]}
		if s, ok := m["seq"]; ok {
			root.Meta.Seq = sequence(s)
		}
	}

	if c.auth.Mode == "" {
		c.auth.Mode = "none"
	}
	root.Request = types.RootRequest{
		Params:  c.params,
		Headers: nonNil(c.headers),
		Auth:    c.auth,
		Script:  c.script,
		Vars:    types.Vars{Req: nonNilVars(c.vars.Req), Res: nonNilVars(c.vars.Res)},
		Tests:   c.tests,
	}
	root.Docs = c.docs
	return root, nil
}

// ParseEnvironment parses an environment file. Secret variables are listed
// by name only; their values live in the secret store.
func (p *Parser) ParseEnvironment(text string) (*types.Environment, error) {
	blocks, err := scan(text)
	if err != nil {
		return nil, err
	}

	env := &types.Environment{Variables: []types.EnvVariable{}}
	for _, b := range blocks {
		switch b.tag {
		case "vars":
			ps, err := b.pairs()
			if err != nil {
				return nil, err
			}
			for _, p := range ps {
				env.Variables = append(env.Variables, types.EnvVariable{
					Name: p.key, Value: p.value, Enabled: p.enabled, Type: "text",
				})
			}
		case "vars:secret":
			for _, p := range b.list() {
				env.Variables = append(env.Variables, types.EnvVariable{
					Name: p.key, Enabled: p.enabled, Secret: true, Type: "text",
				})
			}
		}
	}
	return env, nil
}

// ParseDotEnv parses a .env file.
func (p *Parser) ParseDotEnv(text string) (map[string]string, error) {
	env, err := gotenv.Unmarshal(text)
	if err != nil {
		return nil, errors.WrapConfig(err, types.DotEnvName, "parse .env")
	}
	return map[string]string(env), nil
}
