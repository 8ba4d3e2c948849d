// Package scaffolding creates new collections on disk from built-in
// templates.
package scaffolding

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/conneroisu/bruwatch/internal/validation"
)

// GenerateOptions holds options for collection generation.
type GenerateOptions struct {
	Dir         string
	Template    string
	Name        string
	BaseURL     string
	Environment string
	Ignore      []string
	// Force overwrites existing files.
	Force bool
}

// CollectionGenerator renders collection templates.
type CollectionGenerator struct {
	templates map[string]CollectionTemplate
}

// NewCollectionGenerator creates a generator with the built-in templates.
func NewCollectionGenerator() *CollectionGenerator {
	return &CollectionGenerator{templates: BuiltinTemplates()}
}

// Generate writes the template into opts.Dir and returns the created
// paths. Existing files are left alone unless opts.Force is set, and
// nothing is written when any would be overwritten.
func (g *CollectionGenerator) Generate(opts GenerateOptions) ([]string, error) {
	if opts.Template == "" {
		opts.Template = "minimal"
	}
	tmpl, ok := g.templates[opts.Template]
	if !ok {
		return nil, fmt.Errorf("template '%s' not found", opts.Template)
	}
	if opts.Name == "" {
		opts.Name = filepath.Base(filepath.Clean(opts.Dir))
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:8080"
	}
	if opts.Environment == "" {
		opts.Environment = "local"
	}
	if err := validation.ValidateItemName(opts.Environment); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if opts.Ignore == nil {
		opts.Ignore = []string{"node_modules", ".git"}
	}

	ctx := TemplateContext{
		CollectionName: opts.Name,
		BaseURL:        opts.BaseURL,
		Environment:    opts.Environment,
		Ignore:         opts.Ignore,
	}

	type rendered struct {
		path    string
		content []byte
	}
	files := make([]rendered, 0, len(tmpl.Files))
	for _, f := range tmpl.Files {
		name, err := render(f.Path, f.Path, ctx)
		if err != nil {
			return nil, err
		}
		rel := filepath.FromSlash(string(name))
		if strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
			return nil, fmt.Errorf("template path escapes the collection: %s", rel)
		}
		content, err := render(f.Path, f.Content, ctx)
		if err != nil {
			return nil, err
		}
		files = append(files, rendered{path: filepath.Join(opts.Dir, rel), content: content})
	}

	if !opts.Force {
		for _, f := range files {
			if _, err := os.Stat(f.path); err == nil {
				return nil, fmt.Errorf("%s already exists (use force to overwrite)", f.path)
			}
		}
	}

	created := make([]string, 0, len(files))
	for _, f := range files {
		if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
			return created, fmt.Errorf("failed to create directory: %w", err)
		}
		if err := os.WriteFile(f.path, f.content, 0o644); err != nil {
			return created, fmt.Errorf("failed to write %s: %w", f.path, err)
		}
		created = append(created, f.path)
	}
	return created, nil
}

// TemplateInfo describes an available template.
type TemplateInfo struct {
	Name        string
	Description string
	Files       int
}

// ListTemplates returns the available templates sorted by name.
func (g *CollectionGenerator) ListTemplates() []TemplateInfo {
	infos := make([]TemplateInfo, 0, len(g.templates))
	for name, t := range g.templates {
		infos = append(infos, TemplateInfo{Name: name, Description: t.Description, Files: len(t.Files)})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

var funcs = template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}

func render(name, text string, ctx TemplateContext) ([]byte, error) {
	t, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return nil, fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
