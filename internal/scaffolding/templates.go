package scaffolding

// CollectionTemplate is a set of files making up a new collection. Paths
// and contents are text/template sources rendered with a TemplateContext.
type CollectionTemplate struct {
	Name        string
	Description string
	Files       []TemplateFile
}

// TemplateFile is one file of a template.
type TemplateFile struct {
	Path    string
	Content string
}

// TemplateContext holds the values templates are rendered with.
type TemplateContext struct {
	CollectionName string
	BaseURL        string
	Environment    string
	Ignore         []string
}

const brunoJSON = `{
  "version": "1",
  "name": {{ json .CollectionName }},
  "type": "collection",
  "ignore": [{{ range $i, $p := .Ignore }}{{ if $i }}, {{ end }}{{ json $p }}{{ end }}]
}
`

const collectionBru = `meta {
  name: {{ .CollectionName }}
}

auth {
  mode: none
}
`

const environmentBru = `vars {
  baseUrl: {{ .BaseURL }}
}

vars:secret [
  token
]
`

const dotEnv = `# Process environment for {{ .CollectionName }}. Not committed.
`

const folderBru = `meta {
  name: Health
  seq: 1
}
`

const pingBru = `meta {
  name: Ping
  type: http
  seq: 1
}

get {
  url: {{ "{{" }}baseUrl{{ "}}" }}/ping
  body: none
  auth: none
}

assert {
  res.status: eq 200
}
`

const createBru = `meta {
  name: Create item
  type: http
  seq: 2
}

post {
  url: {{ "{{" }}baseUrl{{ "}}" }}/items
  body: json
  auth: bearer
}

auth:bearer {
  token: {{ "{{" }}token{{ "}}" }}
}

body:json {
  {
    "name": "example"
  }
}
`

// BuiltinTemplates returns the templates bundled with the binary.
func BuiltinTemplates() map[string]CollectionTemplate {
	base := []TemplateFile{
		{Path: "bruno.json", Content: brunoJSON},
		{Path: "collection.bru", Content: collectionBru},
		{Path: "environments/{{ .Environment }}.bru", Content: environmentBru},
		{Path: ".env", Content: dotEnv},
	}

	example := append([]TemplateFile{}, base...)
	example = append(example,
		TemplateFile{Path: "health/folder.bru", Content: folderBru},
		TemplateFile{Path: "health/ping.bru", Content: pingBru},
		TemplateFile{Path: "items/create.bru", Content: createBru},
	)

	return map[string]CollectionTemplate{
		"minimal": {
			Name:        "minimal",
			Description: "Collection config, root file and one environment",
			Files:       base,
		},
		"example": {
			Name:        "example",
			Description: "Minimal plus a folder and two example requests",
			Files:       example,
		},
	}
}
