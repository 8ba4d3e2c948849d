package types

// Request types as exposed to the UI.
const (
	RequestTypeHTTP    = "http-request"
	RequestTypeGraphQL = "graphql-request"
)

// Body modes that carry free-form text and may be redacted before parsing.
const (
	BodyJSON    = "json"
	BodyText    = "text"
	BodyXML     = "xml"
	BodySparql  = "sparql"
	BodyGraphQL = "graphql"
)

// KeyValue is a named entry in a params, headers, assertions or form list.
type KeyValue struct {
	UID     string `json:"uid,omitempty"`
	Name    string `json:"name"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
	// Type distinguishes query from path params.
	Type string `json:"type,omitempty"`
}

// Variable is a request or response variable.
type Variable struct {
	UID     string `json:"uid,omitempty"`
	Name    string `json:"name"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

// Vars groups pre-request and post-response variables.
type Vars struct {
	Req []Variable `json:"req"`
	Res []Variable `json:"res"`
}

// Script groups pre-request and post-response scripts.
type Script struct {
	Req string `json:"req,omitempty"`
	Res string `json:"res,omitempty"`
}

// Auth holds the auth mode and the values of its block.
type Auth struct {
	Mode   string            `json:"mode"`
	Values map[string]string `json:"values,omitempty"`
}

// GraphQLBody holds a GraphQL query and its variables.
type GraphQLBody struct {
	Query     string `json:"query"`
	Variables string `json:"variables,omitempty"`
}

// Body holds every body representation of a request. Only the one matching
// Mode is sent, but all parsed blocks are kept.
type Body struct {
	Mode           string       `json:"mode"`
	JSON           string       `json:"json,omitempty"`
	Text           string       `json:"text,omitempty"`
	XML            string       `json:"xml,omitempty"`
	Sparql         string       `json:"sparql,omitempty"`
	GraphQL        *GraphQLBody `json:"graphql,omitempty"`
	FormURLEncoded []KeyValue   `json:"formUrlEncoded,omitempty"`
	MultipartForm  []KeyValue   `json:"multipartForm,omitempty"`
}

// Field returns the text of a redactable body block.
func (b *Body) Field(mode string) string {
	switch mode {
	case BodyJSON:
		return b.JSON
	case BodyText:
		return b.Text
	case BodyXML:
		return b.XML
	case BodySparql:
		return b.Sparql
	case BodyGraphQL:
		if b.GraphQL == nil {
			return ""
		}
		return b.GraphQL.Query
	}
	return ""
}

// SetField sets the text of a redactable body block.
func (b *Body) SetField(mode, text string) {
	switch mode {
	case BodyJSON:
		b.JSON = text
	case BodyText:
		b.Text = text
	case BodyXML:
		b.XML = text
	case BodySparql:
		b.Sparql = text
	case BodyGraphQL:
		if b.GraphQL == nil {
			b.GraphQL = &GraphQLBody{}
		}
		b.GraphQL.Query = text
	}
}

// HTTPRequest is the request section of a parsed request file.
type HTTPRequest struct {
	Method     string     `json:"method"`
	URL        string     `json:"url"`
	Params     []KeyValue `json:"params"`
	Headers    []KeyValue `json:"headers"`
	Auth       Auth       `json:"auth"`
	Body       Body       `json:"body"`
	Script     Script     `json:"script"`
	Vars       Vars       `json:"vars"`
	Assertions []KeyValue `json:"assertions"`
	Tests      string     `json:"tests,omitempty"`
	Docs       string     `json:"docs,omitempty"`
}

// Example is a saved response example nested in a request file.
type Example struct {
	UID         string `json:"uid,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
}

// Request is the parsed form of a request file. A metadata-only parse
// fills Name, Type and Seq.
type Request struct {
	UID      string      `json:"uid"`
	Type     string      `json:"type"`
	Name     string      `json:"name"`
	Seq      int         `json:"seq"`
	Request  HTTPRequest `json:"request"`
	Examples []Example   `json:"examples,omitempty"`
}

// FolderMeta is the meta block of a folder.bru file.
type FolderMeta struct {
	Name string `json:"name,omitempty"`
	Seq  int    `json:"seq,omitempty"`
}

// RootRequest holds the request defaults shared by a folder or collection.
type RootRequest struct {
	Params  []KeyValue `json:"params,omitempty"`
	Headers []KeyValue `json:"headers"`
	Auth    Auth       `json:"auth"`
	Script  Script     `json:"script"`
	Vars    Vars       `json:"vars"`
	Tests   string     `json:"tests,omitempty"`
}

// Root is the parsed form of collection.bru and folder.bru.
type Root struct {
	Meta    *FolderMeta `json:"meta,omitempty"`
	Request RootRequest `json:"request"`
	Docs    string      `json:"docs,omitempty"`
}

// EnvVariable is a variable in an environment file.
type EnvVariable struct {
	UID     string `json:"uid,omitempty"`
	Name    string `json:"name"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
	Secret  bool   `json:"secret"`
	Type    string `json:"type"`
}

// Environment is the parsed form of an environments/*.bru file.
type Environment struct {
	UID       string        `json:"uid"`
	Name      string        `json:"name"`
	Variables []EnvVariable `json:"variables"`
}

// HasSecrets reports whether any variable is flagged secret.
func (e *Environment) HasSecrets() bool {
	for _, v := range e.Variables {
		if v.Secret {
			return true
		}
	}
	return false
}

// Secret is a stored, encrypted environment variable value.
type Secret struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// Snapshot is the persisted UI state of one collection.
type Snapshot struct {
	Pathname            string `yaml:"pathname" json:"pathname"`
	SelectedEnvironment string `yaml:"selectedEnvironment,omitempty" json:"selectedEnvironment,omitempty"`
}
