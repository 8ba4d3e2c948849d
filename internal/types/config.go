package types

// ProtoPath is a protobuf file or import path referenced by bruno.json.
type ProtoPath struct {
	Path    string `mapstructure:"path" json:"path"`
	Enabled *bool  `mapstructure:"enabled" json:"enabled,omitempty"`
	Exists  bool   `mapstructure:"-" json:"exists"`
}

// ProtobufConfig is the protobuf section of bruno.json.
type ProtobufConfig struct {
	ProtoFiles  []ProtoPath `mapstructure:"protoFiles" json:"protoFiles,omitempty"`
	ImportPaths []ProtoPath `mapstructure:"importPaths" json:"importPaths,omitempty"`
}

// BrunoConfig is the decoded bruno.json of a collection. Keys the watcher
// does not interpret are kept in Extra and sent through untouched.
type BrunoConfig struct {
	Version  string          `mapstructure:"version" json:"version,omitempty"`
	Name     string          `mapstructure:"name" json:"name"`
	Type     string          `mapstructure:"type" json:"type,omitempty"`
	Ignore   []string        `mapstructure:"ignore" json:"ignore,omitempty"`
	Protobuf *ProtobufConfig `mapstructure:"protobuf" json:"protobuf,omitempty"`
	Extra    map[string]any  `mapstructure:",remain" json:"extra,omitempty"`
}
