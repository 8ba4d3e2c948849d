// Package interfaces provides the contracts between the sync engine and its
// collaborators. The engine depends only on these interfaces, so parsers,
// stores and transports can be replaced or mocked in tests.
package interfaces

import (
	"time"

	"github.com/conneroisu/bruwatch/internal/types"
)

// RequestParser parses request files.
type RequestParser interface {
	ParseRequest(text string) (*types.Request, error)
	// ParseMeta extracts name, type and sequence only.
	ParseMeta(text string) (*types.Request, error)
}

// Redactor implements the redact-then-reassemble strategy for request files
// with oversized bodies.
type Redactor interface {
	// ParseRedacted parses text with its body blocks taken out and restores
	// them into the result afterwards.
	ParseRedacted(text string) (*types.Request, error)
}

// Parser is the full structural parser for collection files.
type Parser interface {
	RequestParser
	Redactor
	ParseCollection(text string) (*types.Root, error)
	ParseFolder(text string) (*types.Root, error)
	ParseEnvironment(text string) (*types.Environment, error)
	ParseDotEnv(text string) (map[string]string, error)
}

// SecretStore holds encrypted values of secret environment variables.
type SecretStore interface {
	GetSecrets(collectionPath, environmentName string) ([]types.Secret, error)
	Decrypt(cipher string) (string, error)
}

// SnapshotStore holds the persisted UI state of collections.
type SnapshotStore interface {
	// GetSnapshot returns nil without error when nothing is stored.
	GetSnapshot(pathname string) (*types.Snapshot, error)
}

// ParseCache stores full request parses keyed by collection and file path.
// An entry is only returned when its modification time matches.
type ParseCache interface {
	Get(collectionPath, filePath string, modTime time.Time) (*types.Request, bool)
	Put(collectionPath, filePath string, modTime time.Time, req *types.Request) error
	Invalidate(collectionPath, filePath string) error
	Move(collectionPath, oldPath, newPath string) error
}

// Sink receives every message published to the UI.
type Sink interface {
	Publish(msg types.Message)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(msg types.Message)

// Publish implements Sink.
func (f SinkFunc) Publish(msg types.Message) {
	f(msg)
}
