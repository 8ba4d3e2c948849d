// Package secrets stores the encrypted values of secret environment
// variables outside the collection, keyed by collection path, environment
// name and variable name.
package secrets

import (
	"path/filepath"

	"github.com/conneroisu/bruwatch/internal/errors"
	"github.com/conneroisu/bruwatch/internal/filestore"
	"github.com/conneroisu/bruwatch/internal/types"
)

type document struct {
	Collections []collectionSecrets `yaml:"collections"`
}

type collectionSecrets struct {
	Path         string               `yaml:"path"`
	Environments []environmentSecrets `yaml:"environments"`
}

type environmentSecrets struct {
	Name    string         `yaml:"name"`
	Secrets []types.Secret `yaml:"secrets"`
}

// FileStore is a YAML secret store.
type FileStore struct {
	file   *filestore.File
	cipher *Cipher
}

// NewFileStore opens the store at path. passphrase may be empty, in which
// case every Decrypt fails softly.
func NewFileStore(path, passphrase string) (*FileStore, error) {
	c, err := NewCipher(passphrase)
	if err != nil {
		return nil, err
	}
	return &FileStore{file: filestore.New(path), cipher: c}, nil
}

// GetSecrets returns the stored values of an environment. A missing store
// or environment yields no secrets.
func (s *FileStore) GetSecrets(collectionPath, environmentName string) ([]types.Secret, error) {
	var doc document
	if err := s.file.Load(&doc); err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeReadFailed, s.file.Path(), "failed to read secret store")
	}
	env := doc.find(collectionPath, environmentName, false)
	if env == nil {
		return nil, nil
	}
	return append([]types.Secret(nil), env.Secrets...), nil
}

// Decrypt returns the plaintext of a stored value.
func (s *FileStore) Decrypt(value string) (string, error) {
	return s.cipher.Decrypt(value)
}

// Set encrypts value and stores it for a variable.
func (s *FileStore) Set(collectionPath, environmentName, name, value string) error {
	stored, err := s.cipher.Encrypt(value)
	if err != nil {
		return err
	}
	var doc document
	err = s.file.Update(&doc, func() error {
		env := doc.find(collectionPath, environmentName, true)
		for i := range env.Secrets {
			if env.Secrets[i].Name == name {
				env.Secrets[i].Value = stored
				return nil
			}
		}
		env.Secrets = append(env.Secrets, types.Secret{Name: name, Value: stored})
		return nil
	})
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, s.file.Path(), "failed to write secret store")
	}
	return nil
}

// find returns the entry of an environment, creating it when create is set.
func (d *document) find(collectionPath, environmentName string, create bool) *environmentSecrets {
	key := filepath.Clean(collectionPath)
	for i := range d.Collections {
		c := &d.Collections[i]
		if filepath.Clean(c.Path) != key {
			continue
		}
		for j := range c.Environments {
			if c.Environments[j].Name == environmentName {
				return &c.Environments[j]
			}
		}
		if !create {
			return nil
		}
		c.Environments = append(c.Environments, environmentSecrets{Name: environmentName})
		return &c.Environments[len(c.Environments)-1]
	}
	if !create {
		return nil
	}
	d.Collections = append(d.Collections, collectionSecrets{
		Path:         key,
		Environments: []environmentSecrets{{Name: environmentName}},
	})
	last := &d.Collections[len(d.Collections)-1]
	return &last.Environments[0]
}
