// Package storage keeps uploaded images on disk under unique names.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/peterbourgon/diskv"
)

// ErrInvalidName is returned for names that could escape the upload directory.
var ErrInvalidName = errors.New("invalid upload name")

const maxOriginalName = 64

// UploadStore persists uploads in a single flat directory.
type UploadStore struct {
	dir string
	kv  *diskv.Diskv
}

// NewUploadStore creates dir when needed.
func NewUploadStore(dir string) (*UploadStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	kv := diskv.New(diskv.Options{
		BasePath:     dir,
		Transform:    func(string) []string { return []string{} },
		CacheSizeMax: 0,
		FilePerm:     0o644,
		PathPerm:     0o755,
	})
	return &UploadStore{dir: dir, kv: kv}, nil
}

// Save writes data under a fresh name derived from originalName and returns it.
func (s *UploadStore) Save(originalName string, data []byte) (string, error) {
	name := fmt.Sprintf("temp_%s_%s", strings.ReplaceAll(uuid.NewString(), "-", ""), sanitize(originalName))
	if err := s.kv.Write(name, data); err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	return name, nil
}

// Read returns the stored bytes for name.
func (s *UploadStore) Read(name string) ([]byte, error) {
	if !validName(name) {
		return nil, ErrInvalidName
	}
	if !s.kv.Has(name) {
		return nil, os.ErrNotExist
	}
	return s.kv.Read(name)
}

// Remove deletes name. Callers treat failures as best effort.
func (s *UploadStore) Remove(name string) error {
	if !validName(name) {
		return ErrInvalidName
	}
	return s.kv.Erase(name)
}

// Dir returns the base directory.
func (s *UploadStore) Dir() string { return s.dir }

func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

func sanitize(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if len(out) > maxOriginalName {
		out = out[len(out)-maxOriginalName:]
	}
	if out == "" {
		return "upload"
	}
	return out
}
