// Package store provides durable persistence for the shared document.
//
// Every backend stores exactly one record. A completed Save survives a
// process crash immediately after it returns, and a crash during Save leaves
// either the old or the new record in place, never a mix of the two.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
)

// ErrCorrupt is returned by Load when the persisted record exists but cannot
// be decoded. Callers treat it as "no prior document".
var ErrCorrupt = errors.New("persisted record is corrupt")

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Store reads and writes the persisted document.
type Store interface {
	// Load returns the persisted content. A store that has never been
	// written returns "" and a nil error.
	Load(ctx context.Context) (string, error)

	// Save durably replaces the persisted content.
	Save(ctx context.Context, content string) error

	// Close releases resources held by the store.
	Close() error
}

// Record is the persisted representation of the document.
type Record struct {
	Content string `json:"content"`
}

// decodeRecord parses a persisted record. A record whose content field is
// missing, null, or not a string is corrupt.
func decodeRecord(data []byte) (string, error) {
	var raw struct {
		Content *string `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if raw.Content == nil {
		return "", fmt.Errorf("%w: missing content field", ErrCorrupt)
	}
	return *raw.Content, nil
}

// Open creates the store for the named backend. The path is ignored by the
// memory backend.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(path)
	case BackendSQLite:
		return OpenSQLite(path)
	case BackendMemory:
		return NewMemoryStore(""), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// LoadOrEmpty loads the persisted content, falling back to an empty document
// on any error. Startup never fails because of the store.
func LoadOrEmpty(ctx context.Context, s Store, logger *log.Logger) string {
	if logger == nil {
		logger = log.Default()
	}

	content, err := s.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			logger.Printf("Warning: ignoring corrupt document record: %v", err)
		} else {
			logger.Printf("Warning: failed to load document, starting empty: %v", err)
		}
		return ""
	}

	logger.Printf("Loaded document (%d bytes)", len(content))
	return content
}
