package store

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDecodeRecord(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{name: "valid", data: `{"content": "hello"}`, want: "hello"},
		{name: "empty content", data: `{"content": ""}`, want: ""},
		{name: "extra fields", data: `{"content": "x", "version": 3}`, want: "x"},
		{name: "invalid json", data: `{invalid json`, wantErr: true},
		{name: "empty file", data: ``, wantErr: true},
		{name: "missing content", data: `{"other": "x"}`, wantErr: true},
		{name: "null content", data: `{"content": null}`, wantErr: true},
		{name: "non-string content", data: `{"content": 42}`, wantErr: true},
		{name: "top-level array", data: `["content"]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeRecord([]byte(tt.data))
			if tt.wantErr {
				if !errors.Is(err, ErrCorrupt) {
					t.Fatalf("decodeRecord() error = %v, want ErrCorrupt", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeRecord() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("decodeRecord() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		backend string
		path    string
		wantErr bool
	}{
		{backend: BackendFile, path: filepath.Join(dir, "doc.json")},
		{backend: "", path: filepath.Join(dir, "default.json")},
		{backend: BackendSQLite, path: filepath.Join(dir, "doc.db")},
		{backend: BackendMemory},
		{backend: "redis", path: "x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			s, err := Open(tt.backend, tt.path)
			if tt.wantErr {
				if err == nil {
					s.Close()
					t.Fatal("Open() succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() failed: %v", err)
			}
			defer s.Close()

			if err := s.Save(context.Background(), "roundtrip"); err != nil {
				t.Fatalf("Save() failed: %v", err)
			}
			got, err := s.Load(context.Background())
			if err != nil {
				t.Fatalf("Load() failed: %v", err)
			}
			if got != "roundtrip" {
				t.Errorf("Load() = %q, want %q", got, "roundtrip")
			}
		})
	}
}

type brokenStore struct{ err error }

func (b brokenStore) Load(context.Context) (string, error) { return "", b.err }
func (b brokenStore) Save(context.Context, string) error   { return b.err }
func (b brokenStore) Close() error                         { return nil }

func TestLoadOrEmpty(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)

	got := LoadOrEmpty(context.Background(), NewMemoryStore("kept"), logger)
	if got != "kept" {
		t.Errorf("LoadOrEmpty() = %q, want %q", got, "kept")
	}

	buf.Reset()
	got = LoadOrEmpty(context.Background(), brokenStore{err: ErrCorrupt}, logger)
	if got != "" {
		t.Errorf("LoadOrEmpty() with corrupt store = %q, want empty", got)
	}
	if !strings.Contains(buf.String(), "corrupt") {
		t.Errorf("expected corrupt warning, got log %q", buf.String())
	}

	buf.Reset()
	got = LoadOrEmpty(context.Background(), brokenStore{err: os.ErrPermission}, logger)
	if got != "" {
		t.Errorf("LoadOrEmpty() with unreadable store = %q, want empty", got)
	}
	if !strings.Contains(buf.String(), "failed to load") {
		t.Errorf("expected load warning, got log %q", buf.String())
	}
}
