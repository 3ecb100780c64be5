package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testFilePath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "document.json")
}

func TestFileStore_LoadMissing(t *testing.T) {
	s, err := NewFileStore(testFilePath(t))
	if err != nil {
		t.Fatalf("NewFileStore() failed: %v", err)
	}

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got != "" {
		t.Errorf("Load() = %q, want empty", got)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := testFilePath(t)
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() failed: %v", err)
	}

	content := "line one\nline two\n\t\"quoted\" <b>unicode ✓</b>"
	if err := s.Save(context.Background(), content); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	// A fresh store simulates a process restart.
	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() failed: %v", err)
	}
	got, err := reopened.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got != content {
		t.Errorf("Load() = %q, want %q", got, content)
	}
}

func TestFileStore_RecordFormat(t *testing.T) {
	path := testFilePath(t)
	s, _ := NewFileStore(path)

	if err := s.Save(context.Background(), "hello"); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("record is not valid JSON: %v", err)
	}
	if rec.Content != "hello" {
		t.Errorf("record content = %q, want %q", rec.Content, "hello")
	}
	if !strings.Contains(string(data), "\n  \"content\"") {
		t.Errorf("record is not indented: %s", data)
	}
}

func TestFileStore_SaveReplaces(t *testing.T) {
	path := testFilePath(t)
	s, _ := NewFileStore(path)
	ctx := context.Background()

	long := strings.Repeat("x", 10000)
	if err := s.Save(ctx, long); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := s.Save(ctx, "short"); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got != "short" {
		t.Errorf("Load() = %q, want %q", got, "short")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() failed: %v", err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only the record file, found %v", names)
	}
}

func TestFileStore_LoadCorrupt(t *testing.T) {
	path := testFilePath(t)
	if err := os.WriteFile(path, []byte("{invalid json"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	s, _ := NewFileStore(path)
	_, err := s.Load(context.Background())
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Load() error = %v, want ErrCorrupt", err)
	}

	if got := LoadOrEmpty(context.Background(), s, nil); got != "" {
		t.Errorf("LoadOrEmpty() = %q, want empty", got)
	}
}

func TestFileStore_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "document.json")
	s, _ := NewFileStore(path)

	if err := s.Save(context.Background(), "x"); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("record file not created: %v", err)
	}
}

func TestFileStore_CanceledContext(t *testing.T) {
	s, _ := NewFileStore(testFilePath(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Save(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("Save() error = %v, want context.Canceled", err)
	}
}

func TestNewFileStore_EmptyPath(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Error("NewFileStore(\"\") succeeded, want error")
	}
}
