package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/steveyegge/livedoc/internal/auth"
	"github.com/steveyegge/livedoc/internal/config"
	"github.com/steveyegge/livedoc/internal/store"
)

func TestVerdict(t *testing.T) {
	tests := []struct {
		ok      bool
		errText string
		want    auth.Result
	}{
		{true, "", auth.Authorized},
		{false, auth.ErrDenied.Error(), auth.Denied},
		{false, auth.ErrMisconfigured.Error(), auth.Misconfigured},
		{false, "something else", auth.Denied},
	}

	for _, tt := range tests {
		if got := verdict(tt.ok, tt.errText); got != tt.want {
			t.Errorf("verdict(%v, %q) = %v, want %v", tt.ok, tt.errText, got, tt.want)
		}
	}
}

func TestReadContent_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("line one\nline two\n"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	got, err := readContent(path)
	if err != nil {
		t.Fatalf("readContent() failed: %v", err)
	}
	if got != "line one\nline two\n" {
		t.Errorf("readContent() = %q", got)
	}

	if _, err := readContent(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("readContent() should fail for a missing file")
	}
}

func TestDump(t *testing.T) {
	ctx := context.Background()

	for _, backend := range []string{store.BackendFile, store.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), config.DefaultStorePath(backend))

			st, err := store.Open(backend, path)
			if err != nil {
				t.Fatalf("Open() failed: %v", err)
			}
			if err := st.Save(ctx, "persisted text"); err != nil {
				t.Fatalf("Save() failed: %v", err)
			}
			if err := st.Close(); err != nil {
				t.Fatalf("Close() failed: %v", err)
			}

			cfg := &config.Config{Store: config.StoreConfig{Backend: backend, Path: path}}
			got, err := dump(ctx, cfg)
			if err != nil {
				t.Fatalf("dump() failed: %v", err)
			}
			if got != "persisted text" {
				t.Errorf("dump() = %q, want %q", got, "persisted text")
			}
		})
	}
}

func TestDump_Memory(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Backend: store.BackendMemory}}
	if _, err := dump(context.Background(), cfg); err == nil {
		t.Error("dump() should refuse the memory backend")
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"serve": false, "push": false, "tail": false, "check": false, "config": false, "dump": false, "bench": false}

	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}
