package client_test

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/steveyegge/livedoc/internal/auth"
	"github.com/steveyegge/livedoc/internal/client"
	"github.com/steveyegge/livedoc/internal/store"
	"github.com/steveyegge/livedoc/internal/syncserver"
)

func startServer(t *testing.T, secret string) (*syncserver.Engine, string) {
	t.Helper()

	logger := log.New(io.Discard, "", 0)
	engine := syncserver.NewEngine(syncserver.EngineConfig{
		Store:  store.NewMemoryStore(""),
		Gate:   auth.NewGate(secret),
		Logger: logger,
	})
	srv := syncserver.NewServer(&syncserver.Config{Logger: logger}, engine)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Stop()
		ts.Close()
	})
	return engine, ts.URL
}

func TestPublish(t *testing.T) {
	engine, url := startServer(t, "letmein")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := client.Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	defer c.Close()

	if err := c.Publish(ctx, "letmein", "hello world"); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}
	if got := engine.Content(); got != "hello world" {
		t.Errorf("engine content = %q, want %q", got, "hello world")
	}

	loaded, err := client.Load(ctx, url)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded != "hello world" {
		t.Errorf("Load() = %q, want %q", loaded, "hello world")
	}
}

func TestPublish_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		secret string
	}{
		{"wrong password", "letmein"},
		{"misconfigured", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, url := startServer(t, tt.secret)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			c, err := client.Dial(ctx, url)
			if err != nil {
				t.Fatalf("Dial() failed: %v", err)
			}
			defer c.Close()

			err = c.Publish(ctx, "guess", "vandalism")
			if !errors.Is(err, client.ErrRejected) {
				t.Fatalf("Publish() = %v, want ErrRejected", err)
			}
			if engine.Content() != "" {
				t.Errorf("rejected publish changed content to %q", engine.Content())
			}
		})
	}
}

func TestVerify(t *testing.T) {
	_, url := startServer(t, "letmein")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := client.Verify(ctx, url, "letmein")
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if !ok.OK {
		t.Errorf("Verify(correct) = %+v, want ok", ok)
	}

	bad, err := client.Verify(ctx, url, "nope")
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if bad.OK {
		t.Errorf("Verify(wrong) = %+v, want not ok", bad)
	}
}
