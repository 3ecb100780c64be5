package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/steveyegge/livedoc/internal/auth"
	"github.com/steveyegge/livedoc/internal/config"
	"github.com/steveyegge/livedoc/internal/document"
	"github.com/steveyegge/livedoc/internal/logging"
	"github.com/steveyegge/livedoc/internal/registry"
	"github.com/steveyegge/livedoc/internal/store"
	"github.com/steveyegge/livedoc/internal/syncserver"
	"github.com/steveyegge/livedoc/internal/ui"
	"github.com/steveyegge/livedoc/internal/watcher"
)

var serveFlags = map[string]string{
	"host":    "host",
	"port":    "port",
	"backend": "store.backend",
	"store":   "store.path",
	"watch":   "store.watch",
	"index":   "server.index_file",
	"log":     "log.file",
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "server",
	Short:   "Start the sync server",
	Long: `Start the document sync server.

Endpoints:
  /ws       WebSocket sync channel
  /load     current document (GET)
  /verify   password check (POST)
  /health   liveness and status
  /metrics  Prometheus metrics
  /         index.html when present, otherwise an info page

The password comes from LIVEDOC_PASSWORD (or DEV_PASSWORD) or the config
file. Without one the server runs read-only and says so to clients.

Example usage:
  livedoc serve                          # port 8000, document.json
  livedoc serve --port 9000 --watch      # reload when document.json is edited
  livedoc serve --backend sqlite         # persist to document.db`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd, serveFlags)
		if err != nil {
			fatalf("%v", err)
		}

		if err := runServe(cfg); err != nil {
			fatalf("%v", err)
		}
	},
}

func runServe(cfg *config.Config) error {
	out, err := logging.Open(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer out.Close()
	logger := out.Logger("livedoc")

	st, err := store.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Printf("Warning: failed to close store: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	doc := document.New(store.LoadOrEmpty(ctx, st, out.Logger("store")))

	engine := syncserver.NewEngine(syncserver.EngineConfig{
		Document: doc,
		Store:    st,
		Gate:     auth.NewGate(cfg.Password),
		Registry: registry.New(&registry.Config{
			SendTimeout: cfg.Server.SendTimeout,
			Logger:      out.Logger("registry"),
		}),
		Logger: out.Logger("engine"),
	})

	if !cfg.PasswordConfigured() {
		fmt.Fprintf(os.Stderr, "%s No password configured: clients can read but not edit\n", ui.RenderWarn("⚠"))
		fmt.Fprintf(os.Stderr, "   Set LIVEDOC_PASSWORD to enable editing\n")
	}

	server := syncserver.NewServer(&syncserver.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		SendTimeout:     cfg.Server.SendTimeout,
		MaxMessageBytes: cfg.Server.MaxMessageBytes,
		OutboxSize:      cfg.Server.OutboxSize,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		IndexFile:       cfg.Server.IndexFile,
		Logger:          out.Logger("server"),
	}, engine)

	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	if cfg.Store.Watch {
		fs, ok := st.(*store.FileStore)
		if !ok {
			_ = server.Stop()
			return fmt.Errorf("store.watch requires the file backend")
		}
		w, err := watcher.New(fs.Path(), engine, &watcher.Config{Logger: out.Logger("watcher")})
		if err != nil {
			_ = server.Stop()
			return err
		}
		if err := w.Start(); err != nil {
			_ = server.Stop()
			return err
		}
		defer w.Stop()
	}

	addr := server.GetAddr()
	fmt.Printf("%s Sync server started on http://%s\n", ui.RenderPass("✓"), addr)
	fmt.Printf("   WebSocket endpoint: %s\n", ui.RenderAccent("ws://"+addr+"/ws"))
	fmt.Printf("   Store: %s %s\n", cfg.Store.Backend, ui.RenderMuted(storeLocation(cfg)))
	fmt.Println("\nPress Ctrl+C to stop...")

	<-ctx.Done()

	fmt.Println("\nShutting down sync server...")
	if err := server.Stop(); err != nil {
		return fmt.Errorf("error during shutdown: %w", err)
	}
	fmt.Println("Sync server stopped")
	return nil
}

func storeLocation(cfg *config.Config) string {
	if cfg.Store.Backend == store.BackendMemory {
		return "(not persisted)"
	}
	return cfg.Store.Path
}

func init() {
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind")
	serveCmd.Flags().IntP("port", "p", 8000, "Port to listen on")
	serveCmd.Flags().String("backend", store.BackendFile, "Store backend: file, sqlite or memory")
	serveCmd.Flags().String("store", "", "Document record path (default document.json or document.db)")
	serveCmd.Flags().Bool("watch", false, "Reload the document when the record file changes on disk")
	serveCmd.Flags().String("index", "index.html", "File served at /")
	serveCmd.Flags().String("log", "", "Log to this file with rotation instead of stderr")

	rootCmd.AddCommand(serveCmd)
}
