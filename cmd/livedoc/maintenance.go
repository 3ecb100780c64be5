package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/steveyegge/livedoc/internal/config"
	"github.com/steveyegge/livedoc/internal/store"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "maintenance",
	Short:   "Print the effective configuration",
	Long: `Print the configuration serve would use after applying defaults, the
config file and the environment. The password is redacted.

The output is a valid config file:
  livedoc config --format toml > livedoc.toml`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd, nil)
		if err != nil {
			fatalf("%v", err)
		}

		format, _ := cmd.Flags().GetString("format")
		data, err := config.Render(cfg.Redacted(), format)
		if err != nil {
			fatalf("%v", err)
		}
		os.Stdout.Write(data)
	},
}

var dumpCmd = &cobra.Command{
	Use:     "dump",
	GroupID: "maintenance",
	Short:   "Print the persisted document",
	Long: `Print the document from the configured store without starting a server.

Useful for backups and for inspecting a sqlite record:
  livedoc dump --backend sqlite --store document.db > backup.txt`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd, map[string]string{
			"backend": "store.backend",
			"store":   "store.path",
		})
		if err != nil {
			fatalf("%v", err)
		}

		content, err := dump(cmd.Context(), cfg)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Print(content)
	},
}

func dump(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.Store.Backend == store.BackendMemory {
		return "", fmt.Errorf("the memory backend has nothing persisted")
	}

	st, err := store.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	defer st.Close()

	content, err := st.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load document: %w", err)
	}
	return content, nil
}

func init() {
	configCmd.Flags().StringP("format", "f", config.FormatYAML, "Output format: yaml, toml or json")
	dumpCmd.Flags().String("backend", store.BackendFile, "Store backend: file or sqlite")
	dumpCmd.Flags().String("store", "", "Document record path (default document.json or document.db)")

	rootCmd.AddCommand(configCmd, dumpCmd)
}
