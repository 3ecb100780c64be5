package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/steveyegge/livedoc/internal/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "livedoc",
	Short: "Real-time shared document server",
	Long: `livedoc serves one shared text document to any number of browsers.

Every connected client sees each accepted update immediately. Anyone may read;
updates require the shared password configured on the server.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (yaml, toml or json)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "server", Title: "Server Commands:"},
		&cobra.Group{ID: "client", Title: "Client Commands:"},
		&cobra.Group{ID: "maintenance", Title: "Maintenance Commands:"},
	)
}

// loadConfig reads the effective configuration, letting any of the named
// flags that were set on the command line override the file and environment.
func loadConfig(cmd *cobra.Command, flagKeys map[string]string) (*config.Config, error) {
	v := config.New()
	if err := bindFlags(v, cmd, flagKeys); err != nil {
		return nil, err
	}
	return config.LoadWith(v, configFile)
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, flagKeys map[string]string) error {
	for flag, key := range flagKeys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", flag, err)
		}
	}
	return nil
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
