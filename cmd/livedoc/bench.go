package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/steveyegge/livedoc/internal/loadtest"
	"github.com/steveyegge/livedoc/internal/ui"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "maintenance",
	Short:   "Measure broadcast latency against a running server",
	Long: `Connect many subscribers to a server and time how long each update takes
to reach all of them.

This overwrites the shared document. Point it at a test server.

Example usage:
  livedoc bench --subscribers 100 --updates 20
  livedoc bench --server http://staging:8000 --payload 65536`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd, clientFlags)
		if err != nil {
			fatalf("%v", err)
		}

		password, err := resolvePassword(cfg)
		if err != nil {
			fatalf("%v", err)
		}

		subscribers, _ := cmd.Flags().GetInt("subscribers")
		updates, _ := cmd.Flags().GetInt("updates")
		payload, _ := cmd.Flags().GetInt("payload")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		url := serverURL(cmd, cfg)
		fmt.Printf("%s Benchmarking %s: %d subscribers, %d updates\n",
			ui.RenderAccent("→"), url, subscribers, updates)

		start := time.Now()
		stats, err := loadtest.Run(context.Background(), loadtest.Options{
			BaseURL:      url,
			Password:     password,
			Subscribers:  subscribers,
			Updates:      updates,
			PayloadBytes: payload,
			RoundTimeout: timeout,
		})
		if err != nil {
			fatalf("%v", err)
		}
		elapsed := time.Since(start)

		stats.PrintStats(os.Stdout)
		fmt.Printf("  Total:         %v\n", elapsed.Round(time.Millisecond))

		if stats.Missed > 0 {
			fmt.Printf("%s %d deliveries missed the round timeout\n", ui.RenderWarn("⚠"), stats.Missed)
			os.Exit(1)
		}
		fmt.Printf("%s All deliveries received\n", ui.RenderPass("✓"))
	},
}

func init() {
	benchCmd.Flags().StringP("server", "s", "", "Server URL (default http://localhost:<port>)")
	benchCmd.Flags().IntP("port", "p", 8000, "Server port when --server is not given")
	benchCmd.Flags().String("password", "", "Shared password (default from LIVEDOC_PASSWORD)")
	benchCmd.Flags().Int("subscribers", 10, "Number of subscriber connections")
	benchCmd.Flags().Int("updates", 10, "Number of updates to publish")
	benchCmd.Flags().Int("payload", 1024, "Approximate update size in bytes")
	benchCmd.Flags().Duration("timeout", 5*time.Second, "Per-update delivery timeout")

	rootCmd.AddCommand(benchCmd)
}
