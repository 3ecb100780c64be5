package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/steveyegge/livedoc/internal/auth"
	"github.com/steveyegge/livedoc/internal/client"
	"github.com/steveyegge/livedoc/internal/config"
	"github.com/steveyegge/livedoc/internal/ui"
)

var clientFlags = map[string]string{
	"password": "password",
	"port":     "port",
}

var pushCmd = &cobra.Command{
	Use:     "push [--file path]",
	GroupID: "client",
	Short:   "Replace the shared document",
	Long: `Replace the shared document with new content.

Content is read from --file, or from stdin when no file is given. The
password comes from --password, LIVEDOC_PASSWORD, DEV_PASSWORD, or an
interactive prompt when running in a terminal.

Example usage:
  livedoc push --file notes.txt
  echo "hello" | LIVEDOC_PASSWORD=secret livedoc push
  livedoc push --server https://doc.example.com --file notes.txt`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd, clientFlags)
		if err != nil {
			fatalf("%v", err)
		}

		file, _ := cmd.Flags().GetString("file")
		content, err := readContent(file)
		if err != nil {
			fatalf("%v", err)
		}

		password, err := resolvePassword(cfg)
		if err != nil {
			fatalf("%v", err)
		}

		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		url := serverURL(cmd, cfg)
		c, err := client.Dial(ctx, url)
		if err != nil {
			fatalf("%v", err)
		}
		defer c.Close()

		if err := c.Publish(ctx, password, content); err != nil {
			if errors.Is(err, client.ErrRejected) {
				fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("✗"), err)
				os.Exit(1)
			}
			fatalf("%v", err)
		}

		fmt.Printf("%s Pushed %d bytes to %s\n", ui.RenderPass("✓"), len(content), url)
	},
}

var tailCmd = &cobra.Command{
	Use:     "tail",
	GroupID: "client",
	Short:   "Print the document each time it changes",
	Long: `Connect to the server and print the document on join and after every
accepted update. Runs until interrupted or the server goes away.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd, clientFlags)
		if err != nil {
			fatalf("%v", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		url := serverURL(cmd, cfg)
		c, err := client.Dial(ctx, url)
		if err != nil {
			fatalf("%v", err)
		}
		defer c.Close()

		fmt.Fprintf(os.Stderr, "%s Connected to %s\n", ui.RenderPass("✓"), url)
		if err := tail(ctx, c, os.Stdout); err != nil && ctx.Err() == nil {
			fatalf("%v", err)
		}
	},
}

var checkCmd = &cobra.Command{
	Use:     "check",
	GroupID: "client",
	Short:   "Check a password against the server",
	Long: `Ask the server whether a password would be accepted. Nothing is changed.

Exit status is 0 when the password is accepted and 1 otherwise.`,
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

		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		resp, err := client.Verify(ctx, serverURL(cmd, cfg), password)
		if err != nil {
			fatalf("%v", err)
		}

		switch verdict(resp.OK, resp.Error) {
		case auth.Authorized:
			fmt.Printf("%s ok\n", ui.RenderPass("✓"))
		case auth.Misconfigured:
			fmt.Printf("%s not configured: the server has no password set\n", ui.RenderWarn("⚠"))
			os.Exit(1)
		default:
			fmt.Printf("%s denied\n", ui.RenderFail("✗"))
			os.Exit(1)
		}
	},
}

// verdict maps a /verify answer back to the gate result it came from.
func verdict(ok bool, errText string) auth.Result {
	switch {
	case ok:
		return auth.Authorized
	case errText == auth.ErrMisconfigured.Error():
		return auth.Misconfigured
	default:
		return auth.Denied
	}
}

func tail(ctx context.Context, c *client.Client, w io.Writer) error {
	for {
		content, err := c.NextContent(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\n%s\n", ui.RenderHeader("--- "+time.Now().Format(time.TimeOnly)+" ---"), content)
	}
}

func readContent(file string) (string, error) {
	if file != "" && file != "-" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", file, err)
		}
		return string(data), nil
	}

	if ui.IsTerminal() {
		return "", fmt.Errorf("no content: use --file or pipe content on stdin")
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

// resolvePassword uses the configured password, prompting only when none is
// set and a terminal is attached.
func resolvePassword(cfg *config.Config) (string, error) {
	if cfg.PasswordConfigured() {
		return cfg.Password, nil
	}
	if !ui.IsTerminal() {
		return "", fmt.Errorf("no password: use --password or set LIVEDOC_PASSWORD")
	}

	var password string
	err := huh.NewInput().
		Title("Password").
		EchoMode(huh.EchoModePassword).
		Value(&password).
		Run()
	if err != nil {
		return "", fmt.Errorf("password prompt: %w", err)
	}
	return password, nil
}

func serverURL(cmd *cobra.Command, cfg *config.Config) string {
	if url, _ := cmd.Flags().GetString("server"); url != "" {
		return strings.TrimSuffix(url, "/")
	}
	return fmt.Sprintf("http://localhost:%d", cfg.Port)
}

func init() {
	for _, cmd := range []*cobra.Command{pushCmd, tailCmd, checkCmd} {
		cmd.Flags().StringP("server", "s", "", "Server URL (default http://localhost:<port>)")
		cmd.Flags().IntP("port", "p", 8000, "Server port when --server is not given")
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{pushCmd, checkCmd} {
		cmd.Flags().String("password", "", "Shared password (default from LIVEDOC_PASSWORD)")
		cmd.Flags().Duration("timeout", 10*time.Second, "Give up after this long")
	}
	pushCmd.Flags().StringP("file", "f", "", "Read content from this file (default stdin)")
}
