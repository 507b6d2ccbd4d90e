package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lamht/forwarder"
	"github.com/lamht/forwarder/internal/config"
	"github.com/lamht/forwarder/internal/logger"
	"github.com/lamht/forwarder/internal/stream"
	"github.com/lamht/forwarder/internal/tunnelurl"
)

// buildRoot creates the command tree reading from in and writing to out/errOut.
func buildRoot(in io.Reader, out, errOut io.Writer) *cobra.Command {
	globalFlags := &GlobalFlags{}
	runFlags := &RunFlags{}

	root := &cobra.Command{
		Use:   "forwarder",
		Short: "Run a quick tunnel and publish its public URL",
		Long: `Forwarder runs "cloudflared tunnel --url $URL_FORWARD", restarts it whenever
it exits, and writes every newly announced https://*.trycloudflare.com URL to
$FIREBASE_DB_URL/$TABLE.json.

Examples:
  FIREBASE_DB_URL=https://mydb.firebaseio.com URL_FORWARD=http://localhost:8080 forwarder
  forwarder --config forwarder.toml --status-listen 127.0.0.1:9090
  forwarder publish https://abc-def.trycloudflare.com
  cloudflared tunnel --url http://localhost:8080 2>&1 | forwarder extract`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(cmd, globalFlags, runFlags, out)
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.Flags().StringVar(&runFlags.StatusListen, "status-listen", "", "address for the status and metrics server (e.g. 127.0.0.1:9090)")
	root.Flags().StringVar(&runFlags.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	root.Flags().StringVar(&runFlags.LogFormat, "log-format", "", "log format: json or text")

	root.AddCommand(
		createPublishCommand(globalFlags, out),
		createExtractCommand(in, out),
	)
	return root
}

func loadConfig(cmd *cobra.Command, globalFlags *GlobalFlags, runFlags *RunFlags) (*config.Config, error) {
	c, err := config.Load(globalFlags.ConfigPath)
	if err != nil {
		return nil, err
	}
	if runFlags == nil {
		return c, nil
	}
	if cmd.Flags().Changed("status-listen") {
		c.StatusListen = runFlags.StatusListen
	}
	if cmd.Flags().Changed("log-level") {
		c.Log.Level = runFlags.LogLevel
	}
	if cmd.Flags().Changed("log-format") {
		c.Log.Format = logger.Format(runFlags.LogFormat)
	}
	return c, nil
}

func runService(cmd *cobra.Command, globalFlags *GlobalFlags, runFlags *RunFlags, out io.Writer) error {
	c, err := loadConfig(cmd, globalFlags, runFlags)
	if err != nil {
		return err
	}
	svc, err := forwarder.New(c, forwarder.Options{Stdout: out, Stderr: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return svc.Run(ctx)
}

// createPublishCommand creates the publish subcommand
func createPublishCommand(globalFlags *GlobalFlags, out io.Writer) *cobra.Command {
	flags := &PublishFlags{}
	cmd := &cobra.Command{
		Use:   "publish <url>",
		Short: "Write a URL to the configured store once",
		Long: `Publish writes {"url", "updatedAt"} to the configured store without running
the tunnel. Useful to repair a stale value or to check store credentials.

Examples:
  forwarder publish https://abc-def.trycloudflare.com`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd, globalFlags, nil)
			if err != nil {
				return err
			}
			timeout := c.PublishTimeout
			if cmd.Flags().Changed("timeout") {
				timeout = flags.Timeout
			}
			return runPublish(cmd.Context(), c, args[0], timeout, out)
		},
	}
	cmd.Flags().DurationVar(&flags.Timeout, "timeout", 10*time.Second, "publish timeout")
	return cmd
}

func runPublish(ctx context.Context, c *config.Config, raw string, timeout time.Duration, out io.Writer) error {
	e, err := tunnelurl.NewExtractor(c.URLPattern)
	if err != nil {
		return err
	}
	u, ok := e.Extract(raw)
	if !ok || u.String() != raw {
		return fmt.Errorf("not a tunnel URL: %q", raw)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := forwarder.PublishOnce(ctx, c, raw); err != nil {
		return fmt.Errorf("publish %s: %w", raw, err)
	}
	_, _ = fmt.Fprintf(out, "published %s to %s\n", raw, c.Table)
	return nil
}

// createExtractCommand creates the extract subcommand
func createExtractCommand(in io.Reader, out io.Writer) *cobra.Command {
	flags := &ExtractFlags{}
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Print tunnel URLs found on stdin",
		Long: `Extract reads tunnel output from stdin and prints every URL matching the
pattern, one per line. It needs no configuration.

Examples:
  cloudflared tunnel --url http://localhost:8080 2>&1 | forwarder extract --unique`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(in, out, *flags)
		},
	}
	cmd.Flags().StringVar(&flags.Pattern, "pattern", "", "URL regular expression (default "+tunnelurl.DefaultPattern+")")
	cmd.Flags().BoolVar(&flags.Unique, "unique", false, "print each URL only once")
	return cmd
}

func runExtract(in io.Reader, out io.Writer, flags ExtractFlags) error {
	e, err := tunnelurl.NewExtractor(flags.Pattern)
	if err != nil {
		return err
	}
	seen := map[tunnelurl.TunnelURL]bool{}
	for line := range stream.Lines(in) {
		u, ok := e.Extract(line)
		if !ok {
			continue
		}
		if flags.Unique {
			if seen[u] {
				continue
			}
			seen[u] = true
		}
		if _, err := fmt.Fprintln(out, u); err != nil {
			return err
		}
	}
	return nil
}
