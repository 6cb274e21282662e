package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/toolpad/internal/codec"
	"github.com/GriffinCanCode/toolpad/internal/fault"
	"github.com/GriffinCanCode/toolpad/internal/fetch"
	"github.com/GriffinCanCode/toolpad/internal/infrastructure/config"
	"github.com/GriffinCanCode/toolpad/internal/infrastructure/server"
	"github.com/GriffinCanCode/toolpad/internal/sandbox"
)

type runOptions struct {
	file    string
	params  string
	timeout time.Duration
	noFetch bool
}

var runFlags runOptions

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run a function module in the sandbox",
	Long: `Run a function module locally, exactly as the function data source
would, and print the encoded result to stdout. Console output goes to
stderr, one line per entry.

The module receives the --params object as its only argument.`,
	Example: `  toolpad-server run ./users.js --params '{"limit": 5}'
  toolpad-server run ./slow.js --timeout 30s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		opts := runFlags
		opts.file = args[0]
		return runModule(cmd.Context(), cfg, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	runCmd.Flags().StringVar(&runFlags.params, "params", "{}", "JSON object passed to the function")
	runCmd.Flags().DurationVar(&runFlags.timeout, "timeout", 0, "invocation timeout (overrides SANDBOX_TIMEOUT)")
	runCmd.Flags().BoolVar(&runFlags.noFetch, "no-fetch", false, "make fetch reject instead of reaching the network")
}

// failedRun is returned after the failure has already been printed.
type failedRun struct {
	record fault.Record
}

func (e *failedRun) Error() string { return "function failed: " + e.record.Message }

func runModule(ctx context.Context, cfg *config.Config, opts runOptions, stdout, stderr io.Writer) error {
	source, err := os.ReadFile(opts.file)
	if err != nil {
		return err
	}
	var params map[string]any
	if err := sonic.UnmarshalString(opts.params, &params); err != nil {
		return fmt.Errorf("invalid --params: %w", err)
	}

	var fetcher sandbox.Fetcher
	if !opts.noFetch {
		client, err := fetch.NewClient(fetch.Config{
			Timeout:      cfg.Fetch.Timeout,
			MaxRetries:   cfg.Fetch.MaxRetries,
			MaxBodyBytes: int64(cfg.Fetch.MaxBodyMB) << 20,
			AllowedHosts: cfg.Fetch.AllowedHosts,
			RateLimit:    cfg.Fetch.RateLimit,
			UserAgent:    fetch.DefaultConfig().UserAgent,
		})
		if err != nil {
			return err
		}
		fetcher = client
	}

	sandboxCfg := server.SandboxConfig(cfg.Sandbox)
	sandboxCfg.PoolSize = 1
	host, err := sandbox.NewHost(sandboxCfg, fetcher, zap.NewNop())
	if err != nil {
		return err
	}
	defer host.Close()

	res, runErr := host.Run(ctx, sandbox.Invocation{
		Name:    filepath.Base(opts.file),
		Source:  string(source),
		Args:    []any{params},
		Timeout: opts.timeout,
	})
	if res != nil {
		for _, entry := range res.Console {
			fmt.Fprintf(stderr, "[%s] %s\n", entry.Level, entry.Message)
		}
	}
	if runErr != nil {
		rec := fault.Normalize(runErr)
		text, err := sonic.ConfigStd.MarshalToString(rec)
		if err != nil {
			text = rec.Message
		}
		fmt.Fprintln(stderr, text)
		return &failedRun{record: rec}
	}

	fmt.Fprintln(stdout, codec.Encode(res.Value))
	return nil
}
