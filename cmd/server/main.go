package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/toolpad/internal/infrastructure/config"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "toolpad-server",
	Short: "App server with a typed RPC endpoint and sandboxed functions",
	Long: `toolpad-server serves the app editor's RPC endpoint and runs
user-authored JavaScript functions in isolated runtimes.

Configuration comes from the environment (PORT, SANDBOX_TIMEOUT, ...);
flags given on the command line take precedence.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, runCmd)
}

// loadConfig reads the environment. Invalid values are an error rather
// than a silent fallback to defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
