// File: cmd/root.go
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regsmoke-cli/internal/observability"
)

var envFile string

// rootCmd is the base command; the actual work lives in the subcommands.
var rootCmd = &cobra.Command{
	Use:   "regsmoke",
	Short: "End-to-end smoke test for the registration flow.",
	Long: `regsmoke drives a real browser through the public registration
journey: landing page, generation dashboard, registration form, and the
post-registration dashboard checks. Failed attempts are retried with
adjusted test data, and every run produces screenshots, a screen
recording per attempt, and a JSON report.`,
	// Version is set at build time. See cmd/version.go.
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. The process exit code reflects the run outcome.
// Ctrl-C cancels the run context so the browser and the report still shut
// down cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// GetLogger falls back to a development logger before Initialize,
		// so the error always lands somewhere visible.
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		observability.Sync()
		stop()
		os.Exit(1)
	}
	observability.Sync()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "env file with KEY=VALUE pairs (missing file is ignored)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newRunCmd())
}
