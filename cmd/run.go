// File: cmd/run.go
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regsmoke-cli/internal/browser"
	"github.com/xkilldash9x/regsmoke-cli/internal/config"
	"github.com/xkilldash9x/regsmoke-cli/internal/observability"
	"github.com/xkilldash9x/regsmoke-cli/internal/reasoner"
	"github.com/xkilldash9x/regsmoke-cli/internal/report"
	"github.com/xkilldash9x/regsmoke-cli/internal/runner"
)

// flagBindings maps run command flags onto their viper keys. Binding in
// PreRunE keeps the precedence right: flag over env over env file over
// default.
var flagBindings = map[string]string{
	"base-url":      "flow.base_url",
	"register-path": "flow.register_path",
	"max-retries":   "retry.max_retries",
	"timeout-ms":    "retry.timeout_ms",
}

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	v := viper.New()

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the registration smoke test once, retrying failed attempts",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			for flag, key := range flagBindings {
				if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return fmt.Errorf("failed to bind flag %s: %w", flag, err)
				}
			}
			// --headed inverts the headless default, so it cannot bind
			// directly onto the config key.
			if headed, err := cmd.Flags().GetBool("headed"); err == nil && headed {
				v.Set("browser.headless", false)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, envFile)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "regsmoke"})
				return err
			}

			observability.InitializeLogger(cfg.Logger)
			logger := observability.GetLogger()
			logger.Info("Starting registration smoke test",
				zap.String("version", Version),
				zap.String("base_url", cfg.Flow.BaseURL),
				zap.Int("max_retries", cfg.Retry.MaxRetries),
				zap.Bool("qwen_enabled", cfg.Qwen.Enabled))

			flow, err := browser.NewFlow(cfg, logger)
			if err != nil {
				return err
			}

			var remote reasoner.Decider
			if cfg.Qwen.Enabled {
				qwen, qerr := reasoner.NewQwenDecider(cfg.Qwen, logger)
				if qerr != nil {
					return qerr
				}
				remote = qwen
				logger.Info("Remote reasoning enabled",
					zap.String("server", cfg.Qwen.ModelServer),
					zap.String("model", cfg.Qwen.Model))
			}
			decider := reasoner.NewFallback(remote, reasoner.NewHeuristic(cfg.Retry.Delay()), logger)

			testID := report.NewTestID(time.Now())
			rep, state := runner.New(cfg, flow, decider, logger).Run(cmd.Context(), testID)

			path, werr := rep.WriteFile(cfg.Artifacts.ArtifactDir)
			if werr != nil {
				logger.Error("Failed to write report", zap.Error(werr))
			} else {
				logger.Info("Report written", zap.String("path", path))
			}

			if encoded, eerr := rep.Encode(); eerr == nil {
				fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			}

			return runner.ExitError(state, rep)
		},
	}

	runCmd.Flags().String("base-url", "", "base URL of the site under test (overrides BASE_URL)")
	runCmd.Flags().String("register-path", "", "path of the registration page")
	runCmd.Flags().Int("max-retries", 0, "maximum number of registration attempts")
	runCmd.Flags().Int("timeout-ms", 0, "per-step timeout in milliseconds")
	runCmd.Flags().Bool("headed", false, "run the browser with a visible window")

	return runCmd
}
