// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/weifanh/classsync-cli/internal/flow"
	"github.com/weifanh/classsync-cli/internal/notify"
	"github.com/weifanh/classsync-cli/internal/observability"
	"github.com/weifanh/classsync-cli/internal/payloadgen"
	"github.com/weifanh/classsync-cli/internal/report"
)

// newRunCmd creates and configures the `run` command, one end-to-end pass of
// the schedule automation.
func newRunCmd() *cobra.Command {
	var (
		outputPath   string
		outputFormat string
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the schedule automation once and exits",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from Execute (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()
			defer observability.Sync()

			components, err := initializeAutomation(ctx, cfg, notify.Nop{}, logger)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			// When a payload service is configured, ask it for a freshly
			// generated week before falling back to stored or default data.
			if cfg.PayloadService.BaseURL != "" {
				client := payloadgen.NewClient(logger, cfg.PayloadService)
				if p, ferr := client.FetchWeek(ctx); ferr != nil {
					logger.Warn("Payload service unavailable, using stored payload", zap.Error(ferr))
				} else if aerr := components.Resolver.Accept(ctx, p); aerr != nil {
					logger.Warn("Generated payload was rejected", zap.Error(aerr))
				}
			}

			runID := uuid.New().String()
			logger.Info("Starting automation run", zap.String("runID", runID))

			outcome, err := components.Flow.Run(ctx, runID)

			if outputPath != "" {
				summary := &report.Summary{
					RunID:       runID,
					CompletedAt: time.Now(),
					State:       components.Flow.Status().State,
					Outcome:     outcome,
				}
				if err != nil {
					summary.Error = err.Error()
				}
				writeRunReport(logger, outputFormat, outputPath, summary)
			}

			if err != nil {
				if errors.Is(err, flow.ErrStopped) || errors.Is(err, context.Canceled) {
					logger.Warn("Run aborted", zap.String("runID", runID))
					return fmt.Errorf("run aborted by user signal")
				}
				var ferr *flow.Error
				if errors.As(err, &ferr) {
					logger.Error("Automation run failed",
						zap.String("runID", runID),
						zap.String("kind", string(ferr.Kind)),
						zap.String("message", ferr.UserMessage),
						zap.Strings("suggestions", ferr.Suggestions))
				}
				return err
			}

			logger.Info("Automation run completed",
				zap.String("runID", runID),
				zap.Int("filledDays", outcome.FilledDays),
				zap.Int("totalDays", outcome.TotalDays),
				zap.Float64("successRate", outcome.SuccessRate))

			fmt.Printf("\nRun Complete. Run ID: %s\n", runID)
			fmt.Printf("Filled %d of %d days (success rate %.0f%%)\n",
				outcome.FilledDays, outcome.TotalDays, outcome.SuccessRate*100)
			return nil
		},
	}

	runCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write a run report to this file (\"stdout\" for standard output)")
	runCmd.Flags().StringVar(&outputFormat, "format", "json", "run report format: json or text")
	return runCmd
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}

// writeRunReport is best effort; a report failure never masks the run result.
func writeRunReport(logger *zap.Logger, format, path string, summary *report.Summary) {
	r, err := report.New(format, path)
	if err != nil {
		logger.Warn("Could not create run report", zap.Error(err))
		return
	}
	defer r.Close()
	if err := r.Write(summary); err != nil {
		logger.Warn("Could not write run report", zap.Error(err))
		return
	}
	logger.Info("Run report written", zap.String("path", path), zap.String("format", format))
}
