package cli

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/crimecast/internal/loadtest"
)

// Default load test configuration constants.
const (
	defaultNumRequests    = 10000
	defaultWorkersPerCPU  = 2
	defaultBatchSize      = 100
	defaultInvalidEvery   = 20
	defaultLoadTestWindow = 10 * time.Minute
)

func newLoadtestCmd(g *globalOptions) *cobra.Command {
	cfg := &loadtest.Config{}
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Send concurrent predictions to the server and verify the answers",
		Long: `Generate random but complete prediction requests, send them concurrently
to /predict and verify that valid requests succeed, unknown municipalities are
rejected, request ids round-trip and batch answers equal single answers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if window > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, window)
				defer cancel()
			}
			cfg.BaseURL = g.server
			cfg.Timeout = g.timeout
			cfg.Verbose = g.verbose

			stats, err := loadtest.Run(ctx, cfg)
			if stats != nil {
				printLoadtest(cmd, stats)
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&cfg.NumRequests, "requests", "n", defaultNumRequests, "number of prediction requests")
	cmd.Flags().IntVarP(&cfg.Workers, "workers", "w", runtime.NumCPU()*defaultWorkersPerCPU, "number of concurrent workers")
	cmd.Flags().IntVar(&cfg.BatchSize, "batch-size", defaultBatchSize, "batch size of the consistency check (0 skips it)")
	cmd.Flags().IntVar(&cfg.InvalidEvery, "invalid-every", defaultInvalidEvery, "every n-th request names an unknown municipality (0 disables)")
	cmd.Flags().StringVarP(&cfg.OutputFile, "output", "o", "", "save generated requests to this JSON file")
	cmd.Flags().DurationVar(&window, "max-duration", defaultLoadTestWindow, "abort the run after this long")
	return cmd
}

func printLoadtest(cmd *cobra.Command, s *loadtest.Stats) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Requests:    %d sent, %d ok, %d rejected, %d failed\n", s.Submitted, s.Succeeded, s.Rejected, s.Failed)
	fmt.Fprintf(out, "Mismatches:  %d outcome, %d request id, %d batch (of %d)\n",
		s.Mismatches, s.RequestIDMismatches, s.BatchMismatches, s.BatchChecked)
	fmt.Fprintf(out, "Latency:     p50 %s, p95 %s, p99 %s\n", s.P50, s.P95, s.P99)
	fmt.Fprintf(out, "Duration:    %s\n", s.Duration.Round(time.Millisecond))
}
