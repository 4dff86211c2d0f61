package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/crimecast/internal/domain/vocabulary"
	"github.com/okian/crimecast/pkg/logger"
)

// Run executes the complete load test and returns its statistics. The
// statistics are returned alongside a verification error.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	if err := validate(config); err != nil {
		return nil, err
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting crimecast load test",
		logger.String("baseURL", config.BaseURL),
		logger.Int("requests", config.NumRequests),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.Int("batchSize", config.BatchSize),
		logger.Int("invalidEvery", config.InvalidEvery),
		logger.Bool("verbose", config.Verbose))

	// Step 1: Check the service has a model
	if err := checkServiceReady(ctx, config); err != nil {
		return nil, err
	}

	// Step 2: Generate cases
	cases, err := generateCases(ctx, config, vocabulary.Default(), stats)
	if err != nil {
		return nil, fmt.Errorf("case generation failed: %w", err)
	}

	// Step 3: Submit concurrently
	outcomes := submitCases(ctx, config, cases, stats)

	// Step 4: Save cases to file
	if config.OutputFile != "" {
		if err := saveCasesToFile(ctx, config.OutputFile, cases); err != nil {
			logger.Get().Warn(ctx, "failed to save cases to file", logger.Error(err))
		}
	}

	// Step 5: Verify
	verr := verifyOutcomes(ctx, cases, outcomes, stats)
	if berr := verifyBatchConsistency(ctx, config, cases, outcomes, stats); berr != nil && verr == nil {
		verr = berr
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	if verr != nil {
		return stats, verr
	}
	logger.Get().Info(ctx, "load test completed successfully")
	return stats, nil
}

func validate(config *Config) error {
	switch {
	case config == nil:
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	case config.BaseURL == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case config.NumRequests < 1:
		return fmt.Errorf("%w: requests must be at least 1", ErrInvalidConfig)
	case config.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalidConfig)
	case config.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	case config.BatchSize < 0 || config.InvalidEvery < 0:
		return fmt.Errorf("%w: batch size and invalid-every must not be negative", ErrInvalidConfig)
	}
	return nil
}

// checkServiceReady verifies the service is running and has a model loaded.
func checkServiceReady(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service readiness")

	client := newHTTPClient(config.Timeout)
	resp, err := client.Get(ctx, config.BaseURL+readyPath)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return fmt.Errorf("failed to read readiness response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", ErrNotReady, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	logger.Get().Info(ctx, "service is ready")
	return nil
}

// saveCasesToFile writes the generated cases as a JSON array.
func saveCasesToFile(ctx context.Context, filename string, cases []Case) error {
	if len(cases) == 0 {
		return fmt.Errorf("no cases to save")
	}

	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close file", logger.Error(err))
		}
	}()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cases); err != nil {
		return fmt.Errorf("failed to write cases: %w", err)
	}

	logger.Get().Info(ctx, "cases saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final test statistics.
func displayFinalStats(stats *Stats) {
	var successRate, requestsPerSecond float64

	if stats.Submitted > 0 {
		successRate = float64(stats.Submitted-stats.Mismatches) / float64(stats.Submitted) * PercentageMultiplier
	}

	if stats.Duration > 0 {
		requestsPerSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("succeeded", stats.Succeeded),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.Int("mismatches", stats.Mismatches),
		logger.Int("batchChecked", stats.BatchChecked),
		logger.Int("batchMismatches", stats.BatchMismatches),
		logger.String("p50", stats.P50.String()),
		logger.String("p95", stats.P95.String()),
		logger.String("p99", stats.P99.String()),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("requestsPerSecond", requestsPerSecond))
}
