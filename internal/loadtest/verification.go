package loadtest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/okian/crimecast/internal/domain/model"
	"github.com/okian/crimecast/pkg/logger"
)

const (
	p50 = 0.50
	p95 = 0.95
	p99 = 0.99
)

// verifyOutcomes checks every answer against its case: valid cases succeed,
// unknown municipalities are rejected as invalid input and the request id
// comes back unchanged.
func verifyOutcomes(ctx context.Context, cases []Case, outcomes []Outcome, stats *Stats) error {
	logger.Get().Info(ctx, "verifying outcomes")

	latencies := make([]time.Duration, 0, len(outcomes))
	for i, o := range outcomes {
		if o.Status == 0 && o.Err == nil {
			// never sent
			continue
		}
		latencies = append(latencies, o.Latency)

		if o.Err == nil && o.RequestID != cases[i].ID {
			stats.RequestIDMismatches++
		}
		if !matches(cases[i], o) {
			stats.Mismatches++
			logger.Get().Debug(ctx, "unexpected outcome",
				logger.String("id", cases[i].ID),
				logger.String("municipality", cases[i].Request.Municipality),
				logger.Int("status", o.Status),
				logger.String("code", o.Code),
				logger.Error(o.Err))
		}
	}

	stats.P50 = percentile(latencies, p50)
	stats.P95 = percentile(latencies, p95)
	stats.P99 = percentile(latencies, p99)

	if stats.Mismatches > 0 || stats.RequestIDMismatches > 0 {
		return fmt.Errorf("%w: %d unexpected outcomes, %d request id mismatches",
			ErrVerification, stats.Mismatches, stats.RequestIDMismatches)
	}
	return nil
}

func matches(c Case, o Outcome) bool {
	if o.Err != nil {
		return false
	}
	if c.WantOK {
		return o.Status == http.StatusOK
	}
	return o.Status == http.StatusBadRequest && o.Code == codeInvalidInput
}

// verifyBatchConsistency resubmits the successful cases through the batch
// route. Inference is pure, so each batch answer must equal the single one.
func verifyBatchConsistency(ctx context.Context, config *Config, cases []Case, outcomes []Outcome, stats *Stats) error {
	if config.BatchSize <= 0 {
		return nil
	}
	logger.Get().Info(ctx, "checking batch consistency", logger.Int("batchSize", config.BatchSize))

	var idx []int
	for i, o := range outcomes {
		if o.Err == nil && o.Status == http.StatusOK {
			idx = append(idx, i)
		}
	}

	client := newHTTPClient(config.Timeout)
	for start := 0; start < len(idx); start += config.BatchSize {
		end := min(start+config.BatchSize, len(idx))
		reqs := make([]model.Request, 0, end-start)
		for _, i := range idx[start:end] {
			reqs = append(reqs, cases[i].Request)
		}

		resp, err := submitBatch(ctx, client, config.BaseURL, reqs)
		if err != nil {
			return fmt.Errorf("batch %d: %w", start/config.BatchSize, err)
		}
		if len(resp.Results) != len(reqs) {
			return fmt.Errorf("%w: batch returned %d results for %d requests", ErrVerification, len(resp.Results), len(reqs))
		}
		for _, item := range resp.Results {
			if item.Index < 0 || item.Index >= len(reqs) {
				stats.BatchMismatches++
				continue
			}
			stats.BatchChecked++
			want := outcomes[idx[start+item.Index]].Value
			if item.Value == nil || *item.Value != want {
				stats.BatchMismatches++
			}
		}
	}

	if stats.BatchMismatches > 0 {
		return fmt.Errorf("%w: %d batch answers differ from single predictions", ErrVerification, stats.BatchMismatches)
	}
	return nil
}

// percentile returns the p-quantile of durs using nearest rank.
func percentile(durs []time.Duration, p float64) time.Duration {
	if len(durs) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(durs))
	copy(sorted, durs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rank := int(p*float64(len(sorted))+0.5) - 1
	rank = max(0, min(rank, len(sorted)-1))
	return sorted[rank]
}
