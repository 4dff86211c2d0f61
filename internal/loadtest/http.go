package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/crimecast/internal/domain/model"
	"github.com/okian/crimecast/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client *http.Client
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Get performs a GET request
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with JSON body. A non-empty requestID is sent
// as X-Request-ID.
func (c *HTTPClient) Post(ctx context.Context, url, requestID string, body interface{}) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set(requestIDHeader, requestID)
	}
	return c.client.Do(req)
}

// readResponseBody reads and closes the response body
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()
	return io.ReadAll(resp.Body)
}

type job struct {
	index int
	c     Case
}

// submitCases sends every case to /predict using a pool of workers and
// returns the outcomes in case order.
func submitCases(ctx context.Context, config *Config, cases []Case, stats *Stats) []Outcome {
	log := logger.Get()
	log.Info(ctx, "submitting predictions", logger.Int("requests", len(cases)), logger.Int("workers", config.Workers))

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + predictPath
	outcomes := make([]Outcome, len(cases))

	var (
		submitted  int64
		succeeded  int64
		rejected   int64
		failed     int64
		lastReport atomic.Int64
	)

	jobs := make(chan job, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for j := range jobs {
				o := submitSingle(ctx, client, url, j.c)
				outcomes[j.index] = o

				atomic.AddInt64(&submitted, 1)
				switch {
				case o.Err != nil || o.Status >= http.StatusInternalServerError:
					atomic.AddInt64(&failed, 1)
				case o.Status == http.StatusOK:
					atomic.AddInt64(&succeeded, 1)
				default:
					atomic.AddInt64(&rejected, 1)
				}

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if config.Verbose && now-last >= int64(progressInterval) && lastReport.CompareAndSwap(last, now) {
					log.Info(ctx, "progress",
						logger.Int("submitted", int(atomic.LoadInt64(&submitted))),
						logger.Int("total", len(cases)),
						logger.Int("succeeded", int(atomic.LoadInt64(&succeeded))),
						logger.Int("rejected", int(atomic.LoadInt64(&rejected))),
						logger.Int("failed", int(atomic.LoadInt64(&failed))))
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, c := range cases {
			select {
			case <-ctx.Done():
				return
			case jobs <- job{index: i, c: c}:
			}
		}
	}()

	wg.Wait()

	stats.Submitted = int(atomic.LoadInt64(&submitted))
	stats.Succeeded = int(atomic.LoadInt64(&succeeded))
	stats.Rejected = int(atomic.LoadInt64(&rejected))
	stats.Failed = int(atomic.LoadInt64(&failed))

	log.Info(ctx, "prediction submission completed",
		logger.Int("succeeded", stats.Succeeded),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed))
	return outcomes
}

// submitSingle posts one case and decodes the answer.
func submitSingle(ctx context.Context, client *HTTPClient, url string, c Case) Outcome {
	start := time.Now()
	resp, err := client.Post(ctx, url, c.ID, c.Request)
	if err != nil {
		return Outcome{Err: err, Latency: time.Since(start)}
	}
	body, err := readResponseBody(resp)
	o := Outcome{
		Status:    resp.StatusCode,
		RequestID: resp.Header.Get(requestIDHeader),
		Latency:   time.Since(start),
	}
	if err != nil {
		o.Err = err
		return o
	}

	if resp.StatusCode == http.StatusOK {
		var res model.Result
		if err := json.Unmarshal(body, &res); err != nil {
			o.Err = fmt.Errorf("decode result: %w", err)
			return o
		}
		o.Value = res.Value
		return o
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		o.Code = eb.Code
	}
	return o
}

type batchRequest struct {
	Requests []model.Request `json:"requests"`
}

type batchItem struct {
	Index int        `json:"index"`
	Value *float64   `json:"predicted_value,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

type batchResponse struct {
	Results   []batchItem `json:"results"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// submitBatch posts reqs to /predict/batch.
func submitBatch(ctx context.Context, client *HTTPClient, baseURL string, reqs []model.Request) (*batchResponse, error) {
	resp, err := client.Post(ctx, baseURL+batchPath, "", batchRequest{Requests: reqs})
	if err != nil {
		return nil, err
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("batch returned status %d: %s", resp.StatusCode, string(body))
	}
	var out batchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode batch response: %w", err)
	}
	return &out, nil
}
