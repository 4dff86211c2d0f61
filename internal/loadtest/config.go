package loadtest

import (
	"time"

	"github.com/okian/crimecast/internal/domain/model"
)

// Config holds configuration for a load test run.
type Config struct {
	BaseURL      string        // Base URL of the service
	NumRequests  int           // Number of prediction requests to send
	Workers      int           // Number of concurrent workers
	Timeout      time.Duration // HTTP request timeout
	BatchSize    int           // Size of the batches used for the consistency check; 0 skips it
	InvalidEvery int           // Every n-th request names an unknown municipality; 0 disables
	OutputFile   string        // Output file for generated cases; empty skips saving
	Verbose      bool          // Enable verbose logging
}

// Case is one generated prediction request and the outcome it should have.
type Case struct {
	ID      string        `json:"id"`
	Request model.Request `json:"request"`
	WantOK  bool          `json:"want_ok"`
}

// Outcome is what the service answered for one Case.
type Outcome struct {
	Status    int
	Value     float64
	Code      string
	RequestID string
	Latency   time.Duration
	Err       error
}

// errorBody is the failure body of the prediction routes.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Stats holds test statistics.
type Stats struct {
	Generated           int
	Submitted           int
	Succeeded           int
	Rejected            int
	Failed              int
	Mismatches          int
	RequestIDMismatches int
	BatchChecked        int
	BatchMismatches     int
	P50                 time.Duration
	P95                 time.Duration
	P99                 time.Duration
	StartTime           time.Time
	EndTime             time.Time
	Duration            time.Duration
}
