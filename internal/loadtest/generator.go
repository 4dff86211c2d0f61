package loadtest

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"

	"github.com/google/uuid"
	"github.com/okian/crimecast/internal/domain/model"
	"github.com/okian/crimecast/internal/domain/vocabulary"
	"github.com/okian/crimecast/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
)

// Ranges of the generated inputs, roughly those seen across Pernambuco.
const (
	yearMin        = 2015
	yearSpan       = 10
	idebMin        = 3.0
	idebRange      = 3.5
	teachersMin    = 20
	teachersRange  = 4000
	schoolsMin     = 5
	schoolsRange   = 400
	enrollMin      = 500
	enrollRange    = 100000
	earlyFraction  = 0.5
	secondFraction = 0.8
)

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// randomIntn returns a random int in [0, n).
func randomIntn(n int) int {
	if n <= 1 {
		return 0
	}
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

// generateCases creates the configured number of cases. Every InvalidEvery-th
// case names a municipality outside the vocabulary and must be rejected.
func generateCases(ctx context.Context, config *Config, enc *vocabulary.Encoder, stats *Stats) ([]Case, error) {
	logger.Get().Info(ctx, "generating prediction cases", logger.Int("numRequests", config.NumRequests))

	names := enc.Names()
	cases := make([]Case, config.NumRequests)
	for i := range cases {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during case generation: %w", err)
		}
		invalid := config.InvalidEvery > 0 && (i+1)%config.InvalidEvery == 0
		municipality := names[randomIntn(len(names))]
		if invalid {
			municipality = UnknownMunicipality
		}
		cases[i] = Case{
			ID:      uuid.NewString(),
			Request: generateRequest(municipality),
			WantOK:  !invalid,
		}
	}

	stats.Generated = len(cases)
	logger.Get().Info(ctx, "generated cases successfully", logger.Int("count", len(cases)))
	return cases, nil
}

// generateRequest builds a complete request for municipality.
func generateRequest(municipality string) model.Request {
	teachers := teachersMin + getRandomFloat()*teachersRange
	schools := schoolsMin + getRandomFloat()*schoolsRange
	enroll := enrollMin + getRandomFloat()*enrollRange

	return model.Request{
		Year:          model.Float(float64(yearMin + randomIntn(yearSpan))),
		Municipality:  municipality,
		IDEB:          model.Float(math.Round((idebMin+getRandomFloat()*idebRange)*10) / 10),
		EFTeachers:    model.Float(math.Round(teachers)),
		EFSchools:     model.Float(math.Round(schools)),
		EFEnrollments: model.Float(math.Round(enroll)),
		EITeachers:    model.Float(math.Round(teachers * earlyFraction)),
		EISchools:     model.Float(math.Round(schools * earlyFraction)),
		EIEnrollments: model.Float(math.Round(enroll * earlyFraction)),
		EMTeachers:    model.Float(math.Round(teachers * secondFraction)),
		EMSchools:     model.Float(math.Round(schools * secondFraction)),
		EMEnrollments: model.Float(math.Round(enroll * secondFraction)),
	}
}
