package loadtest

import "time"

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	PercentageMultiplier = 100
	progressInterval     = time.Second
	directoryPermission  = 0750
)

// UnknownMunicipality is sent by the cases that must be rejected.
const UnknownMunicipality = "Atlantis"

const (
	predictPath = "/predict"
	batchPath   = "/predict/batch"
	readyPath   = "/readyz"

	codeInvalidInput = "invalid_input"
)
