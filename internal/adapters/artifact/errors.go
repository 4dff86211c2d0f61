package artifact

import "errors"

// Sentinel errors for artifact loading and evaluation.
var (
	ErrInvalidArtifact    = errors.New("invalid artifact")
	ErrUnsupportedKind    = errors.New("unsupported artifact kind")
	ErrVocabularyMismatch = errors.New("artifact vocabulary does not match the encoder")
	ErrMissingColumn      = errors.New("row is missing a column the artifact needs")
	ErrNonFinite          = errors.New("artifact produced a non-finite value")
	ErrTooLarge           = errors.New("artifact file too large")
)
