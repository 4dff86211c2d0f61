package artifact

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/okian/crimecast/internal/domain/model"
	"github.com/okian/crimecast/internal/domain/vocabulary"
	"gopkg.in/yaml.v3"
)

const defaultMaxBytes = 64 << 20

// Option applies a configuration option to the FileLoader.
type Option func(*FileLoader)

// WithEncoder sets the vocabulary that embedded artifact vocabularies must match.
// A nil encoder disables the check.
func WithEncoder(enc *vocabulary.Encoder) Option {
	return func(l *FileLoader) {
		l.encoder = enc
	}
}

// WithMaxBytes caps the artifact file size.
func WithMaxBytes(n int64) Option {
	return func(l *FileLoader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// FileLoader loads artifacts from the local filesystem. It implements
// registry.Loader.
type FileLoader struct {
	encoder  *vocabulary.Encoder
	maxBytes int64
}

// NewFileLoader creates a loader that checks vocabularies against the default encoder.
func NewFileLoader(opts ...Option) *FileLoader {
	l := &FileLoader{encoder: vocabulary.Default(), maxBytes: defaultMaxBytes}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads, decodes and validates the artifact at path.
func (l *FileLoader) Load(ctx context.Context, path string) (model.Artifact, model.ArtifactInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.ArtifactInfo{}, err
	}
	data, err := l.read(path)
	if err != nil {
		return nil, model.ArtifactInfo{}, err
	}
	doc, err := Decode(data, formatOf(path))
	if err != nil {
		return nil, model.ArtifactInfo{}, err
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	a, err := Build(doc, l.encoder)
	if err != nil {
		return nil, model.ArtifactInfo{}, err
	}
	sum := sha256.Sum256(data)
	info := model.ArtifactInfo{
		Name:     doc.Name,
		Version:  doc.Version,
		Kind:     doc.Kind,
		Target:   doc.Target,
		Checksum: hex.EncodeToString(sum[:]),
		Columns:  cloneStrings(doc.FeatureNames),
	}
	if e, ok := a.(*Ensemble); ok {
		info.Trees = e.Trees()
	}
	return a, info, nil
}

func (l *FileLoader) read(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, l.maxBytes)
	}
	return data, nil
}

// Format names accepted by Decode.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Decode parses an artifact document.
func Decode(data []byte, format string) (*Document, error) {
	var doc Document
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: decode yaml: %w", ErrInvalidArtifact, err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: decode json: %w", ErrInvalidArtifact, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidArtifact, format)
	}
	return &doc, nil
}

// Build validates doc and constructs the artifact it describes. When enc is
// not nil and doc embeds a vocabulary, both must list the same names in the
// same order.
func Build(doc *Document, enc *vocabulary.Encoder) (model.Artifact, error) {
	if err := validateColumns(doc.FeatureNames); err != nil {
		return nil, err
	}
	if err := checkVocabulary(doc, enc); err != nil {
		return nil, err
	}
	switch doc.Kind {
	case KindLinear:
		return newLinear(doc)
	case KindTreeEnsemble:
		return newEnsemble(doc)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, doc.Kind)
	}
}

func validateColumns(cols []string) error {
	if len(cols) == 0 {
		return fmt.Errorf("%w: feature_names is empty", ErrInvalidArtifact)
	}
	seen := make(map[string]struct{}, len(cols))
	for i, c := range cols {
		if c == "" {
			return fmt.Errorf("%w: feature_names[%d] is empty", ErrInvalidArtifact, i)
		}
		if _, dup := seen[c]; dup {
			return fmt.Errorf("%w: feature %q declared twice", ErrInvalidArtifact, c)
		}
		seen[c] = struct{}{}
	}
	return nil
}

func checkVocabulary(doc *Document, enc *vocabulary.Encoder) error {
	v := doc.Vocabulary
	if v == nil {
		return nil
	}
	col := v.Column
	if col == "" {
		col = vocabulary.Column
	}
	found := false
	for _, c := range doc.FeatureNames {
		if c == col {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: vocabulary column %q is not a feature", ErrInvalidArtifact, col)
	}
	if enc == nil || enc.Equal(v.Values) {
		return nil
	}
	if len(v.Values) != enc.Len() {
		return fmt.Errorf("%w: artifact lists %d names, encoder %d", ErrVocabularyMismatch, len(v.Values), enc.Len())
	}
	for i, name := range v.Values {
		if want, _ := enc.Decode(i); want != name {
			return fmt.Errorf("%w: code %d is %q in the artifact and %q in the encoder", ErrVocabularyMismatch, i, name, want)
		}
	}
	return ErrVocabularyMismatch
}
