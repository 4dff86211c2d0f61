// Package vocabulary maps municipality names to the integer codes the model
// was trained with.
//
// The code of a name is its zero-based position in the vocabulary. The model
// consumes that code as a plain numeric feature, so the order below must match
// the label encoding used at training time exactly. Reordering, inserting or
// deleting an entry silently invalidates every prediction without raising an
// error. Artifacts that embed their own vocabulary are checked against this
// list at load time (see Equal).
package vocabulary

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/okian/crimecast/internal/domain/model"
)

// Column is the training column that holds the encoded municipality.
const Column = "Municipio"

// municipalities is the training-time label encoding. Order is load-bearing.
var municipalities = [...]string{
	"abreu e lima", "afogados da ingazeira", "agrestina", "altinho",
	"amaraji", "angelim", "araripina", "arcoverde", "barra de guabiraba",
	"barreiros", "belo jardim", "bezerros", "bom conselho", "bom jardim",
	"bonito", "brejo da madre de deus", "buenos aires",
	"cabo de santo agostinho", "cachoeirinha", "camaragibe", "camutanga",
	"canhotinho", "capoeiras", "carpina", "caruaru", "casinhas", "catende",
	"cedro", "condado", "correntes", "cumaru", "cupira", "dormentes", "escada",
	"exu", "feira nova", "ferreiros", "flores", "floresta", "frei miguelinho",
	"gameleira", "garanhuns", "goiana", "granito", "iati", "ibimirim",
	"ibirajuba", "igarassu", "ipojuca", "ipubi", "itacuruba", "itapissuma",
	"itaquitinga", "jaqueira", "joaquim nabuco", "jucati", "jupi", "jurema",
	"lagoa do carro", "lagoa do ouro", "lagoa dos gatos", "lagoa grande",
	"lajedo", "limoeiro", "macaparana", "machados", "maraial", "mirandiba",
	"moreno", "olinda", "ouricuri", "palmares", "palmeirina", "panelas",
	"paranatama", "parnamirim", "passira", "paudalho", "paulista", "pedra",
	"pesqueira", "petrolina", "pombos", "primavera", "recife",
	"riacho das almas", "rio formoso", "salgueiro", "santa cruz",
	"santa cruz da baixa verde", "santa cruz do capibaribe",
	"santa filomena", "santa maria da boa vista", "serra talhada", "serrita",
	"surubim", "tabira", "tacaratu", "taquaritinga do norte", "terezinha",
	"terra nova", "toritama", "trindade", "triunfo", "tupanatinga",
	"venturosa", "verdejante", "brejinho", "carnaubeira da penha",
	"itapetim", "manari", "quixaba", "santa terezinha", "tuparetama",
	"ingazeira", "salgadinho",
}

// Encoder resolves names against a fixed, ordered vocabulary.
// It is immutable and safe for concurrent use.
type Encoder struct {
	names []string
	codes map[string]int
}

// Default returns the encoder for the built-in municipality vocabulary.
func Default() *Encoder {
	return defaultEncoder
}

var defaultEncoder = mustNew(municipalities[:])

// New builds an encoder over names. Names must already be in canonical form
// and unique.
func New(names []string) (*Encoder, error) {
	e := &Encoder{
		names: make([]string, len(names)),
		codes: make(map[string]int, len(names)),
	}
	for i, n := range names {
		if n != Normalize(n) {
			return nil, fmt.Errorf("vocabulary entry %d %q is not normalized", i, n)
		}
		if _, dup := e.codes[n]; dup {
			return nil, fmt.Errorf("vocabulary entry %q is duplicated", n)
		}
		e.names[i] = n
		e.codes[n] = i
	}
	return e, nil
}

func mustNew(names []string) *Encoder {
	e, err := New(names)
	if err != nil {
		panic(err)
	}
	return e
}

// Normalize trims surrounding whitespace and folds ASCII letters to lower case.
func Normalize(name string) string {
	s := strings.TrimSpace(name)
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Encode returns the code of name after normalization.
func (e *Encoder) Encode(name string) (int, error) {
	code, ok := e.codes[Normalize(name)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", model.ErrUnknownCategory, name)
	}
	return code, nil
}

// Decode returns the name stored at code.
func (e *Encoder) Decode(code int) (string, bool) {
	if code < 0 || code >= len(e.names) {
		return "", false
	}
	return e.names[code], true
}

// Len returns the vocabulary size.
func (e *Encoder) Len() int { return len(e.names) }

// Names returns a copy of the vocabulary in code order.
func (e *Encoder) Names() []string {
	out := make([]string, len(e.names))
	copy(out, e.names)
	return out
}

// Equal reports whether other lists exactly the same names in the same order.
func (e *Encoder) Equal(other []string) bool {
	if len(other) != len(e.names) {
		return false
	}
	for i, n := range other {
		if n != e.names[i] {
			return false
		}
	}
	return true
}

// Fingerprint is a sha256 over the ordered names.
func (e *Encoder) Fingerprint() string {
	h := sha256.New()
	for _, n := range e.names {
		h.Write([]byte(n))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
