// internal/matching/similarity.go
package matching

import (
	"math"
	"slices"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gonum.org/v1/gonum/floats"

	"lostfound/internal/items"
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "at": {}, "by": {}, "for": {}, "from": {}, "in": {},
	"is": {}, "it": {}, "its": {}, "my": {}, "near": {}, "of": {}, "on": {}, "or": {},
	"the": {}, "this": {}, "that": {}, "to": {}, "was": {}, "with": {},
}

// normalize case folds text, strips diacritics and splits it into words.
func normalize(text string) []string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, text)
	if err != nil {
		plain = text
	}
	plain = cases.Fold().String(plain)
	return strings.FieldsFunc(plain, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Tokens returns the normalized token set of text: case folded, diacritics
// stripped, stopwords and single-character tokens removed.
func Tokens(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range normalize(text) {
		if len([]rune(tok)) < 2 {
			continue
		}
		if _, skip := stopwords[tok]; skip {
			continue
		}
		set[tok] = struct{}{}
	}
	return set
}

// TextSimilarity is the Dice coefficient of the token sets of a and b. When
// filtering leaves neither text with a token, the normalized words are
// compared directly.
func TextSimilarity(a, b string) float64 {
	ta, tb := Tokens(a), Tokens(b)
	if len(ta) > 0 || len(tb) > 0 {
		return Dice(ta, tb)
	}
	wa, wb := normalize(a), normalize(b)
	if len(wa) > 0 && slices.Equal(wa, wb) {
		return 1
	}
	return 0
}

// Dice is the Sørensen–Dice coefficient of two token sets.
func Dice(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(a)+len(b))
}

// Proximity decays exponentially with the distance in days between two
// report dates: exp(-|Δdays|/decayDays).
func Proximity(a, b time.Time, decayDays float64) float64 {
	days := math.Abs(items.Day(a).Sub(items.Day(b)).Hours()) / 24
	if decayDays <= 0 {
		if days == 0 {
			return 1
		}
		return 0
	}
	return math.Exp(-days / decayDays)
}

// Scorer combines textual and temporal similarity into one score in [0,1].
type Scorer struct {
	weights   []float64
	threshold float64
	decayDays float64
}

func NewScorer(cfg Config) *Scorer {
	weights := []float64{cfg.TextWeight, cfg.TimeWeight}
	if sum := floats.Sum(weights); sum > 0 {
		floats.Scale(1/sum, weights)
	}
	return &Scorer{weights: weights, threshold: cfg.Threshold, decayDays: cfg.DecayDays}
}

// Score rates a lost/found pair. Category and campus are hard filters: a
// pair that differs in either scores 0.
func (s *Scorer) Score(lost *items.LostItem, found *items.FoundItem) float64 {
	if !strings.EqualFold(lost.Category, found.Category) || lost.Campus != found.Campus {
		return 0
	}
	text := TextSimilarity(lost.Title+" "+lost.Description, found.Title+" "+found.Description)
	when := Proximity(lost.LostDate, found.FoundDate, s.decayDays)
	return floats.Dot(s.weights, []float64{text, when})
}

// Accepts reports whether score is high enough to propose a match.
func (s *Scorer) Accepts(score float64) bool {
	return score >= s.threshold
}
