package matching

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"lostfound/internal/items"
)

func TestTokensNormalize(t *testing.T) {
	got := Tokens("The CAFÉ crème wallet, near a bench!")
	assert.Equal(t, map[string]struct{}{
		"cafe": {}, "creme": {}, "wallet": {}, "bench": {},
	}, got)
}

func TestDice(t *testing.T) {
	a := Tokens("black leather wallet")
	assert.InDelta(t, 1.0, Dice(a, a), 1e-9)
	assert.InDelta(t, 0.5, Dice(a, Tokens("wallet")), 1e-9)
	assert.Zero(t, Dice(a, Tokens("")))
}

func TestTextSimilarityWithoutTokens(t *testing.T) {
	assert.InDelta(t, 1.0, TextSimilarity("X X", "x x"), 1e-9)
	assert.InDelta(t, 1.0, TextSimilarity("The", "the"), 1e-9)
	assert.InDelta(t, 1.0, TextSimilarity("Ä", "a"), 1e-9)
	assert.Zero(t, TextSimilarity("X", "Y"))
	assert.Zero(t, TextSimilarity("the", "a"))
	assert.Zero(t, TextSimilarity("!!", "!!"))
	assert.Zero(t, TextSimilarity("X", "wallet"))
	assert.InDelta(t, 1.0, TextSimilarity("ID 3", "id 3"), 1e-9)
}

func TestScorerIdenticalShortTexts(t *testing.T) {
	s := NewScorer(DefaultConfig())
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	for _, text := range []string{"X", "The", "ID 3"} {
		lost := &items.LostItem{Category: "card", Campus: 1, Title: text, Description: text, LostDate: day}
		found := &items.FoundItem{Category: "card", Campus: 1, Title: text, Description: text, FoundDate: day}
		score := s.Score(lost, found)
		assert.InDelta(t, 1.0, score, 1e-9, text)
		assert.True(t, s.Accepts(score), text)
	}
}

func TestProximity(t *testing.T) {
	d := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	assert.InDelta(t, 1.0, Proximity(d, d.Add(10*time.Hour), 7), 1e-9)
	assert.InDelta(t, math.Exp(-1), Proximity(d, d.AddDate(0, 0, 7), 7), 1e-9)
	assert.InDelta(t, math.Exp(-1), Proximity(d.AddDate(0, 0, 7), d, 7), 1e-9)
}

func TestScorerHardFilters(t *testing.T) {
	s := NewScorer(DefaultConfig())
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	lost := &items.LostItem{Category: "wallet", Campus: 1, Title: "Brown wallet", LostDate: day}
	same := &items.FoundItem{Category: "wallet", Campus: 1, Title: "Brown wallet", FoundDate: day}

	assert.InDelta(t, 1.0, s.Score(lost, same), 1e-9)
	assert.True(t, s.Accepts(s.Score(lost, same)))

	otherCategory := *same
	otherCategory.Category = "keys"
	assert.Zero(t, s.Score(lost, &otherCategory))

	otherCampus := *same
	otherCampus.Campus = 2
	assert.Zero(t, s.Score(lost, &otherCampus))
}

func TestScorerNormalizesWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TextWeight, cfg.TimeWeight = 3, 2
	s := NewScorer(cfg)
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	lost := &items.LostItem{Category: "wallet", Campus: 1, Title: "alpha", LostDate: day}
	found := &items.FoundItem{Category: "wallet", Campus: 1, Title: "omega", FoundDate: day}
	assert.InDelta(t, 0.4, s.Score(lost, found), 1e-9)
}
