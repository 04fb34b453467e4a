package distractor

import (
	"encoding/json"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordmine/wordmine/internal/vocab"
)

func buildStore(t *testing.T, senses map[string]*vocab.Sense) *vocab.Store {
	t.Helper()
	data, err := json.Marshal(map[string]interface{}{
		"version": "3.1.0",
		"senses":  senses,
	})
	require.NoError(t, err)
	store, err := vocab.Load(data)
	require.NoError(t, err)
	return store
}

// deckStore builds a vocabulary where every gate decision is predictable:
// the target embedding is the x axis, so each candidate's cosine is just its
// first component (all vectors are unit length).
func deckStore(t *testing.T) *vocab.Store {
	t.Helper()
	return buildStore(t, map[string]*vocab.Sense{
		"bank.n.01": {
			Word: "bank", POS: "n", FrequencyRank: 520, UsageRatio: 0.7,
			DefinitionEN: "financial institution", DefinitionZH: "銀行",
			Embedding: []float32{1, 0, 0},
			Connections: vocab.Connections{
				Confused: []vocab.ConfusedRef{
					{SenseID: "vault.n.01", Reason: vocab.ReasonSemantic},
					{SenseID: "bang.n.01", Reason: vocab.ReasonLookAlike},
				},
				Related: []string{"fund.n.01", "money.n.01"},
			},
		},
		"bank.n.02": {
			Word: "bank", POS: "n", FrequencyRank: 3100, UsageRatio: 0.3,
			DefinitionEN: "sloping land beside water", DefinitionZH: "河岸",
		},
		// cosine 0.9986 against the target: too close to be a fair trap.
		"vault.n.01": {
			Word: "vault", POS: "n", FrequencyRank: 4200,
			DefinitionEN: "strong room", DefinitionZH: "金庫",
			Embedding: []float32{0.95, 0.05, 0},
		},
		// no embedding; rank distance 930 lands in the confusable window.
		"bang.n.01": {
			Word: "bang", POS: "n", FrequencyRank: 1450,
			DefinitionEN: "sudden loud noise", DefinitionZH: "巨響",
		},
		// cosine 0.5: admissible trap.
		"fund.n.01": {
			Word: "fund", POS: "n", FrequencyRank: 640,
			DefinitionEN: "pool of money", DefinitionZH: "基金",
			Embedding: []float32{0.5, 0.866, 0},
		},
		// cosine 0.72: too close for a trap, relaxed-window filler only.
		"money.n.01": {
			Word: "money", POS: "n", FrequencyRank: 120,
			DefinitionEN: "medium of exchange", DefinitionZH: "錢",
			Embedding: []float32{0.72, 0.694, 0},
		},
		// cosine 0.3: preferred-window filler.
		"river.n.01": {
			Word: "river", POS: "n", FrequencyRank: 800,
			DefinitionEN: "large natural stream", DefinitionZH: "河流",
			Embedding: []float32{0.3, 0.954, 0},
		},
		// no embedding: admitted in any filler pass.
		"apple.n.01": {
			Word: "apple", POS: "n", FrequencyRank: 900,
			DefinitionEN: "round fruit", DefinitionZH: "蘋果",
		},
		// no Chinese gloss; invisible to a Chinese-pool deck.
		"glim.n.01": {
			Word: "glim", POS: "n", FrequencyRank: 600,
			DefinitionEN: "a faint light",
		},
	})
}

func rolesByCount(d *Deck) map[Role]int {
	counts := make(map[Role]int)
	for _, opt := range d.Options {
		counts[opt.Role]++
	}
	return counts
}

func TestBuildDeck(t *testing.T) {
	store := deckStore(t)
	engine := NewEngine(store, DefaultConfig())
	target, ok := store.GetSense("bank.n.01")
	require.True(t, ok)

	deck, err := engine.BuildDeck(rand.New(rand.NewSource(42)), target)
	require.NoError(t, err)
	require.NoError(t, deck.Validate())

	counts := rolesByCount(deck)
	assert.Equal(t, 2, counts[RoleTarget], "target and its sibling sense")
	assert.Equal(t, 2, counts[RoleTrap], "bang passes the rank gate, fund the cosine gate")
	assert.Equal(t, 1, counts[RoleFiller])
	assert.Equal(t, 1, counts[RoleUnknown])

	assert.Equal(t, UnknownOptionID, deck.Options[DeckSize-1].ID, "unknown is always last")

	ids := make(map[string]bool)
	for _, opt := range deck.Options {
		ids[opt.ID] = true
	}
	assert.True(t, ids["target_bank.n.01"])
	assert.True(t, ids["target_bank.n.02"])
	assert.True(t, ids["trap_bang.n.01"])
	assert.True(t, ids["trap_fund.n.01"])
	assert.False(t, ids["trap_vault.n.01"], "near-identical embedding must be rejected")
	assert.False(t, ids["trap_money.n.01"], "cosine 0.72 is above the trap threshold")
	assert.False(t, ids["filler_money.n.01"], "preferred-window fillers fill the only slot first")
	assert.False(t, ids["filler_glim.n.01"], "senses without a Chinese gloss stay out of a Chinese deck")
}

func TestBuildDeck_Metadata(t *testing.T) {
	store := deckStore(t)
	engine := NewEngine(store, DefaultConfig())
	target, _ := store.GetSense("bank.n.01")

	deck, err := engine.BuildDeck(rand.New(rand.NewSource(42)), target)
	require.NoError(t, err)

	meta, ok := deck.Meta["target_bank.n.01"]
	require.True(t, ok)
	assert.Equal(t, "bank.n.01", meta.SenseID)
	assert.Equal(t, "financial institution", meta.DefinitionEN)
	assert.True(t, meta.IsPrimarySense)

	meta, ok = deck.Meta["trap_bang.n.01"]
	require.True(t, ok)
	assert.Equal(t, vocab.ReasonLookAlike, meta.Reason, "curated confusables keep their curated reason")

	meta, ok = deck.Meta["trap_fund.n.01"]
	require.True(t, ok)
	assert.Equal(t, vocab.ReasonSemantic, meta.Reason, "semantic-neighbor traps get a classified reason")

	_, ok = deck.Meta[UnknownOptionID]
	assert.False(t, ok, "the unknown option carries no metadata")
}

func TestBuildDeck_DeterministicUnderSeed(t *testing.T) {
	store := deckStore(t)
	engine := NewEngine(store, DefaultConfig())
	target, _ := store.GetSense("bank.n.01")

	a, err := engine.BuildDeck(rand.New(rand.NewSource(7)), target)
	require.NoError(t, err)
	b, err := engine.BuildDeck(rand.New(rand.NewSource(7)), target)
	require.NoError(t, err)

	require.Len(t, b.Options, len(a.Options))
	for i := range a.Options {
		assert.Equal(t, a.Options[i].ID, b.Options[i].ID, "option order must be reproducible at position %d", i)
	}
}

func TestBuildDeck_EnglishGlossFallback(t *testing.T) {
	store := buildStore(t, map[string]*vocab.Sense{
		"glim.n.01": {
			Word: "glim", POS: "n", FrequencyRank: 600,
			DefinitionEN: "a faint light",
		},
		"spark.n.01": {
			Word: "spark", POS: "n", FrequencyRank: 700,
			DefinitionEN: "small fiery particle", DefinitionZH: "火花",
		},
		"ember.n.01": {
			Word: "ember", POS: "n", FrequencyRank: 820,
			DefinitionEN: "glowing coal fragment",
		},
	})
	engine := NewEngine(store, DefaultConfig())
	target, _ := store.GetSense("glim.n.01")

	deck, err := engine.BuildDeck(rand.New(rand.NewSource(3)), target)
	require.NoError(t, err)

	var targetText string
	for _, opt := range deck.Options {
		if opt.Role == RoleTarget {
			targetText = opt.Text
		}
		if opt.Role == RoleFiller && !strings.HasPrefix(opt.ID, "filler_placeholder") {
			assert.True(t, strings.HasSuffix(opt.Text, glossCaveat),
				"fillers must render in the deck's gloss pool: %s", opt.Text)
		}
	}
	assert.Equal(t, "a faint light"+glossCaveat, targetText,
		"a target without a Chinese gloss surfaces English with the caveat")
}

func TestBuildDeck_PadsWithPlaceholders(t *testing.T) {
	store := buildStore(t, map[string]*vocab.Sense{
		"lone.n.01": {
			Word: "lone", POS: "n", FrequencyRank: 300,
			DefinitionEN: "single", DefinitionZH: "單獨",
		},
	})
	engine := NewEngine(store, DefaultConfig())
	target, _ := store.GetSense("lone.n.01")

	deck, err := engine.BuildDeck(rand.New(rand.NewSource(1)), target)
	require.NoError(t, err)
	require.NoError(t, deck.Validate())

	placeholders := 0
	for _, opt := range deck.Options {
		if strings.HasPrefix(opt.ID, "filler_placeholder") {
			placeholders++
			assert.True(t, strings.HasPrefix(opt.Text, PlaceholderText))
		}
	}
	assert.Equal(t, 4, placeholders, "a one-sense vocabulary pads every filler slot")
}

func TestBuildDeck_NilTarget(t *testing.T) {
	engine := NewEngine(deckStore(t), DefaultConfig())
	_, err := engine.BuildDeck(rand.New(rand.NewSource(1)), nil)
	require.Error(t, err)
}

func TestClassifyReason(t *testing.T) {
	tests := []struct {
		target, cand string
		want         vocab.ConfuseReason
	}{
		{"bank", "bang", vocab.ReasonLookAlike},
		{"accept", "except", vocab.ReasonLookAlike},
		{"sailor", "seller", vocab.ReasonSoundAlike},
		{"bank", "financial", vocab.ReasonSemantic},
		{"money", "coin", vocab.ReasonSemantic},
	}
	for _, tt := range tests {
		t.Run(tt.target+"_"+tt.cand, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyReason(tt.target, tt.cand))
		})
	}
}
