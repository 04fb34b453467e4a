package vocab

import (
	"context"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSnapshot builds a small but structurally complete snapshot document.
func testSnapshot(t *testing.T) []byte {
	t.Helper()

	senses := map[string]*Sense{
		"be.v.01": {
			Word: "be", POS: "v", FrequencyRank: 2,
			DefinitionEN: "exist", DefinitionZH: "是",
		},
		"money.n.01": {
			Word: "money", POS: "n", FrequencyRank: 120, UsageRatio: 1.0,
			DefinitionEN: "medium of exchange", DefinitionZH: "錢",
			Embedding: []float32{0.9, 0.1, 0.0},
			Connections: Connections{
				Related: []string{"bank.n.01"},
			},
		},
		"bank.n.01": {
			Word: "bank", POS: "n", FrequencyRank: 520, UsageRatio: 0.72,
			DefinitionEN: "financial institution", DefinitionZH: "銀行",
			Embedding: []float32{0.8, 0.2, 0.1},
			Connections: Connections{
				Related: []string{"money.n.01"},
				Confused: []ConfusedRef{
					{SenseID: "bang.n.01", Reason: ReasonLookAlike},
					{SenseID: "ghost.n.99", Reason: ReasonSemantic},
				},
			},
		},
		"run.v.01": {
			Word: "run", POS: "v", FrequencyRank: 890, UsageRatio: 0.61,
			DefinitionEN: "move fast on foot", DefinitionZH: "跑",
			Embedding: []float32{0.1, 0.9, 0.2},
		},
		"bang.n.01": {
			Word: "bang", POS: "n", FrequencyRank: 1450,
			DefinitionEN: "sudden loud noise", DefinitionZH: "巨響",
		},
		"bank.n.02": {
			Word: "bank", POS: "n", FrequencyRank: 2990, UsageRatio: 0.28,
			DefinitionEN: "sloping land beside water", DefinitionZH: "河岸",
		},
		"u.s.a.n.01": {
			Word: "U.S.A.", POS: "n", FrequencyRank: 4200,
			DefinitionEN: "United States of America", DefinitionZH: "美國",
		},
		"lucid.a.01": {
			Word: "lucid", POS: "a", FrequencyRank: 7420,
			DefinitionEN: "clearly expressed", DefinitionZH: "清晰的",
			Embedding: []float32{0.3, 0.3, 0.8},
			Connections: Connections{
				Related: []string{"arcane.a.01"},
			},
		},
		"arcane.a.01": {
			Word: "arcane", POS: "a", FrequencyRank: 7900,
			DefinitionEN: "understood by few",
		},
	}

	data, err := json.Marshal(map[string]interface{}{
		"version": "3.2.0",
		"senses":  senses,
	})
	require.NoError(t, err, "fixture snapshot should marshal")
	return data
}

func loadTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Load(testSnapshot(t))
	require.NoError(t, err, "fixture snapshot should load")
	return store
}

func TestLoad_RejectsBadInput(t *testing.T) {
	t.Run("malformed json", func(t *testing.T) {
		_, err := Load([]byte("{nope"))
		require.Error(t, err)
	})

	t.Run("unsupported version", func(t *testing.T) {
		_, err := Load([]byte(`{"version":"2.9.1","senses":{"a.n.01":{"word":"a"}}}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported snapshot version")
	})

	t.Run("no senses", func(t *testing.T) {
		_, err := Load([]byte(`{"version":"3.0.0","senses":{}}`))
		require.Error(t, err)
	})
}

func TestLoad_BuildsIndices(t *testing.T) {
	store := loadTestStore(t)
	stats := store.Stats()

	assert.Equal(t, "3.2.0", store.Version())
	assert.Equal(t, 9, stats.SenseCount)
	assert.Equal(t, 8, stats.LemmaCount, "bank.n.01 and bank.n.02 share one lemma")

	assert.Equal(t, 3, stats.BandCounts[1000], "stop word be.v.01 must not land in band 1000")
	assert.Equal(t, 1, stats.BandCounts[2000])
	assert.Equal(t, 1, stats.BandCounts[3000])
	assert.Equal(t, 0, stats.BandCounts[4000])
	assert.Equal(t, 1, stats.BandCounts[5000])
	assert.Equal(t, 2, stats.BandCounts[8000])

	assert.Equal(t, 5, stats.POSCounts["n"])
	assert.Equal(t, 2, stats.POSCounts["v"])
	assert.InDelta(t, 4.0/9.0, stats.EmbeddingCoverage, 1e-9)
}

func TestGetSense(t *testing.T) {
	store := loadTestStore(t)

	sense, ok := store.GetSense("bank.n.01")
	require.True(t, ok)
	assert.Equal(t, "bank", sense.Word)
	assert.Equal(t, "bank.n.01", sense.ID, "loader must backfill the id from the map key")

	_, ok = store.GetSense("missing.n.01")
	assert.False(t, ok)
}

func TestSensesForLemma(t *testing.T) {
	store := loadTestStore(t)

	senses := store.SensesForLemma("bank")
	require.Len(t, senses, 2)
	assert.Equal(t, "bank.n.01", senses[0].ID, "higher usage ratio comes first")
	assert.Equal(t, "bank.n.02", senses[1].ID)

	senses = store.SensesForLemma("u.s.a")
	require.Len(t, senses, 1, "dotted lemmas must be indexed whole")
	assert.Equal(t, "u.s.a.n.01", senses[0].ID)

	assert.Empty(t, store.SensesForLemma("nonexistent"))
}

func TestSensesInBand_SortedByRank(t *testing.T) {
	store := loadTestStore(t)

	senses := store.SensesInBand(1000)
	require.Len(t, senses, 3)
	assert.Equal(t, []string{"money.n.01", "bank.n.01", "run.v.01"},
		[]string{senses[0].ID, senses[1].ID, senses[2].ID})
}

func TestRandomSensesInBand(t *testing.T) {
	store := loadTestStore(t)

	t.Run("deterministic under a fixed seed", func(t *testing.T) {
		a := store.RandomSensesInBand(rand.New(rand.NewSource(7)), 1000, 2, nil, "")
		b := store.RandomSensesInBand(rand.New(rand.NewSource(7)), 1000, 2, nil, "")
		require.Len(t, a, 2)
		assert.Equal(t, a[0].ID, b[0].ID)
		assert.Equal(t, a[1].ID, b[1].ID)
	})

	t.Run("returns all candidates when supply is short", func(t *testing.T) {
		got := store.RandomSensesInBand(rand.New(rand.NewSource(1)), 2000, 5, nil, "")
		require.Len(t, got, 1)
		assert.Equal(t, "bang.n.01", got[0].ID)
	})

	t.Run("excluded lemmas are skipped", func(t *testing.T) {
		exclude := map[string]bool{"money": true, "run": true}
		got := store.RandomSensesInBand(rand.New(rand.NewSource(1)), 1000, 5, exclude, "")
		require.Len(t, got, 1)
		assert.Equal(t, "bank.n.01", got[0].ID)
	})

	t.Run("part of speech filter", func(t *testing.T) {
		got := store.RandomSensesInBand(rand.New(rand.NewSource(1)), 1000, 5, nil, "v")
		require.Len(t, got, 1)
		assert.Equal(t, "run.v.01", got[0].ID)
	})

	t.Run("empty band", func(t *testing.T) {
		assert.Empty(t, store.RandomSensesInBand(rand.New(rand.NewSource(1)), 4000, 3, nil, ""))
	})
}

func TestSensesByRankRange(t *testing.T) {
	store := loadTestStore(t)

	t.Run("window in rank order", func(t *testing.T) {
		got := store.SensesByRankRange(100, 900, "", nil, 10)
		require.Len(t, got, 3)
		assert.Equal(t, "money.n.01", got[0].ID)
		assert.Equal(t, "bank.n.01", got[1].ID)
		assert.Equal(t, "run.v.01", got[2].ID)
	})

	t.Run("limit truncates", func(t *testing.T) {
		got := store.SensesByRankRange(100, 900, "", nil, 2)
		require.Len(t, got, 2)
		assert.Equal(t, "money.n.01", got[0].ID)
	})

	t.Run("filters apply", func(t *testing.T) {
		got := store.SensesByRankRange(100, 900, "n", map[string]bool{"money": true}, 10)
		require.Len(t, got, 1)
		assert.Equal(t, "bank.n.01", got[0].ID)
	})

	t.Run("inverted window is empty", func(t *testing.T) {
		assert.Empty(t, store.SensesByRankRange(900, 100, "", nil, 10))
	})
}

func TestConfused(t *testing.T) {
	store := loadTestStore(t)

	rels := store.Confused("bank.n.01")
	require.Len(t, rels, 1, "unknown confusable references must be skipped")
	assert.Equal(t, "bang.n.01", rels[0].SenseID)
	assert.Equal(t, ReasonLookAlike, rels[0].Reason)
	assert.Equal(t, "巨響", rels[0].Gloss)
	assert.Equal(t, 1450, rels[0].Rank)

	assert.Empty(t, store.Confused("money.n.01"))
	assert.Empty(t, store.Confused("missing.n.01"))
}

func TestRelated_GlossFallsBackToEnglish(t *testing.T) {
	store := loadTestStore(t)

	rels := store.Related("lucid.a.01")
	require.Len(t, rels, 1)
	assert.Equal(t, "arcane.a.01", rels[0].SenseID)
	assert.Equal(t, "understood by few", rels[0].Gloss,
		"a sense without a Chinese gloss falls back to the English definition")
}

func TestOtherSenses(t *testing.T) {
	store := loadTestStore(t)

	assert.Equal(t, []string{"bank.n.02"}, store.OtherSenses("bank.n.01"))
	assert.Equal(t, []string{"bank.n.01"}, store.OtherSenses("bank.n.02"))
	assert.Empty(t, store.OtherSenses("run.v.01"))
	assert.Nil(t, store.OtherSenses("missing.n.01"))
}

func TestLoadFromSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	require.NoError(t, os.WriteFile(path, testSnapshot(t), 0o644))

	store, err := LoadFromSource(context.Background(), &FileSource{Path: path}, nil)
	require.NoError(t, err)
	assert.Equal(t, 9, store.Stats().SenseCount)

	_, err = LoadFromSource(context.Background(), &FileSource{Path: filepath.Join(dir, "absent.json")}, nil)
	require.Error(t, err, "missing primary with no fallback is a hard failure")
}
