package vocab

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wordmine/wordmine/internal/errs"
)

// snapshotDoc mirrors the exported snapshot layout. The export carries its
// own indices but byWord historically used surface forms, so every index is
// rebuilt here from the senses themselves and the exported ones are ignored.
type snapshotDoc struct {
	Version string            `json:"version"`
	Senses  map[string]*Sense `json:"senses"`
}

// Store serves deterministic lookups over a loaded snapshot. All fields are
// built once during Load and never mutated afterwards.
type Store struct {
	version string
	senses  map[string]*Sense
	byLemma map[string][]*Sense
	byBand  map[int][]*Sense
	byPOS   map[string][]*Sense
	byRank  []*Sense
	stats   Stats
}

// Load parses a snapshot document and builds the in-memory indices.
func Load(data []byte) (*Store, error) {
	start := time.Now()

	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary snapshot: %w", err)
	}
	if !strings.HasPrefix(doc.Version, "3.") {
		return nil, errs.Validation("unsupported snapshot version %q (want 3.x)", doc.Version)
	}
	if len(doc.Senses) == 0 {
		return nil, errs.Validation("snapshot contains no senses")
	}

	s := &Store{
		version: doc.Version,
		senses:  make(map[string]*Sense, len(doc.Senses)),
		byLemma: make(map[string][]*Sense),
		byBand:  make(map[int][]*Sense),
		byPOS:   make(map[string][]*Sense),
	}

	embedded := 0
	for id, sense := range doc.Senses {
		if sense == nil {
			continue
		}
		sense.ID = id
		s.senses[id] = sense

		lemma := sense.Lemma()
		s.byLemma[lemma] = append(s.byLemma[lemma], sense)
		if sense.POS != "" {
			s.byPOS[sense.POS] = append(s.byPOS[sense.POS], sense)
		}
		if sense.FrequencyRank > StopWordRank && sense.FrequencyRank <= MaxBand {
			band := BandFor(sense.FrequencyRank)
			s.byBand[band] = append(s.byBand[band], sense)
		}
		if sense.HasEmbedding() {
			embedded++
		}
		s.byRank = append(s.byRank, sense)
	}

	byRankOrder := func(a, b *Sense) bool {
		if a.FrequencyRank != b.FrequencyRank {
			return a.FrequencyRank < b.FrequencyRank
		}
		return a.ID < b.ID
	}
	sort.Slice(s.byRank, func(i, j int) bool { return byRankOrder(s.byRank[i], s.byRank[j]) })
	for band := range s.byBand {
		senses := s.byBand[band]
		sort.Slice(senses, func(i, j int) bool { return byRankOrder(senses[i], senses[j]) })
	}
	for pos := range s.byPOS {
		senses := s.byPOS[pos]
		sort.Slice(senses, func(i, j int) bool { return byRankOrder(senses[i], senses[j]) })
	}
	for lemma := range s.byLemma {
		senses := s.byLemma[lemma]
		sort.Slice(senses, func(i, j int) bool {
			if senses[i].UsageRatio != senses[j].UsageRatio {
				return senses[i].UsageRatio > senses[j].UsageRatio
			}
			return senses[i].ID < senses[j].ID
		})
	}

	bandCounts := make(map[int]int, len(Bands))
	for _, band := range Bands {
		bandCounts[band] = len(s.byBand[band])
	}
	posCounts := make(map[string]int, len(s.byPOS))
	for pos, senses := range s.byPOS {
		posCounts[pos] = len(senses)
	}
	s.stats = Stats{
		SenseCount:        len(s.senses),
		LemmaCount:        len(s.byLemma),
		BandCounts:        bandCounts,
		POSCounts:         posCounts,
		EmbeddingCoverage: float64(embedded) / float64(len(s.senses)),
		Version:           doc.Version,
	}

	log.Info().
		Str("version", doc.Version).
		Int("senses", len(s.senses)).
		Int("lemmas", len(s.byLemma)).
		Float64("embedding_coverage", s.stats.EmbeddingCoverage).
		Dur("elapsed", time.Since(start)).
		Msg("Vocabulary snapshot loaded")

	return s, nil
}

// LoadFromSource fetches the snapshot via the configured sources and loads it.
func LoadFromSource(ctx context.Context, primary, fallback SnapshotSource) (*Store, error) {
	data, origin, err := Resolve(ctx, primary, fallback)
	if err != nil {
		return nil, err
	}
	store, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot from %s: %w", origin, err)
	}
	return store, nil
}

// Version returns the snapshot version string.
func (s *Store) Version() string { return s.version }

// Stats returns the snapshot statistics computed at load time.
func (s *Store) Stats() Stats { return s.stats }

// GetSense looks a sense up by id.
func (s *Store) GetSense(id string) (*Sense, bool) {
	sense, ok := s.senses[id]
	return sense, ok
}

// SensesForLemma returns every sense filed under the lemma, primary senses
// first. The returned slice is shared; callers must not modify it.
func (s *Store) SensesForLemma(lemma string) []*Sense {
	return s.byLemma[lemma]
}

// SensesInBand returns the band's senses ordered by rank.
func (s *Store) SensesInBand(band int) []*Sense {
	return s.byBand[band]
}

// RandomSensesInBand draws a uniform sample without replacement from a band,
// skipping excluded lemmas and, when pos is non-empty, other parts of speech.
// Fewer than count senses are returned when supply is exhausted.
func (s *Store) RandomSensesInBand(rng *rand.Rand, band, count int, excludeLemmas map[string]bool, pos string) []*Sense {
	pool := s.byBand[band]
	candidates := make([]*Sense, 0, len(pool))
	for _, sense := range pool {
		if pos != "" && sense.POS != pos {
			continue
		}
		if excludeLemmas[sense.Lemma()] {
			continue
		}
		candidates = append(candidates, sense)
	}
	if len(candidates) <= count {
		return candidates
	}
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	return candidates[:count]
}

// SensesByRankRange returns up to limit senses with minRank <= rank <=
// maxRank in rank order, with optional part-of-speech and lemma exclusion
// filters.
func (s *Store) SensesByRankRange(minRank, maxRank int, pos string, excludeLemmas map[string]bool, limit int) []*Sense {
	if minRank > maxRank || limit <= 0 {
		return nil
	}
	start := sort.Search(len(s.byRank), func(i int) bool {
		return s.byRank[i].FrequencyRank >= minRank
	})
	var out []*Sense
	for i := start; i < len(s.byRank); i++ {
		sense := s.byRank[i]
		if sense.FrequencyRank > maxRank {
			break
		}
		if pos != "" && sense.POS != pos {
			continue
		}
		if excludeLemmas != nil && excludeLemmas[sense.Lemma()] {
			continue
		}
		out = append(out, sense)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Confused resolves the sense's curated confusables to full records. Unknown
// references are skipped.
func (s *Store) Confused(id string) []Relation {
	sense, ok := s.senses[id]
	if !ok {
		return nil
	}
	out := make([]Relation, 0, len(sense.Connections.Confused))
	for _, ref := range sense.Connections.Confused {
		if rel, ok := s.relation(ref.SenseID); ok {
			rel.Reason = ref.Reason
			out = append(out, rel)
		}
	}
	return out
}

// Related resolves the sense's related connections to full records.
func (s *Store) Related(id string) []Relation {
	sense, ok := s.senses[id]
	if !ok {
		return nil
	}
	return s.relations(sense.Connections.Related)
}

// Opposite resolves the sense's opposite connections to full records.
func (s *Store) Opposite(id string) []Relation {
	sense, ok := s.senses[id]
	if !ok {
		return nil
	}
	return s.relations(sense.Connections.Opposite)
}

// OtherSenses returns the ids of the sense's siblings under the same lemma,
// from the rebuilt lemma index rather than the snapshot's own list.
func (s *Store) OtherSenses(id string) []string {
	sense, ok := s.senses[id]
	if !ok {
		return nil
	}
	siblings := s.byLemma[sense.Lemma()]
	out := make([]string, 0, len(siblings))
	for _, sib := range siblings {
		if sib.ID != id {
			out = append(out, sib.ID)
		}
	}
	return out
}

func (s *Store) relations(ids []string) []Relation {
	out := make([]Relation, 0, len(ids))
	for _, id := range ids {
		if rel, ok := s.relation(id); ok {
			out = append(out, rel)
		}
	}
	return out
}

func (s *Store) relation(id string) (Relation, bool) {
	sense, ok := s.senses[id]
	if !ok {
		return Relation{}, false
	}
	gloss := sense.DefinitionZH
	if gloss == "" {
		gloss = sense.DefinitionEN
	}
	return Relation{
		SenseID: sense.ID,
		Word:    sense.Word,
		Gloss:   gloss,
		POS:     sense.POS,
		Rank:    sense.FrequencyRank,
	}, true
}
