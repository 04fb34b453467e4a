package distractor

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/agnivade/levenshtein"
	sqvect "github.com/liliang-cn/sqvect/v2/pkg/core"

	"github.com/wordmine/wordmine/internal/errs"
	"github.com/wordmine/wordmine/internal/vocab"
)

// Trap and filler gates. Cosine windows apply only when both sides carry
// embeddings; the rank-distance window is the embedding-free fallback for
// traps.
const (
	trapRankDistMin = 100
	trapRankDistMax = 2000

	fillerCosMin        = 0.2
	fillerCosMax        = 0.7
	fillerCosMinRelaxed = 0.05
	fillerCosMaxRelaxed = 0.85
)

// Config holds the deck-building knobs.
type Config struct {
	// SimilarityThreshold rejects trap candidates whose cosine similarity
	// to the target is at or above it. Too close means the trap is itself
	// a correct answer.
	SimilarityThreshold float64

	// FillerRadius is the half-width of the rank window fillers are drawn
	// from around the target rank.
	FillerRadius int

	// MaxTargets caps target options per deck.
	MaxTargets int

	// MaxTraps caps trap options per deck.
	MaxTraps int
}

// DefaultConfig returns the production deck-building configuration.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.6,
		FillerRadius:        500,
		MaxTargets:          5,
		MaxTraps:            3,
	}
}

// Engine builds decks against a loaded vocabulary store. The engine holds no
// mutable state; all randomness comes through the caller-supplied PRNG.
type Engine struct {
	store *vocab.Store
	cfg   Config
}

// NewEngine creates a deck-building engine over the store.
func NewEngine(store *vocab.Store, cfg Config) *Engine {
	return &Engine{store: store, cfg: cfg}
}

// glossPool selects which definition language the deck draws from. The
// target's available definitions decide it; every other option must render
// in the same pool so no option stands out by language.
type glossPool int

const (
	poolZH glossPool = iota
	poolEN
	poolNone
)

// glossCaveat marks definitions surfaced from the English fallback pool.
const glossCaveat = "（英文釋義）"

func targetGloss(s *vocab.Sense) (string, glossPool) {
	if strings.TrimSpace(s.DefinitionZH) != "" {
		return s.DefinitionZH, poolZH
	}
	if strings.TrimSpace(s.DefinitionEN) != "" {
		return s.DefinitionEN + glossCaveat, poolEN
	}
	return NoGlossText, poolNone
}

func glossIn(pool glossPool, s *vocab.Sense) (string, bool) {
	switch pool {
	case poolZH:
		if strings.TrimSpace(s.DefinitionZH) != "" {
			return s.DefinitionZH, true
		}
	case poolEN:
		if strings.TrimSpace(s.DefinitionEN) != "" {
			return s.DefinitionEN + glossCaveat, true
		}
	}
	return "", false
}

// BuildDeck constructs the six-option deck for a target sense: 1-5 targets,
// 0-3 gated traps, fillers up to five non-unknown options, then the unknown
// option last. The first five are shuffled with the supplied PRNG.
func (e *Engine) BuildDeck(rng *rand.Rand, target *vocab.Sense) (*Deck, error) {
	if target == nil {
		return nil, errs.Validation("deck target sense is nil")
	}

	deck := &Deck{Meta: make(map[string]OptionMeta)}
	seenTexts := map[string]bool{UnknownOptionText: true}
	usedLemmas := map[string]bool{target.Lemma(): true}

	text, pool := targetGloss(target)
	e.addOption(deck, seenTexts, RoleTarget, target, text, "")

	targets := 1
	for _, sib := range e.store.SensesForLemma(target.Lemma()) {
		if targets >= e.cfg.MaxTargets {
			break
		}
		if sib.ID == target.ID {
			continue
		}
		sibText, ok := glossIn(pool, sib)
		if !ok {
			continue
		}
		if e.addOption(deck, seenTexts, RoleTarget, sib, sibText, "") {
			targets++
		}
	}

	trapBudget := e.cfg.MaxTraps
	if room := DeckSize - 1 - len(deck.Options); room < trapBudget {
		trapBudget = room
	}
	e.addTraps(deck, seenTexts, usedLemmas, target, pool, trapBudget)
	e.addFillers(rng, deck, seenTexts, usedLemmas, target, pool)

	for n := 1; len(deck.Options) < DeckSize-1; n++ {
		padText := PlaceholderText
		if n > 1 {
			padText = fmt.Sprintf("%s %d", PlaceholderText, n)
		}
		deck.Options = append(deck.Options, Option{
			ID:   fmt.Sprintf("filler_placeholder_%d", n),
			Text: padText,
			Role: RoleFiller,
		})
		seenTexts[padText] = true
	}

	rng.Shuffle(len(deck.Options), func(i, j int) {
		deck.Options[i], deck.Options[j] = deck.Options[j], deck.Options[i]
	})
	deck.Options = append(deck.Options, Option{
		ID:   UnknownOptionID,
		Text: UnknownOptionText,
		Role: RoleUnknown,
	})

	if err := deck.Validate(); err != nil {
		return nil, fmt.Errorf("failed to build deck for %s: %w", target.ID, err)
	}
	return deck, nil
}

// addTraps fills up to budget trap options: curated confusables first, then
// related senses across the whole headword, each gated for confusability.
func (e *Engine) addTraps(deck *Deck, seenTexts, usedLemmas map[string]bool, target *vocab.Sense, pool glossPool, budget int) {
	if budget <= 0 {
		return
	}
	added := 0
	consider := func(senseID string, reason vocab.ConfuseReason) {
		if added >= budget {
			return
		}
		cand, ok := e.store.GetSense(senseID)
		if !ok {
			return
		}
		if usedLemmas[cand.Lemma()] {
			return
		}
		candText, ok := glossIn(pool, cand)
		if !ok {
			return
		}
		if !e.trapAdmissible(target, cand) {
			return
		}
		if reason == "" {
			reason = classifyReason(target.Word, cand.Word)
		}
		if e.addOption(deck, seenTexts, RoleTrap, cand, candText, reason) {
			usedLemmas[cand.Lemma()] = true
			added++
		}
	}

	for _, rel := range e.store.Confused(target.ID) {
		consider(rel.SenseID, rel.Reason)
	}
	for _, rel := range e.store.Related(target.ID) {
		consider(rel.SenseID, "")
	}
	for _, sibID := range e.store.OtherSenses(target.ID) {
		for _, rel := range e.store.Related(sibID) {
			consider(rel.SenseID, "")
		}
	}
}

// addFillers brings the deck up to five non-unknown options from the rank
// neighborhood, tightening by cosine window first and relaxing in stages
// when supply runs short.
func (e *Engine) addFillers(rng *rand.Rand, deck *Deck, seenTexts, usedLemmas map[string]bool, target *vocab.Sense, pool glossPool) {
	need := DeckSize - 1 - len(deck.Options)
	if need <= 0 {
		return
	}

	minRank := target.FrequencyRank - e.cfg.FillerRadius
	if minRank <= vocab.StopWordRank {
		minRank = vocab.StopWordRank + 1
	}
	maxRank := target.FrequencyRank + e.cfg.FillerRadius

	candidates := e.store.SensesByRankRange(minRank, maxRank, "", usedLemmas, 200)
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	admit := func(pass int, cand *vocab.Sense) bool {
		if !target.HasEmbedding() || !cand.HasEmbedding() {
			return true
		}
		cos := sqvect.CosineSimilarity(target.Embedding, cand.Embedding)
		switch pass {
		case 0:
			return cos >= fillerCosMin && cos < fillerCosMax
		case 1:
			return cos >= fillerCosMinRelaxed && cos <= fillerCosMaxRelaxed
		default:
			return true
		}
	}

	for pass := 0; pass < 3 && len(deck.Options) < DeckSize-1; pass++ {
		for _, cand := range candidates {
			if len(deck.Options) >= DeckSize-1 {
				break
			}
			if usedLemmas[cand.Lemma()] {
				continue
			}
			if len(cand.Word) < vocab.MinWordLength {
				continue
			}
			candText, ok := glossIn(pool, cand)
			if !ok {
				continue
			}
			if !admit(pass, cand) {
				continue
			}
			if e.addOption(deck, seenTexts, RoleFiller, cand, candText, "") {
				usedLemmas[cand.Lemma()] = true
			}
		}
	}
}

// addOption appends a sense-backed option unless its text already appears in
// the deck. Reports whether the option was added.
func (e *Engine) addOption(deck *Deck, seenTexts map[string]bool, role Role, s *vocab.Sense, text string, reason vocab.ConfuseReason) bool {
	if seenTexts[text] {
		return false
	}
	seenTexts[text] = true

	id := OptionID(role, s.ID)
	deck.Options = append(deck.Options, Option{ID: id, Text: text, Role: role})
	meta := OptionMeta{
		SenseID:      s.ID,
		DefinitionEN: s.DefinitionEN,
		ExampleEN:    s.ExampleEN,
		ExampleZH:    s.ExampleZH,
		Reason:       reason,
	}
	if role == RoleTarget {
		meta.IsPrimarySense = vocab.IsPrimaryFor(s.ID, s.Lemma())
	}
	deck.Meta[id] = meta
	return true
}

// trapAdmissible gates a trap candidate. With embeddings on both sides the
// cosine must stay below the similarity threshold; without them the rank
// distance must land in the confusable window.
func (e *Engine) trapAdmissible(target, cand *vocab.Sense) bool {
	if target.HasEmbedding() && cand.HasEmbedding() {
		return sqvect.CosineSimilarity(target.Embedding, cand.Embedding) < e.cfg.SimilarityThreshold
	}
	dist := target.FrequencyRank - cand.FrequencyRank
	if dist < 0 {
		dist = -dist
	}
	return dist >= trapRankDistMin && dist <= trapRankDistMax
}

// classifyReason labels a semantic-neighbor trap by surface-form similarity.
// Curated confusables keep their curated reason and never pass through here.
func classifyReason(targetWord, candWord string) vocab.ConfuseReason {
	a := strings.ToLower(targetWord)
	b := strings.ToLower(candWord)
	d := levenshtein.ComputeDistance(a, b)

	lenDiff := len(a) - len(b)
	if lenDiff < 0 {
		lenDiff = -lenDiff
	}
	switch {
	case d > 0 && d <= 2:
		return vocab.ReasonLookAlike
	case len(a) > 0 && len(b) > 0 && a[0] == b[0] && lenDiff <= 1 && d <= 3:
		return vocab.ReasonSoundAlike
	default:
		return vocab.ReasonSemantic
	}
}
