package survey

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wordmine/wordmine/internal/distractor"
	"github.com/wordmine/wordmine/internal/errs"
	"github.com/wordmine/wordmine/internal/vocab"
)

// searchRadiusBase is the initial rank radius when hunting a sense near the
// chosen rank. It doubles per attempt; exclusions are never dropped.
const searchRadiusBase = 50

// Config holds the survey stopping and sampling knobs.
type Config struct {
	// MinQuestions is the floor below which the survey never terminates.
	MinQuestions int

	// MaxQuestions terminates the survey unconditionally.
	MaxQuestions int

	// ConfidenceThreshold allows early termination once MinQuestions is met.
	ConfidenceThreshold float64

	// MinSamplesPerBand is the per-band sample count treated as adequate
	// coverage.
	MinSamplesPerBand int

	// TargetSamplesPerBand is the per-band sample count after which a band
	// stops attracting questions.
	TargetSamplesPerBand int

	// RecentWindow is how many recently-seen headwords are excluded from
	// new questions. Doubled for ranks >= 7000 where supply thins out.
	RecentWindow int
}

// DefaultConfig returns the production survey configuration.
func DefaultConfig() Config {
	return Config{
		MinQuestions:         10,
		MaxQuestions:         35,
		ConfidenceThreshold:  0.80,
		MinSamplesPerBand:    2,
		TargetSamplesPerBand: 4,
		RecentWindow:         20,
	}
}

// Engine advances survey sessions. It is stateless across calls; all session
// state arrives as an argument and all randomness through the caller's PRNG.
type Engine struct {
	store *vocab.Store
	decks *distractor.Engine
	cfg   Config
	now   func() time.Time
}

// NewEngine creates a survey engine over the vocabulary store and deck
// builder.
func NewEngine(store *vocab.Store, decks *distractor.Engine, cfg Config) *Engine {
	return &Engine{store: store, decks: decks, cfg: cfg, now: time.Now}
}

// Step processes one survey step: grade the prior answer if present, stop if
// a stopping rule fires, otherwise generate the next question. A question
// generation failure leaves the session active with the graded answer
// applied.
func (e *Engine) Step(rng *rand.Rand, s *Session, in *StepInput) (*StepResult, error) {
	if s.Status == StatusComplete {
		return nil, errs.Conflict("survey session %s is already complete", s.ID)
	}

	if in.PriorAnswer != nil {
		if in.PriorQuestion == nil {
			return nil, errs.Validation("prior answer for session %s carries no question details", s.ID)
		}
		e.applyAnswer(s, in.PriorAnswer, in.PriorQuestion)
	}

	if e.shouldStop(s) {
		return e.complete(s), nil
	}

	question, band, err := e.nextQuestion(rng, s)
	if err != nil {
		return nil, err
	}
	s.UpdatedAt = e.now()

	return &StepResult{
		Status:    StatusActive,
		SessionID: s.ID,
		Payload:   question,
		DebugInfo: map[string]interface{}{
			"question_number": s.QuestionCount + 1,
			"band":            band,
			"confidence":      s.Confidence,
			"estimated_vocab": s.EstimatedVocab,
			"low_bound":       s.LowBound,
			"high_bound":      s.HighBound,
		},
	}, nil
}

// applyAnswer grades the answer statelessly and folds it into the session:
// band counters, history, rank bounds, and the derived confidence and volume
// estimate.
func (e *Engine) applyAnswer(s *Session, ans *Answer, q *Question) {
	correct := Grade(ans.SelectedOptionIDs)
	band := vocab.BandFor(q.Rank)

	s.QuestionCount++
	perf := s.perf(band)
	perf.Tested++
	if correct {
		perf.Correct++
		if q.Rank > s.LowBound {
			s.LowBound = q.Rank
		}
	} else {
		if q.Rank < s.HighBound {
			s.HighBound = q.Rank
		}
	}
	s.CurrentRank = q.Rank

	questionID := q.QuestionID
	if questionID == "" {
		questionID = ans.QuestionID
	}
	s.History = append(s.History, HistoryEntry{
		QuestionID:        questionID,
		QuestionNumber:    s.QuestionCount,
		Word:              q.Word,
		Rank:              q.Rank,
		Band:              band,
		Correct:           correct,
		TimeTakenSeconds:  ans.TimeTaken,
		SelectedOptionIDs: ans.SelectedOptionIDs,
		CorrectOptionIDs:  CorrectOptionIDs(q.Options),
		AllOptions:        q.Options,
	})

	refreshDerived(s, e.cfg.MinSamplesPerBand)

	log.Debug().
		Str("session_id", s.ID).
		Int("question_number", s.QuestionCount).
		Int("rank", q.Rank).
		Int("band", band).
		Bool("correct", correct).
		Float64("confidence", s.Confidence).
		Int("estimated_vocab", s.EstimatedVocab).
		Msg("Survey answer graded")
}

// shouldStop applies the stopping rules. The survey never stops before the
// minimum, always stops at the maximum, and stops early on confidence or
// full band saturation.
func (e *Engine) shouldStop(s *Session) bool {
	if s.QuestionCount < e.cfg.MinQuestions {
		return false
	}
	if s.QuestionCount >= e.cfg.MaxQuestions {
		return true
	}
	if s.Confidence >= e.cfg.ConfidenceThreshold {
		return true
	}
	saturation := e.cfg.MinSamplesPerBand * len(vocab.Bands)
	if s.QuestionCount >= saturation &&
		s.bandsTestedAtLeast(e.cfg.MinSamplesPerBand) == len(vocab.Bands) {
		return true
	}
	return false
}

// complete seals the session and builds the tri-metric report.
func (e *Engine) complete(s *Session) *StepResult {
	s.Status = StatusComplete
	s.UpdatedAt = e.now()

	metrics := &Metrics{
		Volume:  s.EstimatedVocab,
		Reach:   reach(s, e.cfg.MinSamplesPerBand),
		Density: density(s),
	}

	log.Info().
		Str("session_id", s.ID).
		Int("questions", s.QuestionCount).
		Int("volume", metrics.Volume).
		Int("reach", metrics.Reach).
		Float64("density", metrics.Density).
		Float64("confidence", s.Confidence).
		Msg("Survey complete")

	return &StepResult{
		Status:      StatusComplete,
		SessionID:   s.ID,
		Metrics:     metrics,
		History:     s.History,
		Methodology: methodology(s, metrics),
		DebugInfo: map[string]interface{}{
			"questions":       s.QuestionCount,
			"confidence":      s.Confidence,
			"estimated_vocab": s.EstimatedVocab,
			"low_bound":       s.LowBound,
			"high_bound":      s.HighBound,
		},
	}
}

// nextQuestion picks a band and rank, finds an eligible sense nearby, and
// builds its deck.
func (e *Engine) nextQuestion(rng *rand.Rand, s *Session) (*Question, int, error) {
	band := nextBand(rng, s, e.cfg.MinSamplesPerBand, e.cfg.TargetSamplesPerBand)
	rank := rankInBand(rng, band)

	window := e.cfg.RecentWindow
	if rank >= 7000 {
		window *= 2
	}
	exclude := s.recentLemmaSet(window)

	sense := e.findSense(rng, band, rank, exclude)
	if sense == nil {
		return nil, 0, errs.NoCandidate("no eligible sense near rank %d in band %d", rank, band)
	}

	deck, err := e.decks.BuildDeck(rng, sense)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build deck for survey question: %w", err)
	}

	s.rememberLemma(sense.Lemma())
	question := &Question{
		QuestionID:       "q_" + uuid.New().String()[:8],
		Word:             sense.Word,
		Rank:             sense.FrequencyRank,
		Options:          optionsFromDeck(deck),
		TimeLimitSeconds: TimeLimitSeconds,
	}
	return question, vocab.BandFor(sense.FrequencyRank), nil
}

// findSense hunts the closest eligible sense to the requested rank, doubling
// the radius up to three attempts and finally sampling anywhere in the band.
// The exclusion set applies at every stage.
func (e *Engine) findSense(rng *rand.Rand, band, rank int, exclude map[string]bool) *vocab.Sense {
	radius := searchRadiusBase
	for attempt := 0; attempt < 3; attempt++ {
		if sense := e.pickNear(rank, radius, band, exclude); sense != nil {
			return sense
		}
		radius *= 2
	}
	for _, cand := range e.store.RandomSensesInBand(rng, band, 30, exclude, "") {
		if vocab.SurveyEligible(cand) {
			return cand
		}
	}
	return nil
}

// pickNear returns the eligible sense closest to rank within the radius,
// clamped to the band so a widening search never drifts the sample into a
// neighboring band.
func (e *Engine) pickNear(rank, radius, band int, exclude map[string]bool) *vocab.Sense {
	minRank := rank - radius
	if lo := vocab.BandMinRank(band); minRank < lo {
		minRank = lo
	}
	if minRank <= vocab.StopWordRank {
		minRank = vocab.StopWordRank + 1
	}
	maxRank := rank + radius
	if maxRank > band {
		maxRank = band
	}
	candidates := e.store.SensesByRankRange(minRank, maxRank, "", exclude, 200)

	var best *vocab.Sense
	bestDist := 0
	for _, cand := range candidates {
		if !vocab.SurveyEligible(cand) {
			continue
		}
		dist := cand.FrequencyRank - rank
		if dist < 0 {
			dist = -dist
		}
		if best == nil || dist < bestDist {
			best, bestDist = cand, dist
		}
	}
	return best
}

// methodology renders the report's plain-language method note.
func methodology(s *Session, m *Metrics) string {
	return fmt.Sprintf(
		"Adaptive frequency-band sampling over %d questions. "+
			"Volume (%d) sums per-band accuracy across eight 1000-word bands, stepping estimates down for untested bands. "+
			"Reach (%d) is the highest band answered reliably. "+
			"Density (%.2f) reflects whether harder words were missed no more often than easier ones.",
		s.QuestionCount, m.Volume, m.Reach, m.Density)
}
