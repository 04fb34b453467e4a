package srs

import (
	"encoding/json"
	"math"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs/v3"

	"github.com/wordmine/wordmine/internal/errs"
)

// FSRS-4.5 forgetting curve constants, used only when the library declines
// to report retrievability for a card still in its learning steps.
const (
	fsrsDecay  = -0.5
	fsrsFactor = 19.0 / 81.0
)

// FSRSConfig tunes the FSRS adapter.
type FSRSConfig struct {
	// TargetRetention is the recall probability the scheduler aims for at
	// each review, in (0,1).
	TargetRetention float64
	// IntervalMax caps the interval in days.
	IntervalMax int
}

// DefaultFSRSConfig returns production settings.
func DefaultFSRSConfig() FSRSConfig {
	return FSRSConfig{TargetRetention: 0.9, IntervalMax: 730}
}

// FSRSAdapter wraps the FSRS scheduler behind the Algorithm interface. The
// library card travels with our CardState as an opaque JSON blob and is
// replayed on every call; the adapter itself holds no per-card state and
// never retries the engine.
type FSRSAdapter struct {
	cfg    FSRSConfig
	engine *fsrs.FSRS
	now    func() time.Time
}

// NewFSRSAdapter builds the adapter or fails loudly. Callers must not fall
// back to another algorithm on error; a broken scheduler is an outage, not
// a degradation.
func NewFSRSAdapter(cfg FSRSConfig) (*FSRSAdapter, error) {
	if cfg.TargetRetention <= 0 || cfg.TargetRetention >= 1 {
		return nil, errs.Validation("target retention %v outside (0,1)", cfg.TargetRetention)
	}
	if cfg.IntervalMax < 1 {
		return nil, errs.Validation("invalid interval cap %d", cfg.IntervalMax)
	}
	params := fsrs.DefaultParam()
	params.RequestRetention = cfg.TargetRetention
	params.MaximumInterval = float64(cfg.IntervalMax)
	engine := fsrs.NewFSRS(params)
	if engine == nil {
		return nil, errs.ExternalUnavailable("scheduler engine construction failed")
	}
	return &FSRSAdapter{cfg: cfg, engine: engine, now: time.Now}, nil
}

// Type implements Algorithm.
func (a *FSRSAdapter) Type() AlgorithmType { return AlgorithmFSRS }

// InitializeCard creates scheduling state wrapping a fresh library card.
// initialDifficulty is carried for reporting; FSRS derives its own internal
// difficulty from the first review.
func (a *FSRSAdapter) InitializeCard(userID, progressID, learningPointID string, initialDifficulty float64) (*CardState, error) {
	if userID == "" || progressID == "" {
		return nil, errs.Validation("user and progress ids are required")
	}
	if initialDifficulty < 0 || initialDifficulty > 1 {
		return nil, errs.Validation("initial difficulty %v outside [0,1]", initialDifficulty)
	}
	card := fsrs.NewCard()
	blob, err := json.Marshal(card)
	if err != nil {
		return nil, errs.Internal("failed to encode scheduler state: %v", err)
	}
	now := a.now()
	return &CardState{
		UserID:          userID,
		ProgressID:      progressID,
		LearningPointID: learningPointID,
		Algorithm:       AlgorithmFSRS,
		CurrentInterval: 1,
		ScheduledDate:   now.AddDate(0, 0, 1),
		Difficulty:      initialDifficulty,
		Mastery:         MasteryLearning,
		FSRSState:       blob,
	}, nil
}

// ProcessReview replays the stored library card, applies one review at
// reviewDate and returns the successor state.
func (a *FSRSAdapter) ProcessReview(state *CardState, rating Rating, responseTimeMs int, reviewDate time.Time) (*ReviewResult, error) {
	if state == nil {
		return nil, errs.Validation("card state is required")
	}
	if !rating.Valid() {
		return nil, errs.Validation("rating %d outside [0,4]", int(rating))
	}
	if responseTimeMs < 0 {
		return nil, errs.Validation("response time %dms is negative", responseTimeMs)
	}
	if reviewDate.IsZero() {
		reviewDate = a.now()
	}
	card, err := a.replay(state.FSRSState)
	if err != nil {
		return nil, err
	}

	outcomes := a.engine.Repeat(card, reviewDate)
	info, ok := outcomes[libRating(rating)]
	if !ok {
		return nil, errs.ExternalUnavailable("scheduler produced no outcome for rating %s", rating)
	}
	updated := info.Card

	interval := int(updated.ScheduledDays)
	if interval < 1 {
		interval = 1
	}
	if interval > a.cfg.IntervalMax {
		interval = a.cfg.IntervalMax
		updated.ScheduledDays = uint64(interval)
		updated.Due = reviewDate.AddDate(0, 0, interval)
	}

	blob, err := json.Marshal(updated)
	if err != nil {
		return nil, errs.Internal("failed to encode scheduler state: %v", err)
	}

	next := state.Clone()
	next.Algorithm = AlgorithmFSRS
	wasCorrect := rating.Correct()
	if wasCorrect {
		next.ConsecutiveCorrect = maxInt(state.ConsecutiveCorrect, 0) + 1
		next.TotalCorrect = state.TotalCorrect + 1
	} else {
		next.ConsecutiveCorrect = minInt(state.ConsecutiveCorrect, 0) - 1
	}
	next.TotalReviews = state.TotalReviews + 1
	next.observeResponse(responseTimeMs)
	next.CurrentInterval = interval
	next.LastReviewDate = reviewDate
	next.ScheduledDate = reviewDate.AddDate(0, 0, interval)
	next.Stability = updated.Stability
	next.Difficulty = normalizeDifficulty(updated.Difficulty)
	next.FSRSState = blob
	next.RetentionProbability = a.retrievability(updated, next.ScheduledDate)

	mastery := CalculateMastery(next)
	next.IsLeech = next.IsLeech || mastery == MasteryLeech

	result := &ReviewResult{
		Card:               next,
		NextReviewDate:     next.ScheduledDate,
		NextIntervalDays:   interval,
		WasCorrect:         wasCorrect,
		RetentionPredicted: next.RetentionProbability,
		MasteryChanged:     mastery != state.Mastery,
		NewMastery:         mastery,
		BecameLeech:        !state.IsLeech && next.IsLeech,
		Algorithm:          AlgorithmFSRS,
		DebugInfo: map[string]interface{}{
			"fsrs_state":     int(updated.State),
			"stability":      updated.Stability,
			"difficulty_raw": updated.Difficulty,
			"scheduled_days": updated.ScheduledDays,
			"reps":           updated.Reps,
			"lapses":         updated.Lapses,
		},
	}
	next.Mastery = mastery
	return result, nil
}

// PredictRetention defers to the library. Cards that have never been
// reviewed, and states that fail to decode, yield the neutral 0.5.
func (a *FSRSAdapter) PredictRetention(state *CardState, targetDate time.Time) (float64, error) {
	if state == nil {
		return 0, errs.Validation("card state is required")
	}
	if state.TotalReviews == 0 {
		return 0.5, nil
	}
	card, err := a.replay(state.FSRSState)
	if err != nil {
		return 0.5, nil
	}
	if targetDate.IsZero() {
		targetDate = a.now()
	}
	return a.retrievability(card, targetDate), nil
}

func (a *FSRSAdapter) replay(blob []byte) (fsrs.Card, error) {
	if len(blob) == 0 {
		return fsrs.NewCard(), nil
	}
	var card fsrs.Card
	if err := json.Unmarshal(blob, &card); err != nil {
		return fsrs.Card{}, errs.Internal("failed to decode scheduler state: %v", err)
	}
	return card, nil
}

// retrievability asks the engine first. The engine reports zero for cards
// outside the review state, so learning-step cards fall through to the
// forgetting curve directly, and cards with no history land on 0.5.
func (a *FSRSAdapter) retrievability(card fsrs.Card, at time.Time) float64 {
	if r := a.engine.GetRetrievability(card, at); r > 0 {
		return math.Min(1, r)
	}
	if card.Stability > 0 && !card.LastReview.IsZero() {
		elapsed := math.Max(0, at.Sub(card.LastReview).Hours()/24)
		return math.Min(1, math.Pow(1+fsrsFactor*elapsed/card.Stability, fsrsDecay))
	}
	return 0.5
}

// libRating maps domain ratings onto the four-grade library scale. Perfect
// collapses onto Easy; the extra grade matters to the economy, not the
// scheduler.
func libRating(r Rating) fsrs.Rating {
	switch r {
	case RatingAgain:
		return fsrs.Again
	case RatingHard:
		return fsrs.Hard
	case RatingGood:
		return fsrs.Good
	default:
		return fsrs.Easy
	}
}

// normalizeDifficulty maps the library's 1..10 difficulty onto [0,1].
func normalizeDifficulty(d float64) float64 {
	if d <= 0 {
		return 0
	}
	return math.Min(1, math.Max(0, (d-1)/9))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
