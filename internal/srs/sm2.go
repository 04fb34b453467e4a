package srs

import (
	"math"
	"time"

	"github.com/wordmine/wordmine/internal/errs"
)

// SM2Config tunes the SM-2 variant.
type SM2Config struct {
	// EaseMin and EaseMax bound the ease factor.
	EaseMin float64
	EaseMax float64
	// EaseDefault seeds new cards before difficulty adjustment.
	EaseDefault float64
	// IntervalMax caps the interval in days.
	IntervalMax int
	// InitialIntervals fixes the first few pass intervals in days.
	InitialIntervals []int
}

// DefaultSM2Config returns production settings.
func DefaultSM2Config() SM2Config {
	return SM2Config{
		EaseMin:          1.3,
		EaseMax:          3.0,
		EaseDefault:      2.5,
		IntervalMax:      365,
		InitialIntervals: []int{1, 3, 7},
	}
}

// SM2Plus is the in-house SM-2 variant. It seeds the ease factor from the
// survey's difficulty estimate and walks fixed early intervals before the
// multiplicative schedule takes over.
type SM2Plus struct {
	cfg SM2Config
	now func() time.Time
}

// NewSM2Plus builds the algorithm with the given config.
func NewSM2Plus(cfg SM2Config) (*SM2Plus, error) {
	if cfg.EaseMin <= 0 || cfg.EaseMax <= cfg.EaseMin {
		return nil, errs.Validation("invalid ease bounds [%v, %v]", cfg.EaseMin, cfg.EaseMax)
	}
	if cfg.IntervalMax < 1 {
		return nil, errs.Validation("invalid interval cap %d", cfg.IntervalMax)
	}
	if len(cfg.InitialIntervals) == 0 {
		return nil, errs.Validation("initial intervals must not be empty")
	}
	return &SM2Plus{cfg: cfg, now: time.Now}, nil
}

// Type implements Algorithm.
func (s *SM2Plus) Type() AlgorithmType { return AlgorithmSM2Plus }

// InitializeCard creates scheduling state for a new card. initialDifficulty
// in [0,1] shifts the starting ease: harder words start with a lower ease
// factor so their intervals grow more slowly.
func (s *SM2Plus) InitializeCard(userID, progressID, learningPointID string, initialDifficulty float64) (*CardState, error) {
	if userID == "" || progressID == "" {
		return nil, errs.Validation("user and progress ids are required")
	}
	if initialDifficulty < 0 || initialDifficulty > 1 {
		return nil, errs.Validation("initial difficulty %v outside [0,1]", initialDifficulty)
	}
	ease := s.clampEase(s.cfg.EaseDefault - (initialDifficulty-0.5)*0.6)
	now := s.now()
	return &CardState{
		UserID:          userID,
		ProgressID:      progressID,
		LearningPointID: learningPointID,
		Algorithm:       AlgorithmSM2Plus,
		CurrentInterval: 1,
		ScheduledDate:   now.AddDate(0, 0, 1),
		EaseFactor:      ease,
		Difficulty:      initialDifficulty,
		Mastery:         MasteryLearning,
	}, nil
}

// ProcessReview applies one review and returns the successor state.
func (s *SM2Plus) ProcessReview(state *CardState, rating Rating, responseTimeMs int, reviewDate time.Time) (*ReviewResult, error) {
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
		reviewDate = s.now()
	}

	next := state.Clone()
	next.Algorithm = AlgorithmSM2Plus
	quality := int(rating) + 1
	delta := 0.1 - float64(5-quality)*(0.08+float64(5-quality)*0.02)
	next.EaseFactor = s.clampEase(state.EaseFactor + delta)

	wasCorrect := rating.Correct()
	if wasCorrect {
		next.ConsecutiveCorrect = maxInt(state.ConsecutiveCorrect, 0) + 1
		next.TotalCorrect = state.TotalCorrect + 1
	} else {
		next.ConsecutiveCorrect = 0
	}

	switch {
	case !wasCorrect:
		next.CurrentInterval = 1
	case next.ConsecutiveCorrect <= len(s.cfg.InitialIntervals):
		next.CurrentInterval = s.cfg.InitialIntervals[next.ConsecutiveCorrect-1]
	default:
		next.CurrentInterval = int(math.Floor(float64(state.CurrentInterval) * next.EaseFactor))
	}
	if next.CurrentInterval < 1 {
		next.CurrentInterval = 1
	}
	if next.CurrentInterval > s.cfg.IntervalMax {
		next.CurrentInterval = s.cfg.IntervalMax
	}

	next.TotalReviews = state.TotalReviews + 1
	next.observeResponse(responseTimeMs)
	next.LastReviewDate = reviewDate
	next.ScheduledDate = reviewDate.AddDate(0, 0, next.CurrentInterval)
	next.Difficulty = s.difficulty(next)

	mastery := CalculateMastery(next)
	next.IsLeech = next.IsLeech || mastery == MasteryLeech

	retention, err := s.PredictRetention(next, next.ScheduledDate)
	if err != nil {
		return nil, err
	}
	next.RetentionProbability = retention

	result := &ReviewResult{
		Card:               next,
		NextReviewDate:     next.ScheduledDate,
		NextIntervalDays:   next.CurrentInterval,
		WasCorrect:         wasCorrect,
		RetentionPredicted: retention,
		MasteryChanged:     mastery != state.Mastery,
		NewMastery:         mastery,
		BecameLeech:        !state.IsLeech && next.IsLeech,
		Algorithm:          AlgorithmSM2Plus,
		DebugInfo: map[string]interface{}{
			"quality":             quality,
			"ease_factor":         next.EaseFactor,
			"ease_delta":          delta,
			"consecutive_correct": next.ConsecutiveCorrect,
			"stability_proxy":     s.stability(next),
		},
	}
	next.Mastery = mastery
	return result, nil
}

// PredictRetention estimates recall probability at targetDate using an
// exponential forgetting curve over a stability proxy derived from the
// interval and ease. A card that has never been reviewed has no curve to
// extrapolate, so the estimate is 0.5.
func (s *SM2Plus) PredictRetention(state *CardState, targetDate time.Time) (float64, error) {
	if state == nil {
		return 0, errs.Validation("card state is required")
	}
	if state.TotalReviews == 0 || state.LastReviewDate.IsZero() {
		return 0.5, nil
	}
	if targetDate.IsZero() {
		targetDate = s.now()
	}
	elapsed := targetDate.Sub(state.LastReviewDate).Hours() / 24
	if elapsed < 0 {
		elapsed = 0
	}
	stability := s.stability(state)
	if stability <= 0 {
		return 0.5, nil
	}
	r := math.Exp(-elapsed / stability)
	return math.Min(1, math.Max(0, r)), nil
}

func (s *SM2Plus) stability(state *CardState) float64 {
	return float64(state.CurrentInterval) * state.EaseFactor / 2.5
}

// difficulty maps the ease factor and error rate onto the [0,1] difficulty
// scale shared with FSRS, so reporting can compare cards across algorithms.
func (s *SM2Plus) difficulty(state *CardState) float64 {
	easeTerm := 1 - (state.EaseFactor-s.cfg.EaseMin)/(s.cfg.EaseMax-s.cfg.EaseMin)
	errorRate := 0.0
	if state.TotalReviews > 0 {
		errorRate = 1 - state.CorrectRate()
	}
	d := 0.6*easeTerm + 0.4*errorRate
	return math.Min(1, math.Max(0, d))
}

func (s *SM2Plus) clampEase(ease float64) float64 {
	return math.Min(s.cfg.EaseMax, math.Max(s.cfg.EaseMin, ease))
}
