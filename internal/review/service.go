package review

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wordmine/wordmine/internal/economy"
	"github.com/wordmine/wordmine/internal/errs"
	"github.com/wordmine/wordmine/internal/persistence"
	"github.com/wordmine/wordmine/internal/srs"
)

// defaultInitialDifficulty seeds cards created without an estimate.
const defaultInitialDifficulty = 0.5

// ReviewRequest is one graded recall attempt.
type ReviewRequest struct {
	UserID          string    `json:"user_id"`
	ProgressID      string    `json:"progress_id"`
	LearningPointID string    `json:"learning_point_id"`
	Rating          int       `json:"rating"`
	ResponseTimeMs  int       `json:"response_time_ms"`
	ReviewDate      time.Time `json:"review_date,omitempty"`
	// Nonce deduplicates client retries. Replaying a nonce returns the
	// recorded outcome without rescheduling or paying out again.
	Nonce             string   `json:"nonce"`
	InitialDifficulty *float64 `json:"initial_difficulty,omitempty"`
}

func (r ReviewRequest) validate() error {
	if r.UserID == "" {
		return errs.Validation("user id is required")
	}
	if r.ProgressID == "" {
		return errs.Validation("progress id is required")
	}
	if r.Nonce == "" {
		return errs.Validation("review nonce is required")
	}
	if !srs.Rating(r.Rating).Valid() {
		return errs.Validation("rating %d outside [0,4]", r.Rating)
	}
	if r.ResponseTimeMs < 0 {
		return errs.Validation("response time must be non-negative")
	}
	if r.InitialDifficulty != nil && (*r.InitialDifficulty < 0 || *r.InitialDifficulty > 1) {
		return errs.Validation("initial difficulty %v outside [0,1]", *r.InitialDifficulty)
	}
	return nil
}

// ReviewResponse is the outcome of a processed review.
type ReviewResponse struct {
	Result *srs.ReviewResult `json:"result"`
	// Economy is nil on replays and when settlement could not complete.
	Economy *economy.Result `json:"economy,omitempty"`
	// Replayed marks a nonce the service had already recorded.
	Replayed bool `json:"replayed"`
}

// ReviewService runs the review pipeline: resolve the user's algorithm,
// load or create the card, schedule the next review, persist state and log
// atomically, then settle currencies.
type ReviewService struct {
	algorithms  map[srs.AlgorithmType]srs.Algorithm
	assignments *AssignmentService
	cards       persistence.CardRepo
	economy     *economy.Service
	now         func() time.Time
}

// NewReviewService builds the service. now may be nil outside tests.
func NewReviewService(
	algorithms map[srs.AlgorithmType]srs.Algorithm,
	assignments *AssignmentService,
	cards persistence.CardRepo,
	econ *economy.Service,
	now func() time.Time,
) *ReviewService {
	if now == nil {
		now = time.Now
	}
	return &ReviewService{
		algorithms:  algorithms,
		assignments: assignments,
		cards:       cards,
		economy:     econ,
		now:         now,
	}
}

// ProcessReview grades one recall attempt. The card update and the review
// log row commit together; currency settlement follows in its own
// transaction and is not replayed when a retry hits the recorded nonce.
func (s *ReviewService) ProcessReview(ctx context.Context, req ReviewRequest) (*ReviewResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	reviewDate := req.ReviewDate
	if reviewDate.IsZero() {
		reviewDate = s.now()
	}

	prior, err := s.cards.FindReviewByNonce(ctx, req.UserID, req.Nonce)
	if err == nil {
		return s.replayResponse(ctx, req.UserID, prior)
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	assignment, err := s.assignments.GetOrAssign(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	alg, err := s.algorithmFor(srs.AlgorithmType(assignment.Algorithm))
	if err != nil {
		return nil, err
	}

	card, err := s.cards.Get(ctx, req.UserID, req.ProgressID)
	if errors.Is(err, errs.ErrNotFound) {
		difficulty := defaultInitialDifficulty
		if req.InitialDifficulty != nil {
			difficulty = *req.InitialDifficulty
		}
		card, err = s.initializeCard(ctx, alg, req.UserID, req.ProgressID, req.LearningPointID, difficulty)
	}
	if err != nil {
		return nil, err
	}

	result, err := alg.ProcessReview(card, srs.Rating(req.Rating), req.ResponseTimeMs, reviewDate)
	if err != nil {
		return nil, err
	}

	entry := persistence.ReviewLogEntry{
		UserID:         req.UserID,
		ProgressID:     req.ProgressID,
		ReviewDate:     reviewDate,
		Rating:         req.Rating,
		Algorithm:      string(result.Algorithm),
		IntervalAfter:  result.NextIntervalDays,
		ResponseTimeMs: req.ResponseTimeMs,
		Nonce:          req.Nonce,
	}
	if err := s.cards.ApplyReview(ctx, result.Card, entry); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			if prior, nerr := s.cards.FindReviewByNonce(ctx, req.UserID, req.Nonce); nerr == nil {
				return s.replayResponse(ctx, req.UserID, prior)
			}
		}
		return nil, err
	}

	becameSolid := result.MasteryChanged && result.NewMastery.Solid()
	econ, err := s.economy.SettleReview(ctx, req.UserID, result.Card.LearningPointID, result.WasCorrect, becameSolid)
	if err != nil {
		// The review is committed; a retry replays the nonce and will not
		// settle either, so surface the loss instead of failing the review.
		log.Error().Err(err).
			Str("user_id", req.UserID).
			Str("progress_id", req.ProgressID).
			Msg("Review recorded but settlement failed")
		econ = nil
	}

	log.Info().
		Str("user_id", req.UserID).
		Str("progress_id", req.ProgressID).
		Str("algorithm", string(result.Algorithm)).
		Int("rating", req.Rating).
		Int("interval_days", result.NextIntervalDays).
		Float64("retention", result.RetentionPredicted).
		Bool("was_correct", result.WasCorrect).
		Bool("mastery_changed", result.MasteryChanged).
		Bool("became_leech", result.BecameLeech).
		Bool("level_up", econ != nil && econ.LeveledUp()).
		Msg("Review processed")

	return &ReviewResponse{Result: result, Economy: econ}, nil
}

// CreateCard registers a learning point for scheduling without grading a
// review. Creating an existing card returns the stored one.
func (s *ReviewService) CreateCard(ctx context.Context, userID, progressID, learningPointID string, initialDifficulty *float64) (*srs.CardState, error) {
	if initialDifficulty != nil && (*initialDifficulty < 0 || *initialDifficulty > 1) {
		return nil, errs.Validation("initial difficulty %v outside [0,1]", *initialDifficulty)
	}
	assignment, err := s.assignments.GetOrAssign(ctx, userID)
	if err != nil {
		return nil, err
	}
	alg, err := s.algorithmFor(srs.AlgorithmType(assignment.Algorithm))
	if err != nil {
		return nil, err
	}
	difficulty := defaultInitialDifficulty
	if initialDifficulty != nil {
		difficulty = *initialDifficulty
	}
	return s.initializeCard(ctx, alg, userID, progressID, learningPointID, difficulty)
}

// DueCards lists cards scheduled on or before asOf, oldest first. A zero
// asOf means now.
func (s *ReviewService) DueCards(ctx context.Context, userID string, asOf time.Time, limit int) ([]*srs.CardState, error) {
	if userID == "" {
		return nil, errs.Validation("user id is required")
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	return s.cards.ListDue(ctx, userID, asOf, limit)
}

// Leeches lists cards flagged as leeches, most reviewed first.
func (s *ReviewService) Leeches(ctx context.Context, userID string, limit int) ([]*srs.CardState, error) {
	if userID == "" {
		return nil, errs.Validation("user id is required")
	}
	return s.cards.ListLeeches(ctx, userID, limit)
}

// PredictRetention estimates recall probability for one card at a future
// date. The card's own recorded algorithm interprets its state, so cards a
// migrated user has not yet re-reviewed keep their old model's estimate.
func (s *ReviewService) PredictRetention(ctx context.Context, userID, progressID string, at time.Time) (float64, error) {
	card, err := s.cards.Get(ctx, userID, progressID)
	if err != nil {
		return 0, err
	}
	alg, err := s.algorithmFor(card.Algorithm)
	if err != nil {
		return 0, err
	}
	if at.IsZero() {
		at = s.now()
	}
	return alg.PredictRetention(card, at)
}

func (s *ReviewService) algorithmFor(t srs.AlgorithmType) (srs.Algorithm, error) {
	alg, ok := s.algorithms[t]
	if !ok || alg == nil {
		return nil, errs.ExternalUnavailable("scheduler %q is not available", t)
	}
	return alg, nil
}

func (s *ReviewService) initializeCard(ctx context.Context, alg srs.Algorithm, userID, progressID, learningPointID string, difficulty float64) (*srs.CardState, error) {
	card, err := alg.InitializeCard(userID, progressID, learningPointID, difficulty)
	if err != nil {
		return nil, err
	}
	if err := s.cards.Create(ctx, card); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			return s.cards.Get(ctx, userID, progressID)
		}
		return nil, err
	}
	return card, nil
}

// replayResponse rebuilds the outcome of an already-recorded review from
// the log entry and the current card. Settlement is not repeated.
func (s *ReviewService) replayResponse(ctx context.Context, userID string, prior *persistence.ReviewLogEntry) (*ReviewResponse, error) {
	card, err := s.cards.Get(ctx, userID, prior.ProgressID)
	if err != nil {
		return nil, err
	}
	result := &srs.ReviewResult{
		Card:               card,
		NextReviewDate:     card.ScheduledDate,
		NextIntervalDays:   prior.IntervalAfter,
		WasCorrect:         srs.Rating(prior.Rating).Correct(),
		RetentionPredicted: card.RetentionProbability,
		NewMastery:         card.Mastery,
		Algorithm:          srs.AlgorithmType(prior.Algorithm),
	}
	log.Info().
		Str("user_id", userID).
		Str("progress_id", prior.ProgressID).
		Str("nonce", prior.Nonce).
		Msg("Review replayed")
	return &ReviewResponse{Result: result, Replayed: true}, nil
}
