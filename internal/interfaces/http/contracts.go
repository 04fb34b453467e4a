// Package http serves the learning core over JSON HTTP: the survey step
// endpoint, the review pipeline, algorithm assignment, the economy surface
// and the minimum vocabulary lookups, plus health and Prometheus metrics.
package http

import (
	"context"
	"time"

	"github.com/wordmine/wordmine/internal/economy"
	"github.com/wordmine/wordmine/internal/persistence"
	"github.com/wordmine/wordmine/internal/review"
	"github.com/wordmine/wordmine/internal/srs"
	"github.com/wordmine/wordmine/internal/survey"
	"github.com/wordmine/wordmine/internal/vocab"
)

// SurveyStepper runs one adaptive survey step.
type SurveyStepper interface {
	ProcessStep(ctx context.Context, in *survey.StepInput) (*survey.StepResult, error)
}

// ReviewProcessor is the review pipeline surface the handlers need.
type ReviewProcessor interface {
	ProcessReview(ctx context.Context, req review.ReviewRequest) (*review.ReviewResponse, error)
	PredictRetention(ctx context.Context, userID, progressID string, at time.Time) (float64, error)
	DueCards(ctx context.Context, userID string, asOf time.Time, limit int) ([]*srs.CardState, error)
	Leeches(ctx context.Context, userID string, limit int) ([]*srs.CardState, error)
}

// AssignmentManager pins users to a scheduling algorithm.
type AssignmentManager interface {
	GetOrAssign(ctx context.Context, userID string) (*persistence.AlgorithmAssignment, error)
	CanMigrate(ctx context.Context, userID string) (bool, int64, error)
	Migrate(ctx context.Context, userID string, force bool) (*persistence.AlgorithmAssignment, error)
	Stats(ctx context.Context) (*review.AssignmentStats, error)
}

// EconomyService settles currency operations.
type EconomyService interface {
	GetWallet(ctx context.Context, userID string) (*persistence.UserXP, error)
	History(ctx context.Context, userID, currency string, limit int) ([]persistence.CurrencyTransaction, error)
	GrantSparks(ctx context.Context, userID, source string, sourceID *string) (*economy.Result, error)
	ProcessMCQ(ctx context.Context, in economy.MCQOutcome) (*economy.Result, error)
	Spend(ctx context.Context, userID string, cost economy.Cost, reason string, sourceID *string) (*economy.Result, error)
}

// VocabReader is the read-only vocabulary surface.
type VocabReader interface {
	GetSense(id string) (*vocab.Sense, bool)
	SensesForLemma(lemma string) []*vocab.Sense
	Stats() vocab.Stats
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	RequestID string `json:"request_id,omitempty"`
	// Funds details, present only on insufficient_funds.
	Currency  string `json:"currency,omitempty"`
	Required  int64  `json:"required,omitempty"`
	Available int64  `json:"available,omitempty"`
}

// ReviewSubmitRequest is the POST /v1/reviews body. The user id comes from
// the auth token, never from the body.
type ReviewSubmitRequest struct {
	ProgressID        string     `json:"progress_id"`
	LearningPointID   string     `json:"learning_point_id"`
	Rating            int        `json:"rating"`
	ResponseTimeMs    int        `json:"response_time_ms"`
	ReviewDate        *time.Time `json:"review_date,omitempty"`
	Nonce             string     `json:"nonce"`
	InitialDifficulty *float64   `json:"initial_difficulty,omitempty"`
}

// RetentionResponse answers GET /v1/reviews/retention.
type RetentionResponse struct {
	ProgressID string    `json:"progress_id"`
	TargetDate time.Time `json:"target_date"`
	Retention  float64   `json:"retention"`
}

// CardRecord is one scheduled card in due and leech listings.
type CardRecord struct {
	ProgressID         string    `json:"progress_id"`
	LearningPointID    string    `json:"learning_point_id"`
	Algorithm          string    `json:"algorithm_type"`
	CurrentInterval    int       `json:"current_interval_days"`
	ScheduledDate      time.Time `json:"scheduled_date"`
	LastReviewDate     time.Time `json:"last_review_date,omitempty"`
	Mastery            string    `json:"mastery_level"`
	IsLeech            bool      `json:"is_leech"`
	TotalReviews       int       `json:"total_reviews"`
	TotalCorrect       int       `json:"total_correct"`
	ConsecutiveCorrect int       `json:"consecutive_correct"`
}

// CardListResponse answers the due and leech listings.
type CardListResponse struct {
	Cards []CardRecord `json:"cards"`
	Count int          `json:"count"`
	AsOf  time.Time    `json:"as_of"`
}

// AssignmentResponse answers GET /v1/assignment.
type AssignmentResponse struct {
	Algorithm   string `json:"algorithm"`
	Reason      string `json:"reason"`
	CanMigrate  bool   `json:"can_migrate"`
	ReviewCount int64  `json:"review_count"`
}

// MigrateRequest is the POST /v1/assignment/migrate body. Force and UserID
// bypass the review-count floor and target another user respectively; both
// are honored only for admin-authenticated calls.
type MigrateRequest struct {
	Force  bool   `json:"force,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

// SpendRequest is the POST /v1/economy/spend body.
type SpendRequest struct {
	Cost     economy.Cost `json:"cost"`
	Reason   string       `json:"reason"`
	SourceID *string      `json:"source_id,omitempty"`
}

// EventRequest is the POST /v1/economy/events body for client-reported
// learning events (view_word, daily_login, streaks and the like).
type EventRequest struct {
	Source   string  `json:"source"`
	SourceID *string `json:"source_id,omitempty"`
}

// MCQRequest is the POST /v1/economy/events/mcq body.
type MCQRequest struct {
	SenseID         string `json:"sense_id"`
	IsCorrect       bool   `json:"is_correct"`
	IsFast          bool   `json:"is_fast"`
	WordBecameSolid bool   `json:"word_became_solid"`
}

// LedgerResponse answers GET /v1/economy/ledger.
type LedgerResponse struct {
	Transactions []persistence.CurrencyTransaction `json:"transactions"`
	Count        int                               `json:"count"`
}

// WordResponse answers GET /v1/vocab/words/{lemma}.
type WordResponse struct {
	Lemma  string         `json:"lemma"`
	Senses []*vocab.Sense `json:"senses"`
}

func cardRecord(c *srs.CardState) CardRecord {
	return CardRecord{
		ProgressID:         c.ProgressID,
		LearningPointID:    c.LearningPointID,
		Algorithm:          string(c.Algorithm),
		CurrentInterval:    c.CurrentInterval,
		ScheduledDate:      c.ScheduledDate,
		LastReviewDate:     c.LastReviewDate,
		Mastery:            string(c.Mastery),
		IsLeech:            c.IsLeech,
		TotalReviews:       c.TotalReviews,
		TotalCorrect:       c.TotalCorrect,
		ConsecutiveCorrect: c.ConsecutiveCorrect,
	}
}
