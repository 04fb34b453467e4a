// Package srs implements the two spaced-repetition algorithms behind one
// interface: the in-house SM-2 variant and an adapter over the FSRS library.
// Which algorithm serves a user is decided by the assignment service and
// never mixed per card.
package srs

import (
	"time"
)

// Rating is the learner's self-assessment of a review.
type Rating int

const (
	RatingAgain Rating = iota
	RatingHard
	RatingGood
	RatingEasy
	RatingPerfect
)

// Valid reports whether the rating is in range.
func (r Rating) Valid() bool { return r >= RatingAgain && r <= RatingPerfect }

// Correct reports whether the rating counts as a pass.
func (r Rating) Correct() bool { return r >= RatingGood }

func (r Rating) String() string {
	switch r {
	case RatingAgain:
		return "again"
	case RatingHard:
		return "hard"
	case RatingGood:
		return "good"
	case RatingEasy:
		return "easy"
	case RatingPerfect:
		return "perfect"
	default:
		return "invalid"
	}
}

// AlgorithmType names a scheduling algorithm.
type AlgorithmType string

const (
	AlgorithmSM2Plus AlgorithmType = "sm2_plus"
	AlgorithmFSRS    AlgorithmType = "fsrs"
)

// MasteryLevel is the card's learning stage.
type MasteryLevel string

const (
	MasteryLearning  MasteryLevel = "learning"
	MasteryFamiliar  MasteryLevel = "familiar"
	MasteryKnown     MasteryLevel = "known"
	MasteryMastered  MasteryLevel = "mastered"
	MasteryPermanent MasteryLevel = "permanent"
	MasteryLeech     MasteryLevel = "leech"
)

// CardState is the scheduling state of one (user, learning progress) pair.
// ConsecutiveCorrect is a signed streak: positive counts passes in a row,
// negative counts failures in a row under the FSRS adapter; the SM-2 variant
// resets it to zero on failure.
type CardState struct {
	UserID          string
	ProgressID      string
	LearningPointID string
	Algorithm       AlgorithmType

	CurrentInterval    int
	ScheduledDate      time.Time
	LastReviewDate     time.Time
	TotalReviews       int
	TotalCorrect       int
	ConsecutiveCorrect int
	Mastery            MasteryLevel
	IsLeech            bool
	AvgResponseMs      float64

	// SM-2 variant only.
	EaseFactor float64

	// FSRS only. Difficulty is normalized to [0,1]; FSRSState is the
	// library card serialized for replay.
	Stability            float64
	Difficulty           float64
	RetentionProbability float64
	FSRSState            []byte
}

// Clone returns a copy of the card state. The FSRS blob is shared; callers
// replace it wholesale, never mutate it.
func (c *CardState) Clone() *CardState {
	next := *c
	return &next
}

// CorrectRate returns total_correct / total_reviews, or 0 before any review.
func (c *CardState) CorrectRate() float64 {
	if c.TotalReviews == 0 {
		return 0
	}
	return float64(c.TotalCorrect) / float64(c.TotalReviews)
}

// observeResponse folds a response time into the rolling average.
func (c *CardState) observeResponse(responseTimeMs int) {
	if responseTimeMs <= 0 || c.TotalReviews == 0 {
		return
	}
	n := float64(c.TotalReviews)
	c.AvgResponseMs = (c.AvgResponseMs*(n-1) + float64(responseTimeMs)) / n
}

// ReviewResult reports one processed review.
type ReviewResult struct {
	Card               *CardState             `json:"card_state_after"`
	NextReviewDate     time.Time              `json:"next_review_date"`
	NextIntervalDays   int                    `json:"next_interval_days"`
	WasCorrect         bool                   `json:"was_correct"`
	RetentionPredicted float64                `json:"retention_predicted"`
	MasteryChanged     bool                   `json:"mastery_changed"`
	NewMastery         MasteryLevel           `json:"new_mastery_level,omitempty"`
	BecameLeech        bool                   `json:"became_leech"`
	Algorithm          AlgorithmType          `json:"algorithm_type"`
	DebugInfo          map[string]interface{} `json:"debug_info,omitempty"`
}

// Algorithm is the scheduling contract both implementations satisfy.
// ProcessReview never mutates the input state; the result carries the
// successor.
type Algorithm interface {
	Type() AlgorithmType
	InitializeCard(userID, progressID, learningPointID string, initialDifficulty float64) (*CardState, error)
	ProcessReview(state *CardState, rating Rating, responseTimeMs int, reviewDate time.Time) (*ReviewResult, error)
	PredictRetention(state *CardState, targetDate time.Time) (float64, error)
}
