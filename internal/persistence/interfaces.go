package persistence

import (
	"context"
	"time"

	"github.com/wordmine/wordmine/internal/srs"
)

// UserXP is a user's wallet and level progress. Balances are denormalized
// from the ledger; the ledger remains the source of truth.
type UserXP struct {
	UserID           string    `json:"user_id" db:"user_id"`
	Sparks           int64     `json:"sparks" db:"sparks"`
	Essence          int64     `json:"essence" db:"essence"`
	Energy           int64     `json:"energy" db:"energy"`
	Blocks           int64     `json:"blocks" db:"blocks"`
	TotalXP          int64     `json:"total_xp" db:"total_xp"`
	CurrentLevel     int       `json:"current_level" db:"current_level"`
	XPToNextLevel    int64     `json:"xp_to_next_level" db:"xp_to_next_level"`
	XPInCurrentLevel int64     `json:"xp_in_current_level" db:"xp_in_current_level"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// CurrencyTransaction is one append-only ledger row. BalanceAfter carries
// the running balance of that currency for the user.
type CurrencyTransaction struct {
	ID           int64     `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	CurrencyType string    `json:"currency_type" db:"currency_type"`
	Amount       int64     `json:"amount" db:"amount"`
	BalanceAfter int64     `json:"balance_after" db:"balance_after"`
	Source       string    `json:"source" db:"source"`
	SourceID     *string   `json:"source_id,omitempty" db:"source_id"`
	Description  *string   `json:"description,omitempty" db:"description"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// LedgerEntry is a pending ledger append produced by a wallet mutation.
// BalanceAfter must equal the wallet balance the mutation left behind.
type LedgerEntry struct {
	CurrencyType string
	Amount       int64
	BalanceAfter int64
	Source       string
	SourceID     *string
	Description  *string
}

// AlgorithmAssignment pins a user to one scheduling algorithm.
type AlgorithmAssignment struct {
	UserID           string    `json:"user_id" db:"user_id"`
	Algorithm        string    `json:"algorithm" db:"algorithm"`
	AssignmentReason string    `json:"assignment_reason" db:"assignment_reason"`
	CanMigrateToFSRS bool      `json:"can_migrate_to_fsrs" db:"can_migrate_to_fsrs"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// ReviewLogEntry is one immutable review record. Nonce deduplicates client
// retries; the log also feeds FSRS migration eligibility.
type ReviewLogEntry struct {
	ID             int64     `json:"id" db:"id"`
	UserID         string    `json:"user_id" db:"user_id"`
	ProgressID     string    `json:"learning_progress_id" db:"learning_progress_id"`
	ReviewDate     time.Time `json:"review_date" db:"review_date"`
	Rating         int       `json:"rating" db:"rating"`
	Algorithm      string    `json:"algorithm" db:"algorithm"`
	IntervalAfter  int       `json:"interval_after" db:"interval_after"`
	ResponseTimeMs int       `json:"response_time_ms" db:"response_time_ms"`
	Nonce          string    `json:"nonce" db:"nonce"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// XPRepo persists wallets and the currency ledger.
type XPRepo interface {
	// Get returns the wallet, or errs.ErrNotFound for an unknown user.
	Get(ctx context.Context, userID string) (*UserXP, error)

	// Mutate loads the wallet under a row lock, creating a zero wallet on
	// first touch, applies fn and persists the result together with the
	// entries fn returned, all in one transaction. A unique-violation on a
	// ledger append surfaces as errs.ErrConflict and rolls everything back.
	Mutate(ctx context.Context, userID string, fn func(w *UserXP) ([]LedgerEntry, error)) (*UserXP, []CurrencyTransaction, error)

	// History lists recent ledger rows, newest first. currency filters to
	// one currency when non-empty.
	History(ctx context.Context, userID, currency string, limit int) ([]CurrencyTransaction, error)

	// BlockGranted reports whether a block was already minted for the sense.
	BlockGranted(ctx context.Context, userID, senseID string) (bool, error)
}

// CardRepo persists per-card scheduling state and the review log.
type CardRepo interface {
	// Create inserts a fresh card. An existing (user, progress) pair is
	// errs.ErrConflict.
	Create(ctx context.Context, state *srs.CardState) error

	// Get returns the card, or errs.ErrNotFound.
	Get(ctx context.Context, userID, progressID string) (*srs.CardState, error)

	// ApplyReview persists the successor state and appends the review log
	// entry in one transaction. The update is guarded on the review count
	// the successor was derived from; a lost race or a replayed nonce is
	// errs.ErrConflict and nothing is written.
	ApplyReview(ctx context.Context, state *srs.CardState, entry ReviewLogEntry) error

	// ListDue returns cards scheduled on or before asOf, oldest first.
	ListDue(ctx context.Context, userID string, asOf time.Time, limit int) ([]*srs.CardState, error)

	// ListLeeches returns flagged cards, most reviewed first.
	ListLeeches(ctx context.Context, userID string, limit int) ([]*srs.CardState, error)

	// FindReviewByNonce returns the review recorded under the nonce, or
	// errs.ErrNotFound.
	FindReviewByNonce(ctx context.Context, userID, nonce string) (*ReviewLogEntry, error)

	// CountReviews returns the user's total recorded reviews.
	CountReviews(ctx context.Context, userID string) (int64, error)
}

// AssignmentRepo persists algorithm assignments.
type AssignmentRepo interface {
	// Get returns the assignment, or errs.ErrNotFound.
	Get(ctx context.Context, userID string) (*AlgorithmAssignment, error)

	// Init inserts the first assignment for a user and returns the stored
	// row. When a concurrent caller won the insert, the stored row wins and
	// the proposed one is discarded.
	Init(ctx context.Context, a AlgorithmAssignment) (*AlgorithmAssignment, error)

	// Update overwrites an existing assignment.
	Update(ctx context.Context, a AlgorithmAssignment) error

	// CountByAlgorithm returns user counts per algorithm.
	CountByAlgorithm(ctx context.Context) (map[string]int64, error)

	// CountMigratable returns how many SM-2 users have at least minReviews
	// recorded reviews.
	CountMigratable(ctx context.Context, minReviews int64) (int64, error)
}

// Repository aggregates the persistence interfaces handed to services.
type Repository struct {
	XP          XPRepo
	Cards       CardRepo
	Assignments AssignmentRepo
}
