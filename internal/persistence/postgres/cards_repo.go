package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wordmine/wordmine/internal/errs"
	"github.com/wordmine/wordmine/internal/persistence"
	"github.com/wordmine/wordmine/internal/srs"
)

const cardColumns = `user_id, learning_progress_id, learning_point_id, algorithm_type,
	current_interval, scheduled_date, last_review_date, ease_factor,
	consecutive_correct, stability, difficulty, retention_probability,
	fsrs_state, mastery_level, is_leech, total_reviews, total_correct,
	avg_response_time_ms`

// cardsRepo implements CardRepo for PostgreSQL.
type cardsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewCardsRepo creates a new PostgreSQL card repository.
func NewCardsRepo(db *sqlx.DB, timeout time.Duration) persistence.CardRepo {
	return &cardsRepo{db: db, timeout: timeout}
}

// Create inserts a fresh card.
func (r *cardsRepo) Create(ctx context.Context, state *srs.CardState) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO verification_schedule
			(` + cardColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err := r.db.ExecContext(ctx, query, cardArgs(state)...)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.Conflict("card for progress %s already exists", state.ProgressID)
		}
		return fmt.Errorf("failed to insert card: %w", err)
	}
	return nil
}

// Get returns one card.
func (r *cardsRepo) Get(ctx context.Context, userID, progressID string) (*srs.CardState, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + cardColumns + `
		FROM verification_schedule
		WHERE user_id = $1 AND learning_progress_id = $2`

	state, err := scanCard(r.db.QueryRowxContext(ctx, query, userID, progressID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFound("card for progress %s", progressID)
		}
		return nil, fmt.Errorf("failed to get card: %w", err)
	}
	return state, nil
}

// ApplyReview persists the successor state and the review log entry in one
// transaction. The update is guarded on the predecessor's review count so a
// racing review, or a replayed nonce, rolls the whole thing back.
func (r *cardsRepo) ApplyReview(ctx context.Context, state *srs.CardState, entry persistence.ReviewLogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin review transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE verification_schedule
		SET algorithm_type = $3, current_interval = $4, scheduled_date = $5,
			last_review_date = $6, ease_factor = $7, consecutive_correct = $8,
			stability = $9, difficulty = $10, retention_probability = $11,
			fsrs_state = $12, mastery_level = $13, is_leech = $14,
			total_reviews = $15, total_correct = $16, avg_response_time_ms = $17,
			updated_at = NOW()
		WHERE user_id = $1 AND learning_progress_id = $2 AND total_reviews = $18`

	res, err := tx.ExecContext(ctx, query,
		state.UserID, state.ProgressID, string(state.Algorithm),
		state.CurrentInterval, state.ScheduledDate, nullTime(state.LastReviewDate),
		nullFloat(state.EaseFactor), state.ConsecutiveCorrect,
		nullFloat(state.Stability), nullFloat(state.Difficulty),
		nullFloat(state.RetentionProbability), nullBytes(state.FSRSState),
		string(state.Mastery), state.IsLeech, state.TotalReviews,
		state.TotalCorrect, nullFloat(state.AvgResponseMs),
		state.TotalReviews-1)
	if err != nil {
		return fmt.Errorf("failed to update card: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return errs.Conflict("card for progress %s changed underneath the review", state.ProgressID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fsrs_review_history
			(user_id, learning_progress_id, review_date, rating, algorithm,
			 interval_after, response_time_ms, nonce)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.UserID, entry.ProgressID, entry.ReviewDate, entry.Rating,
		entry.Algorithm, entry.IntervalAfter, entry.ResponseTimeMs, entry.Nonce)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.Conflict("review %s already recorded", entry.Nonce)
		}
		return fmt.Errorf("failed to append review log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isSerializationFailure(err) {
			return errs.Conflict("review lost a concurrency race")
		}
		return fmt.Errorf("failed to commit review: %w", err)
	}
	return nil
}

// ListDue returns cards scheduled on or before asOf, oldest first.
func (r *cardsRepo) ListDue(ctx context.Context, userID string, asOf time.Time, limit int) ([]*srs.CardState, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + cardColumns + `
		FROM verification_schedule
		WHERE user_id = $1 AND scheduled_date <= $2
		ORDER BY scheduled_date ASC
		LIMIT $3`

	rows, err := r.db.QueryxContext(ctx, query, userID, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due cards: %w", err)
	}
	defer rows.Close()

	return scanCards(rows)
}

// ListLeeches returns flagged cards, most reviewed first.
func (r *cardsRepo) ListLeeches(ctx context.Context, userID string, limit int) ([]*srs.CardState, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + cardColumns + `
		FROM verification_schedule
		WHERE user_id = $1 AND is_leech = TRUE
		ORDER BY total_reviews DESC
		LIMIT $2`

	rows, err := r.db.QueryxContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leeches: %w", err)
	}
	defer rows.Close()

	return scanCards(rows)
}

// FindReviewByNonce returns the review recorded under the nonce.
func (r *cardsRepo) FindReviewByNonce(ctx context.Context, userID, nonce string) (*persistence.ReviewLogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, user_id, learning_progress_id, review_date, rating, algorithm,
			interval_after, response_time_ms, nonce, created_at
		FROM fsrs_review_history
		WHERE user_id = $1 AND nonce = $2`

	var entry persistence.ReviewLogEntry
	if err := r.db.GetContext(ctx, &entry, query, userID, nonce); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFound("review with nonce %s", nonce)
		}
		return nil, fmt.Errorf("failed to find review by nonce: %w", err)
	}
	return &entry, nil
}

// CountReviews returns the user's total recorded reviews.
func (r *cardsRepo) CountReviews(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	err := r.db.QueryRowxContext(ctx,
		`SELECT COUNT(*) FROM fsrs_review_history WHERE user_id = $1`, userID).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count reviews: %w", err)
	}
	return count, nil
}

// Helper methods

func cardArgs(state *srs.CardState) []interface{} {
	return []interface{}{
		state.UserID, state.ProgressID, state.LearningPointID,
		string(state.Algorithm), state.CurrentInterval, state.ScheduledDate,
		nullTime(state.LastReviewDate), nullFloat(state.EaseFactor),
		state.ConsecutiveCorrect, nullFloat(state.Stability),
		nullFloat(state.Difficulty), nullFloat(state.RetentionProbability),
		nullBytes(state.FSRSState), string(state.Mastery), state.IsLeech,
		state.TotalReviews, state.TotalCorrect, nullFloat(state.AvgResponseMs),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCard(row rowScanner) (*srs.CardState, error) {
	var (
		state      srs.CardState
		algorithm  string
		mastery    string
		lastReview sql.NullTime
		ease       sql.NullFloat64
		stability  sql.NullFloat64
		difficulty sql.NullFloat64
		retention  sql.NullFloat64
		avgMs      sql.NullFloat64
		blob       []byte
	)
	err := row.Scan(
		&state.UserID, &state.ProgressID, &state.LearningPointID, &algorithm,
		&state.CurrentInterval, &state.ScheduledDate, &lastReview, &ease,
		&state.ConsecutiveCorrect, &stability, &difficulty, &retention,
		&blob, &mastery, &state.IsLeech, &state.TotalReviews,
		&state.TotalCorrect, &avgMs)
	if err != nil {
		return nil, err
	}
	state.Algorithm = srs.AlgorithmType(algorithm)
	state.Mastery = srs.MasteryLevel(mastery)
	state.LastReviewDate = lastReview.Time
	state.EaseFactor = ease.Float64
	state.Stability = stability.Float64
	state.Difficulty = difficulty.Float64
	state.RetentionProbability = retention.Float64
	state.AvgResponseMs = avgMs.Float64
	state.FSRSState = blob
	return &state, nil
}

func scanCards(rows *sqlx.Rows) ([]*srs.CardState, error) {
	var cards []*srs.CardState
	for rows.Next() {
		state, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cards: %w", err)
	}
	return cards, nil
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullFloat(f float64) interface{} {
	if f == 0 {
		return nil
	}
	return f
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
