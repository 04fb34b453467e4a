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

// assignmentRepo implements AssignmentRepo for PostgreSQL.
type assignmentRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewAssignmentRepo creates a new PostgreSQL assignment repository.
func NewAssignmentRepo(db *sqlx.DB, timeout time.Duration) persistence.AssignmentRepo {
	return &assignmentRepo{db: db, timeout: timeout}
}

// Get returns the assignment for a user.
func (r *assignmentRepo) Get(ctx context.Context, userID string) (*persistence.AlgorithmAssignment, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT user_id, algorithm, assignment_reason, can_migrate_to_fsrs, updated_at
		FROM user_algorithm_assignment
		WHERE user_id = $1`

	var a persistence.AlgorithmAssignment
	if err := r.db.GetContext(ctx, &a, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFound("assignment for user %s", userID)
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return &a, nil
}

// Init inserts the first assignment and returns the stored row. A concurrent
// insert wins silently; the stored row is authoritative either way.
func (r *assignmentRepo) Init(ctx context.Context, a persistence.AlgorithmAssignment) (*persistence.AlgorithmAssignment, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_algorithm_assignment
			(user_id, algorithm, assignment_reason, can_migrate_to_fsrs)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING`,
		a.UserID, a.Algorithm, a.AssignmentReason, a.CanMigrateToFSRS)
	if err != nil {
		return nil, fmt.Errorf("failed to init assignment: %w", err)
	}
	return r.Get(ctx, a.UserID)
}

// Update overwrites an existing assignment.
func (r *assignmentRepo) Update(ctx context.Context, a persistence.AlgorithmAssignment) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE user_algorithm_assignment
		SET algorithm = $2, assignment_reason = $3, can_migrate_to_fsrs = $4,
			updated_at = NOW()
		WHERE user_id = $1`,
		a.UserID, a.Algorithm, a.AssignmentReason, a.CanMigrateToFSRS)
	if err != nil {
		return fmt.Errorf("failed to update assignment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return errs.NotFound("assignment for user %s", a.UserID)
	}
	return nil
}

// CountByAlgorithm returns user counts per algorithm.
func (r *assignmentRepo) CountByAlgorithm(ctx context.Context) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT algorithm, COUNT(*)
		FROM user_algorithm_assignment
		GROUP BY algorithm
		ORDER BY algorithm`)
	if err != nil {
		return nil, fmt.Errorf("failed to count assignments: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var algorithm string
		var count int64
		if err := rows.Scan(&algorithm, &count); err != nil {
			return nil, fmt.Errorf("failed to scan assignment count: %w", err)
		}
		counts[algorithm] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignment counts: %w", err)
	}
	return counts, nil
}

// CountMigratable returns how many SM-2 users already have enough recorded
// reviews to switch algorithms.
func (r *assignmentRepo) CountMigratable(ctx context.Context, minReviews int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT COUNT(*)
		FROM user_algorithm_assignment a
		WHERE a.algorithm = $1
		  AND (SELECT COUNT(*) FROM fsrs_review_history h WHERE h.user_id = a.user_id) >= $2`

	var count int64
	err := r.db.QueryRowxContext(ctx, query, string(srs.AlgorithmSM2Plus), minReviews).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count migratable users: %w", err)
	}
	return count, nil
}
