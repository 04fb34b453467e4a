// Package review orchestrates spaced-repetition reviews: algorithm
// assignment, card lifecycle, idempotent review processing and the economy
// settlement that follows a review.
package review

import (
	"context"
	"errors"
	"math/rand"

	"github.com/rs/zerolog/log"

	"github.com/wordmine/wordmine/internal/errs"
	"github.com/wordmine/wordmine/internal/persistence"
	"github.com/wordmine/wordmine/internal/srs"
)

// Assignment reasons stored on the row.
const (
	ReasonRandom    = "random"
	ReasonMigration = "migration"
)

// AssignmentConfig tunes the algorithm split.
type AssignmentConfig struct {
	// FSRSProbability is the chance a new user lands on FSRS.
	FSRSProbability float64
	// MinReviewsForMigration gates voluntary migration to FSRS.
	MinReviewsForMigration int64
}

// DefaultAssignmentConfig returns production settings.
func DefaultAssignmentConfig() AssignmentConfig {
	return AssignmentConfig{
		FSRSProbability:        0.5,
		MinReviewsForMigration: 100,
	}
}

// AssignmentStats summarizes the algorithm population.
type AssignmentStats struct {
	ByAlgorithm            map[string]int64 `json:"by_algorithm"`
	MigrationEligible      int64            `json:"migration_eligible"`
	MinReviewsForMigration int64            `json:"min_reviews_for_migration"`
}

// AssignmentService pins each user to one scheduling algorithm. The first
// request draws the assignment at random; after that the stored row is
// authoritative, including across concurrent first requests.
type AssignmentService struct {
	repo  persistence.AssignmentRepo
	cards persistence.CardRepo
	cfg   AssignmentConfig
	draw  func() float64
}

// NewAssignmentService builds the service. draw may be nil outside tests.
func NewAssignmentService(repo persistence.AssignmentRepo, cards persistence.CardRepo, cfg AssignmentConfig, draw func() float64) *AssignmentService {
	if draw == nil {
		draw = rand.Float64
	}
	return &AssignmentService{repo: repo, cards: cards, cfg: cfg, draw: draw}
}

// GetOrAssign returns the user's assignment, drawing one on first contact.
func (s *AssignmentService) GetOrAssign(ctx context.Context, userID string) (*persistence.AlgorithmAssignment, error) {
	if userID == "" {
		return nil, errs.Validation("user id is required")
	}
	a, err := s.repo.Get(ctx, userID)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	algorithm := srs.AlgorithmSM2Plus
	if s.draw() < s.cfg.FSRSProbability {
		algorithm = srs.AlgorithmFSRS
	}
	stored, err := s.repo.Init(ctx, persistence.AlgorithmAssignment{
		UserID:           userID,
		Algorithm:        string(algorithm),
		AssignmentReason: ReasonRandom,
	})
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("user_id", userID).
		Str("algorithm", stored.Algorithm).
		Str("reason", stored.AssignmentReason).
		Msg("Algorithm assigned")
	return stored, nil
}

// CanMigrate reports whether the user has enough review history to switch
// to FSRS, along with the recorded review count. The denormalized flag on
// the assignment row is refreshed opportunistically.
func (s *AssignmentService) CanMigrate(ctx context.Context, userID string) (bool, int64, error) {
	a, err := s.GetOrAssign(ctx, userID)
	if err != nil {
		return false, 0, err
	}
	if a.Algorithm == string(srs.AlgorithmFSRS) {
		return false, 0, nil
	}
	count, err := s.cards.CountReviews(ctx, userID)
	if err != nil {
		return false, 0, err
	}
	eligible := count >= s.cfg.MinReviewsForMigration
	if eligible && !a.CanMigrateToFSRS {
		a.CanMigrateToFSRS = true
		if err := s.repo.Update(ctx, *a); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("Failed to refresh migration flag")
		}
	}
	return eligible, count, nil
}

// Migrate switches an SM-2 user to FSRS. force skips the history gate and
// is reserved for operators; callers enforce who may set it.
func (s *AssignmentService) Migrate(ctx context.Context, userID string, force bool) (*persistence.AlgorithmAssignment, error) {
	a, err := s.GetOrAssign(ctx, userID)
	if err != nil {
		return nil, err
	}
	if a.Algorithm == string(srs.AlgorithmFSRS) {
		return a, nil
	}
	if !force {
		eligible, count, err := s.CanMigrate(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !eligible {
			return nil, errs.Validation("migration needs %d reviews, user has %d",
				s.cfg.MinReviewsForMigration, count)
		}
	}

	a.Algorithm = string(srs.AlgorithmFSRS)
	a.AssignmentReason = ReasonMigration
	a.CanMigrateToFSRS = false
	if err := s.repo.Update(ctx, *a); err != nil {
		return nil, err
	}
	log.Info().
		Str("user_id", userID).
		Bool("forced", force).
		Msg("User migrated to FSRS")
	return a, nil
}

// Stats returns the algorithm population and how many users could migrate.
func (s *AssignmentService) Stats(ctx context.Context) (*AssignmentStats, error) {
	counts, err := s.repo.CountByAlgorithm(ctx)
	if err != nil {
		return nil, err
	}
	eligible, err := s.repo.CountMigratable(ctx, s.cfg.MinReviewsForMigration)
	if err != nil {
		return nil, err
	}
	return &AssignmentStats{
		ByAlgorithm:            counts,
		MigrationEligible:      eligible,
		MinReviewsForMigration: s.cfg.MinReviewsForMigration,
	}, nil
}
