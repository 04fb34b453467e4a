package review

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordmine/wordmine/internal/errs"
	"github.com/wordmine/wordmine/internal/persistence"
	"github.com/wordmine/wordmine/internal/srs"
)

func TestGetOrAssignDrawSplit(t *testing.T) {
	tests := []struct {
		name string
		draw float64
		want srs.AlgorithmType
	}{
		{"draw at zero lands on fsrs", 0.0, srs.AlgorithmFSRS},
		{"draw under half lands on fsrs", 0.499, srs.AlgorithmFSRS},
		{"draw at half lands on sm2", 0.5, srs.AlgorithmSM2Plus},
		{"draw near one lands on sm2", 0.99, srs.AlgorithmSM2Plus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newReviewEnv(t, func() float64 { return tt.draw })

			a, err := env.assignSvc.GetOrAssign(context.Background(), "user-1")
			require.NoError(t, err)
			assert.Equal(t, string(tt.want), a.Algorithm)
			assert.Equal(t, ReasonRandom, a.AssignmentReason)

			stored, ok := env.assignments.rows["user-1"]
			require.True(t, ok, "assignment should be persisted")
			assert.Equal(t, string(tt.want), stored.Algorithm)
		})
	}
}

func TestGetOrAssignDrawsOnlyOnce(t *testing.T) {
	draws := 0
	env := newReviewEnv(t, func() float64 {
		draws++
		return 0.9
	})

	first, err := env.assignSvc.GetOrAssign(context.Background(), "user-1")
	require.NoError(t, err)
	second, err := env.assignSvc.GetOrAssign(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, first.Algorithm, second.Algorithm)
	assert.Equal(t, 1, draws, "stored assignment should skip the draw")
}

func TestGetOrAssignStoredRowWinsRace(t *testing.T) {
	env := newReviewEnv(t, drawSM2)
	env.assignments.rows["user-1"] = persistence.AlgorithmAssignment{
		UserID:           "user-1",
		Algorithm:        string(srs.AlgorithmFSRS),
		AssignmentReason: ReasonRandom,
	}
	env.assignments.hideOnce["user-1"] = true

	a, err := env.assignSvc.GetOrAssign(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, string(srs.AlgorithmFSRS), a.Algorithm,
		"concurrent first insert must win over the local draw")
}

func TestGetOrAssignRequiresUser(t *testing.T) {
	env := newReviewEnv(t, drawSM2)

	_, err := env.assignSvc.GetOrAssign(context.Background(), "")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestCanMigrateTracksReviewCount(t *testing.T) {
	env := newReviewEnv(t, drawSM2)
	env.cards.seedReviews("user-1", 99)

	ok, count, err := env.assignSvc.CanMigrate(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(99), count)
	assert.False(t, env.assignments.rows["user-1"].CanMigrateToFSRS)

	env.cards.seedReviews("user-1", 1)
	ok, count, err = env.assignSvc.CanMigrate(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(100), count)
	assert.True(t, env.assignments.rows["user-1"].CanMigrateToFSRS,
		"eligibility should be denormalized onto the row")
}

func TestCanMigrateFSRSUser(t *testing.T) {
	env := newReviewEnv(t, drawFSRS)
	env.cards.seedReviews("user-1", 500)

	ok, count, err := env.assignSvc.CanMigrate(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, ok, "an FSRS user has nowhere to migrate")
	assert.Zero(t, count)
}

func TestMigrateWithEnoughHistory(t *testing.T) {
	env := newReviewEnv(t, drawSM2)
	env.cards.seedReviews("user-1", 120)

	a, err := env.assignSvc.Migrate(context.Background(), "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, string(srs.AlgorithmFSRS), a.Algorithm)
	assert.Equal(t, ReasonMigration, a.AssignmentReason)
	assert.False(t, a.CanMigrateToFSRS)
}

func TestMigrateBelowThreshold(t *testing.T) {
	env := newReviewEnv(t, drawSM2)
	env.cards.seedReviews("user-1", 40)

	_, err := env.assignSvc.Migrate(context.Background(), "user-1", false)
	require.ErrorIs(t, err, errs.ErrValidation)
	assert.Contains(t, err.Error(), "40")

	a, err := env.assignSvc.Migrate(context.Background(), "user-1", true)
	require.NoError(t, err)
	assert.Equal(t, string(srs.AlgorithmFSRS), a.Algorithm, "force skips the history gate")
	assert.Equal(t, ReasonMigration, a.AssignmentReason)
}

func TestMigrateAlreadyOnFSRS(t *testing.T) {
	env := newReviewEnv(t, drawFSRS)

	first, err := env.assignSvc.GetOrAssign(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, string(srs.AlgorithmFSRS), first.Algorithm)
	updatesBefore := env.assignments.updates

	a, err := env.assignSvc.Migrate(context.Background(), "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, string(srs.AlgorithmFSRS), a.Algorithm)
	assert.Equal(t, updatesBefore, env.assignments.updates, "no-op migration must not rewrite the row")
}

func TestAssignmentStats(t *testing.T) {
	env := newReviewEnv(t, drawSM2)
	env.assignments.rows["u-sm2-a"] = persistence.AlgorithmAssignment{UserID: "u-sm2-a", Algorithm: string(srs.AlgorithmSM2Plus)}
	env.assignments.rows["u-sm2-b"] = persistence.AlgorithmAssignment{UserID: "u-sm2-b", Algorithm: string(srs.AlgorithmSM2Plus)}
	env.assignments.rows["u-fsrs"] = persistence.AlgorithmAssignment{UserID: "u-fsrs", Algorithm: string(srs.AlgorithmFSRS)}
	env.assignments.counts["u-sm2-a"] = 150
	env.assignments.counts["u-sm2-b"] = 12

	stats, err := env.assignSvc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.ByAlgorithm[string(srs.AlgorithmSM2Plus)])
	assert.Equal(t, int64(1), stats.ByAlgorithm[string(srs.AlgorithmFSRS)])
	assert.Equal(t, int64(1), stats.MigrationEligible)
	assert.Equal(t, int64(100), stats.MinReviewsForMigration)
}
