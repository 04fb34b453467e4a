package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordmine/wordmine/internal/errs"
	"github.com/wordmine/wordmine/internal/persistence"
	"github.com/wordmine/wordmine/internal/srs"
)

var cardColumnNames = []string{
	"user_id", "learning_progress_id", "learning_point_id", "algorithm_type",
	"current_interval", "scheduled_date", "last_review_date", "ease_factor",
	"consecutive_correct", "stability", "difficulty", "retention_probability",
	"fsrs_state", "mastery_level", "is_leech", "total_reviews", "total_correct",
	"avg_response_time_ms",
}

func reviewedCard() *srs.CardState {
	return &srs.CardState{
		UserID:               "user-1",
		ProgressID:           "prog-1",
		LearningPointID:      "sense-1",
		Algorithm:            srs.AlgorithmSM2Plus,
		CurrentInterval:      3,
		ScheduledDate:        time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
		LastReviewDate:       time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		EaseFactor:           2.36,
		ConsecutiveCorrect:   2,
		RetentionProbability: 0.9,
		Mastery:              srs.MasteryLearning,
		TotalReviews:         2,
		TotalCorrect:         2,
		AvgResponseMs:        2500,
	}
}

func reviewEntry() persistence.ReviewLogEntry {
	return persistence.ReviewLogEntry{
		UserID:         "user-1",
		ProgressID:     "prog-1",
		ReviewDate:     time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		Rating:         int(srs.RatingGood),
		Algorithm:      string(srs.AlgorithmSM2Plus),
		IntervalAfter:  3,
		ResponseTimeMs: 2500,
		Nonce:          "n-1",
	}
}

func TestCardsRepoApplyReview(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCardsRepo(db, 5*time.Second)
	state := reviewedCard()
	entry := reviewEntry()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE verification_schedule").
		WithArgs("user-1", "prog-1", "sm2_plus", 3, state.ScheduledDate,
			state.LastReviewDate, 2.36, 2, nil, nil, 0.9, nil, "learning",
			false, 2, 2, 2500.0, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO fsrs_review_history").
		WithArgs("user-1", "prog-1", entry.ReviewDate, int(srs.RatingGood),
			"sm2_plus", 3, 2500, "n-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.ApplyReview(context.Background(), state, entry)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardsRepoApplyReviewStaleGuard(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCardsRepo(db, 5*time.Second)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE verification_schedule").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.ApplyReview(context.Background(), reviewedCard(), reviewEntry())
	require.ErrorIs(t, err, errs.ErrConflict)
	assert.Contains(t, err.Error(), "changed underneath")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardsRepoApplyReviewDuplicateNonce(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCardsRepo(db, 5*time.Second)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE verification_schedule").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO fsrs_review_history").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.ApplyReview(context.Background(), reviewedCard(), reviewEntry())
	require.ErrorIs(t, err, errs.ErrConflict)
	assert.Contains(t, err.Error(), "already recorded")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardsRepoCreateConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCardsRepo(db, 5*time.Second)

	mock.ExpectExec("INSERT INTO verification_schedule").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), reviewedCard())
	require.ErrorIs(t, err, errs.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardsRepoGetScansNullables(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCardsRepo(db, 5*time.Second)
	scheduled := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM verification_schedule").
		WithArgs("user-1", "prog-1").
		WillReturnRows(sqlmock.NewRows(cardColumnNames).
			AddRow("user-1", "prog-1", "sense-1", "fsrs", 1, scheduled,
				nil, nil, 0, nil, nil, nil, nil, "learning", false, 0, 0, nil))

	state, err := repo.Get(context.Background(), "user-1", "prog-1")
	require.NoError(t, err)
	assert.Equal(t, srs.AlgorithmFSRS, state.Algorithm)
	assert.Equal(t, srs.MasteryLearning, state.Mastery)
	assert.True(t, state.LastReviewDate.IsZero(), "NULL last review scans to the zero time")
	assert.Zero(t, state.EaseFactor)
	assert.Zero(t, state.Stability)
	assert.Empty(t, state.FSRSState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardsRepoGetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCardsRepo(db, 5*time.Second)

	mock.ExpectQuery("FROM verification_schedule").
		WithArgs("user-1", "prog-404").
		WillReturnRows(sqlmock.NewRows(cardColumnNames))

	_, err := repo.Get(context.Background(), "user-1", "prog-404")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardsRepoListDueDefaultsLimit(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCardsRepo(db, 5*time.Second)
	asOf := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("ORDER BY scheduled_date ASC").
		WithArgs("user-1", asOf, 50).
		WillReturnRows(sqlmock.NewRows(cardColumnNames).
			AddRow("user-1", "prog-a", "sense-a", "sm2_plus", 1, asOf.AddDate(0, 0, -2),
				nil, 2.5, 0, nil, nil, nil, nil, "learning", false, 1, 0, nil).
			AddRow("user-1", "prog-b", "sense-b", "sm2_plus", 3, asOf,
				nil, 2.36, 1, nil, nil, nil, nil, "learning", false, 2, 1, nil))

	cards, err := repo.ListDue(context.Background(), "user-1", asOf, 0)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "prog-a", cards[0].ProgressID)
	assert.Equal(t, "prog-b", cards[1].ProgressID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardsRepoListLeeches(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCardsRepo(db, 5*time.Second)

	mock.ExpectQuery("is_leech = TRUE").
		WithArgs("user-1", 10).
		WillReturnRows(sqlmock.NewRows(cardColumnNames).
			AddRow("user-1", "prog-a", "sense-a", "sm2_plus", 1, time.Now(),
				nil, 1.3, -4, nil, nil, nil, nil, "leech", true, 12, 3, nil))

	cards, err := repo.ListLeeches(context.Background(), "user-1", 10)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.True(t, cards[0].IsLeech)
	assert.Equal(t, srs.MasteryLeech, cards[0].Mastery)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardsRepoFindReviewByNonce(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCardsRepo(db, 5*time.Second)
	reviewed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("AND nonce").
		WithArgs("user-1", "n-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "learning_progress_id", "review_date", "rating",
			"algorithm", "interval_after", "response_time_ms", "nonce", "created_at",
		}).AddRow(int64(9), "user-1", "prog-1", reviewed, 2, "sm2_plus", 3, 2500, "n-1", reviewed))

	entry, err := repo.FindReviewByNonce(context.Background(), "user-1", "n-1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), entry.ID)
	assert.Equal(t, 3, entry.IntervalAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardsRepoFindReviewByNonceMiss(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCardsRepo(db, 5*time.Second)

	mock.ExpectQuery("AND nonce").
		WithArgs("user-1", "n-404").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "learning_progress_id", "review_date", "rating",
			"algorithm", "interval_after", "response_time_ms", "nonce", "created_at",
		}))

	_, err := repo.FindReviewByNonce(context.Background(), "user-1", "n-404")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardsRepoCountReviews(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCardsRepo(db, 5*time.Second)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(117)))

	count, err := repo.CountReviews(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(117), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
