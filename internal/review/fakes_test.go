package review

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wordmine/wordmine/internal/economy"
	"github.com/wordmine/wordmine/internal/errs"
	"github.com/wordmine/wordmine/internal/persistence"
	"github.com/wordmine/wordmine/internal/srs"
)

type fakeAssignmentRepo struct {
	mu   sync.Mutex
	rows map[string]persistence.AlgorithmAssignment
	// counts backs CountMigratable, which in postgres joins the review log.
	counts map[string]int64
	// hideOnce forces one Get miss to model a racing first request.
	hideOnce map[string]bool
	updates  int
}

func newFakeAssignmentRepo() *fakeAssignmentRepo {
	return &fakeAssignmentRepo{
		rows:     map[string]persistence.AlgorithmAssignment{},
		counts:   map[string]int64{},
		hideOnce: map[string]bool{},
	}
}

func (f *fakeAssignmentRepo) Get(ctx context.Context, userID string) (*persistence.AlgorithmAssignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hideOnce[userID] {
		delete(f.hideOnce, userID)
		return nil, errs.NotFound("assignment for %s", userID)
	}
	a, ok := f.rows[userID]
	if !ok {
		return nil, errs.NotFound("assignment for %s", userID)
	}
	out := a
	return &out, nil
}

func (f *fakeAssignmentRepo) Init(ctx context.Context, a persistence.AlgorithmAssignment) (*persistence.AlgorithmAssignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if stored, ok := f.rows[a.UserID]; ok {
		out := stored
		return &out, nil
	}
	a.UpdatedAt = time.Now()
	f.rows[a.UserID] = a
	out := a
	return &out, nil
}

func (f *fakeAssignmentRepo) Update(ctx context.Context, a persistence.AlgorithmAssignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[a.UserID]; !ok {
		return errs.NotFound("assignment for %s", a.UserID)
	}
	a.UpdatedAt = time.Now()
	f.rows[a.UserID] = a
	f.updates++
	return nil
}

func (f *fakeAssignmentRepo) CountByAlgorithm(ctx context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]int64{}
	for _, a := range f.rows {
		out[a.Algorithm]++
	}
	return out, nil
}

func (f *fakeAssignmentRepo) CountMigratable(ctx context.Context, minReviews int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for uid, a := range f.rows {
		if a.Algorithm == string(srs.AlgorithmSM2Plus) && f.counts[uid] >= minReviews {
			n++
		}
	}
	return n, nil
}

type fakeCardRepo struct {
	mu      sync.Mutex
	cards   map[string]*srs.CardState
	reviews []persistence.ReviewLogEntry
	nextID  int64

	// applyConflictOnce commits the write but still reports a conflict, as
	// if a retry carrying the same nonce won the race.
	applyConflictOnce bool
	// applyErrOnce fails the next ApplyReview without writing anything.
	applyErrOnce error
}

func newFakeCardRepo() *fakeCardRepo {
	return &fakeCardRepo{cards: map[string]*srs.CardState{}}
}

func cardKey(userID, progressID string) string { return userID + "/" + progressID }

func (f *fakeCardRepo) Create(ctx context.Context, state *srs.CardState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := cardKey(state.UserID, state.ProgressID)
	if _, ok := f.cards[k]; ok {
		return errs.Conflict("card %s already exists", state.ProgressID)
	}
	f.cards[k] = state.Clone()
	return nil
}

func (f *fakeCardRepo) Get(ctx context.Context, userID, progressID string) (*srs.CardState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cards[cardKey(userID, progressID)]
	if !ok {
		return nil, errs.NotFound("card %s/%s", userID, progressID)
	}
	return c.Clone(), nil
}

func (f *fakeCardRepo) ApplyReview(ctx context.Context, state *srs.CardState, entry persistence.ReviewLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErrOnce != nil {
		err := f.applyErrOnce
		f.applyErrOnce = nil
		return err
	}
	k := cardKey(state.UserID, state.ProgressID)
	existing, ok := f.cards[k]
	if !ok || existing.TotalReviews != state.TotalReviews-1 {
		return errs.Conflict("card %s changed underneath the review", state.ProgressID)
	}
	for _, r := range f.reviews {
		if r.UserID == entry.UserID && r.Nonce == entry.Nonce {
			return errs.Conflict("review %s already recorded", entry.Nonce)
		}
	}
	f.cards[k] = state.Clone()
	f.nextID++
	entry.ID = f.nextID
	entry.CreatedAt = entry.ReviewDate
	f.reviews = append(f.reviews, entry)
	if f.applyConflictOnce {
		f.applyConflictOnce = false
		return errs.Conflict("lost the commit race")
	}
	return nil
}

func (f *fakeCardRepo) ListDue(ctx context.Context, userID string, asOf time.Time, limit int) ([]*srs.CardState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	out := make([]*srs.CardState, 0)
	for _, c := range f.cards {
		if c.UserID == userID && !c.ScheduledDate.After(asOf) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledDate.Before(out[j].ScheduledDate) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeCardRepo) ListLeeches(ctx context.Context, userID string, limit int) ([]*srs.CardState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	out := make([]*srs.CardState, 0)
	for _, c := range f.cards {
		if c.UserID == userID && c.IsLeech {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalReviews > out[j].TotalReviews })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeCardRepo) FindReviewByNonce(ctx context.Context, userID, nonce string) (*persistence.ReviewLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.reviews {
		if f.reviews[i].UserID == userID && f.reviews[i].Nonce == nonce {
			out := f.reviews[i]
			return &out, nil
		}
	}
	return nil, errs.NotFound("review %s", nonce)
}

func (f *fakeCardRepo) CountReviews(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for i := range f.reviews {
		if f.reviews[i].UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeCardRepo) seedReviews(userID string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.nextID++
		f.reviews = append(f.reviews, persistence.ReviewLogEntry{
			ID:     f.nextID,
			UserID: userID,
			Nonce:  fmt.Sprintf("seed-%s-%d", userID, i),
		})
	}
}

type fakeXPRepo struct {
	mu      sync.Mutex
	wallets map[string]persistence.UserXP
	ledger  []persistence.CurrencyTransaction
	blocks  map[string]bool
	nextID  int64
	// mutateErr fails the next Mutate once.
	mutateErr error
}

func newFakeXPRepo() *fakeXPRepo {
	return &fakeXPRepo{
		wallets: map[string]persistence.UserXP{},
		blocks:  map[string]bool{},
	}
}

func (f *fakeXPRepo) Get(ctx context.Context, userID string) (*persistence.UserXP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.wallets[userID]
	if !ok {
		return nil, errs.NotFound("wallet for %s", userID)
	}
	out := w
	return &out, nil
}

func (f *fakeXPRepo) Mutate(ctx context.Context, userID string, fn func(w *persistence.UserXP) ([]persistence.LedgerEntry, error)) (*persistence.UserXP, []persistence.CurrencyTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mutateErr != nil {
		err := f.mutateErr
		f.mutateErr = nil
		return nil, nil, err
	}
	w, ok := f.wallets[userID]
	if !ok {
		w = persistence.UserXP{UserID: userID, CurrentLevel: 1, XPToNextLevel: 100}
	}
	entries, err := fn(&w)
	if err != nil {
		return nil, nil, err
	}
	minted := make([]string, 0, 1)
	for _, e := range entries {
		if e.CurrencyType == string(economy.CurrencyBlocks) && e.SourceID != nil {
			key := userID + "/" + *e.SourceID
			if f.blocks[key] {
				return nil, nil, errs.Conflict("block for %s already minted", *e.SourceID)
			}
			minted = append(minted, key)
		}
	}
	now := time.Now()
	w.UpdatedAt = now
	f.wallets[userID] = w
	txns := make([]persistence.CurrencyTransaction, 0, len(entries))
	for _, e := range entries {
		f.nextID++
		txns = append(txns, persistence.CurrencyTransaction{
			ID:           f.nextID,
			UserID:       userID,
			CurrencyType: e.CurrencyType,
			Amount:       e.Amount,
			BalanceAfter: e.BalanceAfter,
			Source:       e.Source,
			SourceID:     e.SourceID,
			Description:  e.Description,
			CreatedAt:    now,
		})
	}
	f.ledger = append(f.ledger, txns...)
	for _, k := range minted {
		f.blocks[k] = true
	}
	out := w
	return &out, txns, nil
}

func (f *fakeXPRepo) History(ctx context.Context, userID, currency string, limit int) ([]persistence.CurrencyTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	out := make([]persistence.CurrencyTransaction, 0)
	for i := len(f.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		t := f.ledger[i]
		if t.UserID != userID {
			continue
		}
		if currency != "" && t.CurrencyType != currency {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeXPRepo) BlockGranted(ctx context.Context, userID, senseID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocks[userID+"/"+senseID], nil
}

type reviewEnv struct {
	cards       *fakeCardRepo
	assignments *fakeAssignmentRepo
	xp          *fakeXPRepo
	assignSvc   *AssignmentService
	svc         *ReviewService
}

func fixedNow() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }

func drawSM2() float64 { return 0.9 }

func drawFSRS() float64 { return 0.1 }

func newReviewEnv(t *testing.T, draw func() float64) *reviewEnv {
	t.Helper()
	cards := newFakeCardRepo()
	assignments := newFakeAssignmentRepo()
	xp := newFakeXPRepo()

	sm2, err := srs.NewSM2Plus(srs.DefaultSM2Config())
	require.NoError(t, err)
	fsrsAlg, err := srs.NewFSRSAdapter(srs.DefaultFSRSConfig())
	require.NoError(t, err)

	assignSvc := NewAssignmentService(assignments, cards, DefaultAssignmentConfig(), draw)
	svc := NewReviewService(
		map[srs.AlgorithmType]srs.Algorithm{
			srs.AlgorithmSM2Plus: sm2,
			srs.AlgorithmFSRS:    fsrsAlg,
		},
		assignSvc,
		cards,
		economy.NewService(xp, economy.DefaultConfig()),
		fixedNow,
	)
	return &reviewEnv{
		cards:       cards,
		assignments: assignments,
		xp:          xp,
		assignSvc:   assignSvc,
		svc:         svc,
	}
}
