package economy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wordmine/wordmine/internal/errs"
	"github.com/wordmine/wordmine/internal/persistence"
)

// Config tunes the economy.
type Config struct {
	// LevelEnergy maps a reached level to the Energy granted on crossing it.
	LevelEnergy map[int]int64
	// LevelEnergyDefault applies to levels not listed in LevelEnergy.
	LevelEnergyDefault int64
}

// DefaultConfig returns production settings.
func DefaultConfig() Config {
	return Config{
		LevelEnergy:        map[int]int64{2: 30, 3: 50, 4: 75, 5: 100},
		LevelEnergyDefault: 125,
	}
}

// Cost is a basket of currencies to spend atomically.
type Cost struct {
	Energy  int64 `json:"energy,omitempty"`
	Essence int64 `json:"essence,omitempty"`
	Blocks  int64 `json:"blocks,omitempty"`
}

// Result reports one settled economy operation.
type Result struct {
	Wallet        *persistence.UserXP               `json:"wallet"`
	Transactions  []persistence.CurrencyTransaction `json:"transactions"`
	SparksEarned  int64                             `json:"sparks_earned"`
	EssenceEarned int64                             `json:"essence_earned"`
	BlockGranted  bool                              `json:"block_granted"`
	LevelsGained  []int                             `json:"levels_gained,omitempty"`
}

// LeveledUp reports whether the operation crossed at least one level.
func (r *Result) LeveledUp() bool { return len(r.LevelsGained) > 0 }

// MCQOutcome is one answered multiple-choice question.
type MCQOutcome struct {
	UserID          string `json:"user_id"`
	SenseID         string `json:"sense_id"`
	IsCorrect       bool   `json:"is_correct"`
	IsFast          bool   `json:"is_fast"`
	WordBecameSolid bool   `json:"word_became_solid"`
}

// Service settles grants and spends against the wallet repository. Each
// operation is one ledger transaction; on a concurrency conflict it is
// retried exactly once.
type Service struct {
	repo persistence.XPRepo
	cfg  Config
}

// NewService builds the economy service.
func NewService(repo persistence.XPRepo, cfg Config) *Service {
	if cfg.LevelEnergyDefault == 0 {
		cfg = DefaultConfig()
	}
	return &Service{repo: repo, cfg: cfg}
}

// GetWallet returns the wallet, or a pristine level-1 wallet for a user the
// ledger has never seen.
func (s *Service) GetWallet(ctx context.Context, userID string) (*persistence.UserXP, error) {
	if userID == "" {
		return nil, errs.Validation("user id is required")
	}
	w, err := s.repo.Get(ctx, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return &persistence.UserXP{
			UserID:        userID,
			CurrentLevel:  1,
			XPToNextLevel: LevelCost(1),
			UpdatedAt:     time.Now().UTC(),
		}, nil
	}
	return w, err
}

// History lists recent ledger rows, newest first.
func (s *Service) History(ctx context.Context, userID, currency string, limit int) ([]persistence.CurrencyTransaction, error) {
	if userID == "" {
		return nil, errs.Validation("user id is required")
	}
	switch Currency(currency) {
	case "", CurrencySparks, CurrencyEssence, CurrencyEnergy, CurrencyBlocks:
	default:
		return nil, errs.Validation("unknown currency %q", currency)
	}
	return s.repo.History(ctx, userID, currency, limit)
}

// GrantSparks awards Sparks from a named source and settles any level
// crossings in the same transaction.
func (s *Service) GrantSparks(ctx context.Context, userID, source string, sourceID *string) (*Result, error) {
	if userID == "" {
		return nil, errs.Validation("user id is required")
	}
	amount := SparkAward(source)
	if amount == 0 {
		return nil, errs.Validation("unknown sparks source %q", source)
	}

	res, err := s.settle(ctx, userID, grant{sparksSource: source, sparksSourceID: sourceID}, false)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("user_id", userID).
		Str("source", source).
		Int64("sparks", res.SparksEarned).
		Bool("level_up", res.LeveledUp()).
		Msg("Sparks granted")
	return res, nil
}

// ProcessMCQ settles the full economy of one answered question: Sparks for
// the attempt, Essence on a correct answer and the block mint when the word
// just went solid, all in one transaction.
func (s *Service) ProcessMCQ(ctx context.Context, in MCQOutcome) (*Result, error) {
	if in.UserID == "" {
		return nil, errs.Validation("user id is required")
	}
	if in.SenseID == "" {
		return nil, errs.Validation("sense id is required")
	}

	source := SourceMCQWrong
	if in.IsCorrect && in.IsFast {
		source = SourceMCQFastCorrect
	} else if in.IsCorrect {
		source = SourceMCQCorrect
	}

	g := grant{
		sparksSource:   source,
		sparksSourceID: &in.SenseID,
		essence:        EssenceAward(source),
		blockSenseID:   in.SenseID,
	}
	res, err := s.settle(ctx, in.UserID, g, in.WordBecameSolid)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("user_id", in.UserID).
		Str("source", source).
		Int64("sparks", res.SparksEarned).
		Int64("essence", res.EssenceEarned).
		Bool("block", res.BlockGranted).
		Bool("level_up", res.LeveledUp()).
		Msg("Question settled")
	return res, nil
}

// SettleReview pays the review economy: review_pass Sparks and Essence on a
// pass, and the block mint when the card crossed into solid retention.
func (s *Service) SettleReview(ctx context.Context, userID, senseID string, passed, becameSolid bool) (*Result, error) {
	if userID == "" {
		return nil, errs.Validation("user id is required")
	}
	g := grant{blockSenseID: senseID}
	if passed {
		g.sparksSource = SourceReviewPass
		g.essence = EssenceAward(SourceReviewPass)
		if senseID != "" {
			g.sparksSourceID = &senseID
		}
	}
	wantBlock := becameSolid && senseID != ""
	if g.sparksSource == "" && !wantBlock {
		return &Result{}, nil
	}
	res, err := s.settle(ctx, userID, g, wantBlock)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("user_id", userID).
		Bool("passed", passed).
		Int64("sparks", res.SparksEarned).
		Bool("block", res.BlockGranted).
		Bool("level_up", res.LeveledUp()).
		Msg("Review settled")
	return res, nil
}

// Spend verifies and deducts a cost basket atomically. The first currency
// that cannot cover its share fails the whole spend with a funds error
// naming the shortfall; currencies are checked in the order energy, essence,
// blocks.
func (s *Service) Spend(ctx context.Context, userID string, cost Cost, reason string, sourceID *string) (*Result, error) {
	if userID == "" {
		return nil, errs.Validation("user id is required")
	}
	if reason == "" {
		return nil, errs.Validation("spend reason is required")
	}
	if cost.Energy < 0 || cost.Essence < 0 || cost.Blocks < 0 {
		return nil, errs.Validation("spend amounts must not be negative")
	}
	if cost.Energy == 0 && cost.Essence == 0 && cost.Blocks == 0 {
		return nil, errs.Validation("nothing to spend")
	}

	res := &Result{}
	fn := func(w *persistence.UserXP) ([]persistence.LedgerEntry, error) {
		checks := []struct {
			currency Currency
			balance  *int64
			amount   int64
		}{
			{CurrencyEnergy, &w.Energy, cost.Energy},
			{CurrencyEssence, &w.Essence, cost.Essence},
			{CurrencyBlocks, &w.Blocks, cost.Blocks},
		}
		for _, c := range checks {
			if c.amount > 0 && *c.balance < c.amount {
				return nil, &errs.FundsError{
					Currency:  string(c.currency),
					Required:  c.amount,
					Available: *c.balance,
				}
			}
		}
		var entries []persistence.LedgerEntry
		for _, c := range checks {
			if c.amount == 0 {
				continue
			}
			*c.balance -= c.amount
			entries = append(entries, persistence.LedgerEntry{
				CurrencyType: string(c.currency),
				Amount:       -c.amount,
				BalanceAfter: *c.balance,
				Source:       reason,
				SourceID:     sourceID,
			})
		}
		return entries, nil
	}

	wallet, txns, err := s.repo.Mutate(ctx, userID, fn)
	if err != nil && errors.Is(err, errs.ErrConflict) {
		wallet, txns, err = s.repo.Mutate(ctx, userID, fn)
	}
	if err != nil {
		return nil, err
	}
	res.Wallet = wallet
	res.Transactions = txns
	log.Info().
		Str("user_id", userID).
		Str("reason", reason).
		Int64("energy", cost.Energy).
		Int64("essence", cost.Essence).
		Int64("blocks", cost.Blocks).
		Msg("Currencies spent")
	return res, nil
}

// grant is the internal shape of one settlement.
type grant struct {
	sparksSource   string
	sparksSourceID *string
	essence        int64
	blockSenseID   string
}

// settle runs one wallet mutation, with a single retry on a concurrency
// conflict. When the conflict came from the block-per-sense index the retry
// drops the block and keeps the rest of the grant.
func (s *Service) settle(ctx context.Context, userID string, g grant, wantBlock bool) (*Result, error) {
	if wantBlock {
		granted, err := s.repo.BlockGranted(ctx, userID, g.blockSenseID)
		if err != nil {
			return nil, err
		}
		wantBlock = !granted
	}

	res := &Result{}
	wallet, txns, err := s.repo.Mutate(ctx, userID, s.mutation(g, wantBlock, res))
	if err != nil && errors.Is(err, errs.ErrConflict) {
		if wantBlock {
			if granted, gerr := s.repo.BlockGranted(ctx, userID, g.blockSenseID); gerr == nil && granted {
				wantBlock = false
			}
		}
		res = &Result{}
		wallet, txns, err = s.repo.Mutate(ctx, userID, s.mutation(g, wantBlock, res))
	}
	if err != nil {
		return nil, err
	}
	res.Wallet = wallet
	res.Transactions = txns
	return res, nil
}

// mutation builds the ledger mutation for a grant. The closure may run twice
// when the first attempt conflicts, so it resets res every time.
func (s *Service) mutation(g grant, wantBlock bool, res *Result) func(w *persistence.UserXP) ([]persistence.LedgerEntry, error) {
	return func(w *persistence.UserXP) ([]persistence.LedgerEntry, error) {
		res.SparksEarned = 0
		res.EssenceEarned = 0
		res.BlockGranted = false
		res.LevelsGained = nil

		var entries []persistence.LedgerEntry
		addSparks := func(amount int64, source string, sourceID *string) {
			w.Sparks += amount
			w.TotalXP += amount
			res.SparksEarned += amount
			entries = append(entries, persistence.LedgerEntry{
				CurrencyType: string(CurrencySparks),
				Amount:       amount,
				BalanceAfter: w.Sparks,
				Source:       source,
				SourceID:     sourceID,
			})
		}

		if g.sparksSource != "" {
			addSparks(SparkAward(g.sparksSource), g.sparksSource, g.sparksSourceID)
		}
		if g.essence > 0 {
			w.Essence += g.essence
			res.EssenceEarned = g.essence
			entries = append(entries, persistence.LedgerEntry{
				CurrencyType: string(CurrencyEssence),
				Amount:       g.essence,
				BalanceAfter: w.Essence,
				Source:       g.sparksSource,
				SourceID:     g.sparksSourceID,
			})
		}
		if wantBlock {
			w.Blocks++
			res.BlockGranted = true
			senseID := g.blockSenseID
			entries = append(entries, persistence.LedgerEntry{
				CurrencyType: string(CurrencyBlocks),
				Amount:       1,
				BalanceAfter: w.Blocks,
				Source:       SourceWordSolid,
				SourceID:     &senseID,
			})
			addSparks(SparkAward(SourceWordSolid), SourceWordSolid, &senseID)
		}

		prevLevel := w.CurrentLevel
		level, inLevel, toNext := LevelForXP(w.TotalXP)
		w.CurrentLevel = level
		w.XPInCurrentLevel = inLevel
		w.XPToNextLevel = toNext
		for k := prevLevel + 1; k <= level; k++ {
			amount := s.energyFor(k)
			w.Energy += amount
			desc := fmt.Sprintf("Reached level %d", k)
			levelID := fmt.Sprintf("level_%d", k)
			entries = append(entries, persistence.LedgerEntry{
				CurrencyType: string(CurrencyEnergy),
				Amount:       amount,
				BalanceAfter: w.Energy,
				Source:       SourceLevelUp,
				SourceID:     &levelID,
				Description:  &desc,
			})
			res.LevelsGained = append(res.LevelsGained, k)
		}
		return entries, nil
	}
}

func (s *Service) energyFor(level int) int64 {
	if amount, ok := s.cfg.LevelEnergy[level]; ok {
		return amount
	}
	return s.cfg.LevelEnergyDefault
}
