package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wordmine/wordmine/internal/errs"
	"github.com/wordmine/wordmine/internal/persistence"
)

const walletColumns = `user_id, sparks, essence, energy, blocks, total_xp,
	current_level, xp_to_next_level, xp_in_current_level, updated_at`

// xpRepo implements XPRepo for PostgreSQL.
type xpRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewXPRepo creates a new PostgreSQL wallet repository.
func NewXPRepo(db *sqlx.DB, timeout time.Duration) persistence.XPRepo {
	return &xpRepo{db: db, timeout: timeout}
}

// Get returns the wallet for a user.
func (r *xpRepo) Get(ctx context.Context, userID string) (*persistence.UserXP, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + walletColumns + ` FROM user_xp WHERE user_id = $1`

	var w persistence.UserXP
	if err := r.db.GetContext(ctx, &w, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFound("wallet for user %s", userID)
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &w, nil
}

// Mutate applies fn to the wallet under a row lock and appends the ledger
// entries fn returned, all in one transaction.
func (r *xpRepo) Mutate(ctx context.Context, userID string, fn func(w *persistence.UserXP) ([]persistence.LedgerEntry, error)) (*persistence.UserXP, []persistence.CurrencyTransaction, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin wallet transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_xp (user_id, current_level, xp_to_next_level)
		VALUES ($1, 1, 100)
		ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to seed wallet: %w", err)
	}

	var w persistence.UserXP
	query := `SELECT ` + walletColumns + ` FROM user_xp WHERE user_id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &w, query, userID); err != nil {
		return nil, nil, fmt.Errorf("failed to lock wallet: %w", err)
	}

	entries, err := fn(&w)
	if err != nil {
		return nil, nil, err
	}

	w.UpdatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE user_xp
		SET sparks = $2, essence = $3, energy = $4, blocks = $5, total_xp = $6,
			current_level = $7, xp_to_next_level = $8, xp_in_current_level = $9,
			updated_at = $10
		WHERE user_id = $1`,
		w.UserID, w.Sparks, w.Essence, w.Energy, w.Blocks, w.TotalXP,
		w.CurrentLevel, w.XPToNextLevel, w.XPInCurrentLevel, w.UpdatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update wallet: %w", err)
	}

	appended := make([]persistence.CurrencyTransaction, 0, len(entries))
	for _, e := range entries {
		txn := persistence.CurrencyTransaction{
			UserID:       userID,
			CurrencyType: e.CurrencyType,
			Amount:       e.Amount,
			BalanceAfter: e.BalanceAfter,
			Source:       e.Source,
			SourceID:     e.SourceID,
			Description:  e.Description,
		}
		err := tx.QueryRowxContext(ctx, `
			INSERT INTO currency_transactions
				(user_id, currency_type, amount, balance_after, source, source_id, description)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at`,
			txn.UserID, txn.CurrencyType, txn.Amount, txn.BalanceAfter,
			txn.Source, txn.SourceID, txn.Description).
			Scan(&txn.ID, &txn.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, nil, errs.Conflict("ledger entry for %s already recorded", e.Source)
			}
			return nil, nil, fmt.Errorf("failed to append ledger entry: %w", err)
		}
		appended = append(appended, txn)
	}

	if err := tx.Commit(); err != nil {
		if isSerializationFailure(err) {
			return nil, nil, errs.Conflict("wallet mutation lost a concurrency race")
		}
		return nil, nil, fmt.Errorf("failed to commit wallet mutation: %w", err)
	}
	return &w, appended, nil
}

// History lists recent ledger rows, newest first.
func (r *xpRepo) History(ctx context.Context, userID, currency string, limit int) ([]persistence.CurrencyTransaction, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	var rows []persistence.CurrencyTransaction
	var err error
	if currency == "" {
		query := `
			SELECT id, user_id, currency_type, amount, balance_after, source,
				source_id, description, created_at
			FROM currency_transactions
			WHERE user_id = $1
			ORDER BY id DESC
			LIMIT $2`
		err = r.db.SelectContext(ctx, &rows, query, userID, limit)
	} else {
		query := `
			SELECT id, user_id, currency_type, amount, balance_after, source,
				source_id, description, created_at
			FROM currency_transactions
			WHERE user_id = $1 AND currency_type = $2
			ORDER BY id DESC
			LIMIT $3`
		err = r.db.SelectContext(ctx, &rows, query, userID, currency, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger history: %w", err)
	}
	return rows, nil
}

// BlockGranted reports whether a block was already minted for the sense.
func (r *xpRepo) BlockGranted(ctx context.Context, userID, senseID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT EXISTS (
			SELECT 1 FROM currency_transactions
			WHERE user_id = $1 AND currency_type = 'blocks' AND source_id = $2
		)`

	var granted bool
	if err := r.db.QueryRowxContext(ctx, query, userID, senseID).Scan(&granted); err != nil {
		return false, fmt.Errorf("failed to check block grant: %w", err)
	}
	return granted, nil
}
