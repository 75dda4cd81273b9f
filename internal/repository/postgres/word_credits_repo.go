package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type wordCreditsRepo struct{ pool *pgxpool.Pool }

// Credit adds the word allowance to the owner's balance exactly once per
// checkout id. The credited_checkouts insert is the idempotency guard: a
// replayed credit for the same checkout inserts nothing and changes nothing.
func (r *wordCreditsRepo) Credit(ctx context.Context, owner string, words int64, checkoutID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
INSERT INTO credited_checkouts(checkout_id, owner_reference, words)
VALUES ($1,$2,$3)
ON CONFLICT (checkout_id) DO NOTHING`,
		checkoutID, owner, words,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// already credited for this checkout
		return tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO word_balances(owner_reference, words, last_updated_at)
VALUES ($1,$2,now())
ON CONFLICT (owner_reference) DO UPDATE
SET words = word_balances.words + EXCLUDED.words, last_updated_at = now()`,
		owner, words,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
