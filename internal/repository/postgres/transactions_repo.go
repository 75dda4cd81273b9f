package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kreativelabske/lipia-backend/internal/models"
	"github.com/kreativelabske/lipia-backend/internal/repository"
)

type transactionsRepo struct{ pool *pgxpool.Pool }

const txColumns = `checkout_id, remote_checkout_id, owner_reference, amount, plan_reference,
       status, reference, error_detail, credit_state, credit_attempts, created_at, updated_at`

func scanTx(row pgx.Row) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.CheckoutID, &t.RemoteCheckoutID, &t.OwnerReference, &t.Amount, &t.PlanReference,
		&t.Status, &t.Reference, &t.ErrorDetail, &t.CreditState, &t.CreditAttempts,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Transaction{}, repository.ErrNotFound
	}
	return t, err
}

func statusStrings(in []models.PaymentStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func (r *transactionsRepo) Create(ctx context.Context, tx models.Transaction) (models.Transaction, error) {
	t, err := scanTx(r.pool.QueryRow(ctx, `
INSERT INTO transactions (checkout_id, owner_reference, amount, plan_reference, status)
VALUES ($1,$2,$3,$4,$5)
RETURNING `+txColumns,
		tx.CheckoutID, tx.OwnerReference, tx.Amount, tx.PlanReference, tx.Status,
	))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "transactions_live_dedup_idx" {
		return models.Transaction{}, repository.ErrDuplicate
	}
	return t, err
}

func (r *transactionsRepo) GetByCheckoutID(ctx context.Context, checkoutID string) (models.Transaction, error) {
	return scanTx(r.pool.QueryRow(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE checkout_id=$1`, checkoutID))
}

func (r *transactionsRepo) GetByRemoteID(ctx context.Context, remoteCheckoutID string) (models.Transaction, error) {
	return scanTx(r.pool.QueryRow(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE remote_checkout_id=$1`, remoteCheckoutID))
}

func (r *transactionsRepo) FindLiveDuplicate(ctx context.Context, owner string, amount int64, plan string, since time.Time) (models.Transaction, error) {
	return scanTx(r.pool.QueryRow(ctx, `
SELECT `+txColumns+`
  FROM transactions
 WHERE owner_reference=$1 AND amount=$2 AND plan_reference=$3
   AND status = ANY($4)
   AND created_at >= $5
 ORDER BY created_at DESC
 LIMIT 1`,
		owner, amount, plan, statusStrings(models.NonTerminalStatuses()), since,
	))
}

// Transition is the per-record compare-and-set: the UPDATE only matches while
// the row is still in one of the expected predecessor states, so a race
// between callback, poll loop and sweeper can never exit a terminal state.
func (r *transactionsRepo) Transition(ctx context.Context, checkoutID string, from []models.PaymentStatus, to models.PaymentStatus, upd repository.TransitionUpdate) (models.Transaction, error) {
	t, err := scanTx(r.pool.QueryRow(ctx, `
UPDATE transactions
   SET status=$2,
       remote_checkout_id = COALESCE($3, remote_checkout_id),
       reference          = COALESCE($4, reference),
       error_detail       = COALESCE($5, error_detail),
       credit_state       = COALESCE($6, credit_state),
       updated_at         = now()
 WHERE checkout_id=$1 AND status = ANY($7)
RETURNING `+txColumns,
		checkoutID, to, upd.RemoteCheckoutID, upd.Reference, upd.ErrorDetail, upd.CreditState,
		statusStrings(from),
	))
	if errors.Is(err, repository.ErrNotFound) {
		return models.Transaction{}, repository.ErrStaleTransition
	}
	return t, err
}

func (r *transactionsRepo) MarkCreditPending(ctx context.Context, checkoutID string) (int, error) {
	var attempts int
	err := r.pool.QueryRow(ctx, `
UPDATE transactions
   SET credit_state=$2, credit_attempts = credit_attempts + 1, updated_at=now()
 WHERE checkout_id=$1 AND status = ANY($3)
RETURNING credit_attempts`,
		checkoutID, models.CreditPending,
		statusStrings([]models.PaymentStatus{models.StatusProcessing, models.StatusPending}),
	).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, repository.ErrStaleTransition
	}
	return attempts, err
}

func (r *transactionsRepo) SetErrorDetail(ctx context.Context, checkoutID, detail string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE transactions SET error_detail=$2, updated_at=now() WHERE checkout_id=$1`,
		checkoutID, detail,
	)
	return err
}

func (r *transactionsRepo) ListByStatus(ctx context.Context, status models.PaymentStatus, limit int) ([]models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+txColumns+` FROM transactions
 WHERE status=$1 ORDER BY created_at ASC LIMIT $2`, status, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *transactionsRepo) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+txColumns+` FROM transactions
 WHERE status = ANY($1) AND created_at < $2
 ORDER BY created_at ASC LIMIT $3`,
		statusStrings(models.NonTerminalStatuses()), olderThan, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *transactionsRepo) ListPollable(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+txColumns+` FROM transactions
 WHERE status = ANY($1) AND remote_checkout_id IS NOT NULL AND updated_at < $2
 ORDER BY updated_at ASC LIMIT $3`,
		statusStrings([]models.PaymentStatus{models.StatusProcessing, models.StatusPending}),
		updatedBefore, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *transactionsRepo) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+txColumns+` FROM transactions
 WHERE owner_reference=$1
 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, owner, limit, offset)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]models.Transaction, error) {
	defer rows.Close()
	var out []models.Transaction
	for rows.Next() {
		t, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
