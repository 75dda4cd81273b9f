package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kreativelabske/lipia-backend/internal/models"
)

var (
	// ErrNotFound means no transaction matched the given key.
	ErrNotFound = errors.New("transaction not found")
	// ErrStaleTransition means the compare-and-set predicate matched no row:
	// the record already left the expected predecessor state. Callers treat
	// this as an idempotent no-op, never as data corruption.
	ErrStaleTransition = errors.New("stale transition")
	// ErrDuplicate means the store's live-duplicate guard rejected an insert:
	// another non-terminal transaction with the same (owner, amount, plan)
	// already exists. Closes the check-then-insert race on double submits.
	ErrDuplicate = errors.New("duplicate live transaction")
)

// TransitionUpdate carries the optional fields written together with a
// status change. Nil fields are left untouched.
type TransitionUpdate struct {
	RemoteCheckoutID *string
	Reference        *string
	ErrorDetail      *string
	CreditState      *models.CreditState
}

type Transactions interface {
	Create(ctx context.Context, tx models.Transaction) (models.Transaction, error)
	GetByCheckoutID(ctx context.Context, checkoutID string) (models.Transaction, error)
	GetByRemoteID(ctx context.Context, remoteCheckoutID string) (models.Transaction, error)

	// FindLiveDuplicate returns a non-terminal transaction with the same
	// (owner, amount, plan) created after `since`, or ErrNotFound.
	FindLiveDuplicate(ctx context.Context, owner string, amount int64, plan string, since time.Time) (models.Transaction, error)

	// Transition performs the per-record compare-and-set: the row moves to
	// `to` only if its current status is one of `from`. Returns the updated
	// row, or ErrStaleTransition when the predicate matched nothing.
	Transition(ctx context.Context, checkoutID string, from []models.PaymentStatus, to models.PaymentStatus, upd TransitionUpdate) (models.Transaction, error)

	// MarkCreditPending records that a balance credit is being attempted and
	// returns the new attempt count. Only valid while the row is still
	// processing or pending.
	MarkCreditPending(ctx context.Context, checkoutID string) (int, error)
	SetErrorDetail(ctx context.Context, checkoutID, detail string) error

	ListByStatus(ctx context.Context, status models.PaymentStatus, limit int) ([]models.Transaction, error)
	// ListStale returns non-terminal rows created before `olderThan`.
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]models.Transaction, error)
	// ListPollable returns processing/pending rows with a remote checkout id
	// whose last update predates `updatedBefore`.
	ListPollable(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Transaction, error)
	ListByOwner(ctx context.Context, owner string, limit, offset int) ([]models.Transaction, error)
}

// WordCredits is the balance-credit collaborator. Credit must be idempotent
// per checkout id.
type WordCredits interface {
	Credit(ctx context.Context, owner string, words int64, checkoutID string) error
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
}
