package models

import "time"

type PaymentStatus string

const (
	StatusQueued     PaymentStatus = "queued"
	StatusProcessing PaymentStatus = "processing"
	StatusPending    PaymentStatus = "pending"
	StatusCompleted  PaymentStatus = "completed"
	StatusFailed     PaymentStatus = "failed"
	StatusCancelled  PaymentStatus = "cancelled"
	StatusError      PaymentStatus = "error"
	StatusTimeout    PaymentStatus = "timeout"
)

// CreditState tracks the balance-credit bookkeeping so that a restart can
// detect credits that were attempted but never acknowledged.
type CreditState string

const (
	CreditNone    CreditState = ""
	CreditPending CreditState = "pending"
	CreditDone    CreditState = "done"
)

// Outcome is a gateway-reported result fed into the transition function,
// either by the callback endpoint or by the status poll loop.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeError     Outcome = "error"
)

var validTransitions = map[PaymentStatus][]PaymentStatus{
	StatusQueued:     {StatusProcessing, StatusCancelled, StatusError, StatusTimeout},
	StatusProcessing: {StatusPending, StatusCompleted, StatusFailed, StatusCancelled, StatusError, StatusTimeout},
	StatusPending:    {StatusCompleted, StatusFailed, StatusCancelled, StatusError, StatusTimeout},
	// terminal states have no exits
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusError:     {},
	StatusTimeout:   {},
}

func IsTerminal(s PaymentStatus) bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusError, StatusTimeout:
		return true
	}
	return false
}

func CanTransition(from, to PaymentStatus) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// NonTerminalStatuses is the set of states the sweeper may close out.
func NonTerminalStatuses() []PaymentStatus {
	return []PaymentStatus{StatusQueued, StatusProcessing, StatusPending}
}

// Transaction is one payment attempt against the mobile-money gateway.
// Rows are never deleted; terminal records stay behind as the audit trail.
type Transaction struct {
	CheckoutID       string        `json:"checkout_id"`
	RemoteCheckoutID *string       `json:"remote_checkout_id,omitempty"`
	OwnerReference   string        `json:"owner_reference"`
	Amount           int64         `json:"amount"`
	PlanReference    string        `json:"plan_reference"`
	Status           PaymentStatus `json:"status"`
	Reference        *string       `json:"reference,omitempty"`
	ErrorDetail      *string       `json:"error_detail,omitempty"`
	CreditState      CreditState   `json:"-"`
	CreditAttempts   int           `json:"-"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}
