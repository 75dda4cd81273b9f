package services

import (
	"context"
	"fmt"

	"github.com/kreativelabske/lipia-backend/internal/models"
	repo "github.com/kreativelabske/lipia-backend/internal/repository"
)

// CreditHook is the balance-credit collaborator invoked on entry to
// completed. Implementations must be idempotent keyed by checkout id.
type CreditHook interface {
	Credit(ctx context.Context, owner, plan string, amount int64, checkoutID string) error
}

// WordCreditHook translates a plan reference into its word allowance and
// credits the owner's word balance.
type WordCreditHook struct {
	credits repo.WordCredits
	plans   map[string]models.Plan
}

func NewWordCreditHook(credits repo.WordCredits, plans map[string]models.Plan) *WordCreditHook {
	return &WordCreditHook{credits: credits, plans: plans}
}

func (h *WordCreditHook) Credit(ctx context.Context, owner, plan string, amount int64, checkoutID string) error {
	p, ok := h.plans[plan]
	if !ok {
		return fmt.Errorf("unknown plan %q", plan)
	}
	return h.credits.Credit(ctx, owner, p.Words, checkoutID)
}
