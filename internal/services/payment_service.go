package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kreativelabske/lipia-backend/internal/config"
	"github.com/kreativelabske/lipia-backend/internal/gateway"
	"github.com/kreativelabske/lipia-backend/internal/metrics"
	"github.com/kreativelabske/lipia-backend/internal/models"
	repo "github.com/kreativelabske/lipia-backend/internal/repository"
)

// Submitter hands dispatch jobs to the bounded worker pool. Submit reports
// saturation instead of blocking; the transaction stays queued in that case.
type Submitter interface {
	Submit(func()) error
}

// PaymentService owns the payment state machine. Every transition goes
// through the store's compare-and-set, so callback-driven reconciliation,
// status polling, cancellation and the timeout sweeper can race freely:
// whichever arrives first wins and the rest become no-ops.
type PaymentService struct {
	trx    repo.Transactions
	audit  repo.AuditLogs
	gw     gateway.Client
	credit CreditHook
	wp     Submitter
	cfg    config.Config
	log    *slog.Logger
}

func NewPaymentService(trx repo.Transactions, audit repo.AuditLogs, gw gateway.Client, credit CreditHook, wp Submitter, cfg config.Config) *PaymentService {
	return &PaymentService{trx: trx, audit: audit, gw: gw, credit: credit, wp: wp, cfg: cfg, log: slog.Default()}
}

func newCheckoutID() string { return "LIP-" + uuid.NewString() }

// ----------------- enqueue -----------------

// Enqueue validates and persists a payment intent in queued state, then hands
// it to the dispatch workers. It never touches the network; the transaction
// is visible to the status API the instant this returns.
func (s *PaymentService) Enqueue(ctx context.Context, owner string, amount int64, plan string) (models.Transaction, error) {
	if owner == "" || amount <= 0 {
		return models.Transaction{}, ErrInvalidRequest
	}
	if _, ok := s.cfg.Plans[plan]; !ok {
		return models.Transaction{}, fmt.Errorf("%w: unknown plan %q", ErrInvalidRequest, plan)
	}

	since := time.Now().Add(-s.cfg.DedupWindow)
	if dup, err := s.trx.FindLiveDuplicate(ctx, owner, amount, plan, since); err == nil {
		metrics.PaymentsDeduplicated.Inc()
		return models.Transaction{}, fmt.Errorf("%w: live transaction %s", ErrDuplicateRequest, dup.CheckoutID)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return models.Transaction{}, err
	}

	tx, err := s.trx.Create(ctx, models.Transaction{
		CheckoutID:     newCheckoutID(),
		OwnerReference: owner,
		Amount:         amount,
		PlanReference:  plan,
		Status:         models.StatusQueued,
	})
	if errors.Is(err, repo.ErrDuplicate) {
		// a concurrent identical request won the insert race
		metrics.PaymentsDeduplicated.Inc()
		return models.Transaction{}, fmt.Errorf("%w: identical request in flight", ErrDuplicateRequest)
	}
	if err != nil {
		return models.Transaction{}, err
	}
	s.auditAction(ctx, tx.CheckoutID, "created", "payment queued")
	metrics.PaymentsEnqueued.Inc()

	if err := s.wp.Submit(func() { s.Dispatch(context.Background(), tx) }); err != nil {
		// stays queued; restart recovery redispatches it, or the sweeper
		// times it out if capacity never frees
		s.log.Warn("dispatch queue full", "checkout_id", tx.CheckoutID)
	}
	return tx, nil
}

// ----------------- dispatch -----------------

// Dispatch performs the gateway call for a queued transaction. Transient
// gateway failures are retried with exponential backoff; explicit rejections
// are not. Errors never escape: they are written into transaction state.
func (s *PaymentService) Dispatch(ctx context.Context, tx models.Transaction) {
	req := gateway.PushRequest{
		AccountReference: tx.OwnerReference,
		Amount:           tx.Amount,
		CallbackURL:      s.cfg.CallbackURL,
	}

	var resp *gateway.PushResponse
	var err error
	for attempt := 1; attempt <= s.cfg.DispatchRetries; attempt++ {
		resp, err = s.gw.InitiateSTKPush(ctx, req)
		if err == nil {
			break
		}
		if errors.Is(err, gateway.ErrRejected) {
			metrics.DispatchAttempts.WithLabelValues("rejected").Inc()
			s.failDispatch(ctx, tx.CheckoutID, err.Error())
			return
		}
		metrics.DispatchAttempts.WithLabelValues("unavailable").Inc()
		s.log.Warn("dispatch attempt failed", "checkout_id", tx.CheckoutID, "attempt", attempt, "err", err)
		if attempt < s.cfg.DispatchRetries {
			select {
			case <-ctx.Done():
				s.failDispatch(ctx, tx.CheckoutID, "dispatch aborted: "+ctx.Err().Error())
				return
			case <-time.After(s.cfg.DispatchBackoff << (attempt - 1)):
			}
		}
	}
	if err != nil {
		s.failDispatch(ctx, tx.CheckoutID, fmt.Sprintf("gateway unavailable after %d attempts: %v", s.cfg.DispatchRetries, err))
		return
	}

	metrics.DispatchAttempts.WithLabelValues("accepted").Inc()
	remote := resp.CheckoutRequestID
	updated, terr := s.transition(ctx, tx.CheckoutID,
		[]models.PaymentStatus{models.StatusQueued}, models.StatusProcessing,
		repo.TransitionUpdate{RemoteCheckoutID: &remote})
	if errors.Is(terr, repo.ErrStaleTransition) {
		// cancelled or swept while the gateway call was in flight
		s.log.Info("dispatch result dropped, transaction already left queued", "checkout_id", tx.CheckoutID)
		return
	}
	if terr != nil {
		s.log.Error("record processing state", "checkout_id", tx.CheckoutID, "err", terr)
		return
	}

	if resp.InstantSuccess {
		ref := resp.Reference
		if err := s.ApplyOutcome(ctx, updated.CheckoutID, models.OutcomeCompleted, &ref, nil); err != nil {
			s.log.Error("apply instant success", "checkout_id", updated.CheckoutID, "err", err)
		}
	}
}

func (s *PaymentService) failDispatch(ctx context.Context, checkoutID, detail string) {
	_, err := s.transition(ctx, checkoutID,
		[]models.PaymentStatus{models.StatusQueued}, models.StatusError,
		repo.TransitionUpdate{ErrorDetail: &detail})
	if err != nil && !errors.Is(err, repo.ErrStaleTransition) {
		s.log.Error("record dispatch failure", "checkout_id", checkoutID, "err", err)
	}
}

// ----------------- transition function -----------------

// ApplyOutcome is the single entry point for gateway-reported results,
// shared by the callback handler, the poll loop and the instant-success path.
// Re-delivered terminal outcomes are no-ops.
func (s *PaymentService) ApplyOutcome(ctx context.Context, checkoutID string, out models.Outcome, reference, detail *string) error {
	switch out {
	case models.OutcomePending:
		_, err := s.transition(ctx, checkoutID,
			[]models.PaymentStatus{models.StatusProcessing}, models.StatusPending,
			repo.TransitionUpdate{})
		return ignoreStale(err)

	case models.OutcomeCompleted:
		return s.complete(ctx, checkoutID, reference)

	case models.OutcomeFailed:
		_, err := s.transition(ctx, checkoutID,
			[]models.PaymentStatus{models.StatusProcessing, models.StatusPending}, models.StatusFailed,
			repo.TransitionUpdate{ErrorDetail: orDetail(detail, "payment failed")})
		return ignoreStale(err)

	case models.OutcomeCancelled:
		_, err := s.transition(ctx, checkoutID,
			[]models.PaymentStatus{models.StatusQueued, models.StatusProcessing, models.StatusPending}, models.StatusCancelled,
			repo.TransitionUpdate{})
		return ignoreStale(err)

	case models.OutcomeError:
		_, err := s.transition(ctx, checkoutID,
			[]models.PaymentStatus{models.StatusProcessing, models.StatusPending}, models.StatusError,
			repo.TransitionUpdate{ErrorDetail: orDetail(detail, "gateway error")})
		return ignoreStale(err)
	}
	return fmt.Errorf("unknown outcome %q", out)
}

// complete enters the completed state. The balance credit must land before
// the terminal write: on hook failure the transaction stays processing or
// pending with the failure noted, and the next reconciliation retries. The
// credit_state bookkeeping lets a restart find credits that were attempted
// but never acknowledged.
func (s *PaymentService) complete(ctx context.Context, checkoutID string, reference *string) error {
	cur, err := s.trx.GetByCheckoutID(ctx, checkoutID)
	if err != nil {
		return err
	}
	if models.IsTerminal(cur.Status) {
		return nil
	}

	if cur.CreditState != models.CreditDone {
		attempts, err := s.trx.MarkCreditPending(ctx, checkoutID)
		if errors.Is(err, repo.ErrStaleTransition) {
			return nil
		}
		if err != nil {
			return err
		}
		if attempts > s.cfg.CreditMaxAttempts {
			detail := fmt.Sprintf("balance credit failed after %d attempts", attempts-1)
			_, terr := s.transition(ctx, checkoutID, models.NonTerminalStatuses(), models.StatusError,
				repo.TransitionUpdate{ErrorDetail: &detail})
			return ignoreStale(terr)
		}
		if err := s.credit.Credit(ctx, cur.OwnerReference, cur.PlanReference, cur.Amount, cur.CheckoutID); err != nil {
			metrics.CreditFailures.Inc()
			_ = s.trx.SetErrorDetail(ctx, checkoutID, "balance credit failed: "+err.Error())
			return fmt.Errorf("credit hook: %w", err)
		}
	}

	done := models.CreditDone
	_, err = s.transition(ctx, checkoutID,
		[]models.PaymentStatus{models.StatusProcessing, models.StatusPending}, models.StatusCompleted,
		repo.TransitionUpdate{Reference: reference, CreditState: &done})
	return ignoreStale(err)
}

// ----------------- reconciliation -----------------

// HandleCallback applies an inbound gateway callback. Lookup is by remote
// checkout id first, falling back to the local id when the two coincide.
func (s *PaymentService) HandleCallback(ctx context.Context, remoteCheckoutID string, out models.Outcome, reference, detail *string) error {
	tx, err := s.trx.GetByRemoteID(ctx, remoteCheckoutID)
	if errors.Is(err, repo.ErrNotFound) {
		tx, err = s.trx.GetByCheckoutID(ctx, remoteCheckoutID)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, remoteCheckoutID)
	}
	if err != nil {
		return err
	}
	return s.ApplyOutcome(ctx, tx.CheckoutID, out, reference, detail)
}

// ReconcilePending actively polls the gateway for in-flight transactions
// whose callback has not arrived within the grace period.
func (s *PaymentService) ReconcilePending(ctx context.Context) error {
	cutoff := time.Now().Add(-s.cfg.PollGrace)
	txs, err := s.trx.ListPollable(ctx, cutoff, 100)
	if err != nil {
		return err
	}
	for _, tx := range txs {
		st, err := s.gw.QueryStatus(ctx, *tx.RemoteCheckoutID)
		if err != nil {
			if errors.Is(err, gateway.ErrUnavailable) {
				s.log.Warn("status poll failed", "checkout_id", tx.CheckoutID, "err", err)
				continue
			}
			detail := err.Error()
			_ = s.ApplyOutcome(ctx, tx.CheckoutID, models.OutcomeError, nil, &detail)
			continue
		}
		var ref, msg *string
		if st.Reference != "" {
			ref = &st.Reference
		}
		if st.Message != "" {
			msg = &st.Message
		}
		if err := s.ApplyOutcome(ctx, tx.CheckoutID, st.Outcome, ref, msg); err != nil {
			s.log.Warn("apply polled outcome", "checkout_id", tx.CheckoutID, "err", err)
		}
	}
	return nil
}

// SweepTimeouts closes out non-terminal transactions older than the payment
// timeout. The compare-and-set keeps it from ever overwriting a record the
// reconciler finished in the same cycle.
func (s *PaymentService) SweepTimeouts(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.cfg.PaymentTimeout)
	txs, err := s.trx.ListStale(ctx, cutoff, 200)
	if err != nil {
		return 0, err
	}
	detail := "exceeded maximum processing time"
	swept := 0
	for _, tx := range txs {
		if tx.CreditState == models.CreditPending {
			// gateway-confirmed payment whose balance credit is still being
			// retried; timing it out would strand the credit. The poll loop
			// and callback redelivery own this row.
			continue
		}
		_, terr := s.transition(ctx, tx.CheckoutID, models.NonTerminalStatuses(), models.StatusTimeout,
			repo.TransitionUpdate{ErrorDetail: &detail})
		if errors.Is(terr, repo.ErrStaleTransition) {
			continue
		}
		if terr != nil {
			s.log.Error("sweep transition", "checkout_id", tx.CheckoutID, "err", terr)
			continue
		}
		metrics.SweptTimeouts.Inc()
		swept++
	}
	return swept, nil
}

// RecoverQueued re-submits transactions that were still queued when the
// process last stopped. In-flight rows with a pending credit are picked up
// by the poll loop without extra work here.
func (s *PaymentService) RecoverQueued(ctx context.Context) error {
	txs, err := s.trx.ListByStatus(ctx, models.StatusQueued, 500)
	if err != nil {
		return err
	}
	for _, tx := range txs {
		tx := tx
		if err := s.wp.Submit(func() { s.Dispatch(context.Background(), tx) }); err != nil {
			s.log.Warn("dispatch queue full during recovery, remaining rows stay queued", "err", err)
			break
		}
	}
	if len(txs) > 0 {
		s.log.Info("requeued transactions after restart", "count", len(txs))
	}
	return nil
}

// ----------------- queries -----------------

func (s *PaymentService) Status(ctx context.Context, checkoutID string) (models.Transaction, error) {
	tx, err := s.trx.GetByCheckoutID(ctx, checkoutID)
	if errors.Is(err, repo.ErrNotFound) {
		return models.Transaction{}, ErrNotFound
	}
	return tx, err
}

func (s *PaymentService) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]models.Transaction, error) {
	return s.trx.ListByOwner(ctx, owner, limit, offset)
}

// Cancel is itself a transition attempt gated by the same compare-and-set.
func (s *PaymentService) Cancel(ctx context.Context, checkoutID string) (models.Transaction, error) {
	if _, err := s.trx.GetByCheckoutID(ctx, checkoutID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return models.Transaction{}, ErrNotFound
		}
		return models.Transaction{}, err
	}
	tx, err := s.transition(ctx, checkoutID,
		[]models.PaymentStatus{models.StatusQueued, models.StatusProcessing, models.StatusPending}, models.StatusCancelled,
		repo.TransitionUpdate{})
	if errors.Is(err, repo.ErrStaleTransition) {
		return models.Transaction{}, ErrAlreadyFinal
	}
	return tx, err
}

// ----------------- helpers -----------------

func (s *PaymentService) transition(ctx context.Context, checkoutID string, from []models.PaymentStatus, to models.PaymentStatus, upd repo.TransitionUpdate) (models.Transaction, error) {
	tx, err := s.trx.Transition(ctx, checkoutID, from, to, upd)
	if err != nil {
		return tx, err
	}
	metrics.TransitionsTotal.WithLabelValues(string(to)).Inc()
	detail := ""
	if upd.ErrorDetail != nil {
		detail = *upd.ErrorDetail
	}
	s.auditAction(ctx, checkoutID, "status_change", fmt.Sprintf("%s: %s", to, detail))
	return tx, nil
}

func (s *PaymentService) auditAction(ctx context.Context, checkoutID, action, message string) {
	err := s.audit.Create(ctx, models.AuditLog{
		EntityType: "transaction",
		EntityID:   &checkoutID,
		Action:     action,
		Details:    map[string]any{"message": message},
	})
	if err != nil {
		s.log.Warn("audit write failed", "checkout_id", checkoutID, "err", err)
	}
}

func ignoreStale(err error) error {
	if errors.Is(err, repo.ErrStaleTransition) {
		return nil
	}
	return err
}

func orDetail(detail *string, def string) *string {
	if detail != nil && *detail != "" {
		return detail
	}
	return &def
}
