// Package payment coordinates the off-ledger payment that settles before an
// on-ledger transfer acceptance. The ordering is strict: no ledger
// acceptance is ever submitted until the gateway has settled.
package payment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"beeftrace/internal/domain"
	"beeftrace/internal/ledger"
	"beeftrace/internal/platform/metrics"
	"beeftrace/pkg/platform/sentinel"
)

// cacheView supplies mirrored subject state for pricing and payee lookup.
type cacheView interface {
	GetAnimal(ctx context.Context, id domain.EntityID) (domain.Animal, error)
	GetBatch(ctx context.Context, id domain.EntityID) (domain.Batch, error)
}

// resyncer refreshes the mirrored subject after a confirmed acceptance.
type resyncer interface {
	SyncAnimal(ctx context.Context, id domain.EntityID) error
	SyncBatch(ctx context.Context, id domain.EntityID) error
}

// Coordinator runs payment-then-accept sequences. Concurrent acceptances of
// the same subject serialize on a per-subject lock; the ledger's own
// double-accept guard is the backstop for multi-instance deployments.
type Coordinator struct {
	ledger  ledger.Client
	cache   cacheView
	gateway Gateway
	store   Store
	sync    resyncer
	log     *slog.Logger
	metrics *metrics.Metrics

	basePriceCents int64
	now            func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithMetrics attaches shared metrics.
func WithMetrics(m *metrics.Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// NewCoordinator builds a payment coordinator. basePriceCents is the price
// of one animal; a batch costs base times its member count.
func NewCoordinator(client ledger.Client, cache cacheView, gateway Gateway, store Store, resync resyncer, basePriceCents int64, log *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	c := &Coordinator{
		ledger:         client,
		cache:          cache,
		gateway:        gateway,
		store:          store,
		sync:           resync,
		log:            log,
		basePriceCents: basePriceCents,
		now:            time.Now,
		locks:          make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AcceptWithPayment settles the payment for a transferred subject and then
// accepts it on the ledger. A gateway decline aborts before any ledger
// traffic. A retry after any failure creates a fresh record; failed records
// are kept as the audit trail.
func (c *Coordinator) AcceptWithPayment(ctx context.Context, actor string, subjectType domain.SubjectType, subjectID domain.EntityID) (domain.PaymentRecord, error) {
	unlock := c.lockSubject(subjectType, subjectID)
	defer unlock()

	if rec, done, err := c.alreadyCompleted(ctx, subjectType, subjectID); err != nil {
		return domain.PaymentRecord{}, err
	} else if done {
		return rec, fmt.Errorf("%s %s already accepted: %w", subjectType, subjectID, sentinel.ErrConflict)
	}

	amount, payee, err := c.price(ctx, subjectType, subjectID)
	if err != nil {
		return domain.PaymentRecord{}, err
	}

	rec := domain.NewPaymentRecord(subjectID, subjectType, actor, payee, amount, c.now())
	if err := c.store.Create(ctx, rec); err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("create payment record: %w", err)
	}

	gatewayRef, err := c.gateway.Charge(ctx, actor, payee, amount)
	if err != nil {
		rec = c.fail(ctx, rec, fmt.Sprintf("gateway: %v", err))
		return rec, fmt.Errorf("charge for %s %s: %w", subjectType, subjectID, err)
	}

	rec.Status = domain.PaymentProcessing
	rec.GatewayRef = gatewayRef
	rec.UpdatedAt = c.now()
	if err := c.store.Update(ctx, rec); err != nil {
		return rec, fmt.Errorf("record gateway settlement: %w", err)
	}

	ref, err := c.ledger.Invoke(ctx, ledger.EPAcceptTransfer, []string{actor, string(subjectType), subjectID.String()})
	if err != nil {
		// The payment settled but the acceptance did not. There is no
		// automatic refund path; the failed record with a gateway ref
		// is what operators reconcile from.
		rec = c.fail(ctx, rec, fmt.Sprintf("ledger: %v", err))
		c.log.ErrorContext(ctx, "payment settled but acceptance failed",
			"subject_type", subjectType,
			"subject_id", subjectID,
			"gateway_ref", gatewayRef,
			"error", err,
		)
		return rec, fmt.Errorf("accept %s %s: %w", subjectType, subjectID, err)
	}
	receipt, err := c.ledger.WaitForTx(ctx, ref)
	if err != nil {
		rec = c.fail(ctx, rec, fmt.Sprintf("ledger finality: %v", err))
		return rec, fmt.Errorf("accept %s %s tx %s: %w", subjectType, subjectID, ref, err)
	}

	rec.Status = domain.PaymentCompleted
	rec.LedgerTxRef = string(receipt.TxRef)
	rec.UpdatedAt = c.now()
	if err := c.store.Update(ctx, rec); err != nil {
		return rec, fmt.Errorf("record completion: %w", err)
	}
	c.count(domain.PaymentCompleted)

	c.refresh(ctx, subjectType, subjectID)
	c.log.InfoContext(ctx, "transfer accepted with payment",
		"subject_type", subjectType,
		"subject_id", subjectID,
		"amount_cents", amount,
		"ledger_tx", receipt.TxRef,
	)
	return rec, nil
}

// History returns a subject's payment records, newest first.
func (c *Coordinator) History(ctx context.Context, subjectType domain.SubjectType, subjectID domain.EntityID) ([]domain.PaymentRecord, error) {
	return c.store.ListBySubject(ctx, subjectType, subjectID)
}

func (c *Coordinator) alreadyCompleted(ctx context.Context, subjectType domain.SubjectType, subjectID domain.EntityID) (domain.PaymentRecord, bool, error) {
	records, err := c.store.ListBySubject(ctx, subjectType, subjectID)
	if err != nil {
		return domain.PaymentRecord{}, false, fmt.Errorf("payment history: %w", err)
	}
	for _, rec := range records {
		if rec.Status == domain.PaymentCompleted {
			return rec, true, nil
		}
	}
	return domain.PaymentRecord{}, false, nil
}

// price computes the acceptance amount and finds who gets paid. Batch price
// scales with member count.
func (c *Coordinator) price(ctx context.Context, subjectType domain.SubjectType, subjectID domain.EntityID) (int64, string, error) {
	switch subjectType {
	case domain.SubjectAnimal:
		a, err := c.cache.GetAnimal(ctx, subjectID)
		if err != nil {
			return 0, "", fmt.Errorf("price animal %s: %w", subjectID, err)
		}
		return c.basePriceCents, a.OwnerAddr, nil
	case domain.SubjectBatch:
		b, err := c.cache.GetBatch(ctx, subjectID)
		if err != nil {
			return 0, "", fmt.Errorf("price batch %s: %w", subjectID, err)
		}
		if len(b.AnimalIDs) == 0 {
			return 0, "", fmt.Errorf("price batch %s: no animals: %w", subjectID, sentinel.ErrInvalidState)
		}
		return c.basePriceCents * int64(len(b.AnimalIDs)), b.OwnerAddr, nil
	}
	return 0, "", fmt.Errorf("subject type %q cannot be accepted: %w", subjectType, sentinel.ErrInvalidState)
}

func (c *Coordinator) fail(ctx context.Context, rec domain.PaymentRecord, reason string) domain.PaymentRecord {
	rec.Status = domain.PaymentFailed
	rec.FailReason = reason
	rec.UpdatedAt = c.now()
	if err := c.store.Update(ctx, rec); err != nil {
		c.log.ErrorContext(ctx, "failed to record payment failure",
			"payment_id", rec.ID,
			"error", err,
		)
	}
	c.count(domain.PaymentFailed)
	return rec
}

func (c *Coordinator) refresh(ctx context.Context, subjectType domain.SubjectType, subjectID domain.EntityID) {
	var err error
	switch subjectType {
	case domain.SubjectAnimal:
		err = c.sync.SyncAnimal(ctx, subjectID)
	case domain.SubjectBatch:
		err = c.sync.SyncBatch(ctx, subjectID)
	}
	if err != nil {
		c.log.WarnContext(ctx, "post-acceptance refresh failed",
			"subject_type", subjectType,
			"subject_id", subjectID,
			"error", err,
		)
	}
}

func (c *Coordinator) lockSubject(subjectType domain.SubjectType, subjectID domain.EntityID) func() {
	key := string(subjectType) + "|" + subjectID.String()
	c.mu.Lock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	c.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (c *Coordinator) count(status domain.PaymentStatus) {
	if c.metrics != nil {
		c.metrics.PaymentsTotal.WithLabelValues(string(status)).Inc()
	}
}
