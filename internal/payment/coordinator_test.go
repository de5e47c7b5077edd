package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"beeftrace/internal/domain"
	"beeftrace/internal/ledger"
	"beeftrace/pkg/platform/sentinel"
)

const (
	producer  = "0xranch"
	processor = "0xplant"
)

// staticCache serves fixed mirror state.
type staticCache struct {
	animals map[domain.EntityID]domain.Animal
	batches map[domain.EntityID]domain.Batch
}

func (s *staticCache) GetAnimal(ctx context.Context, id domain.EntityID) (domain.Animal, error) {
	a, ok := s.animals[id]
	if !ok {
		return domain.Animal{}, sentinel.ErrNotFound
	}
	return a, nil
}

func (s *staticCache) GetBatch(ctx context.Context, id domain.EntityID) (domain.Batch, error) {
	b, ok := s.batches[id]
	if !ok {
		return domain.Batch{}, sentinel.ErrNotFound
	}
	return b, nil
}

type noopSync struct{}

func (noopSync) SyncAnimal(ctx context.Context, id domain.EntityID) error { return nil }
func (noopSync) SyncBatch(ctx context.Context, id domain.EntityID) error  { return nil }

// countingLedger counts invokes to prove gateway declines never reach the
// ledger.
type countingLedger struct {
	*ledger.Memory
	mu      sync.Mutex
	invokes int
}

func (c *countingLedger) Invoke(ctx context.Context, entrypoint string, args []string) (ledger.TxRef, error) {
	c.mu.Lock()
	c.invokes++
	c.mu.Unlock()
	return c.Memory.Invoke(ctx, entrypoint, args)
}

func (c *countingLedger) invoked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invokes
}

// harness seeds a transferred three-animal batch awaiting acceptance.
func harness(t *testing.T, gatewayOpts ...SimOption) (*countingLedger, *Coordinator, domain.EntityID) {
	t.Helper()

	mem := ledger.NewMemory("0xadmin")
	batch := domain.Batch{
		ID:            7,
		OwnerAddr:     producer,
		ProcessorAddr: processor,
		State:         domain.BatchTransferred,
		AnimalIDs:     []domain.EntityID{1, 2, 3},
	}
	mem.PutBatch(batch)
	for _, id := range batch.AnimalIDs {
		mem.PutAnimal(domain.Animal{ID: id, OwnerAddr: producer, ProcessorAddr: processor, BatchID: 7})
	}

	cl := &countingLedger{Memory: mem}
	cache := &staticCache{
		animals: map[domain.EntityID]domain.Animal{
			1: {ID: 1, OwnerAddr: producer, ProcessorAddr: processor, BatchID: 7},
		},
		batches: map[domain.EntityID]domain.Batch{7: batch},
	}
	gw := NewSimulatedGateway(0, gatewayOpts...)
	coord := NewCoordinator(cl, cache, gw, NewMemoryStore(), noopSync{}, 50000, nil)
	return cl, coord, batch.ID
}

func TestAcceptWithPaymentHappyPath(t *testing.T) {
	_, coord, batchID := harness(t)

	rec, err := coord.AcceptWithPayment(context.Background(), processor, domain.SubjectBatch, batchID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentCompleted, rec.Status)
	// Three animals at the 50000 base price.
	require.EqualValues(t, 150000, rec.AmountCents)
	require.Equal(t, processor, rec.Payer)
	require.Equal(t, producer, rec.Payee)
	require.NotEmpty(t, rec.GatewayRef)
	require.NotEmpty(t, rec.LedgerTxRef)
}

func TestGatewayDeclineNeverReachesLedger(t *testing.T) {
	cl, coord, batchID := harness(t, WithFailureRate(1.0), WithSeed(1))

	rec, err := coord.AcceptWithPayment(context.Background(), processor, domain.SubjectBatch, batchID)
	require.ErrorIs(t, err, ErrGatewayDeclined)
	require.Equal(t, domain.PaymentFailed, rec.Status)
	require.Contains(t, rec.FailReason, "gateway")
	require.Zero(t, cl.invoked())
}

func TestRetryAfterDeclineCreatesFreshRecord(t *testing.T) {
	cl, coord, batchID := harness(t, WithFailureRate(1.0), WithSeed(1))
	ctx := context.Background()

	first, err := coord.AcceptWithPayment(ctx, processor, domain.SubjectBatch, batchID)
	require.ErrorIs(t, err, ErrGatewayDeclined)

	// Gateway recovers.
	gw := coord.gateway.(*SimulatedGateway)
	gw.failureRate = 0

	second, err := coord.AcceptWithPayment(ctx, processor, domain.SubjectBatch, batchID)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, domain.PaymentCompleted, second.Status)

	history, err := coord.History(ctx, domain.SubjectBatch, batchID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, 1, cl.invoked())
}

func TestDoubleAcceptRejectedLocally(t *testing.T) {
	cl, coord, batchID := harness(t)
	ctx := context.Background()

	_, err := coord.AcceptWithPayment(ctx, processor, domain.SubjectBatch, batchID)
	require.NoError(t, err)
	after := cl.invoked()

	_, err = coord.AcceptWithPayment(ctx, processor, domain.SubjectBatch, batchID)
	require.ErrorIs(t, err, sentinel.ErrConflict)
	require.Equal(t, after, cl.invoked())
}

func TestLedgerRejectionRecordsSettledPayment(t *testing.T) {
	_, coord, batchID := harness(t)
	ctx := context.Background()

	// Wrong actor: the gateway settles, then the ledger refuses.
	rec, err := coord.AcceptWithPayment(ctx, "0ximpostor", domain.SubjectBatch, batchID)
	require.ErrorIs(t, err, ledger.ErrRejected)
	require.Equal(t, domain.PaymentFailed, rec.Status)
	require.NotEmpty(t, rec.GatewayRef)
	require.Contains(t, rec.FailReason, "ledger")
}

func TestAcceptAnimalUsesBasePrice(t *testing.T) {
	_, coord, _ := harness(t)

	rec, err := coord.AcceptWithPayment(context.Background(), processor, domain.SubjectAnimal, 1)
	require.NoError(t, err)
	require.EqualValues(t, 50000, rec.AmountCents)
}

func TestConcurrentAcceptsSettleOnce(t *testing.T) {
	_, coord, batchID := harness(t)
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = coord.AcceptWithPayment(ctx, processor, domain.SubjectBatch, batchID)
		}(i)
	}
	wg.Wait()

	var completed int
	for _, err := range errs {
		if err == nil {
			completed++
		} else {
			require.ErrorIs(t, err, sentinel.ErrConflict)
		}
	}
	require.Equal(t, 1, completed)
}

func TestHistoryNewestFirst(t *testing.T) {
	_, coord, batchID := harness(t, WithFailureRate(1.0), WithSeed(1))
	ctx := context.Background()

	base := time.Unix(1700000000, 0)
	tick := 0
	coord.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	_, _ = coord.AcceptWithPayment(ctx, processor, domain.SubjectBatch, batchID)
	coord.gateway.(*SimulatedGateway).failureRate = 0
	_, err := coord.AcceptWithPayment(ctx, processor, domain.SubjectBatch, batchID)
	require.NoError(t, err)

	history, err := coord.History(ctx, domain.SubjectBatch, batchID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, domain.PaymentCompleted, history[0].Status)
	require.Equal(t, domain.PaymentFailed, history[1].Status)
}
