package payment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrGatewayDeclined marks a payment the gateway refused. The acceptance
// never reaches the ledger in that case.
var ErrGatewayDeclined = errors.New("payment gateway declined")

// Gateway settles the off-ledger payment that precedes an on-ledger
// acceptance.
type Gateway interface {
	Charge(ctx context.Context, payer, payee string, amountCents int64) (string, error)
}

// SimulatedGateway stands in for the real payment provider. It settles
// after a bounded latency and can be configured with a failure rate for
// resilience testing.
type SimulatedGateway struct {
	latency     time.Duration
	failureRate float64

	mu   sync.Mutex
	rand *rand.Rand

	sleep func(ctx context.Context, d time.Duration) error
}

// SimOption configures a SimulatedGateway.
type SimOption func(*SimulatedGateway)

// WithFailureRate makes the given fraction of charges fail, for tests and
// chaos runs. 1.0 declines everything.
func WithFailureRate(rate float64) SimOption {
	return func(g *SimulatedGateway) { g.failureRate = rate }
}

// WithSeed fixes the failure sequence.
func WithSeed(seed int64) SimOption {
	return func(g *SimulatedGateway) { g.rand = rand.New(rand.NewSource(seed)) }
}

// NewSimulatedGateway builds a gateway that settles after latency.
func NewSimulatedGateway(latency time.Duration, opts ...SimOption) *SimulatedGateway {
	g := &SimulatedGateway{
		latency: latency,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep: func(ctx context.Context, d time.Duration) error {
			if d <= 0 {
				return nil
			}
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *SimulatedGateway) Charge(ctx context.Context, payer, payee string, amountCents int64) (string, error) {
	if amountCents <= 0 {
		return "", fmt.Errorf("%w: non-positive amount %d", ErrGatewayDeclined, amountCents)
	}
	if err := g.sleep(ctx, g.latency); err != nil {
		return "", err
	}

	g.mu.Lock()
	declined := g.failureRate > 0 && g.rand.Float64() < g.failureRate
	g.mu.Unlock()
	if declined {
		return "", fmt.Errorf("%w: insufficient funds", ErrGatewayDeclined)
	}
	return "chpy_" + uuid.NewString(), nil
}
