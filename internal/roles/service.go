// Package roles answers role-membership questions against the ledger's
// access control, with a short-lived local cache so hot paths do not pay a
// ledger round trip per check.
package roles

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"beeftrace/internal/ledger"
)

// cacheTTL bounds how stale a cached role check may be. Revocations
// propagate within this window.
const cacheTTL = 30 * time.Second

type cachedCheck struct {
	granted   bool
	checkedAt time.Time
}

// Service checks and administers ledger roles.
type Service struct {
	ledger ledger.Client
	log    *slog.Logger

	mu     sync.Mutex
	checks map[string]cachedCheck
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a role service.
func New(client ledger.Client, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		ledger: client,
		log:    log,
		checks: make(map[string]cachedCheck),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HasRole reports whether addr holds role, serving from the local cache
// within its TTL.
func (s *Service) HasRole(ctx context.Context, role, addr string) (bool, error) {
	key := role + "|" + addr
	s.mu.Lock()
	if c, ok := s.checks[key]; ok && s.now().Sub(c.checkedAt) < cacheTTL {
		s.mu.Unlock()
		return c.granted, nil
	}
	s.mu.Unlock()

	res, err := s.ledger.Call(ctx, ledger.EPHasRole, []string{role, addr})
	if err != nil {
		return false, fmt.Errorf("check %s for %s: %w", role, addr, err)
	}
	if len(res) != 1 {
		return false, fmt.Errorf("check %s for %s: want 1 field, got %d", role, addr, len(res))
	}
	granted := res[0] == "true"

	s.mu.Lock()
	s.checks[key] = cachedCheck{granted: granted, checkedAt: s.now()}
	s.mu.Unlock()
	return granted, nil
}

// Members lists the addresses holding a role. Always a live read; admin
// surfaces want current state, not a cached one.
func (s *Service) Members(ctx context.Context, role string) ([]string, error) {
	members, err := s.ledger.Call(ctx, ledger.EPGetRoleMembers, []string{role})
	if err != nil {
		return nil, fmt.Errorf("members of %s: %w", role, err)
	}
	return members, nil
}

// Grant assigns a role on the ledger and drops the cached check so the
// grant is visible immediately.
func (s *Service) Grant(ctx context.Context, actor, role, addr string) error {
	return s.setRole(ctx, ledger.EPGrantRole, actor, role, addr)
}

// Revoke removes a role on the ledger.
func (s *Service) Revoke(ctx context.Context, actor, role, addr string) error {
	return s.setRole(ctx, ledger.EPRevokeRole, actor, role, addr)
}

func (s *Service) setRole(ctx context.Context, entrypoint, actor, role, addr string) error {
	ref, err := s.ledger.Invoke(ctx, entrypoint, []string{actor, role, addr})
	if err != nil {
		return fmt.Errorf("%s %s for %s: %w", entrypoint, role, addr, err)
	}
	if _, err := s.ledger.WaitForTx(ctx, ref); err != nil {
		return fmt.Errorf("%s tx %s: %w", entrypoint, ref, err)
	}

	s.mu.Lock()
	delete(s.checks, role+"|"+addr)
	s.mu.Unlock()

	s.log.InfoContext(ctx, "role updated",
		"entrypoint", entrypoint,
		"role", role,
		"addr", addr,
	)
	return nil
}
