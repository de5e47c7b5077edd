package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"beeftrace/internal/domain"
	"beeftrace/internal/platform/metrics"
	"beeftrace/pkg/platform/circuit"
	"beeftrace/pkg/platform/sentinel"
)

// Store is the read path used by everything that prefers cached state over a
// live ledger call. It layers an in-process TTL cache over the remote mirror
// and degrades to local-only reads while the mirror is in its cooldown.
type Store struct {
	local   *ttlCache
	remote  Remote
	breaker *circuit.Breaker
	log     *slog.Logger
	metrics *metrics.Metrics
}

// StoreOption configures a Store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	now     func() time.Time
	metrics *metrics.Metrics
}

// WithStoreClock injects a clock for tests.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(c *storeConfig) { c.now = now }
}

// WithStoreMetrics attaches shared metrics.
func WithStoreMetrics(m *metrics.Metrics) StoreOption {
	return func(c *storeConfig) { c.metrics = m }
}

// NewStore builds a two-layer cache store. A single mirror fault opens the
// cooldown; HealthCheck closes it again.
func NewStore(remote Remote, ttl, cooldown time.Duration, log *slog.Logger, opts ...StoreOption) *Store {
	cfg := storeConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		local:   newTTLCache(ttl, cfg.now),
		remote:  remote,
		breaker: circuit.New(1, cooldown, circuit.WithClock(cfg.now)),
		log:     log,
		metrics: cfg.metrics,
	}
}

// Available reports whether the remote mirror is currently usable.
func (s *Store) Available() bool {
	return !s.breaker.IsOpen()
}

// Get returns one entity payload, serving from the local layer when fresh.
func (s *Store) Get(ctx context.Context, entityType, id string) (json.RawMessage, error) {
	key := entityType + "/" + id
	if payload, ok := s.local.get(key); ok {
		s.countHit()
		return payload, nil
	}
	s.countMiss()

	if !s.breaker.Allow() {
		return nil, fmt.Errorf("mirror in cooldown: %w", sentinel.ErrUnavailable)
	}
	payload, err := s.remote.Get(ctx, entityType, id)
	if err != nil {
		return nil, s.remoteFailure(entityType, err)
	}
	s.remoteSuccess()
	s.local.set(key, payload)
	return payload, nil
}

// GetMany returns the payloads for ids that exist, keyed by id. Missing ids
// are skipped rather than failing the whole read.
func (s *Store) GetMany(ctx context.Context, entityType string, ids []string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(ids))
	for _, id := range ids {
		payload, err := s.Get(ctx, entityType, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = payload
	}
	return out, nil
}

// List returns every entity of a type from the mirror, backfilling the local
// layer. Lists are never served local-only; during cooldown they fail fast.
func (s *Store) List(ctx context.Context, entityType string) (map[string]json.RawMessage, error) {
	if !s.breaker.Allow() {
		return nil, fmt.Errorf("mirror in cooldown: %w", sentinel.ErrUnavailable)
	}
	entities, err := s.remote.List(ctx, entityType)
	if err != nil {
		return nil, s.remoteFailure(entityType, err)
	}
	s.remoteSuccess()
	for id, payload := range entities {
		s.local.set(entityType+"/"+id, payload)
	}
	return entities, nil
}

// ListByOwner returns a wallet's entities of a type.
func (s *Store) ListByOwner(ctx context.Context, entityType, ownerAddr string) (map[string]json.RawMessage, error) {
	if !s.breaker.Allow() {
		return nil, fmt.Errorf("mirror in cooldown: %w", sentinel.ErrUnavailable)
	}
	entities, err := s.remote.ListByOwner(ctx, entityType, ownerAddr)
	if err != nil {
		return nil, s.remoteFailure(entityType, err)
	}
	s.remoteSuccess()
	for id, payload := range entities {
		s.local.set(entityType+"/"+id, payload)
	}
	return entities, nil
}

// BulkUpsert writes a page of entities to the mirror. The local layer is
// cleared wholesale so no stale pre-upsert entry can outlive the write.
func (s *Store) BulkUpsert(ctx context.Context, entityType string, data map[string]json.RawMessage) error {
	if !s.breaker.Allow() {
		return fmt.Errorf("mirror in cooldown: %w", sentinel.ErrUnavailable)
	}
	if err := s.remote.BulkUpsert(ctx, entityType, data); err != nil {
		return s.remoteFailure(entityType, err)
	}
	s.remoteSuccess()
	s.local.clear()
	return nil
}

// Invalidate drops the local layer. Callers use it after a confirmed ledger
// write so the next read cannot observe the pre-write state.
func (s *Store) Invalidate() {
	s.local.clear()
}

// HealthCheck probes the mirror and ends the cooldown on success.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.remote.Health(ctx); err != nil {
		return s.remoteFailure("health", err)
	}
	s.remoteSuccess()
	return nil
}

// GetAnimal is Get plus decoding for the animals keyspace.
func (s *Store) GetAnimal(ctx context.Context, id domain.EntityID) (domain.Animal, error) {
	payload, err := s.Get(ctx, TypeAnimals, id.String())
	if err != nil {
		return domain.Animal{}, err
	}
	var a domain.Animal
	if err := json.Unmarshal(payload, &a); err != nil {
		return domain.Animal{}, fmt.Errorf("decode cached animal %s: %w", id, err)
	}
	return a, nil
}

// GetBatch is Get plus decoding for the batches keyspace.
func (s *Store) GetBatch(ctx context.Context, id domain.EntityID) (domain.Batch, error) {
	payload, err := s.Get(ctx, TypeBatches, id.String())
	if err != nil {
		return domain.Batch{}, err
	}
	var b domain.Batch
	if err := json.Unmarshal(payload, &b); err != nil {
		return domain.Batch{}, fmt.Errorf("decode cached batch %s: %w", id, err)
	}
	return b, nil
}

// remoteFailure classifies a mirror error. Server faults and persistent
// transient failures open the cooldown; not-found and client errors pass
// through untouched.
func (s *Store) remoteFailure(entityType string, err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	var fault *errServerFault
	var transient *errTransient
	switch {
	case errors.As(err, &fault):
		s.breaker.Trip()
	case errors.As(err, &transient):
		s.breaker.RecordFailure()
	default:
		return err
	}
	s.setDegradedGauge(1)
	s.log.Warn("cache mirror degraded, entering cooldown",
		"entity_type", entityType,
		"error", err)
	return fmt.Errorf("mirror unavailable: %w", errors.Join(sentinel.ErrUnavailable, err))
}

func (s *Store) remoteSuccess() {
	s.breaker.RecordSuccess()
	s.setDegradedGauge(0)
}

func (s *Store) countHit() {
	if s.metrics != nil {
		s.metrics.CacheLocalHits.Inc()
	}
}

func (s *Store) countMiss() {
	if s.metrics != nil {
		s.metrics.CacheLocalMisses.Inc()
	}
}

func (s *Store) setDegradedGauge(v float64) {
	if s.metrics != nil {
		s.metrics.CacheDegraded.Set(v)
	}
}
