// Package syncer walks the ledger's id space and mirrors every entity into
// the cache. Entity ids are allocated sequentially on-ledger, so the
// system's entity counters double as sync watermarks.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"beeftrace/internal/cache"
	"beeftrace/internal/domain"
	"beeftrace/internal/ledger"
	"beeftrace/internal/platform/metrics"
)

// ErrSyncInProgress is returned when a full sync is requested while one is
// already running.
var ErrSyncInProgress = errors.New("sync already in progress")

// Sink receives mirrored entity pages. Satisfied by *cache.Store.
type Sink interface {
	BulkUpsert(ctx context.Context, entityType string, data map[string]json.RawMessage) error
}

// Watermark is the ledger's entity counters at the start of a run.
type Watermark struct {
	Animals uint64
	Batches uint64
	Cuts    uint64
	Tokens  uint64
}

// Report summarizes a full sync run.
type Report struct {
	Watermark Watermark
	Animals   int
	Batches   int
	Roles     int
	Failures  int
	Duration  time.Duration
}

// Engine drives the ledger-to-cache mirror.
type Engine struct {
	ledger  ledger.Client
	sink    Sink
	log     *slog.Logger
	metrics *metrics.Metrics

	chunkSize  int
	chunkPause time.Duration
	pace       Pacer

	mu      sync.Mutex
	running bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithPacer replaces the between-chunk pacer.
func WithPacer(p Pacer) Option {
	return func(e *Engine) {
		if p != nil {
			e.pace = p
		}
	}
}

// WithMetrics attaches shared metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New builds a sync engine.
func New(client ledger.Client, sink Sink, chunkSize int, chunkPause time.Duration, log *slog.Logger, opts ...Option) *Engine {
	if chunkSize <= 0 {
		chunkSize = 10
	}
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		ledger:     client,
		sink:       sink,
		log:        log,
		chunkSize:  chunkSize,
		chunkPause: chunkPause,
		pace:       DefaultPacer,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Running reports whether a full sync is in flight.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// FullSync mirrors every animal, batch, and role from the ledger. Individual
// entity failures are counted and skipped; an unreachable ledger aborts the
// run. At most one full sync runs at a time.
func (e *Engine) FullSync(ctx context.Context) (Report, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return Report{}, ErrSyncInProgress
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	start := time.Now()
	wm, err := e.watermark(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("read sync watermark: %w", err)
	}
	report := Report{Watermark: wm}

	e.log.InfoContext(ctx, "full sync started",
		"animals", wm.Animals,
		"batches", wm.Batches,
	)

	if err := e.syncRange(ctx, cache.TypeAnimals, wm.Animals, &report); err != nil {
		return report, err
	}
	if err := e.syncRange(ctx, cache.TypeBatches, wm.Batches, &report); err != nil {
		return report, err
	}
	if err := e.syncRoles(ctx, &report); err != nil {
		return report, err
	}

	report.Duration = time.Since(start)
	e.log.InfoContext(ctx, "full sync finished",
		"animals", report.Animals,
		"batches", report.Batches,
		"roles", report.Roles,
		"failures", report.Failures,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

// SyncAnimal mirrors a single animal. Fetching then upserting the same id is
// idempotent, so callers fire it after every confirmed write.
func (e *Engine) SyncAnimal(ctx context.Context, id domain.EntityID) error {
	payload, err := e.fetch(ctx, cache.TypeAnimals, id.String())
	if err != nil {
		return err
	}
	return e.upsert(ctx, cache.TypeAnimals, map[string]json.RawMessage{id.String(): payload})
}

// SyncBatch mirrors a single batch.
func (e *Engine) SyncBatch(ctx context.Context, id domain.EntityID) error {
	payload, err := e.fetch(ctx, cache.TypeBatches, id.String())
	if err != nil {
		return err
	}
	return e.upsert(ctx, cache.TypeBatches, map[string]json.RawMessage{id.String(): payload})
}

// SyncAnimals mirrors a set of animals in one page. Per-animal failures are
// counted and skipped so one bad member cannot block the rest of the page;
// an unreachable ledger aborts.
func (e *Engine) SyncAnimals(ctx context.Context, ids []domain.EntityID) error {
	page := make(map[string]json.RawMessage, len(ids))
	for _, id := range ids {
		payload, err := e.fetch(ctx, cache.TypeAnimals, id.String())
		if errors.Is(err, ledger.ErrUnreachable) {
			return err
		}
		if err != nil {
			e.countError()
			e.log.WarnContext(ctx, "animal sync failed",
				"id", id,
				"error", err,
			)
			continue
		}
		page[id.String()] = payload
	}
	if len(page) == 0 {
		return nil
	}
	return e.upsert(ctx, cache.TypeAnimals, page)
}

func (e *Engine) watermark(ctx context.Context) (Watermark, error) {
	tuple, err := e.ledger.Call(ctx, ledger.EPGetSystemStats, nil)
	if err != nil {
		return Watermark{}, err
	}
	if len(tuple) != 4 {
		return Watermark{}, fmt.Errorf("system stats: want 4 fields, got %d", len(tuple))
	}
	fields := make([]uint64, 4)
	for i, raw := range tuple {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return Watermark{}, fmt.Errorf("system stats field %d: %w", i, err)
		}
		fields[i] = v
	}
	return Watermark{Animals: fields[0], Batches: fields[1], Cuts: fields[2], Tokens: fields[3]}, nil
}

// syncRange walks ids 1..max in chunks. Entities inside a chunk are fetched
// concurrently; chunks are written and paced sequentially.
func (e *Engine) syncRange(ctx context.Context, entityType string, max uint64, report *Report) error {
	for lo := uint64(1); lo <= max; lo += uint64(e.chunkSize) {
		hi := lo + uint64(e.chunkSize) - 1
		if hi > max {
			hi = max
		}

		type fetched struct {
			id      string
			payload json.RawMessage
		}
		results := make([]fetched, hi-lo+1)
		var failures atomic.Int64

		g, gctx := errgroup.WithContext(ctx)
		for i := range results {
			id := strconv.FormatUint(lo+uint64(i), 10)
			slot := &results[i]
			g.Go(func() error {
				payload, err := e.fetch(gctx, entityType, id)
				if errors.Is(err, ledger.ErrUnreachable) {
					return err
				}
				if err != nil {
					// Gap in the id space or a malformed tuple.
					// Skip it and keep the run alive.
					e.countError()
					e.log.WarnContext(gctx, "entity sync failed",
						"entity_type", entityType,
						"id", id,
						"error", err,
					)
					failures.Add(1)
					return nil
				}
				slot.id = id
				slot.payload = payload
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("sync %s chunk %d-%d: %w", entityType, lo, hi, err)
		}
		report.Failures += int(failures.Load())

		page := make(map[string]json.RawMessage, len(results))
		for _, r := range results {
			if r.id != "" {
				page[r.id] = r.payload
			}
		}
		if len(page) > 0 {
			if err := e.upsert(ctx, entityType, page); err != nil {
				return fmt.Errorf("sync %s chunk %d-%d: %w", entityType, lo, hi, err)
			}
			switch entityType {
			case cache.TypeAnimals:
				report.Animals += len(page)
			case cache.TypeBatches:
				report.Batches += len(page)
			}
		}

		if hi < max {
			if err := e.pace(ctx, e.chunkPause); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) syncRoles(ctx context.Context, report *Report) error {
	roles := []string{
		ledger.RoleProducer,
		ledger.RoleProcessor,
		ledger.RoleCertifier,
		ledger.RoleExporter,
		ledger.RoleVet,
		ledger.RoleAdmin,
	}
	page := make(map[string]json.RawMessage, len(roles))
	for _, role := range roles {
		members, err := e.ledger.Call(ctx, ledger.EPGetRoleMembers, []string{role})
		if errors.Is(err, ledger.ErrUnreachable) {
			return fmt.Errorf("sync roles: %w", err)
		}
		if err != nil {
			e.countError()
			report.Failures++
			continue
		}
		if members == nil {
			members = []string{}
		}
		payload, err := json.Marshal(struct {
			Role    string   `json:"role"`
			Members []string `json:"members"`
		}{Role: role, Members: members})
		if err != nil {
			return fmt.Errorf("encode role %s: %w", role, err)
		}
		page[role] = payload
	}
	if len(page) == 0 {
		return nil
	}
	if err := e.upsert(ctx, cache.TypeRoles, page); err != nil {
		return fmt.Errorf("sync roles: %w", err)
	}
	report.Roles = len(page)
	return nil
}

// fetch reads one entity and normalizes its tuple to the mirror's JSON
// shape. Normalization is deterministic: the same tuple always produces the
// same payload.
func (e *Engine) fetch(ctx context.Context, entityType, id string) (json.RawMessage, error) {
	switch entityType {
	case cache.TypeAnimals:
		tuple, err := e.ledger.Call(ctx, ledger.EPGetAnimal, []string{id})
		if err != nil {
			return nil, err
		}
		a, err := domain.ParseAnimal(tuple)
		if err != nil {
			return nil, fmt.Errorf("animal %s: %w", id, err)
		}
		return json.Marshal(a)
	case cache.TypeBatches:
		tuple, err := e.ledger.Call(ctx, ledger.EPGetBatch, []string{id})
		if err != nil {
			return nil, err
		}
		b, err := domain.ParseBatch(tuple)
		if err != nil {
			return nil, fmt.Errorf("batch %s: %w", id, err)
		}
		return json.Marshal(b)
	}
	return nil, fmt.Errorf("unsyncable entity type %q", entityType)
}

func (e *Engine) upsert(ctx context.Context, entityType string, page map[string]json.RawMessage) error {
	if err := e.sink.BulkUpsert(ctx, entityType, page); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.EntitiesSynced.WithLabelValues(entityType).Add(float64(len(page)))
	}
	return nil
}

func (e *Engine) countError() {
	if e.metrics != nil {
		e.metrics.SyncErrors.Inc()
	}
}
