// Package aggregate computes batch and processor rollups from mirrored
// state. Rollups never fail on missing weights; they degrade through
// declared and estimated bases and say which basis they used.
package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"beeftrace/internal/domain"
	"beeftrace/internal/ledger"
	"beeftrace/internal/reconcile"
	"beeftrace/pkg/platform/sentinel"
)

// WeightBasis says how trustworthy a batch weight is.
type WeightBasis string

const (
	// BasisMeasured means every member animal carried a measured weight.
	BasisMeasured WeightBasis = "measured"
	// BasisMeasuredPartial means at least one member was measured; the
	// total is the sum of the measured members only.
	BasisMeasuredPartial WeightBasis = "measured-partial"
	// BasisDeclared means no member was measured and the batch record's
	// declared total was used.
	BasisDeclared WeightBasis = "declared"
	// BasisEstimated means nothing was measured or declared; the total is
	// member count times the default carcass weight.
	BasisEstimated WeightBasis = "estimated"
)

// DefaultWeightGrams is the reconciliation default, reused for estimates.
const DefaultWeightGrams = reconcile.DefaultWeightGrams

// BatchWeight is a batch weight rollup.
type BatchWeight struct {
	BatchID  domain.EntityID `json:"batch_id"`
	Grams    domain.Grams    `json:"grams"`
	Basis    WeightBasis     `json:"basis"`
	Measured int             `json:"measured"`
	Members  int             `json:"members"`
}

// BatchCounts is a batch membership rollup.
type BatchCounts struct {
	BatchID   domain.EntityID `json:"batch_id"`
	Total     int             `json:"total"`
	Processed int             `json:"processed"`
}

// ProcessorStats rolls up everything assigned to one processor wallet.
type ProcessorStats struct {
	ProcessorAddr string       `json:"processor_addr"`
	Batches       int          `json:"batches"`
	TotalGrams    domain.Grams `json:"total_grams"`
	TotalAnimals  int          `json:"total_animals"`
	Processed     int          `json:"processed"`
}

// reader is the slice of the cache store rollups read from. The raw Get is
// what the weight resolver digs into for embedded batch snapshots.
type reader interface {
	GetBatch(ctx context.Context, id domain.EntityID) (domain.Batch, error)
	GetAnimal(ctx context.Context, id domain.EntityID) (domain.Animal, error)
	Get(ctx context.Context, entityType, id string) (json.RawMessage, error)
}

// Engine computes rollups from mirrored state, resolving member weights
// through the reconciliation ladder so a mirror row that lost its weight
// still counts as measured when another projection carries one.
type Engine struct {
	cache   reader
	ledger  ledger.Client
	resolve *reconcile.Resolver
	log     *slog.Logger
}

// New builds an aggregation engine.
func New(cache reader, client ledger.Client, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cache:   cache,
		ledger:  client,
		resolve: reconcile.NewResolver(cache, client, log),
		log:     log,
	}
}

// BatchWeight computes a batch's total weight. Each member's weight goes
// through the resolver; only members whose resolution defaulted count as
// unmeasured.
func (e *Engine) BatchWeight(ctx context.Context, batchID domain.EntityID) (BatchWeight, error) {
	batch, err := e.cache.GetBatch(ctx, batchID)
	if err != nil {
		return BatchWeight{}, fmt.Errorf("batch %s: %w", batchID, err)
	}

	members := reconcile.DedupeByID(batch.AnimalIDs, func(id domain.EntityID) domain.EntityID { return id })
	out := BatchWeight{BatchID: batchID, Members: len(members)}
	var sum domain.Grams
	for _, id := range members {
		res := e.resolve.ResolveWeight(ctx, id, batchID)
		if res.Source != reconcile.WeightDefaulted {
			sum += res.Grams
			out.Measured++
		}
	}

	switch {
	case out.Members > 0 && out.Measured == out.Members:
		out.Grams = sum
		out.Basis = BasisMeasured
	case out.Measured > 0:
		out.Grams = sum
		out.Basis = BasisMeasuredPartial
	case batch.TotalWeightGrams > 0:
		out.Grams = batch.TotalWeightGrams
		out.Basis = BasisDeclared
	default:
		out.Grams = domain.Grams(out.Members) * DefaultWeightGrams
		out.Basis = BasisEstimated
	}
	return out, nil
}

// BatchCounts reports how many of a batch's members have been processed.
func (e *Engine) BatchCounts(ctx context.Context, batchID domain.EntityID) (BatchCounts, error) {
	batch, err := e.cache.GetBatch(ctx, batchID)
	if err != nil {
		return BatchCounts{}, fmt.Errorf("batch %s: %w", batchID, err)
	}
	members := reconcile.DedupeByID(batch.AnimalIDs, func(id domain.EntityID) domain.EntityID { return id })
	out := BatchCounts{BatchID: batchID, Total: len(members)}
	for _, id := range members {
		a, err := e.cache.GetAnimal(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return BatchCounts{}, fmt.Errorf("batch %s member %s: %w", batchID, id, err)
		}
		if a.State >= domain.AnimalProcessed {
			out.Processed++
		}
	}
	return out, nil
}

// ProcessorStats rolls up every batch assigned to a processor. Batches that
// have not reached the mirror yet are skipped, not failed.
func (e *Engine) ProcessorStats(ctx context.Context, processorAddr string) (ProcessorStats, error) {
	ids, err := e.ledger.Call(ctx, ledger.EPGetBatchesByProcessor, []string{processorAddr})
	if err != nil {
		return ProcessorStats{}, fmt.Errorf("batches for %s: %w", processorAddr, err)
	}

	out := ProcessorStats{ProcessorAddr: processorAddr}
	for _, raw := range ids {
		id, err := domain.ParseEntityID(raw)
		if err != nil {
			return ProcessorStats{}, fmt.Errorf("batch id %q: %w", raw, err)
		}
		weight, err := e.BatchWeight(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			e.log.WarnContext(ctx, "batch missing from mirror, skipped in rollup",
				"batch_id", id,
				"processor_addr", processorAddr,
			)
			continue
		}
		if err != nil {
			return ProcessorStats{}, err
		}
		counts, err := e.BatchCounts(ctx, id)
		if err != nil {
			return ProcessorStats{}, err
		}
		out.Batches++
		out.TotalGrams += weight.Grams
		out.TotalAnimals += counts.Total
		out.Processed += counts.Processed
	}
	return out, nil
}
