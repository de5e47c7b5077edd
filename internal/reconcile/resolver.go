// Package reconcile repairs the gaps a partially-synced mirror leaves
// behind: duplicate rows from overlapping sync runs and weight fields that
// are present in one projection of an animal and missing in another.
package reconcile

import (
	"context"
	"encoding/json"
	"log/slog"

	"beeftrace/internal/cache"
	"beeftrace/internal/domain"
	"beeftrace/internal/ledger"
)

// DefaultWeightGrams is the declared carcass weight used when no projection
// of an animal carries a measured one.
const DefaultWeightGrams = domain.Grams(250000)

// WeightSource records which projection supplied a resolved weight, ordered
// from most to least trustworthy.
type WeightSource string

const (
	WeightFromCache       WeightSource = "cache"
	WeightFromBatchRecord WeightSource = "batch_record"
	WeightFromLedger      WeightSource = "ledger"
	WeightDefaulted       WeightSource = "default"
)

// WeightResolution is a resolved weight plus its provenance.
type WeightResolution struct {
	Grams  domain.Grams
	Source WeightSource
}

// DedupeByID collapses duplicates keeping the first occurrence, which is the
// freshest row when the input is in sync order.
func DedupeByID[T any, K comparable](items []T, key func(T) K) []T {
	seen := make(map[K]struct{}, len(items))
	out := items[:0:0]
	for _, item := range items {
		k := key(item)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	return out
}

// cacheReader is the slice of the cache store the resolver needs.
type cacheReader interface {
	GetAnimal(ctx context.Context, id domain.EntityID) (domain.Animal, error)
	Get(ctx context.Context, entityType, id string) (json.RawMessage, error)
}

// Resolver reconciles per-animal weights across the cache, embedded batch
// records, and the live ledger.
type Resolver struct {
	cache  cacheReader
	ledger ledger.Client
	log    *slog.Logger
}

// NewResolver builds a weight resolver.
func NewResolver(cache cacheReader, client ledger.Client, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{cache: cache, ledger: client, log: log}
}

// ResolveWeight finds an animal's weight, walking projections from cheapest
// to most authoritative and falling back to the declared default. A zero
// weight in a projection means "not measured there", never "weighs nothing".
func (r *Resolver) ResolveWeight(ctx context.Context, animalID, batchID domain.EntityID) WeightResolution {
	if a, err := r.cache.GetAnimal(ctx, animalID); err == nil && a.WeightGrams > 0 {
		return WeightResolution{Grams: a.WeightGrams, Source: WeightFromCache}
	}

	if g, ok := r.weightFromBatchRecord(ctx, animalID, batchID); ok {
		return WeightResolution{Grams: g, Source: WeightFromBatchRecord}
	}

	if tuple, err := r.ledger.Call(ctx, ledger.EPGetAnimal, []string{animalID.String()}); err == nil {
		if a, err := domain.ParseAnimal(tuple); err == nil && a.WeightGrams > 0 {
			return WeightResolution{Grams: a.WeightGrams, Source: WeightFromLedger}
		}
	}

	r.log.DebugContext(ctx, "weight defaulted",
		"animal_id", animalID,
		"batch_id", batchID,
	)
	return WeightResolution{Grams: DefaultWeightGrams, Source: WeightDefaulted}
}

// weightFromBatchRecord digs into a mirrored batch payload for an embedded
// animal snapshot. Older sync runs wrote batches with their member animals
// inlined; those snapshots can carry weights the animal row lost.
func (r *Resolver) weightFromBatchRecord(ctx context.Context, animalID, batchID domain.EntityID) (domain.Grams, bool) {
	if batchID.IsZero() {
		return 0, false
	}
	payload, err := r.cache.Get(ctx, cache.TypeBatches, batchID.String())
	if err != nil {
		return 0, false
	}
	var embedded struct {
		Animals map[string]struct {
			WeightGrams domain.Grams `json:"weight_grams"`
		} `json:"animals"`
	}
	if err := json.Unmarshal(payload, &embedded); err != nil {
		return 0, false
	}
	snap, ok := embedded.Animals[animalID.String()]
	if !ok || snap.WeightGrams == 0 {
		return 0, false
	}
	return snap.WeightGrams, true
}
