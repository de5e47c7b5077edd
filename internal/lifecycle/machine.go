// Package lifecycle drives supply-chain state transitions. Every transition
// is pre-flighted against mirrored state so obviously invalid requests never
// cost a ledger round trip, then submitted, awaited to finality, and pushed
// back into the mirror.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"beeftrace/internal/domain"
	"beeftrace/internal/ledger"
	"beeftrace/internal/platform/metrics"
	"beeftrace/pkg/platform/sentinel"
)

// ValidationError reports a transition rejected by the local pre-flight,
// before any ledger traffic.
type ValidationError struct {
	Op     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *ValidationError) Unwrap() error { return sentinel.ErrInvalidState }

func invalid(op, format string, args ...any) error {
	return &ValidationError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// cacheView is the mirrored state the pre-flight reads, plus invalidation
// after a confirmed write.
type cacheView interface {
	GetAnimal(ctx context.Context, id domain.EntityID) (domain.Animal, error)
	GetBatch(ctx context.Context, id domain.EntityID) (domain.Batch, error)
	Invalidate()
}

// resyncer refreshes mirrored entities after a confirmed write. Satisfied by
// *syncer.Engine.
type resyncer interface {
	SyncAnimal(ctx context.Context, id domain.EntityID) error
	SyncBatch(ctx context.Context, id domain.EntityID) error
	SyncAnimals(ctx context.Context, ids []domain.EntityID) error
}

// Service executes lifecycle transitions.
type Service struct {
	ledger  ledger.Client
	cache   cacheView
	sync    resyncer
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New builds a lifecycle service. metrics may be nil.
func New(client ledger.Client, cache cacheView, sync resyncer, log *slog.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{ledger: client, cache: cache, sync: sync, log: log, metrics: m}
}

// CreateAnimal registers a new animal and returns its ledger-assigned id.
func (s *Service) CreateAnimal(ctx context.Context, actor string, breedCode uint32, birthDate int64, weight domain.Grams) (domain.EntityID, error) {
	if actor == "" {
		return 0, invalid(ledger.EPCreateAnimal, "empty actor address")
	}
	receipt, err := s.submit(ctx, ledger.EPCreateAnimal, []string{
		actor,
		strconv.FormatUint(uint64(breedCode), 10),
		strconv.FormatInt(birthDate, 10),
		weight.String(),
	})
	if err != nil {
		return 0, err
	}
	id, err := receiptID(ledger.EPCreateAnimal, receipt)
	if err != nil {
		return 0, err
	}
	s.refreshAnimal(ctx, id)
	return id, nil
}

// CreateBatch opens an empty batch owned by actor.
func (s *Service) CreateBatch(ctx context.Context, actor string) (domain.EntityID, error) {
	if actor == "" {
		return 0, invalid(ledger.EPCreateBatch, "empty actor address")
	}
	receipt, err := s.submit(ctx, ledger.EPCreateBatch, []string{actor})
	if err != nil {
		return 0, err
	}
	id, err := receiptID(ledger.EPCreateBatch, receipt)
	if err != nil {
		return 0, err
	}
	s.refreshBatch(ctx, id)
	return id, nil
}

// AddToBatch adds an animal to an active batch.
func (s *Service) AddToBatch(ctx context.Context, actor string, batchID, animalID domain.EntityID) error {
	if batch, err := s.cache.GetBatch(ctx, batchID); err == nil {
		if batch.State != domain.BatchActive {
			return invalid(ledger.EPAddToBatch, "batch %s is %s, not active", batchID, batch.State)
		}
		if batch.Contains(animalID) {
			return invalid(ledger.EPAddToBatch, "animal %s already in batch %s", animalID, batchID)
		}
	}
	if animal, err := s.cache.GetAnimal(ctx, animalID); err == nil && !animal.BatchID.IsZero() {
		return invalid(ledger.EPAddToBatch, "animal %s already in batch %s", animalID, animal.BatchID)
	}

	_, err := s.submit(ctx, ledger.EPAddToBatch, []string{actor, batchID.String(), animalID.String()})
	if err != nil {
		return err
	}
	s.refreshBatch(ctx, batchID)
	s.refreshAnimal(ctx, animalID)
	return nil
}

// TransferBatch hands an active batch to a processor.
func (s *Service) TransferBatch(ctx context.Context, actor string, batchID domain.EntityID, processorAddr string) error {
	if processorAddr == "" {
		return invalid(ledger.EPTransferBatch, "empty processor address")
	}
	if batch, err := s.cache.GetBatch(ctx, batchID); err == nil {
		if batch.State != domain.BatchActive {
			return invalid(ledger.EPTransferBatch, "batch %s is %s, not active", batchID, batch.State)
		}
		if len(batch.AnimalIDs) == 0 {
			return invalid(ledger.EPTransferBatch, "batch %s has no animals", batchID)
		}
	}

	_, err := s.submit(ctx, ledger.EPTransferBatch, []string{actor, batchID.String(), processorAddr})
	if err != nil {
		return err
	}
	s.refreshBatchWithMembers(ctx, batchID)
	return nil
}

// ProcessAnimal advances one animal to processed.
func (s *Service) ProcessAnimal(ctx context.Context, actor string, animalID domain.EntityID) error {
	if animal, err := s.cache.GetAnimal(ctx, animalID); err == nil {
		if animal.Quarantined {
			return invalid(ledger.EPProcessAnimal, "animal %s is quarantined", animalID)
		}
		if animal.State != domain.AnimalCreated {
			return invalid(ledger.EPProcessAnimal, "animal %s is %s, not created", animalID, animal.State)
		}
	}

	_, err := s.submit(ctx, ledger.EPProcessAnimal, []string{actor, animalID.String()})
	if err != nil {
		return err
	}
	s.refreshAnimal(ctx, animalID)
	return nil
}

// ProcessBatch advances an accepted batch to processed, which also advances
// its eligible member animals.
func (s *Service) ProcessBatch(ctx context.Context, actor string, batchID domain.EntityID) error {
	if batch, err := s.cache.GetBatch(ctx, batchID); err == nil {
		if batch.State != domain.BatchTransferred {
			return invalid(ledger.EPProcessBatch, "batch %s is %s, not transferred", batchID, batch.State)
		}
		if batch.ProcessorAddr != actor {
			return invalid(ledger.EPProcessBatch, "caller %s is not the processor of batch %s", actor, batchID)
		}
	}

	_, err := s.submit(ctx, ledger.EPProcessBatch, []string{actor, batchID.String()})
	if err != nil {
		return err
	}
	s.refreshBatchWithMembers(ctx, batchID)
	return nil
}

// CertifyAnimal advances a processed animal to certified.
func (s *Service) CertifyAnimal(ctx context.Context, actor string, animalID domain.EntityID) error {
	if animal, err := s.cache.GetAnimal(ctx, animalID); err == nil {
		if animal.Quarantined {
			return invalid(ledger.EPCertifyAnimal, "animal %s is quarantined", animalID)
		}
		if animal.State != domain.AnimalProcessed {
			return invalid(ledger.EPCertifyAnimal, "animal %s is %s, not processed", animalID, animal.State)
		}
	}

	_, err := s.submit(ctx, ledger.EPCertifyAnimal, []string{actor, animalID.String()})
	if err != nil {
		return err
	}
	s.refreshAnimal(ctx, animalID)
	return nil
}

// CertifyBatch advances a processed batch to certified.
func (s *Service) CertifyBatch(ctx context.Context, actor string, batchID domain.EntityID) error {
	if batch, err := s.cache.GetBatch(ctx, batchID); err == nil {
		if batch.State != domain.BatchProcessed {
			return invalid(ledger.EPCertifyBatch, "batch %s is %s, not processed", batchID, batch.State)
		}
	}

	_, err := s.submit(ctx, ledger.EPCertifyBatch, []string{actor, batchID.String()})
	if err != nil {
		return err
	}
	s.refreshBatch(ctx, batchID)
	return nil
}

// ExportAnimal advances a certified animal to exported, its terminal state.
func (s *Service) ExportAnimal(ctx context.Context, actor string, animalID domain.EntityID) error {
	if animal, err := s.cache.GetAnimal(ctx, animalID); err == nil {
		if animal.Quarantined {
			return invalid(ledger.EPExportAnimal, "animal %s is quarantined", animalID)
		}
		if animal.State != domain.AnimalCertified {
			return invalid(ledger.EPExportAnimal, "animal %s is %s, not certified", animalID, animal.State)
		}
	}

	_, err := s.submit(ctx, ledger.EPExportAnimal, []string{actor, animalID.String()})
	if err != nil {
		return err
	}
	s.refreshAnimal(ctx, animalID)
	return nil
}

// Quarantine flags an animal, freezing its lifecycle until cleared.
func (s *Service) Quarantine(ctx context.Context, actor string, animalID domain.EntityID, reason string) error {
	if animal, err := s.cache.GetAnimal(ctx, animalID); err == nil && animal.Quarantined {
		return invalid(ledger.EPQuarantine, "animal %s already quarantined", animalID)
	}

	_, err := s.submit(ctx, ledger.EPQuarantine, []string{actor, animalID.String(), reason})
	if err != nil {
		return err
	}
	s.refreshAnimal(ctx, animalID)
	return nil
}

// ClearQuarantine lifts the flag and restores the animal's prior state.
func (s *Service) ClearQuarantine(ctx context.Context, actor string, animalID domain.EntityID) error {
	if animal, err := s.cache.GetAnimal(ctx, animalID); err == nil && !animal.Quarantined {
		return invalid(ledger.EPClearQuarantine, "animal %s is not quarantined", animalID)
	}

	_, err := s.submit(ctx, ledger.EPClearQuarantine, []string{actor, animalID.String()})
	if err != nil {
		return err
	}
	s.refreshAnimal(ctx, animalID)
	return nil
}

// CreateCut registers a cut from a processed animal and returns its id.
func (s *Service) CreateCut(ctx context.Context, actor string, animalID domain.EntityID, cutType domain.CutType, weight domain.Grams) (domain.EntityID, error) {
	if !cutType.Valid() {
		return 0, invalid(ledger.EPCreateCut, "invalid cut type %d", cutType)
	}
	if animal, err := s.cache.GetAnimal(ctx, animalID); err == nil {
		if animal.State != domain.AnimalProcessed {
			return 0, invalid(ledger.EPCreateCut, "animal %s is %s, not processed", animalID, animal.State)
		}
	}

	receipt, err := s.submit(ctx, ledger.EPCreateCut, []string{
		actor,
		animalID.String(),
		strconv.FormatUint(uint64(cutType), 10),
		weight.String(),
	})
	if err != nil {
		return 0, err
	}
	id, err := receiptID(ledger.EPCreateCut, receipt)
	if err != nil {
		return 0, err
	}
	s.refreshAnimal(ctx, animalID)
	return id, nil
}

// submit invokes a write entrypoint and waits for finality.
func (s *Service) submit(ctx context.Context, entrypoint string, args []string) (ledger.Receipt, error) {
	ref, err := s.ledger.Invoke(ctx, entrypoint, args)
	if err != nil {
		s.countLedger(entrypoint, err)
		return ledger.Receipt{}, err
	}
	receipt, err := s.ledger.WaitForTx(ctx, ref)
	if err != nil {
		s.countLedger(entrypoint, err)
		return ledger.Receipt{}, fmt.Errorf("%s tx %s: %w", entrypoint, ref, err)
	}
	if receipt.Status != "accepted" {
		s.countLedger(entrypoint, ledger.ErrRejected)
		return ledger.Receipt{}, fmt.Errorf("%s tx %s finalized as %s: %w", entrypoint, ref, receipt.Status, ledger.ErrRejected)
	}
	s.countLedger(entrypoint, nil)
	return receipt, nil
}

func receiptID(entrypoint string, receipt ledger.Receipt) (domain.EntityID, error) {
	if len(receipt.Result) == 0 {
		return 0, fmt.Errorf("%s tx %s: receipt carries no id", entrypoint, receipt.TxRef)
	}
	id, err := domain.ParseEntityID(receipt.Result[0])
	if err != nil {
		return 0, fmt.Errorf("%s tx %s: %w", entrypoint, receipt.TxRef, err)
	}
	return id, nil
}

// refreshAnimal invalidates the local layer and re-mirrors one animal. A
// refresh failure leaves the mirror stale until the next full sync, so it is
// logged but does not fail the confirmed transition.
func (s *Service) refreshAnimal(ctx context.Context, id domain.EntityID) {
	s.cache.Invalidate()
	if err := s.sync.SyncAnimal(ctx, id); err != nil {
		s.log.WarnContext(ctx, "post-write animal refresh failed",
			"animal_id", id,
			"error", err,
		)
	}
}

func (s *Service) refreshBatch(ctx context.Context, id domain.EntityID) {
	s.cache.Invalidate()
	if err := s.sync.SyncBatch(ctx, id); err != nil {
		s.log.WarnContext(ctx, "post-write batch refresh failed",
			"batch_id", id,
			"error", err,
		)
	}
}

// refreshBatchWithMembers refreshes a batch and every member animal, since
// batch transitions ripple into member state.
func (s *Service) refreshBatchWithMembers(ctx context.Context, id domain.EntityID) {
	s.refreshBatch(ctx, id)
	batch, err := s.cache.GetBatch(ctx, id)
	if err != nil {
		return
	}
	if err := s.sync.SyncAnimals(ctx, batch.AnimalIDs); err != nil {
		s.log.WarnContext(ctx, "post-write member refresh failed",
			"batch_id", id,
			"error", err,
		)
	}
}

func (s *Service) countLedger(entrypoint string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, ledger.ErrRejected):
		outcome = "rejected"
	case errors.Is(err, ledger.ErrUnreachable):
		outcome = "unreachable"
	case err != nil:
		outcome = "error"
	}
	s.metrics.LedgerCalls.WithLabelValues(entrypoint, outcome).Inc()
}
