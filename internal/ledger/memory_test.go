package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"beeftrace/internal/domain"
)

const (
	admin     = "0xadmin"
	producer  = "0xproducer"
	processor = "0xprocessor"
	certifier = "0xcertifier"
	vet       = "0xvet"
)

type MemoryLedgerSuite struct {
	suite.Suite
	ledger *Memory
	ctx    context.Context
}

func TestMemoryLedgerSuite(t *testing.T) {
	suite.Run(t, new(MemoryLedgerSuite))
}

func (s *MemoryLedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.ledger = NewMemory(admin)
	s.ledger.SetClock(func() time.Time { return time.Unix(1700000000, 0) })
	s.ledger.Grant(RoleProducer, producer)
	s.ledger.Grant(RoleProcessor, processor)
	s.ledger.Grant(RoleCertifier, certifier)
	s.ledger.Grant(RoleVet, vet)
}

func (s *MemoryLedgerSuite) createAnimal(weight string) domain.EntityID {
	ref, err := s.ledger.Invoke(s.ctx, EPCreateAnimal, []string{producer, "3", "1680000000", weight})
	s.Require().NoError(err)
	receipt, err := s.ledger.WaitForTx(s.ctx, ref)
	s.Require().NoError(err)
	id, err := domain.ParseEntityID(receipt.Result[0])
	s.Require().NoError(err)
	return id
}

func (s *MemoryLedgerSuite) createTransferredBatch(weights ...string) domain.EntityID {
	ref, err := s.ledger.Invoke(s.ctx, EPCreateBatch, []string{producer})
	s.Require().NoError(err)
	receipt, err := s.ledger.WaitForTx(s.ctx, ref)
	s.Require().NoError(err)
	batchID := receipt.Result[0]

	for _, w := range weights {
		animalID := s.createAnimal(w)
		_, err := s.ledger.Invoke(s.ctx, EPAddToBatch, []string{producer, batchID, animalID.String()})
		s.Require().NoError(err)
	}
	_, err = s.ledger.Invoke(s.ctx, EPTransferBatch, []string{producer, batchID, processor})
	s.Require().NoError(err)

	id, err := domain.ParseEntityID(batchID)
	s.Require().NoError(err)
	return id
}

func (s *MemoryLedgerSuite) TestAnimalLifecycle() {
	id := s.createAnimal("250000")

	tuple, err := s.ledger.Call(s.ctx, EPGetAnimal, []string{id.String()})
	s.Require().NoError(err)
	a, err := domain.ParseAnimal(tuple)
	s.Require().NoError(err)
	s.Equal(domain.AnimalCreated, a.State)
	s.Equal(producer, a.OwnerAddr)
}

func (s *MemoryLedgerSuite) TestTransferRequiresMembers() {
	ref, err := s.ledger.Invoke(s.ctx, EPCreateBatch, []string{producer})
	s.Require().NoError(err)
	receipt, err := s.ledger.WaitForTx(s.ctx, ref)
	s.Require().NoError(err)

	_, err = s.ledger.Invoke(s.ctx, EPTransferBatch, []string{producer, receipt.Result[0], processor})
	s.Require().ErrorIs(err, ErrRejected)
}

func (s *MemoryLedgerSuite) TestProcessBatchRequiresAcceptance() {
	batchID := s.createTransferredBatch("250000", "260000")

	_, err := s.ledger.Invoke(s.ctx, EPProcessBatch, []string{processor, batchID.String()})
	s.Require().ErrorIs(err, ErrRejected, "processing before acceptance must be rejected")

	_, err = s.ledger.Invoke(s.ctx, EPAcceptTransfer, []string{processor, "batch", batchID.String()})
	s.Require().NoError(err)
	_, err = s.ledger.Invoke(s.ctx, EPProcessBatch, []string{processor, batchID.String()})
	s.Require().NoError(err)

	tuple, err := s.ledger.Call(s.ctx, EPGetBatch, []string{batchID.String()})
	s.Require().NoError(err)
	b, err := domain.ParseBatch(tuple)
	s.Require().NoError(err)
	s.Equal(domain.BatchProcessed, b.State)

	// Member animals moved with the batch.
	for _, aid := range b.AnimalIDs {
		tuple, err := s.ledger.Call(s.ctx, EPGetAnimal, []string{aid.String()})
		s.Require().NoError(err)
		a, err := domain.ParseAnimal(tuple)
		s.Require().NoError(err)
		s.Equal(domain.AnimalProcessed, a.State)
	}
}

func (s *MemoryLedgerSuite) TestDoubleAcceptRejected() {
	batchID := s.createTransferredBatch("250000")

	_, err := s.ledger.Invoke(s.ctx, EPAcceptTransfer, []string{processor, "batch", batchID.String()})
	s.Require().NoError(err)
	_, err = s.ledger.Invoke(s.ctx, EPAcceptTransfer, []string{processor, "batch", batchID.String()})
	s.Require().ErrorIs(err, ErrRejected)
}

func (s *MemoryLedgerSuite) TestQuarantineBlocksProcessingAndRestores() {
	batchID := s.createTransferredBatch("250000")
	tuple, err := s.ledger.Call(s.ctx, EPGetAnimalsInBatch, []string{batchID.String()})
	s.Require().NoError(err)
	id, err := domain.ParseEntityID(tuple[0])
	s.Require().NoError(err)

	_, err = s.ledger.Invoke(s.ctx, EPQuarantine, []string{vet, id.String(), "suspected disease"})
	s.Require().NoError(err)

	_, err = s.ledger.Invoke(s.ctx, EPProcessAnimal, []string{processor, id.String()})
	s.Require().ErrorIs(err, ErrRejected)

	_, err = s.ledger.Invoke(s.ctx, EPClearQuarantine, []string{vet, id.String()})
	s.Require().NoError(err)

	tuple, err = s.ledger.Call(s.ctx, EPGetAnimal, []string{id.String()})
	s.Require().NoError(err)
	a, err := domain.ParseAnimal(tuple)
	s.Require().NoError(err)
	s.False(a.Quarantined)
	s.Equal(domain.AnimalCreated, a.State, "cleared quarantine restores the prior state")
}

func (s *MemoryLedgerSuite) TestCutRequiresProcessedAnimal() {
	batchID := s.createTransferredBatch("250000")
	_, err := s.ledger.Invoke(s.ctx, EPAcceptTransfer, []string{processor, "batch", batchID.String()})
	s.Require().NoError(err)

	tuple, err := s.ledger.Call(s.ctx, EPGetAnimalsInBatch, []string{batchID.String()})
	s.Require().NoError(err)
	animalID := tuple[0]

	_, err = s.ledger.Invoke(s.ctx, EPCreateCut, []string{processor, animalID, "2", "1500"})
	s.Require().ErrorIs(err, ErrRejected, "cut from a created animal must be rejected")

	_, err = s.ledger.Invoke(s.ctx, EPProcessBatch, []string{processor, batchID.String()})
	s.Require().NoError(err)

	ref, err := s.ledger.Invoke(s.ctx, EPCreateCut, []string{processor, animalID, "2", "1500"})
	s.Require().NoError(err)
	receipt, err := s.ledger.WaitForTx(s.ctx, ref)
	s.Require().NoError(err)
	s.Len(receipt.Result, 1)
}

func (s *MemoryLedgerSuite) TestMintAndVerifyToken() {
	id := s.createAnimal("250000")

	ref, err := s.ledger.Invoke(s.ctx, EPMintToken, []string{producer, "animal", id.String()})
	s.Require().NoError(err)
	receipt, err := s.ledger.WaitForTx(s.ctx, ref)
	s.Require().NoError(err)
	hash := receipt.Result[0]

	out, err := s.ledger.Call(s.ctx, EPVerifyToken, []string{hash})
	s.Require().NoError(err)
	s.Equal("true", out[0])

	out, err = s.ledger.Call(s.ctx, EPVerifyToken, []string{"qr_fabricated_hash"})
	s.Require().NoError(err)
	s.Equal("false", out[0])
}

func (s *MemoryLedgerSuite) TestSystemStatsWatermark() {
	s.createAnimal("1000")
	s.createAnimal("2000")

	out, err := s.ledger.Call(s.ctx, EPGetSystemStats, []string{})
	s.Require().NoError(err)
	s.Equal("2", out[0])
}

func (s *MemoryLedgerSuite) TestUnreachableMode() {
	s.ledger.SetUnreachable(true)
	_, err := s.ledger.Call(s.ctx, EPGetSystemStats, []string{})
	s.Require().ErrorIs(err, ErrUnreachable)
}

func TestRoleGuard(t *testing.T) {
	m := NewMemory(admin)
	ctx := context.Background()

	_, err := m.Invoke(ctx, EPCreateAnimal, []string{"0xanon", "1", "0", "1000"})
	require.True(t, errors.Is(err, ErrRejected))

	_, err = m.Invoke(ctx, EPGrantRole, []string{admin, RoleProducer, "0xanon"})
	require.NoError(t, err)
	_, err = m.Invoke(ctx, EPCreateAnimal, []string{"0xanon", "1", "0", "1000"})
	require.NoError(t, err)
}
