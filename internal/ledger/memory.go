package ledger

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"beeftrace/internal/domain"
)

// Memory simulates the ledger contract in process. It enforces the same
// guards the on-chain contract does, so a local guard bug that slips a bad
// write through still surfaces as ErrRejected in tests and dev mode.
type Memory struct {
	mu sync.Mutex

	animals  map[domain.EntityID]domain.Animal
	batches  map[domain.EntityID]domain.Batch
	cuts     map[domain.EntityID]domain.Cut
	tokens   map[string]domain.ProvenanceToken
	roles    map[string]map[string]bool
	accepted map[string]bool

	animalSeq uint64
	batchSeq  uint64
	cutSeq    uint64
	txSeq     uint64
	receipts  map[TxRef]Receipt

	unreachable bool
	now         func() time.Time
}

// NewMemory creates an empty simulated ledger with admin as the role admin.
func NewMemory(admin string) *Memory {
	m := &Memory{
		animals:  make(map[domain.EntityID]domain.Animal),
		batches:  make(map[domain.EntityID]domain.Batch),
		cuts:     make(map[domain.EntityID]domain.Cut),
		tokens:   make(map[string]domain.ProvenanceToken),
		roles:    make(map[string]map[string]bool),
		accepted: make(map[string]bool),
		receipts: make(map[TxRef]Receipt),
		now:      time.Now,
	}
	m.grant(RoleAdmin, admin)
	return m
}

// SetClock injects a clock for tests.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetUnreachable toggles simulated network failure: every call returns
// ErrUnreachable while set.
func (m *Memory) SetUnreachable(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unreachable = v
}

// PutAnimal installs an animal directly, advancing the id watermark. Test
// and seed helper; production writes go through Invoke.
func (m *Memory) PutAnimal(a domain.Animal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.animals[a.ID] = a
	if uint64(a.ID) > m.animalSeq {
		m.animalSeq = uint64(a.ID)
	}
}

// PutBatch installs a batch directly, advancing the id watermark.
func (m *Memory) PutBatch(b domain.Batch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[b.ID] = b
	if uint64(b.ID) > m.batchSeq {
		m.batchSeq = uint64(b.ID)
	}
}

// Grant assigns a role without going through the admin guard. Seed helper.
func (m *Memory) Grant(role, addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grant(role, addr)
}

func (m *Memory) grant(role, addr string) {
	if m.roles[role] == nil {
		m.roles[role] = make(map[string]bool)
	}
	m.roles[role][addr] = true
}

func (m *Memory) hasRole(role, addr string) bool {
	return m.roles[role][addr]
}

func acceptKey(subjectType, subjectID string) string {
	return subjectType + "|" + subjectID
}

// Call dispatches a read entrypoint.
func (m *Memory) Call(_ context.Context, entrypoint string, args []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unreachable {
		return nil, fmt.Errorf("%s: %w", entrypoint, ErrUnreachable)
	}

	switch entrypoint {
	case EPGetAnimal:
		id, err := argID(entrypoint, args, 0)
		if err != nil {
			return nil, err
		}
		a, ok := m.animals[id]
		if !ok {
			return nil, reject(entrypoint, "animal %s does not exist", id)
		}
		return a.Tuple(), nil

	case EPGetBatch:
		id, err := argID(entrypoint, args, 0)
		if err != nil {
			return nil, err
		}
		b, ok := m.batches[id]
		if !ok {
			return nil, reject(entrypoint, "batch %s does not exist", id)
		}
		return b.Tuple(), nil

	case EPGetCut:
		id, err := argID(entrypoint, args, 0)
		if err != nil {
			return nil, err
		}
		c, ok := m.cuts[id]
		if !ok {
			return nil, reject(entrypoint, "cut %s does not exist", id)
		}
		return c.Tuple(), nil

	case EPGetAnimalsInBatch:
		id, err := argID(entrypoint, args, 0)
		if err != nil {
			return nil, err
		}
		b, ok := m.batches[id]
		if !ok {
			return nil, reject(entrypoint, "batch %s does not exist", id)
		}
		out := make([]string, len(b.AnimalIDs))
		for i, aid := range b.AnimalIDs {
			out[i] = aid.String()
		}
		return out, nil

	case EPGetAnimalsByOwner:
		if len(args) != 1 {
			return nil, reject(entrypoint, "want 1 arg, got %d", len(args))
		}
		var out []string
		for id, a := range m.animals {
			if a.OwnerAddr == args[0] {
				out = append(out, id.String())
			}
		}
		sort.Strings(out)
		return out, nil

	case EPGetBatchesByProcessor:
		if len(args) != 1 {
			return nil, reject(entrypoint, "want 1 arg, got %d", len(args))
		}
		var out []string
		for id, b := range m.batches {
			if b.ProcessorAddr == args[0] {
				out = append(out, id.String())
			}
		}
		sort.Strings(out)
		return out, nil

	case EPGetSystemStats:
		return []string{
			strconv.FormatUint(m.animalSeq, 10),
			strconv.FormatUint(m.batchSeq, 10),
			strconv.FormatUint(m.cutSeq, 10),
			strconv.Itoa(len(m.tokens)),
		}, nil

	case EPHasRole:
		if len(args) != 2 {
			return nil, reject(entrypoint, "want 2 args, got %d", len(args))
		}
		return []string{strconv.FormatBool(m.hasRole(args[0], args[1]))}, nil

	case EPGetRoleMembers:
		if len(args) != 1 {
			return nil, reject(entrypoint, "want 1 arg, got %d", len(args))
		}
		var out []string
		for addr := range m.roles[args[0]] {
			out = append(out, addr)
		}
		sort.Strings(out)
		return out, nil

	case EPGetToken:
		if len(args) != 1 {
			return nil, reject(entrypoint, "want 1 arg, got %d", len(args))
		}
		tok, ok := m.tokens[args[0]]
		if !ok {
			return nil, reject(entrypoint, "token %s does not exist", args[0])
		}
		return []string{
			tok.Hash,
			string(tok.SubjectType),
			tok.SubjectID.String(),
			strconv.FormatInt(tok.MintedAt.Unix(), 10),
		}, nil

	case EPVerifyToken:
		if len(args) != 1 {
			return nil, reject(entrypoint, "want 1 arg, got %d", len(args))
		}
		_, ok := m.tokens[args[0]]
		return []string{strconv.FormatBool(ok)}, nil
	}

	return nil, reject(entrypoint, "entrypoint does not exist")
}

// Invoke executes a write entrypoint synchronously and records its receipt.
func (m *Memory) Invoke(_ context.Context, entrypoint string, args []string) (TxRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unreachable {
		return "", fmt.Errorf("%s: %w", entrypoint, ErrUnreachable)
	}

	result, err := m.execute(entrypoint, args)
	if err != nil {
		return "", err
	}

	m.txSeq++
	ref := TxRef(fmt.Sprintf("0x%016x", m.txSeq))
	m.receipts[ref] = Receipt{TxRef: ref, Status: "accepted", Result: result}

	// mint_token derives the hash from its own tx ref, so it completes
	// after the ref exists.
	if entrypoint == EPMintToken {
		tok := domain.ProvenanceToken{
			Hash:        domain.TokenHash(string(ref), domain.SubjectType(args[1]), mustID(args[2])),
			SubjectType: domain.SubjectType(args[1]),
			SubjectID:   mustID(args[2]),
			MintedAt:    m.now(),
		}
		m.tokens[tok.Hash] = tok
		m.receipts[ref] = Receipt{TxRef: ref, Status: "accepted", Result: []string{tok.Hash}}
	}

	return ref, nil
}

// WaitForTx returns the finalized receipt for a known transaction.
func (m *Memory) WaitForTx(_ context.Context, ref TxRef) (Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unreachable {
		return Receipt{}, fmt.Errorf("wait for tx: %w", ErrUnreachable)
	}
	r, ok := m.receipts[ref]
	if !ok {
		return Receipt{}, reject("wait_for_tx", "unknown transaction %s", ref)
	}
	return r, nil
}

func (m *Memory) execute(entrypoint string, args []string) ([]string, error) {
	switch entrypoint {
	case EPCreateAnimal:
		return m.createAnimal(args)
	case EPCreateBatch:
		return m.createBatch(args)
	case EPAddToBatch:
		return m.addToBatch(args)
	case EPTransferBatch:
		return m.transferBatch(args)
	case EPAcceptTransfer:
		return m.acceptTransfer(args)
	case EPProcessAnimal:
		return m.processAnimal(args)
	case EPProcessBatch:
		return m.processBatch(args)
	case EPCertifyAnimal:
		return m.certifyAnimal(args)
	case EPCertifyBatch:
		return m.certifyBatch(args)
	case EPExportAnimal:
		return m.exportAnimal(args)
	case EPCreateCut:
		return m.createCut(args)
	case EPMintToken:
		return m.mintToken(args)
	case EPQuarantine:
		return m.quarantine(args)
	case EPClearQuarantine:
		return m.clearQuarantine(args)
	case EPGrantRole, EPRevokeRole:
		return m.setRole(entrypoint, args)
	}
	return nil, reject(entrypoint, "entrypoint does not exist")
}

func (m *Memory) createAnimal(args []string) ([]string, error) {
	if len(args) != 4 {
		return nil, reject(EPCreateAnimal, "want 4 args, got %d", len(args))
	}
	caller := args[0]
	if !m.hasRole(RoleProducer, caller) {
		return nil, reject(EPCreateAnimal, "caller %s lacks %s", caller, RoleProducer)
	}
	breed, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return nil, reject(EPCreateAnimal, "bad breed code %q", args[1])
	}
	birth, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return nil, reject(EPCreateAnimal, "bad birth date %q", args[2])
	}
	weight, err := domain.ParseGrams(args[3])
	if err != nil {
		return nil, reject(EPCreateAnimal, "bad weight %q", args[3])
	}

	m.animalSeq++
	a := domain.Animal{
		ID:          domain.EntityID(m.animalSeq),
		BreedCode:   uint32(breed),
		BirthDate:   birth,
		WeightGrams: weight,
		State:       domain.AnimalCreated,
		OwnerAddr:   caller,
	}
	m.animals[a.ID] = a
	return []string{a.ID.String()}, nil
}

func (m *Memory) createBatch(args []string) ([]string, error) {
	if len(args) != 1 {
		return nil, reject(EPCreateBatch, "want 1 arg, got %d", len(args))
	}
	caller := args[0]
	if !m.hasRole(RoleProducer, caller) {
		return nil, reject(EPCreateBatch, "caller %s lacks %s", caller, RoleProducer)
	}
	m.batchSeq++
	b := domain.Batch{
		ID:        domain.EntityID(m.batchSeq),
		OwnerAddr: caller,
		CreatedAt: m.now().Unix(),
		State:     domain.BatchActive,
	}
	m.batches[b.ID] = b
	return []string{b.ID.String()}, nil
}

func (m *Memory) addToBatch(args []string) ([]string, error) {
	if len(args) != 3 {
		return nil, reject(EPAddToBatch, "want 3 args, got %d", len(args))
	}
	caller := args[0]
	batchID, err := argID(EPAddToBatch, args, 1)
	if err != nil {
		return nil, err
	}
	animalID, err := argID(EPAddToBatch, args, 2)
	if err != nil {
		return nil, err
	}
	b, ok := m.batches[batchID]
	if !ok {
		return nil, reject(EPAddToBatch, "batch %s does not exist", batchID)
	}
	a, ok := m.animals[animalID]
	if !ok {
		return nil, reject(EPAddToBatch, "animal %s does not exist", animalID)
	}
	if b.OwnerAddr != caller {
		return nil, reject(EPAddToBatch, "caller %s does not own batch %s", caller, batchID)
	}
	if b.State != domain.BatchActive {
		return nil, reject(EPAddToBatch, "batch %s is %s, not active", batchID, b.State)
	}
	if a.OwnerAddr != caller {
		return nil, reject(EPAddToBatch, "caller %s does not own animal %s", caller, animalID)
	}
	if !a.BatchID.IsZero() {
		return nil, reject(EPAddToBatch, "animal %s already in batch %s", animalID, a.BatchID)
	}
	if err := b.AddAnimal(animalID); err != nil {
		return nil, reject(EPAddToBatch, "%v", err)
	}
	a.BatchID = batchID
	b.TotalWeightGrams += a.WeightGrams
	m.batches[batchID] = b
	m.animals[animalID] = a
	return nil, nil
}

func (m *Memory) transferBatch(args []string) ([]string, error) {
	if len(args) != 3 {
		return nil, reject(EPTransferBatch, "want 3 args, got %d", len(args))
	}
	caller, processor := args[0], args[2]
	batchID, err := argID(EPTransferBatch, args, 1)
	if err != nil {
		return nil, err
	}
	b, ok := m.batches[batchID]
	if !ok {
		return nil, reject(EPTransferBatch, "batch %s does not exist", batchID)
	}
	if b.OwnerAddr != caller {
		return nil, reject(EPTransferBatch, "caller %s does not own batch %s", caller, batchID)
	}
	if b.State != domain.BatchActive {
		return nil, reject(EPTransferBatch, "batch %s is %s, not active", batchID, b.State)
	}
	if len(b.AnimalIDs) == 0 {
		return nil, reject(EPTransferBatch, "batch %s has no animals", batchID)
	}
	if processor == "" {
		return nil, reject(EPTransferBatch, "empty processor address")
	}
	b.State = domain.BatchTransferred
	b.ProcessorAddr = processor
	b.TransferredAt = m.now().Unix()
	m.batches[batchID] = b
	for _, aid := range b.AnimalIDs {
		a := m.animals[aid]
		a.ProcessorAddr = processor
		m.animals[aid] = a
	}
	return nil, nil
}

func (m *Memory) acceptTransfer(args []string) ([]string, error) {
	if len(args) != 3 {
		return nil, reject(EPAcceptTransfer, "want 3 args, got %d", len(args))
	}
	caller, subjectType := args[0], args[1]
	key := acceptKey(subjectType, args[2])
	if m.accepted[key] {
		return nil, reject(EPAcceptTransfer, "%s %s already accepted", subjectType, args[2])
	}
	id, err := argID(EPAcceptTransfer, args, 2)
	if err != nil {
		return nil, err
	}
	switch domain.SubjectType(subjectType) {
	case domain.SubjectBatch:
		b, ok := m.batches[id]
		if !ok {
			return nil, reject(EPAcceptTransfer, "batch %s does not exist", id)
		}
		if b.State != domain.BatchTransferred {
			return nil, reject(EPAcceptTransfer, "batch %s is %s, not transferred", id, b.State)
		}
		if b.ProcessorAddr != caller {
			return nil, reject(EPAcceptTransfer, "caller %s is not the processor of batch %s", caller, id)
		}
	case domain.SubjectAnimal:
		a, ok := m.animals[id]
		if !ok {
			return nil, reject(EPAcceptTransfer, "animal %s does not exist", id)
		}
		if a.ProcessorAddr != caller {
			return nil, reject(EPAcceptTransfer, "caller %s is not the processor of animal %s", caller, id)
		}
	default:
		return nil, reject(EPAcceptTransfer, "subject type %q cannot be accepted", subjectType)
	}
	m.accepted[key] = true
	return nil, nil
}

func (m *Memory) processAnimal(args []string) ([]string, error) {
	if len(args) != 2 {
		return nil, reject(EPProcessAnimal, "want 2 args, got %d", len(args))
	}
	caller := args[0]
	id, err := argID(EPProcessAnimal, args, 1)
	if err != nil {
		return nil, err
	}
	a, ok := m.animals[id]
	if !ok {
		return nil, reject(EPProcessAnimal, "animal %s does not exist", id)
	}
	if a.ProcessorAddr != caller {
		return nil, reject(EPProcessAnimal, "caller %s is not the processor of animal %s", caller, id)
	}
	if a.Quarantined {
		return nil, reject(EPProcessAnimal, "animal %s is quarantined", id)
	}
	if a.State != domain.AnimalCreated {
		return nil, reject(EPProcessAnimal, "animal %s is %s, not created", id, a.State)
	}
	a.State = domain.AnimalProcessed
	m.animals[id] = a
	return nil, nil
}

func (m *Memory) processBatch(args []string) ([]string, error) {
	if len(args) != 2 {
		return nil, reject(EPProcessBatch, "want 2 args, got %d", len(args))
	}
	caller := args[0]
	id, err := argID(EPProcessBatch, args, 1)
	if err != nil {
		return nil, err
	}
	b, ok := m.batches[id]
	if !ok {
		return nil, reject(EPProcessBatch, "batch %s does not exist", id)
	}
	if b.ProcessorAddr != caller {
		return nil, reject(EPProcessBatch, "caller %s is not the processor of batch %s", caller, id)
	}
	if b.State != domain.BatchTransferred {
		return nil, reject(EPProcessBatch, "batch %s is %s, not transferred", id, b.State)
	}
	if !m.accepted[acceptKey(string(domain.SubjectBatch), id.String())] {
		return nil, reject(EPProcessBatch, "batch %s was never accepted", id)
	}
	b.State = domain.BatchProcessed
	b.ProcessedAt = m.now().Unix()
	m.batches[id] = b
	for _, aid := range b.AnimalIDs {
		a := m.animals[aid]
		if a.State == domain.AnimalCreated && !a.Quarantined {
			a.State = domain.AnimalProcessed
			m.animals[aid] = a
		}
	}
	return nil, nil
}

func (m *Memory) certifyAnimal(args []string) ([]string, error) {
	if len(args) != 2 {
		return nil, reject(EPCertifyAnimal, "want 2 args, got %d", len(args))
	}
	caller := args[0]
	if !m.hasRole(RoleCertifier, caller) {
		return nil, reject(EPCertifyAnimal, "caller %s lacks %s", caller, RoleCertifier)
	}
	id, err := argID(EPCertifyAnimal, args, 1)
	if err != nil {
		return nil, err
	}
	a, ok := m.animals[id]
	if !ok {
		return nil, reject(EPCertifyAnimal, "animal %s does not exist", id)
	}
	if a.Quarantined {
		return nil, reject(EPCertifyAnimal, "animal %s is quarantined", id)
	}
	if a.State != domain.AnimalProcessed {
		return nil, reject(EPCertifyAnimal, "animal %s is %s, not processed", id, a.State)
	}
	a.State = domain.AnimalCertified
	a.CertifierAddr = caller
	m.animals[id] = a
	return nil, nil
}

func (m *Memory) certifyBatch(args []string) ([]string, error) {
	if len(args) != 2 {
		return nil, reject(EPCertifyBatch, "want 2 args, got %d", len(args))
	}
	caller := args[0]
	if !m.hasRole(RoleCertifier, caller) {
		return nil, reject(EPCertifyBatch, "caller %s lacks %s", caller, RoleCertifier)
	}
	id, err := argID(EPCertifyBatch, args, 1)
	if err != nil {
		return nil, err
	}
	b, ok := m.batches[id]
	if !ok {
		return nil, reject(EPCertifyBatch, "batch %s does not exist", id)
	}
	if b.State != domain.BatchProcessed {
		return nil, reject(EPCertifyBatch, "batch %s is %s, not processed", id, b.State)
	}
	b.State = domain.BatchCertified
	m.batches[id] = b
	return nil, nil
}

func (m *Memory) exportAnimal(args []string) ([]string, error) {
	if len(args) != 2 {
		return nil, reject(EPExportAnimal, "want 2 args, got %d", len(args))
	}
	caller := args[0]
	if !m.hasRole(RoleExporter, caller) {
		return nil, reject(EPExportAnimal, "caller %s lacks %s", caller, RoleExporter)
	}
	id, err := argID(EPExportAnimal, args, 1)
	if err != nil {
		return nil, err
	}
	a, ok := m.animals[id]
	if !ok {
		return nil, reject(EPExportAnimal, "animal %s does not exist", id)
	}
	if a.Quarantined {
		return nil, reject(EPExportAnimal, "animal %s is quarantined", id)
	}
	if a.State != domain.AnimalCertified {
		return nil, reject(EPExportAnimal, "animal %s is %s, not certified", id, a.State)
	}
	a.State = domain.AnimalExported
	a.ExporterAddr = caller
	m.animals[id] = a
	return nil, nil
}

func (m *Memory) createCut(args []string) ([]string, error) {
	if len(args) != 4 {
		return nil, reject(EPCreateCut, "want 4 args, got %d", len(args))
	}
	caller := args[0]
	animalID, err := argID(EPCreateCut, args, 1)
	if err != nil {
		return nil, err
	}
	a, ok := m.animals[animalID]
	if !ok {
		return nil, reject(EPCreateCut, "animal %s does not exist", animalID)
	}
	if a.ProcessorAddr != caller {
		return nil, reject(EPCreateCut, "caller %s is not the processor of animal %s", caller, animalID)
	}
	if a.State != domain.AnimalProcessed {
		return nil, reject(EPCreateCut, "animal %s is %s, not processed", animalID, a.State)
	}
	cutType, err := strconv.ParseUint(args[2], 10, 8)
	if err != nil {
		return nil, reject(EPCreateCut, "bad cut type %q", args[2])
	}
	weight, err := domain.ParseGrams(args[3])
	if err != nil {
		return nil, reject(EPCreateCut, "bad weight %q", args[3])
	}
	m.cutSeq++
	c := domain.Cut{
		ID:            domain.EntityID(m.cutSeq),
		AnimalID:      animalID,
		CutType:       domain.CutType(cutType),
		WeightGrams:   weight,
		ProcessorAddr: caller,
	}
	m.cuts[c.ID] = c
	return []string{c.ID.String()}, nil
}

func (m *Memory) mintToken(args []string) ([]string, error) {
	if len(args) != 3 {
		return nil, reject(EPMintToken, "want 3 args, got %d", len(args))
	}
	subjectType := domain.SubjectType(args[1])
	if !subjectType.Valid() {
		return nil, reject(EPMintToken, "invalid subject type %q", args[1])
	}
	id, err := argID(EPMintToken, args, 2)
	if err != nil {
		return nil, err
	}
	var exists bool
	switch subjectType {
	case domain.SubjectAnimal:
		_, exists = m.animals[id]
	case domain.SubjectBatch:
		_, exists = m.batches[id]
	case domain.SubjectCut:
		_, exists = m.cuts[id]
	}
	if !exists {
		return nil, reject(EPMintToken, "%s %s does not exist", subjectType, id)
	}
	// Token registration happens in Invoke once the tx ref is known.
	return nil, nil
}

func (m *Memory) quarantine(args []string) ([]string, error) {
	if len(args) != 3 {
		return nil, reject(EPQuarantine, "want 3 args, got %d", len(args))
	}
	caller := args[0]
	if !m.hasRole(RoleVet, caller) {
		return nil, reject(EPQuarantine, "caller %s lacks %s", caller, RoleVet)
	}
	id, err := argID(EPQuarantine, args, 1)
	if err != nil {
		return nil, err
	}
	a, ok := m.animals[id]
	if !ok {
		return nil, reject(EPQuarantine, "animal %s does not exist", id)
	}
	if a.Quarantined {
		return nil, reject(EPQuarantine, "animal %s already quarantined", id)
	}
	a.Quarantined = true
	a.PriorState = a.State
	m.animals[id] = a
	return nil, nil
}

func (m *Memory) clearQuarantine(args []string) ([]string, error) {
	if len(args) != 2 {
		return nil, reject(EPClearQuarantine, "want 2 args, got %d", len(args))
	}
	caller := args[0]
	if !m.hasRole(RoleVet, caller) {
		return nil, reject(EPClearQuarantine, "caller %s lacks %s", caller, RoleVet)
	}
	id, err := argID(EPClearQuarantine, args, 1)
	if err != nil {
		return nil, err
	}
	a, ok := m.animals[id]
	if !ok {
		return nil, reject(EPClearQuarantine, "animal %s does not exist", id)
	}
	if !a.Quarantined {
		return nil, reject(EPClearQuarantine, "animal %s is not quarantined", id)
	}
	a.Quarantined = false
	a.State = a.PriorState
	m.animals[id] = a
	return nil, nil
}

func (m *Memory) setRole(entrypoint string, args []string) ([]string, error) {
	if len(args) != 3 {
		return nil, reject(entrypoint, "want 3 args, got %d", len(args))
	}
	caller, role, addr := args[0], args[1], args[2]
	if !m.hasRole(RoleAdmin, caller) {
		return nil, reject(entrypoint, "caller %s lacks %s", caller, RoleAdmin)
	}
	if entrypoint == EPGrantRole {
		m.grant(role, addr)
	} else if m.roles[role] != nil {
		delete(m.roles[role], addr)
	}
	return nil, nil
}

func argID(entrypoint string, args []string, i int) (domain.EntityID, error) {
	if i >= len(args) {
		return 0, reject(entrypoint, "missing argument %d", i)
	}
	id, err := domain.ParseEntityID(args[i])
	if err != nil {
		return 0, reject(entrypoint, "bad id %q", args[i])
	}
	return id, nil
}

// mustID is only called on args already validated by execute.
func mustID(s string) domain.EntityID {
	id, _ := domain.ParseEntityID(s)
	return id
}
