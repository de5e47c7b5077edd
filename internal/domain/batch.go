package domain

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// BatchState is the lifecycle position of a batch. Monotonically
// non-decreasing over the batch's lifetime.
type BatchState uint8

const (
	BatchActive      BatchState = 0
	BatchTransferred BatchState = 1
	BatchProcessed   BatchState = 2
	BatchCertified   BatchState = 3
)

func (s BatchState) String() string {
	switch s {
	case BatchActive:
		return "active"
	case BatchTransferred:
		return "transferred"
	case BatchProcessed:
		return "processed"
	case BatchCertified:
		return "certified"
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

func (s BatchState) Terminal() bool { return s == BatchCertified }

func (s BatchState) Next() (BatchState, bool) {
	if s.Terminal() {
		return s, false
	}
	return s + 1, true
}

// Batch groups animals moved and processed together.
type Batch struct {
	ID               EntityID   `json:"id"`
	OwnerAddr        string     `json:"owner_addr"`
	ProcessorAddr    string     `json:"processor_addr,omitempty"`
	CreatedAt        int64      `json:"created_at"`
	TransferredAt    int64      `json:"transferred_at"`
	ProcessedAt      int64      `json:"processed_at"`
	State            BatchState `json:"state"`
	AnimalIDs        []EntityID `json:"animal_ids"`
	TotalWeightGrams Grams      `json:"total_weight_grams"`
}

// AddAnimal appends an animal id, preserving the no-duplicates invariant.
func (b *Batch) AddAnimal(id EntityID) error {
	if id.IsZero() {
		return fmt.Errorf("batch %s: cannot add zero animal id", b.ID)
	}
	if slices.Contains(b.AnimalIDs, id) {
		return fmt.Errorf("batch %s: animal %s already a member", b.ID, id)
	}
	b.AnimalIDs = append(b.AnimalIDs, id)
	return nil
}

// Contains reports membership.
func (b Batch) Contains(id EntityID) bool {
	return slices.Contains(b.AnimalIDs, id)
}

// batchTupleLen is the ledger's get_batch projection width. The member list
// is carried as a single comma-joined field, matching the flat felt array
// the ledger entrypoint returns.
const batchTupleLen = 9

// ParseBatch decodes the raw tuple returned by get_batch.
func ParseBatch(tuple []string) (Batch, error) {
	if len(tuple) != batchTupleLen {
		return Batch{}, fmt.Errorf("batch tuple: want %d fields, got %d", batchTupleLen, len(tuple))
	}

	id, err := ParseEntityID(tuple[0])
	if err != nil {
		return Batch{}, fmt.Errorf("batch tuple: %w", err)
	}
	if id.IsZero() {
		return Batch{}, fmt.Errorf("batch tuple: zero id")
	}
	createdAt, err := strconv.ParseInt(tuple[3], 10, 64)
	if err != nil {
		return Batch{}, fmt.Errorf("batch tuple created at: %w", err)
	}
	transferredAt, err := strconv.ParseInt(tuple[4], 10, 64)
	if err != nil {
		return Batch{}, fmt.Errorf("batch tuple transferred at: %w", err)
	}
	processedAt, err := strconv.ParseInt(tuple[5], 10, 64)
	if err != nil {
		return Batch{}, fmt.Errorf("batch tuple processed at: %w", err)
	}
	state, err := strconv.ParseUint(tuple[6], 10, 8)
	if err != nil || BatchState(state) > BatchCertified {
		return Batch{}, fmt.Errorf("batch tuple: invalid state %q", tuple[6])
	}
	weight, err := ParseGrams(tuple[7])
	if err != nil {
		return Batch{}, fmt.Errorf("batch tuple: %w", err)
	}

	b := Batch{
		ID:               id,
		OwnerAddr:        tuple[1],
		ProcessorAddr:    tuple[2],
		CreatedAt:        createdAt,
		TransferredAt:    transferredAt,
		ProcessedAt:      processedAt,
		State:            BatchState(state),
		TotalWeightGrams: weight,
	}
	if b.OwnerAddr == "" {
		return Batch{}, fmt.Errorf("batch tuple: empty owner address")
	}

	if tuple[8] != "" {
		for _, part := range strings.Split(tuple[8], ",") {
			memberID, err := ParseEntityID(part)
			if err != nil {
				return Batch{}, fmt.Errorf("batch tuple members: %w", err)
			}
			if err := b.AddAnimal(memberID); err != nil {
				return Batch{}, fmt.Errorf("batch tuple members: %w", err)
			}
		}
	}
	return b, nil
}

// Tuple renders the batch back as a ledger-shaped tuple.
func (b Batch) Tuple() []string {
	members := make([]string, len(b.AnimalIDs))
	for i, id := range b.AnimalIDs {
		members[i] = id.String()
	}
	return []string{
		b.ID.String(),
		b.OwnerAddr,
		b.ProcessorAddr,
		strconv.FormatInt(b.CreatedAt, 10),
		strconv.FormatInt(b.TransferredAt, 10),
		strconv.FormatInt(b.ProcessedAt, 10),
		strconv.FormatUint(uint64(b.State), 10),
		b.TotalWeightGrams.String(),
		strings.Join(members, ","),
	}
}
