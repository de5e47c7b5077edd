package domain

import (
	"fmt"
	"strconv"
)

// AnimalState is the lifecycle position of an animal. States only move
// forward; no transition may skip a state or move backward.
type AnimalState uint8

const (
	AnimalCreated   AnimalState = 0
	AnimalProcessed AnimalState = 1
	AnimalCertified AnimalState = 2
	AnimalExported  AnimalState = 3
)

func (s AnimalState) String() string {
	switch s {
	case AnimalCreated:
		return "created"
	case AnimalProcessed:
		return "processed"
	case AnimalCertified:
		return "certified"
	case AnimalExported:
		return "exported"
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// Terminal reports whether no further forward transition exists.
func (s AnimalState) Terminal() bool { return s == AnimalExported }

// Next returns the sole valid successor state. ok is false for the terminal
// state.
func (s AnimalState) Next() (AnimalState, bool) {
	if s.Terminal() {
		return s, false
	}
	return s + 1, true
}

// Animal is the ledger entity for a live animal. Mutated only through
// lifecycle transitions; everything else is written once at creation.
type Animal struct {
	ID          EntityID    `json:"id"`
	BreedCode   uint32      `json:"breed_code"`
	BirthDate   int64       `json:"birth_date"`
	WeightGrams Grams       `json:"weight_grams"`
	State       AnimalState `json:"state"`
	Quarantined bool        `json:"quarantined"`
	// PriorState is the ledger's own quarantine bookkeeping. It is not part
	// of the get_animal projection, so it is never mirrored.
	PriorState    AnimalState `json:"-"`
	OwnerAddr     string      `json:"owner_addr"`
	ProcessorAddr string      `json:"processor_addr,omitempty"`
	CertifierAddr string      `json:"certifier_addr,omitempty"`
	ExporterAddr  string      `json:"exporter_addr,omitempty"`
	BatchID       EntityID    `json:"batch_id"`
}

// animalTupleLen is the ledger's get_animal projection width.
const animalTupleLen = 11

// ParseAnimal decodes the raw tuple returned by the ledger's get_animal
// entrypoint. A malformed tuple fails here, at the boundary, instead of
// propagating zero values into aggregation.
func ParseAnimal(tuple []string) (Animal, error) {
	if len(tuple) != animalTupleLen {
		return Animal{}, fmt.Errorf("animal tuple: want %d fields, got %d", animalTupleLen, len(tuple))
	}

	id, err := ParseEntityID(tuple[0])
	if err != nil {
		return Animal{}, fmt.Errorf("animal tuple: %w", err)
	}
	if id.IsZero() {
		return Animal{}, fmt.Errorf("animal tuple: zero id")
	}
	breed, err := strconv.ParseUint(tuple[1], 10, 32)
	if err != nil {
		return Animal{}, fmt.Errorf("animal tuple breed: %w", err)
	}
	birth, err := strconv.ParseInt(tuple[2], 10, 64)
	if err != nil {
		return Animal{}, fmt.Errorf("animal tuple birth date: %w", err)
	}
	weight, err := ParseGrams(tuple[3])
	if err != nil {
		return Animal{}, fmt.Errorf("animal tuple: %w", err)
	}
	state, err := strconv.ParseUint(tuple[4], 10, 8)
	if err != nil || AnimalState(state) > AnimalExported {
		return Animal{}, fmt.Errorf("animal tuple: invalid state %q", tuple[4])
	}
	batchID, err := ParseEntityID(tuple[9])
	if err != nil {
		return Animal{}, fmt.Errorf("animal tuple: %w", err)
	}
	quarantined, err := strconv.ParseBool(tuple[10])
	if err != nil {
		return Animal{}, fmt.Errorf("animal tuple quarantined: %w", err)
	}

	a := Animal{
		ID:            id,
		BreedCode:     uint32(breed),
		BirthDate:     birth,
		WeightGrams:   weight,
		State:         AnimalState(state),
		Quarantined:   quarantined,
		OwnerAddr:     tuple[5],
		ProcessorAddr: tuple[6],
		CertifierAddr: tuple[7],
		ExporterAddr:  tuple[8],
		BatchID:       batchID,
	}
	if a.OwnerAddr == "" {
		return Animal{}, fmt.Errorf("animal tuple: empty owner address")
	}
	return a, nil
}

// Tuple renders the animal back as a ledger-shaped tuple. The simulated
// ledger and the tests use it; ParseAnimal(a.Tuple()) == a.
func (a Animal) Tuple() []string {
	return []string{
		a.ID.String(),
		strconv.FormatUint(uint64(a.BreedCode), 10),
		strconv.FormatInt(a.BirthDate, 10),
		a.WeightGrams.String(),
		strconv.FormatUint(uint64(a.State), 10),
		a.OwnerAddr,
		a.ProcessorAddr,
		a.CertifierAddr,
		a.ExporterAddr,
		a.BatchID.String(),
		strconv.FormatBool(a.Quarantined),
	}
}
