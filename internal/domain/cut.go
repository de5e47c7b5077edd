package domain

import (
	"fmt"
	"strconv"
)

// CutType enumerates the commercially distinct cuts created when an animal
// is processed.
type CutType uint8

const (
	CutRib  CutType = 1
	CutLoin CutType = 2
	CutRump CutType = 3
	CutFlap CutType = 4
)

// Valid reports whether t is a known cut type.
func (t CutType) Valid() bool { return t >= CutRib && t <= CutFlap }

func (t CutType) String() string {
	switch t {
	case CutRib:
		return "rib"
	case CutLoin:
		return "loin"
	case CutRump:
		return "rump"
	case CutFlap:
		return "flap"
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// Cut is a processed sub-unit of an animal. Created only from an animal in
// processed state.
type Cut struct {
	ID            EntityID `json:"id"`
	AnimalID      EntityID `json:"animal_id"`
	CutType       CutType  `json:"cut_type"`
	WeightGrams   Grams    `json:"weight_grams"`
	ProcessorAddr string   `json:"processor_addr"`
	Certified     bool     `json:"certified"`
	ExportBatchID EntityID `json:"export_batch_id"`
}

const cutTupleLen = 7

// ParseCut decodes the raw tuple returned by get_cut.
func ParseCut(tuple []string) (Cut, error) {
	if len(tuple) != cutTupleLen {
		return Cut{}, fmt.Errorf("cut tuple: want %d fields, got %d", cutTupleLen, len(tuple))
	}
	id, err := ParseEntityID(tuple[0])
	if err != nil {
		return Cut{}, fmt.Errorf("cut tuple: %w", err)
	}
	animalID, err := ParseEntityID(tuple[1])
	if err != nil {
		return Cut{}, fmt.Errorf("cut tuple: %w", err)
	}
	cutType, err := strconv.ParseUint(tuple[2], 10, 8)
	if err != nil {
		return Cut{}, fmt.Errorf("cut tuple type: %w", err)
	}
	weight, err := ParseGrams(tuple[3])
	if err != nil {
		return Cut{}, fmt.Errorf("cut tuple: %w", err)
	}
	certified, err := strconv.ParseBool(tuple[5])
	if err != nil {
		return Cut{}, fmt.Errorf("cut tuple certified: %w", err)
	}
	exportBatchID, err := ParseEntityID(tuple[6])
	if err != nil {
		return Cut{}, fmt.Errorf("cut tuple: %w", err)
	}
	return Cut{
		ID:            id,
		AnimalID:      animalID,
		CutType:       CutType(cutType),
		WeightGrams:   weight,
		ProcessorAddr: tuple[4],
		Certified:     certified,
		ExportBatchID: exportBatchID,
	}, nil
}

// Tuple renders the cut back as a ledger-shaped tuple.
func (c Cut) Tuple() []string {
	return []string{
		c.ID.String(),
		c.AnimalID.String(),
		strconv.FormatUint(uint64(c.CutType), 10),
		c.WeightGrams.String(),
		c.ProcessorAddr,
		strconv.FormatBool(c.Certified),
		c.ExportBatchID.String(),
	}
}
