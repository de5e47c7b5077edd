package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SubjectType tags what a provenance token or payment refers to.
type SubjectType string

const (
	SubjectAnimal SubjectType = "animal"
	SubjectBatch  SubjectType = "batch"
	SubjectCut    SubjectType = "cut"
)

// Valid reports whether the tag is one of the known variants.
func (t SubjectType) Valid() bool {
	switch t {
	case SubjectAnimal, SubjectBatch, SubjectCut:
		return true
	}
	return false
}

// PublicData is the consumer-safe projection bound to a provenance token.
// Participant wallet addresses are never part of this projection.
type PublicData struct {
	BreedCode      uint32  `json:"breed_code"`
	BirthDate      int64   `json:"birth_date"`
	ProcessingDate int64   `json:"processing_date"`
	ProcessorName  string  `json:"processor_name"`
	CertifierName  string  `json:"certifier_name"`
	CutType        CutType `json:"cut_type,omitempty"`
	CutWeightGrams Grams   `json:"cut_weight_grams,omitempty"`
	Certifications string  `json:"certifications"`
	OriginCountry  string  `json:"origin_country"`
}

// ProvenanceToken binds a subject to its public provenance projection.
// Immutable once minted; many tokens may reference the same subject.
type ProvenanceToken struct {
	Hash        string      `json:"hash"`
	SubjectType SubjectType `json:"subject_type"`
	SubjectID   EntityID    `json:"subject_id"`
	MintedAt    time.Time   `json:"minted_at"`
	Public      PublicData  `json:"public_metadata"`
}

// TokenHash derives the opaque token hash from the minting transaction
// reference and the subject identity. Ledger and service must agree on this
// derivation, so it lives with the domain types.
func TokenHash(txRef string, subjectType SubjectType, subjectID EntityID) string {
	sum := sha256.Sum256([]byte(txRef + "|" + string(subjectType) + "|" + subjectID.String()))
	return "qr_" + string(subjectType) + "_" + subjectID.String() + "_" + hex.EncodeToString(sum[:8])
}

// Validate checks the token's own invariants.
func (t ProvenanceToken) Validate() error {
	if t.Hash == "" {
		return fmt.Errorf("provenance token: empty hash")
	}
	if !t.SubjectType.Valid() {
		return fmt.Errorf("provenance token: invalid subject type %q", t.SubjectType)
	}
	if t.SubjectID.IsZero() {
		return fmt.Errorf("provenance token: zero subject id")
	}
	return nil
}
