// Package provenance mints and verifies the QR tokens consumers scan.
// Verification answers two questions at once: is the token real, and does
// its subject still resolve. A real token over a vanished subject is
// reported invalid rather than half-answered.
package provenance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"beeftrace/internal/domain"
	"beeftrace/internal/ledger"
)

// cacheView supplies mirrored subject state for building public projections.
type cacheView interface {
	GetAnimal(ctx context.Context, id domain.EntityID) (domain.Animal, error)
	GetBatch(ctx context.Context, id domain.EntityID) (domain.Batch, error)
}

// Verification is the outcome of checking a scanned token.
type Verification struct {
	Valid  bool                    `json:"valid"`
	Token  *domain.ProvenanceToken `json:"token,omitempty"`
	Public *domain.PublicData      `json:"public_metadata,omitempty"`
}

// Service mints and verifies provenance tokens.
type Service struct {
	ledger ledger.Client
	cache  cacheView
	log    *slog.Logger
}

// New builds a provenance service.
func New(client ledger.Client, cache cacheView, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{ledger: client, cache: cache, log: log}
}

// Mint creates a token for a subject and returns its hash. The hash is
// derived from the minting transaction, so it exists only after finality.
func (s *Service) Mint(ctx context.Context, actor string, subjectType domain.SubjectType, subjectID domain.EntityID) (domain.ProvenanceToken, error) {
	if !subjectType.Valid() {
		return domain.ProvenanceToken{}, fmt.Errorf("mint token: invalid subject type %q", subjectType)
	}
	if subjectID.IsZero() {
		return domain.ProvenanceToken{}, fmt.Errorf("mint token: zero subject id")
	}

	ref, err := s.ledger.Invoke(ctx, ledger.EPMintToken, []string{actor, string(subjectType), subjectID.String()})
	if err != nil {
		return domain.ProvenanceToken{}, fmt.Errorf("mint token for %s %s: %w", subjectType, subjectID, err)
	}
	receipt, err := s.ledger.WaitForTx(ctx, ref)
	if err != nil {
		return domain.ProvenanceToken{}, fmt.Errorf("mint token tx %s: %w", ref, err)
	}
	if receipt.Status != "accepted" || len(receipt.Result) == 0 {
		return domain.ProvenanceToken{}, fmt.Errorf("mint token tx %s finalized as %s: %w", ref, receipt.Status, ledger.ErrRejected)
	}

	hash := receipt.Result[0]
	if want := domain.TokenHash(string(ref), subjectType, subjectID); hash != want {
		return domain.ProvenanceToken{}, fmt.Errorf("mint token tx %s: hash mismatch", ref)
	}

	tok := domain.ProvenanceToken{
		Hash:        hash,
		SubjectType: subjectType,
		SubjectID:   subjectID,
	}
	s.log.InfoContext(ctx, "provenance token minted",
		"subject_type", subjectType,
		"subject_id", subjectID,
		"hash", hash,
	)
	return tok, nil
}

// Verify checks a scanned token. Unknown hashes, ledger-side mismatches,
// and tokens whose subject no longer resolves all come back invalid; only
// transport failures surface as errors.
func (s *Service) Verify(ctx context.Context, hash string) (Verification, error) {
	if hash == "" {
		return Verification{}, nil
	}
	ok, err := s.verifyOnLedger(ctx, hash)
	if err != nil {
		return Verification{}, err
	}
	if !ok {
		return Verification{}, nil
	}

	tok, err := s.fetchToken(ctx, hash)
	if err != nil {
		if errors.Is(err, ledger.ErrUnreachable) {
			return Verification{}, err
		}
		return Verification{}, nil
	}

	public, err := s.publicData(ctx, tok)
	if err != nil {
		if errors.Is(err, ledger.ErrUnreachable) {
			return Verification{}, err
		}
		s.log.WarnContext(ctx, "token verifies but subject does not resolve",
			"hash", hash,
			"subject_type", tok.SubjectType,
			"subject_id", tok.SubjectID,
		)
		return Verification{}, nil
	}
	tok.Public = public

	return Verification{Valid: true, Token: &tok, Public: &public}, nil
}

func (s *Service) verifyOnLedger(ctx context.Context, hash string) (bool, error) {
	res, err := s.ledger.Call(ctx, ledger.EPVerifyToken, []string{hash})
	if err != nil {
		return false, fmt.Errorf("verify token: %w", err)
	}
	if len(res) != 1 {
		return false, fmt.Errorf("verify token: want 1 field, got %d", len(res))
	}
	return res[0] == "true", nil
}

func (s *Service) fetchToken(ctx context.Context, hash string) (domain.ProvenanceToken, error) {
	tuple, err := s.ledger.Call(ctx, ledger.EPGetToken, []string{hash})
	if err != nil {
		return domain.ProvenanceToken{}, err
	}
	if len(tuple) != 4 {
		return domain.ProvenanceToken{}, fmt.Errorf("token tuple: want 4 fields, got %d", len(tuple))
	}
	id, err := domain.ParseEntityID(tuple[2])
	if err != nil {
		return domain.ProvenanceToken{}, fmt.Errorf("token subject id: %w", err)
	}
	mintedAt, err := strconv.ParseInt(tuple[3], 10, 64)
	if err != nil {
		return domain.ProvenanceToken{}, fmt.Errorf("token minted at: %w", err)
	}
	tok := domain.ProvenanceToken{
		Hash:        tuple[0],
		SubjectType: domain.SubjectType(tuple[1]),
		SubjectID:   id,
		MintedAt:    time.Unix(mintedAt, 0).UTC(),
	}
	if err := tok.Validate(); err != nil {
		return domain.ProvenanceToken{}, err
	}
	return tok, nil
}

// publicData builds the consumer-safe projection for a token's subject. It
// prefers the mirror and falls back to the ledger. Wallet addresses never
// appear in the projection.
func (s *Service) publicData(ctx context.Context, tok domain.ProvenanceToken) (domain.PublicData, error) {
	switch tok.SubjectType {
	case domain.SubjectAnimal:
		a, err := s.animal(ctx, tok.SubjectID)
		if err != nil {
			return domain.PublicData{}, err
		}
		return animalPublicData(a), nil

	case domain.SubjectBatch:
		b, err := s.batch(ctx, tok.SubjectID)
		if err != nil {
			return domain.PublicData{}, err
		}
		return domain.PublicData{
			ProcessorName:  partyLabel("Processor", b.ProcessorAddr),
			ProcessingDate: b.ProcessedAt,
			Certifications: certifications(b.State >= domain.BatchCertified),
			OriginCountry:  originCountry,
		}, nil

	case domain.SubjectCut:
		tuple, err := s.ledger.Call(ctx, ledger.EPGetCut, []string{tok.SubjectID.String()})
		if err != nil {
			return domain.PublicData{}, err
		}
		c, err := domain.ParseCut(tuple)
		if err != nil {
			return domain.PublicData{}, err
		}
		a, err := s.animal(ctx, c.AnimalID)
		if err != nil {
			return domain.PublicData{}, err
		}
		pd := animalPublicData(a)
		pd.CutType = c.CutType
		pd.CutWeightGrams = c.WeightGrams
		return pd, nil
	}
	return domain.PublicData{}, fmt.Errorf("unresolvable subject type %q", tok.SubjectType)
}

const originCountry = "UY"

func animalPublicData(a domain.Animal) domain.PublicData {
	return domain.PublicData{
		BreedCode:      a.BreedCode,
		BirthDate:      a.BirthDate,
		ProcessorName:  partyLabel("Processor", a.ProcessorAddr),
		CertifierName:  partyLabel("Certifier", a.CertifierAddr),
		Certifications: certifications(a.State >= domain.AnimalCertified),
		OriginCountry:  originCountry,
	}
}

// partyLabel derives a stable consumer-facing name for a participant. The
// label carries only a short digest of the address, so two tokens over the
// same party match without the projection revealing the wallet itself.
func partyLabel(role, addr string) string {
	if addr == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(addr))
	return role + " " + hex.EncodeToString(sum[:4])
}

func certifications(certified bool) string {
	if certified {
		return "export-grade"
	}
	return ""
}

func (s *Service) animal(ctx context.Context, id domain.EntityID) (domain.Animal, error) {
	if a, err := s.cache.GetAnimal(ctx, id); err == nil {
		return a, nil
	}
	tuple, err := s.ledger.Call(ctx, ledger.EPGetAnimal, []string{id.String()})
	if err != nil {
		return domain.Animal{}, err
	}
	return domain.ParseAnimal(tuple)
}

func (s *Service) batch(ctx context.Context, id domain.EntityID) (domain.Batch, error) {
	if b, err := s.cache.GetBatch(ctx, id); err == nil {
		return b, nil
	}
	tuple, err := s.ledger.Call(ctx, ledger.EPGetBatch, []string{id.String()})
	if err != nil {
		return domain.Batch{}, err
	}
	return domain.ParseBatch(tuple)
}
