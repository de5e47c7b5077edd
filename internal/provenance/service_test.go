package provenance

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"beeftrace/internal/domain"
	"beeftrace/internal/ledger"
	"beeftrace/pkg/platform/sentinel"
)

type emptyCache struct{}

func (emptyCache) GetAnimal(ctx context.Context, id domain.EntityID) (domain.Animal, error) {
	return domain.Animal{}, sentinel.ErrNotFound
}

func (emptyCache) GetBatch(ctx context.Context, id domain.EntityID) (domain.Batch, error) {
	return domain.Batch{}, sentinel.ErrNotFound
}

func seededService(t *testing.T) (*ledger.Memory, *Service) {
	t.Helper()
	mem := ledger.NewMemory("0xadmin")
	mem.PutAnimal(domain.Animal{
		ID:        1,
		BreedCode: 12,
		BirthDate: 1600000000,
		State:     domain.AnimalCertified,
		OwnerAddr: "0xranch",
	})
	return mem, New(mem, emptyCache{}, nil)
}

func TestMintVerifyRoundtrip(t *testing.T) {
	_, svc := seededService(t)
	ctx := context.Background()

	tok, err := svc.Mint(ctx, "0xranch", domain.SubjectAnimal, 1)
	require.NoError(t, err)
	require.NotEmpty(t, tok.Hash)
	require.Contains(t, tok.Hash, "qr_animal_1_")

	v, err := svc.Verify(ctx, tok.Hash)
	require.NoError(t, err)
	require.True(t, v.Valid)
	require.NotNil(t, v.Public)
	require.EqualValues(t, 12, v.Public.BreedCode)
	require.Equal(t, "export-grade", v.Public.Certifications)
}

func TestVerifyRejectsFabricatedHash(t *testing.T) {
	_, svc := seededService(t)

	v, err := svc.Verify(context.Background(), "qr_animal_1_deadbeefdeadbeef")
	require.NoError(t, err)
	require.False(t, v.Valid)
	require.Nil(t, v.Token)
}

func TestVerifyEmptyHashInvalid(t *testing.T) {
	_, svc := seededService(t)
	v, err := svc.Verify(context.Background(), "")
	require.NoError(t, err)
	require.False(t, v.Valid)
}

func TestMintRejectsMissingSubject(t *testing.T) {
	_, svc := seededService(t)
	_, err := svc.Mint(context.Background(), "0xranch", domain.SubjectAnimal, 999)
	require.ErrorIs(t, err, ledger.ErrRejected)
}

func TestPublicDataHidesWalletAddresses(t *testing.T) {
	_, svc := seededService(t)
	ctx := context.Background()

	tok, err := svc.Mint(ctx, "0xranch", domain.SubjectAnimal, 1)
	require.NoError(t, err)
	v, err := svc.Verify(ctx, tok.Hash)
	require.NoError(t, err)

	// PublicData carries no address fields at all; assert the fields that
	// do exist are the consumer-facing ones.
	require.NotZero(t, v.Public.BirthDate)
	require.Equal(t, "UY", v.Public.OriginCountry)
}

func TestPublicDataCarriesPartyLabels(t *testing.T) {
	mem, svc := seededService(t)
	ctx := context.Background()

	mem.PutAnimal(domain.Animal{
		ID:            3,
		BreedCode:     12,
		BirthDate:     1600000000,
		State:         domain.AnimalCertified,
		OwnerAddr:     "0xranch",
		ProcessorAddr: "0xplant",
		CertifierAddr: "0xinspector",
	})

	tok, err := svc.Mint(ctx, "0xranch", domain.SubjectAnimal, 3)
	require.NoError(t, err)
	v, err := svc.Verify(ctx, tok.Hash)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(v.Public.ProcessorName, "Processor "))
	require.True(t, strings.HasPrefix(v.Public.CertifierName, "Certifier "))

	// The labels identify the parties without leaking their wallets.
	raw, err := json.Marshal(v.Public)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "0xplant")
	require.NotContains(t, string(raw), "0xinspector")
}

// orphanLedger verifies a token whose subject no longer resolves.
type orphanLedger struct {
	ledger.Client
}

func (o orphanLedger) Call(ctx context.Context, entrypoint string, args []string) ([]string, error) {
	switch entrypoint {
	case ledger.EPVerifyToken:
		return []string{"true"}, nil
	case ledger.EPGetToken:
		return []string{"qr_animal_42_0011223344556677", "animal", "42", "1700000000"}, nil
	case ledger.EPGetAnimal:
		return nil, &ledger.RejectedError{Entrypoint: entrypoint, Reason: "animal 42 does not exist"}
	}
	return nil, &ledger.RejectedError{Entrypoint: entrypoint, Reason: "unexpected call"}
}

func TestVerifyOrphanTokenInvalid(t *testing.T) {
	svc := New(orphanLedger{}, emptyCache{}, nil)

	v, err := svc.Verify(context.Background(), "qr_animal_42_0011223344556677")
	require.NoError(t, err)
	require.False(t, v.Valid)
}

func TestVerifyUnreachableLedgerSurfacesError(t *testing.T) {
	mem, svc := seededService(t)
	tok, err := svc.Mint(context.Background(), "0xranch", domain.SubjectAnimal, 1)
	require.NoError(t, err)

	mem.SetUnreachable(true)
	_, err = svc.Verify(context.Background(), tok.Hash)
	require.ErrorIs(t, err, ledger.ErrUnreachable)
}

func TestMintTokenForCutCarriesCutFields(t *testing.T) {
	mem, svc := seededService(t)
	ctx := context.Background()

	// Put the animal through processing so a cut can exist.
	mem.PutAnimal(domain.Animal{
		ID:            2,
		BreedCode:     12,
		BirthDate:     1600000000,
		State:         domain.AnimalProcessed,
		OwnerAddr:     "0xranch",
		ProcessorAddr: "0xplant",
	})
	ref, err := mem.Invoke(ctx, ledger.EPCreateCut, []string{"0xplant", "2", "1", "12000"})
	require.NoError(t, err)
	receipt, err := mem.WaitForTx(ctx, ref)
	require.NoError(t, err)
	cutID, err := domain.ParseEntityID(receipt.Result[0])
	require.NoError(t, err)

	tok, err := svc.Mint(ctx, "0xplant", domain.SubjectCut, cutID)
	require.NoError(t, err)

	v, err := svc.Verify(ctx, tok.Hash)
	require.NoError(t, err)
	require.True(t, v.Valid)
	require.Equal(t, domain.CutRib, v.Public.CutType)
	require.EqualValues(t, 12000, v.Public.CutWeightGrams)
}
