// Package ledger defines the client surface for the external distributed
// ledger that holds authoritative supply-chain state, together with the
// error taxonomy callers dispatch on, and an in-memory simulation of the
// ledger contract used in development and tests.
package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Read entrypoints.
const (
	EPGetAnimal             = "get_animal"
	EPGetBatch              = "get_batch"
	EPGetCut                = "get_cut"
	EPGetAnimalsInBatch     = "get_animals_in_batch"
	EPGetAnimalsByOwner     = "get_animals_by_owner"
	EPGetBatchesByProcessor = "get_batches_by_processor"
	EPGetSystemStats        = "get_system_stats"
	EPHasRole               = "has_role"
	EPGetRoleMembers        = "get_role_members"
	EPGetToken              = "get_token"
	EPVerifyToken           = "verify_token"
)

// Write entrypoints. Callers pass the acting address as the first argument;
// all 64/128-bit values are string-encoded decimals.
const (
	EPCreateAnimal    = "create_animal"
	EPCreateBatch     = "create_batch"
	EPAddToBatch      = "add_to_batch"
	EPTransferBatch   = "transfer_batch"
	EPAcceptTransfer  = "accept_transfer"
	EPProcessAnimal   = "process_animal"
	EPProcessBatch    = "process_batch"
	EPCertifyAnimal   = "certify_animal"
	EPCertifyBatch    = "certify_batch"
	EPExportAnimal    = "export_animal"
	EPCreateCut       = "create_cut"
	EPMintToken       = "mint_token"
	EPQuarantine      = "quarantine_animal"
	EPClearQuarantine = "clear_quarantine"
	EPGrantRole       = "grant_role"
	EPRevokeRole      = "revoke_role"
)

// Role identifiers mirrored from the contract.
const (
	RoleProducer  = "PRODUCER_ROLE"
	RoleProcessor = "PROCESSOR_ROLE"
	RoleCertifier = "CERTIFIER_ROLE"
	RoleExporter  = "EXPORTER_ROLE"
	RoleVet       = "VET_ROLE"
	RoleAdmin     = "ADMIN_ROLE"
)

// TxRef references a submitted write transaction.
type TxRef string

// Receipt is the finalized outcome of a write transaction. Result carries
// entrypoint-specific values (e.g. the id of a created entity) as decimal
// strings.
type Receipt struct {
	TxRef  TxRef
	Status string
	Result []string
}

// Client is the single gateway to ledger state. Reads return the contract's
// primitive string tuples; domain parsing happens at the caller's boundary.
// Writes return a transaction reference that must be awaited to finality
// before the result is trusted.
type Client interface {
	Call(ctx context.Context, entrypoint string, args []string) ([]string, error)
	Invoke(ctx context.Context, entrypoint string, args []string) (TxRef, error)
	WaitForTx(ctx context.Context, ref TxRef) (Receipt, error)
}

// ErrUnreachable marks network or timeout failures. Safe to retry a bounded
// number of times.
var ErrUnreachable = errors.New("ledger unreachable")

// ErrRejected marks an on-ledger precondition or logic failure. Never
// retried; the rejection reason is authoritative.
var ErrRejected = errors.New("ledger rejected")

// RejectedError carries the entrypoint and the contract's rejection reason.
type RejectedError struct {
	Entrypoint string
	Reason     string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("ledger rejected %s: %s", e.Entrypoint, e.Reason)
}

func (e *RejectedError) Unwrap() error { return ErrRejected }

func reject(entrypoint, format string, args ...any) error {
	return &RejectedError{Entrypoint: entrypoint, Reason: fmt.Sprintf(format, args...)}
}
