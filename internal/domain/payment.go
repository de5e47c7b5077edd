package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the settlement position of one acceptance attempt.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
)

// PaymentRecord tracks one acceptance attempt. A failed record does not
// block a retry; retries create a new record rather than mutating the old
// one.
type PaymentRecord struct {
	ID          uuid.UUID     `json:"id"`
	SubjectID   EntityID      `json:"subject_id"`
	SubjectType SubjectType   `json:"subject_type"`
	AmountCents int64         `json:"amount_cents"`
	Payer       string        `json:"payer"`
	Payee       string        `json:"payee"`
	Status      PaymentStatus `json:"status"`
	GatewayRef  string        `json:"gateway_ref,omitempty"`
	LedgerTxRef string        `json:"ledger_tx_ref,omitempty"`
	FailReason  string        `json:"fail_reason,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// NewPaymentRecord creates a pending record for one acceptance attempt.
func NewPaymentRecord(subjectID EntityID, subjectType SubjectType, payer, payee string, amountCents int64, now time.Time) PaymentRecord {
	return PaymentRecord{
		ID:          uuid.New(),
		SubjectID:   subjectID,
		SubjectType: subjectType,
		AmountCents: amountCents,
		Payer:       payer,
		Payee:       payee,
		Status:      PaymentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
