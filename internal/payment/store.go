package payment

import (
	"context"

	"github.com/google/uuid"

	"beeftrace/internal/domain"
)

// Store persists payment records. Records are the off-ledger audit trail of
// acceptance attempts, so every status change is written through.
type Store interface {
	Create(ctx context.Context, rec domain.PaymentRecord) error
	Update(ctx context.Context, rec domain.PaymentRecord) error
	Get(ctx context.Context, id uuid.UUID) (domain.PaymentRecord, error)
	// ListBySubject returns records newest-first.
	ListBySubject(ctx context.Context, subjectType domain.SubjectType, subjectID domain.EntityID) ([]domain.PaymentRecord, error)
	Close() error
}
