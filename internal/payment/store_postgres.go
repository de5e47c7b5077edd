package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"beeftrace/internal/domain"
	"beeftrace/pkg/platform/sentinel"
)

const paymentSchema = `
CREATE TABLE IF NOT EXISTS payment_records (
	id            UUID PRIMARY KEY,
	subject_id    NUMERIC(39) NOT NULL,
	subject_type  TEXT NOT NULL,
	amount_cents  BIGINT NOT NULL,
	payer         TEXT NOT NULL,
	payee         TEXT NOT NULL,
	status        TEXT NOT NULL,
	gateway_ref   TEXT NOT NULL DEFAULT '',
	ledger_tx_ref TEXT NOT NULL DEFAULT '',
	fail_reason   TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS payment_records_subject_idx
	ON payment_records (subject_type, subject_id, created_at DESC);
`

// PostgresStore is the durable payment record store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool against url and ensures the
// schema exists.
func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, paymentSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure payment schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Create(ctx context.Context, rec domain.PaymentRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_records
			(id, subject_id, subject_type, amount_cents, payer, payee,
			 status, gateway_ref, ledger_tx_ref, fail_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.SubjectID.String(), string(rec.SubjectType), rec.AmountCents,
		rec.Payer, rec.Payee, string(rec.Status), rec.GatewayRef, rec.LedgerTxRef,
		rec.FailReason, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, rec domain.PaymentRecord) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payment_records
		SET status = $2, gateway_ref = $3, ledger_tx_ref = $4,
		    fail_reason = $5, updated_at = $6
		WHERE id = $1`,
		rec.ID, string(rec.Status), rec.GatewayRef, rec.LedgerTxRef,
		rec.FailReason, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update payment record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update payment record: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (domain.PaymentRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, subject_id, subject_type, amount_cents, payer, payee,
		       status, gateway_ref, ledger_tx_ref, fail_reason, created_at, updated_at
		FROM payment_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PaymentRecord{}, sentinel.ErrNotFound
	}
	return rec, err
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subjectType domain.SubjectType, subjectID domain.EntityID) ([]domain.PaymentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject_id, subject_type, amount_cents, payer, payee,
		       status, gateway_ref, ledger_tx_ref, fail_reason, created_at, updated_at
		FROM payment_records
		WHERE subject_type = $1 AND subject_id = $2
		ORDER BY created_at DESC`,
		string(subjectType), subjectID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list payment records: %w", err)
	}
	defer rows.Close()

	var out []domain.PaymentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (domain.PaymentRecord, error) {
	var rec domain.PaymentRecord
	var subjectID, subjectType, status string
	err := row.Scan(
		&rec.ID, &subjectID, &subjectType, &rec.AmountCents, &rec.Payer, &rec.Payee,
		&status, &rec.GatewayRef, &rec.LedgerTxRef, &rec.FailReason,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	id, err := domain.ParseEntityID(subjectID)
	if err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("payment record %s: %w", rec.ID, err)
	}
	rec.SubjectID = id
	rec.SubjectType = domain.SubjectType(subjectType)
	rec.Status = domain.PaymentStatus(status)
	return rec, nil
}
