package receipts

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/packhouse-erp/packhouse/internal/platform/db"
	"github.com/packhouse-erp/packhouse/internal/sequence"
)

// PGRepository implements RepositoryPort using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// WithTx runs fn inside a repeatable-read transaction with conflict retry.
func (r *PGRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// CreateReceipt inserts a new DRAFT receipt.
func (r *PGRepository) CreateReceipt(ctx context.Context, rec Receipt) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbound_receipts (org_id, id, status, farm_id, qty_kg, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.OrgID, rec.ID, rec.Status, rec.FarmID, rec.QtyKg, rec.CreatedAt)
	return err
}

// GetReceipt fetches one receipt without locking.
func (r *PGRepository) GetReceipt(ctx context.Context, orgID, receiptID string) (Receipt, error) {
	return scanReceipt(r.pool.QueryRow(ctx, selectReceipt+` WHERE org_id = $1 AND id = $2`, orgID, receiptID), orgID, receiptID)
}

// GetBalance fetches one receipt's remaining-weight row.
func (r *PGRepository) GetBalance(ctx context.Context, orgID, receiptID string) (Balance, error) {
	b := Balance{OrgID: orgID, ReceiptID: receiptID}
	err := r.pool.QueryRow(ctx, `
		SELECT remaining_kg, updated_at FROM receipt_balances
		WHERE org_id = $1 AND receipt_id = $2`, orgID, receiptID).
		Scan(&b.RemainingKg, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

const selectReceipt = `
	SELECT status, COALESCE(receipt_no, ''), farm_id, qty_kg,
	       COALESCE(approved_by, 0), approved_at, created_at
	FROM inbound_receipts`

func scanReceipt(row pgx.Row, orgID, receiptID string) (Receipt, error) {
	rec := Receipt{OrgID: orgID, ID: receiptID}
	err := row.Scan(&rec.Status, &rec.ReceiptNo, &rec.FarmID, &rec.QtyKg, &rec.ApprovedBy, &rec.ApprovedAt, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receipt{}, ErrReceiptNotFound
		}
		return Receipt{}, err
	}
	return rec, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetReceiptForUpdate(ctx context.Context, orgID, receiptID string) (Receipt, error) {
	return scanReceipt(r.tx.QueryRow(ctx, selectReceipt+` WHERE org_id = $1 AND id = $2 FOR UPDATE`, orgID, receiptID), orgID, receiptID)
}

func (r *txRepository) NextSequence(ctx context.Context, orgID, name string) (int64, error) {
	return sequence.Next(ctx, r.tx, orgID, name)
}

func (r *txRepository) SaveBalance(ctx context.Context, b Balance) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO receipt_balances (org_id, receipt_id, remaining_kg, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (org_id, receipt_id)
		DO UPDATE SET remaining_kg = EXCLUDED.remaining_kg, updated_at = EXCLUDED.updated_at`,
		b.OrgID, b.ReceiptID, b.RemainingKg, b.UpdatedAt)
	return err
}

func (r *txRepository) MarkApproved(ctx context.Context, orgID, receiptID, receiptNo string, actorID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE inbound_receipts
		SET status = $1, receipt_no = $2, approved_by = $3, approved_at = $4
		WHERE org_id = $5 AND id = $6`,
		StatusApproved, receiptNo, actorID, at, orgID, receiptID)
	return err
}

var (
	_ RepositoryPort = (*PGRepository)(nil)
	_ TxRepository   = (*txRepository)(nil)
)
