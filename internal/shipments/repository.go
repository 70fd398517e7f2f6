package shipments

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

// CreateShipment inserts a new DRAFT shipment.
func (r *PGRepository) CreateShipment(ctx context.Context, s Shipment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO shipments (org_id, id, status, lines, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		s.OrgID, s.ID, s.Status, s.Lines, s.CreatedAt)
	return err
}

// GetShipment fetches one shipment without locking.
func (r *PGRepository) GetShipment(ctx context.Context, orgID, shipmentID string) (Shipment, error) {
	return scanShipment(r.pool.QueryRow(ctx, selectShipment+` WHERE org_id = $1 AND id = $2`, orgID, shipmentID), orgID, shipmentID)
}

const selectShipment = `
	SELECT status, COALESCE(shipment_no, ''), lines,
	       COALESCE(loaded_by, 0), loaded_at, created_at
	FROM shipments`

func scanShipment(row pgx.Row, orgID, shipmentID string) (Shipment, error) {
	s := Shipment{OrgID: orgID, ID: shipmentID}
	err := row.Scan(&s.Status, &s.ShipmentNo, &s.Lines, &s.LoadedBy, &s.LoadedAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shipment{}, ErrShipmentNotFound
		}
		return Shipment{}, err
	}
	return s, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetShipmentForUpdate(ctx context.Context, orgID, shipmentID string) (Shipment, error) {
	return scanShipment(r.tx.QueryRow(ctx, selectShipment+` WHERE org_id = $1 AND id = $2 FOR UPDATE`, orgID, shipmentID), orgID, shipmentID)
}

func (r *txRepository) GetReceiptBalanceForUpdate(ctx context.Context, orgID, receiptID string) (float64, error) {
	var remaining float64
	err := r.tx.QueryRow(ctx, `
		SELECT remaining_kg FROM receipt_balances
		WHERE org_id = $1 AND receipt_id = $2 FOR UPDATE`, orgID, receiptID).
		Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrReceiptBalanceNotFound
		}
		return 0, err
	}
	return remaining, nil
}

func (r *txRepository) SaveReceiptBalance(ctx context.Context, orgID, receiptID string, remainingKg float64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE receipt_balances SET remaining_kg = $1, updated_at = $2
		WHERE org_id = $3 AND receipt_id = $4`,
		remainingKg, at, orgID, receiptID)
	return err
}

func (r *txRepository) NextSequence(ctx context.Context, orgID, name string) (int64, error) {
	return sequence.Next(ctx, r.tx, orgID, name)
}

func (r *txRepository) MarkLoaded(ctx context.Context, orgID, shipmentID, shipmentNo string, actorID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE shipments
		SET status = $1, shipment_no = $2, loaded_by = $3, loaded_at = $4
		WHERE org_id = $5 AND id = $6`,
		StatusLoaded, shipmentNo, actorID, at, orgID, shipmentID)
	return err
}

var (
	_ RepositoryPort = (*PGRepository)(nil)
	_ TxRepository   = (*txRepository)(nil)
)
