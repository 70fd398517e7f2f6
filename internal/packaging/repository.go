package packaging

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

// CreateTransfer inserts a new DRAFT transfer.
func (r *PGRepository) CreateTransfer(ctx context.Context, t Transfer) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO packaging_transfers (org_id, id, status, from_owner, to_owner, items, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.OrgID, t.ID, t.Status, t.FromOwner, t.ToOwner, t.Items, t.CreatedAt)
	return err
}

// GetTransfer fetches one transfer without locking.
func (r *PGRepository) GetTransfer(ctx context.Context, orgID, docID string) (Transfer, error) {
	return scanTransfer(r.pool.QueryRow(ctx, selectTransfer+` WHERE org_id = $1 AND id = $2`, orgID, docID), orgID, docID)
}

// ListBalances returns every packaging balance row of the organization.
func (r *PGRepository) ListBalances(ctx context.Context, orgID string) ([]Balance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT org_id, owner_key, balances, updated_at
		FROM packaging_balances WHERE org_id = $1 ORDER BY owner_key`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Balance
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.OrgID, &b.OwnerKey, &b.Balances, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const selectTransfer = `
	SELECT status, COALESCE(doc_no, ''), from_owner, to_owner, items,
	       COALESCE(posted_by, 0), posted_at, created_at
	FROM packaging_transfers`

func scanTransfer(row pgx.Row, orgID, docID string) (Transfer, error) {
	t := Transfer{OrgID: orgID, ID: docID}
	err := row.Scan(&t.Status, &t.DocNo, &t.FromOwner, &t.ToOwner, &t.Items, &t.PostedBy, &t.PostedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, ErrTransferNotFound
		}
		return Transfer{}, err
	}
	return t, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetTransferForUpdate(ctx context.Context, orgID, docID string) (Transfer, error) {
	return scanTransfer(r.tx.QueryRow(ctx, selectTransfer+` WHERE org_id = $1 AND id = $2 FOR UPDATE`, orgID, docID), orgID, docID)
}

func (r *txRepository) NextSequence(ctx context.Context, orgID, name string) (int64, error) {
	return sequence.Next(ctx, r.tx, orgID, name)
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, orgID, ownerKey string) (Balance, error) {
	b := Balance{OrgID: orgID, OwnerKey: ownerKey}
	err := r.tx.QueryRow(ctx, `
		SELECT balances, updated_at FROM packaging_balances
		WHERE org_id = $1 AND owner_key = $2 FOR UPDATE`, orgID, ownerKey).
		Scan(&b.Balances, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

func (r *txRepository) SaveBalance(ctx context.Context, b Balance) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO packaging_balances (org_id, owner_key, balances, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (org_id, owner_key)
		DO UPDATE SET balances = EXCLUDED.balances, updated_at = EXCLUDED.updated_at`,
		b.OrgID, b.OwnerKey, b.Balances, b.UpdatedAt)
	return err
}

func (r *txRepository) MarkPosted(ctx context.Context, orgID, docID, docNo string, actorID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE packaging_transfers
		SET status = $1, doc_no = $2, posted_by = $3, posted_at = $4
		WHERE org_id = $5 AND id = $6`,
		StatusPosted, docNo, actorID, at, orgID, docID)
	return err
}

var (
	_ RepositoryPort = (*PGRepository)(nil)
	_ TxRepository   = (*txRepository)(nil)
)
