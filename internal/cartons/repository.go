package cartons

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

// CreatePurchase inserts a new DRAFT purchase.
func (r *PGRepository) CreatePurchase(ctx context.Context, p Purchase) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO carton_purchases (org_id, id, status, items, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		p.OrgID, p.ID, p.Status, p.Items, p.CreatedAt)
	return err
}

// CreateIssue inserts a new DRAFT issue.
func (r *PGRepository) CreateIssue(ctx context.Context, i Issue) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO carton_issues (org_id, id, status, items, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		i.OrgID, i.ID, i.Status, i.Items, i.CreatedAt)
	return err
}

// GetPurchase fetches one purchase without locking.
func (r *PGRepository) GetPurchase(ctx context.Context, orgID, purchaseID string) (Purchase, error) {
	return scanPurchase(r.pool.QueryRow(ctx, selectPurchase+` WHERE org_id = $1 AND id = $2`, orgID, purchaseID), orgID, purchaseID)
}

// GetIssue fetches one issue without locking.
func (r *PGRepository) GetIssue(ctx context.Context, orgID, issueID string) (Issue, error) {
	return scanIssue(r.pool.QueryRow(ctx, selectIssue+` WHERE org_id = $1 AND id = $2`, orgID, issueID), orgID, issueID)
}

// ListBalances returns every carton stock row of the organization.
func (r *PGRepository) ListBalances(ctx context.Context, orgID string) ([]Balance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT org_id, item_id, qty, updated_at
		FROM carton_balances WHERE org_id = $1 ORDER BY item_id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Balance
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.OrgID, &b.ItemID, &b.Qty, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const selectPurchase = `
	SELECT status, COALESCE(purchase_no, ''), items,
	       COALESCE(posted_by, 0), posted_at, created_at
	FROM carton_purchases`

const selectIssue = `
	SELECT status, COALESCE(issue_no, ''), items,
	       COALESCE(posted_by, 0), posted_at, created_at
	FROM carton_issues`

func scanPurchase(row pgx.Row, orgID, purchaseID string) (Purchase, error) {
	p := Purchase{OrgID: orgID, ID: purchaseID}
	err := row.Scan(&p.Status, &p.PurchaseNo, &p.Items, &p.PostedBy, &p.PostedAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, ErrPurchaseNotFound
		}
		return Purchase{}, err
	}
	return p, nil
}

func scanIssue(row pgx.Row, orgID, issueID string) (Issue, error) {
	i := Issue{OrgID: orgID, ID: issueID}
	err := row.Scan(&i.Status, &i.IssueNo, &i.Items, &i.PostedBy, &i.PostedAt, &i.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Issue{}, ErrIssueNotFound
		}
		return Issue{}, err
	}
	return i, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetPurchaseForUpdate(ctx context.Context, orgID, purchaseID string) (Purchase, error) {
	return scanPurchase(r.tx.QueryRow(ctx, selectPurchase+` WHERE org_id = $1 AND id = $2 FOR UPDATE`, orgID, purchaseID), orgID, purchaseID)
}

func (r *txRepository) GetIssueForUpdate(ctx context.Context, orgID, issueID string) (Issue, error) {
	return scanIssue(r.tx.QueryRow(ctx, selectIssue+` WHERE org_id = $1 AND id = $2 FOR UPDATE`, orgID, issueID), orgID, issueID)
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, orgID, itemID string) (int64, error) {
	var qty int64
	err := r.tx.QueryRow(ctx, `
		SELECT qty FROM carton_balances
		WHERE org_id = $1 AND item_id = $2 FOR UPDATE`, orgID, itemID).
		Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrBalanceNotFound
		}
		return 0, err
	}
	return qty, nil
}

func (r *txRepository) SaveBalance(ctx context.Context, orgID, itemID string, qty int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO carton_balances (org_id, item_id, qty, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (org_id, item_id)
		DO UPDATE SET qty = EXCLUDED.qty, updated_at = EXCLUDED.updated_at`,
		orgID, itemID, qty, at)
	return err
}

func (r *txRepository) NextSequence(ctx context.Context, orgID, name string) (int64, error) {
	return sequence.Next(ctx, r.tx, orgID, name)
}

func (r *txRepository) MarkPurchasePosted(ctx context.Context, orgID, purchaseID, purchaseNo string, actorID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE carton_purchases
		SET status = $1, purchase_no = $2, posted_by = $3, posted_at = $4
		WHERE org_id = $5 AND id = $6`,
		StatusPosted, purchaseNo, actorID, at, orgID, purchaseID)
	return err
}

func (r *txRepository) MarkIssuePosted(ctx context.Context, orgID, issueID, issueNo string, actorID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE carton_issues
		SET status = $1, issue_no = $2, posted_by = $3, posted_at = $4
		WHERE org_id = $5 AND id = $6`,
		StatusPosted, issueNo, actorID, at, orgID, issueID)
	return err
}

var (
	_ RepositoryPort = (*PGRepository)(nil)
	_ TxRepository   = (*txRepository)(nil)
)
