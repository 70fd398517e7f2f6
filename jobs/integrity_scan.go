package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// LedgerIntegrityJob scans balance tables for values that should be
// impossible: the posting workflows guarantee non-negativity, so any negative
// quantity found here indicates a write that bypassed them.
type LedgerIntegrityJob struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewLedgerIntegrityJob constructs the scan job.
func NewLedgerIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{pool: pool, logger: logger}
}

// Handle runs the scan as an Asynq task handler.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload LedgerIntegrityPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return err
		}
	}
	return j.Run(ctx, payload.OrgID)
}

// Run scans the three balance tables concurrently. Findings are logged, not
// repaired; repair is a manual operation.
func (j *LedgerIntegrityJob) Run(ctx context.Context, orgID string) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return j.scanPackaging(ctx, orgID) })
	g.Go(func() error { return j.scanReceipts(ctx, orgID) })
	g.Go(func() error { return j.scanCartons(ctx, orgID) })

	if err := g.Wait(); err != nil {
		return err
	}
	j.logger.Info("ledger integrity scan finished", "org_id", orgID)
	return nil
}

func (j *LedgerIntegrityJob) scanPackaging(ctx context.Context, orgID string) error {
	rows, err := j.pool.Query(ctx, `
		SELECT b.org_id, b.owner_key, kv.key, kv.value::bigint
		FROM packaging_balances b, jsonb_each_text(b.balances) kv
		WHERE kv.value::bigint < 0 AND ($1 = '' OR b.org_id = $1)`, orgID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var org, ownerKey, packType string
		var qty int64
		if err := rows.Scan(&org, &ownerKey, &packType, &qty); err != nil {
			return err
		}
		j.logger.Error("negative packaging balance",
			"org_id", org, "owner_key", ownerKey, "pack_type", packType, "qty", qty)
	}
	return rows.Err()
}

func (j *LedgerIntegrityJob) scanReceipts(ctx context.Context, orgID string) error {
	rows, err := j.pool.Query(ctx, `
		SELECT org_id, receipt_id, remaining_kg
		FROM receipt_balances
		WHERE remaining_kg < 0 AND ($1 = '' OR org_id = $1)`, orgID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var org, receiptID string
		var remaining float64
		if err := rows.Scan(&org, &receiptID, &remaining); err != nil {
			return err
		}
		j.logger.Error("negative receipt balance",
			"org_id", org, "receipt_id", receiptID, "remaining_kg", remaining)
	}
	return rows.Err()
}

func (j *LedgerIntegrityJob) scanCartons(ctx context.Context, orgID string) error {
	rows, err := j.pool.Query(ctx, `
		SELECT org_id, item_id, qty
		FROM carton_balances
		WHERE qty < 0 AND ($1 = '' OR org_id = $1)`, orgID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var org, itemID string
		var qty int64
		if err := rows.Scan(&org, &itemID, &qty); err != nil {
			return err
		}
		j.logger.Error("negative carton balance",
			"org_id", org, "item_id", itemID, "qty", qty)
	}
	return rows.Err()
}
