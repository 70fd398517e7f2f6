package receipts

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/packhouse-erp/packhouse/internal/orgs"
	"github.com/packhouse-erp/packhouse/internal/shared"
)

type memoryRepo struct {
	receipts map[string]Receipt
	balances map[string]Balance
	counters map[string]int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		receipts: make(map[string]Receipt),
		balances: make(map[string]Balance),
		counters: make(map[string]int64),
	}
}

func key(orgID, id string) string { return orgID + "/" + id }

func (r *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	snapReceipts := make(map[string]Receipt, len(r.receipts))
	for k, v := range r.receipts {
		snapReceipts[k] = v
	}
	snapBalances := make(map[string]Balance, len(r.balances))
	for k, v := range r.balances {
		snapBalances[k] = v
	}
	snapCounters := make(map[string]int64, len(r.counters))
	for k, v := range r.counters {
		snapCounters[k] = v
	}

	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.receipts = snapReceipts
		r.balances = snapBalances
		r.counters = snapCounters
		return err
	}
	return nil
}

func (r *memoryRepo) CreateReceipt(_ context.Context, rec Receipt) error {
	r.receipts[key(rec.OrgID, rec.ID)] = rec
	return nil
}

func (r *memoryRepo) GetReceipt(_ context.Context, orgID, receiptID string) (Receipt, error) {
	rec, ok := r.receipts[key(orgID, receiptID)]
	if !ok {
		return Receipt{}, ErrReceiptNotFound
	}
	return rec, nil
}

func (r *memoryRepo) GetBalance(_ context.Context, orgID, receiptID string) (Balance, error) {
	b, ok := r.balances[key(orgID, receiptID)]
	if !ok {
		return Balance{}, ErrBalanceNotFound
	}
	return b, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) GetReceiptForUpdate(ctx context.Context, orgID, receiptID string) (Receipt, error) {
	return tx.repo.GetReceipt(ctx, orgID, receiptID)
}

func (tx *memoryTx) NextSequence(_ context.Context, orgID, name string) (int64, error) {
	k := key(orgID, name)
	tx.repo.counters[k]++
	return tx.repo.counters[k], nil
}

func (tx *memoryTx) SaveBalance(_ context.Context, b Balance) error {
	tx.repo.balances[key(b.OrgID, b.ReceiptID)] = b
	return nil
}

func (tx *memoryTx) MarkApproved(_ context.Context, orgID, receiptID, receiptNo string, actorID int64, at time.Time) error {
	k := key(orgID, receiptID)
	rec := tx.repo.receipts[k]
	rec.Status = StatusApproved
	rec.ReceiptNo = receiptNo
	rec.ApprovedBy = actorID
	rec.ApprovedAt = &at
	tx.repo.receipts[k] = rec
	return nil
}

type stubGate struct {
	roles map[int64]orgs.Role
}

func (g *stubGate) Authorize(_ context.Context, _ string, userID int64, allowed ...orgs.Role) (orgs.Role, error) {
	role, ok := g.roles[userID]
	if !ok {
		return "", shared.NewError(shared.CodePermissionDenied, "User not registered in org.")
	}
	for _, a := range allowed {
		if role == a {
			return role, nil
		}
	}
	return "", shared.NewError(shared.CodePermissionDenied, "Insufficient role.")
}

var testTime = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestService(repo *memoryRepo, gate *stubGate) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, gate, nil, logger)
	svc.now = func() time.Time { return testTime }
	return svc
}

func accountingGate() *stubGate {
	return &stubGate{roles: map[int64]orgs.Role{1: orgs.RoleAccounting, 2: orgs.RoleViewer}}
}

func draftReceipt(id, farmID string, qtyKg float64) Receipt {
	return Receipt{
		OrgID:     "org-a",
		ID:        id,
		Status:    StatusDraft,
		FarmID:    farmID,
		QtyKg:     qtyKg,
		CreatedAt: testTime,
	}
}

func TestPostCreatesBalanceAndApproves(t *testing.T) {
	repo := newMemoryRepo()
	repo.receipts[key("org-a", "r1")] = draftReceipt("r1", "farm9", 1000)
	svc := newTestService(repo, accountingGate())

	err := svc.Post(context.Background(), "org-a", "r1", 1)
	require.NoError(t, err)

	b := repo.balances[key("org-a", "r1")]
	require.Equal(t, float64(1000), b.RemainingKg)

	rec := repo.receipts[key("org-a", "r1")]
	require.Equal(t, StatusApproved, rec.Status)
	require.Equal(t, "IR-20250601-0001", rec.ReceiptNo)
	require.Equal(t, int64(1), rec.ApprovedBy)
	require.NotNil(t, rec.ApprovedAt)
}

func TestPostSecondCallFailsPrecondition(t *testing.T) {
	repo := newMemoryRepo()
	repo.receipts[key("org-a", "r1")] = draftReceipt("r1", "farm9", 500)
	svc := newTestService(repo, accountingGate())

	require.NoError(t, svc.Post(context.Background(), "org-a", "r1", 1))

	err := svc.Post(context.Background(), "org-a", "r1", 1)
	require.EqualError(t, err, "Only DRAFT can be posted.")
	require.Equal(t, shared.CodeFailedPrecondition, shared.CodeOf(err))
	// The first approval's balance is untouched.
	require.Equal(t, float64(500), repo.balances[key("org-a", "r1")].RemainingKg)
}

func TestPostRejectsAssignedReceiptNo(t *testing.T) {
	repo := newMemoryRepo()
	rec := draftReceipt("r1", "farm9", 500)
	rec.ReceiptNo = "IR-20250531-0003"
	repo.receipts[key("org-a", "r1")] = rec
	svc := newTestService(repo, accountingGate())

	err := svc.Post(context.Background(), "org-a", "r1", 1)

	require.EqualError(t, err, "receiptNo already set.")
}

func TestPostUnknownReceipt(t *testing.T) {
	svc := newTestService(newMemoryRepo(), accountingGate())

	err := svc.Post(context.Background(), "org-a", "missing", 1)

	require.EqualError(t, err, "Receipt not found.")
	require.Equal(t, shared.CodeNotFound, shared.CodeOf(err))
}

func TestPostValidatesPayload(t *testing.T) {
	repo := newMemoryRepo()
	repo.receipts[key("org-a", "r1")] = draftReceipt("r1", "", 100)
	repo.receipts[key("org-a", "r2")] = draftReceipt("r2", "farm9", -1)
	svc := newTestService(repo, accountingGate())

	err := svc.Post(context.Background(), "org-a", "r1", 1)
	require.EqualError(t, err, "farmId required.")

	err = svc.Post(context.Background(), "org-a", "r2", 1)
	require.EqualError(t, err, "Field qtyKg must be a non-negative number.")
	require.Equal(t, shared.CodeInvalidArgument, shared.CodeOf(err))
	// Failed attempts never consume sequence values.
	require.Zero(t, repo.counters[key("org-a", "IR_20250601")])
}

func TestPostZeroWeightReceiptIsAllowed(t *testing.T) {
	repo := newMemoryRepo()
	repo.receipts[key("org-a", "r1")] = draftReceipt("r1", "farm9", 0)
	svc := newTestService(repo, accountingGate())

	require.NoError(t, svc.Post(context.Background(), "org-a", "r1", 1))
	require.Equal(t, float64(0), repo.balances[key("org-a", "r1")].RemainingKg)
}

func TestPostRequiresPostingRole(t *testing.T) {
	repo := newMemoryRepo()
	repo.receipts[key("org-a", "r1")] = draftReceipt("r1", "farm9", 100)
	svc := newTestService(repo, accountingGate())

	err := svc.Post(context.Background(), "org-a", "r1", 2)

	require.EqualError(t, err, "Insufficient role.")
}

func TestGetBalanceMissing(t *testing.T) {
	svc := newTestService(newMemoryRepo(), accountingGate())

	_, err := svc.GetBalance(context.Background(), "org-a", "r1", 2)

	require.EqualError(t, err, "Receipt balance missing: r1")
	require.Equal(t, shared.CodeNotFound, shared.CodeOf(err))
}

func TestCreateDraftAssignsIDAndDraftStatus(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, accountingGate())

	rec, err := svc.CreateDraft(context.Background(), "org-a", 1, CreateReceiptRequest{FarmID: "farm9", QtyKg: 750})

	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	require.Equal(t, StatusDraft, rec.Status)
	require.Empty(t, rec.ReceiptNo)
	require.Equal(t, float64(750), rec.QtyKg)
}
