package shipments

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
	shipments map[string]Shipment
	balances  map[string]float64
	counters  map[string]int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		shipments: make(map[string]Shipment),
		balances:  make(map[string]float64),
		counters:  make(map[string]int64),
	}
}

func key(orgID, id string) string { return orgID + "/" + id }

func (r *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	snapShipments := make(map[string]Shipment, len(r.shipments))
	for k, v := range r.shipments {
		snapShipments[k] = v
	}
	snapBalances := make(map[string]float64, len(r.balances))
	for k, v := range r.balances {
		snapBalances[k] = v
	}
	snapCounters := make(map[string]int64, len(r.counters))
	for k, v := range r.counters {
		snapCounters[k] = v
	}

	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.shipments = snapShipments
		r.balances = snapBalances
		r.counters = snapCounters
		return err
	}
	return nil
}

func (r *memoryRepo) CreateShipment(_ context.Context, s Shipment) error {
	r.shipments[key(s.OrgID, s.ID)] = s
	return nil
}

func (r *memoryRepo) GetShipment(_ context.Context, orgID, shipmentID string) (Shipment, error) {
	s, ok := r.shipments[key(orgID, shipmentID)]
	if !ok {
		return Shipment{}, ErrShipmentNotFound
	}
	return s, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) GetShipmentForUpdate(ctx context.Context, orgID, shipmentID string) (Shipment, error) {
	return tx.repo.GetShipment(ctx, orgID, shipmentID)
}

func (tx *memoryTx) GetReceiptBalanceForUpdate(_ context.Context, orgID, receiptID string) (float64, error) {
	kg, ok := tx.repo.balances[key(orgID, receiptID)]
	if !ok {
		return 0, ErrReceiptBalanceNotFound
	}
	return kg, nil
}

func (tx *memoryTx) SaveReceiptBalance(_ context.Context, orgID, receiptID string, remainingKg float64, _ time.Time) error {
	tx.repo.balances[key(orgID, receiptID)] = remainingKg
	return nil
}

func (tx *memoryTx) NextSequence(_ context.Context, orgID, name string) (int64, error) {
	k := key(orgID, name)
	tx.repo.counters[k]++
	return tx.repo.counters[k], nil
}

func (tx *memoryTx) MarkLoaded(_ context.Context, orgID, shipmentID, shipmentNo string, actorID int64, at time.Time) error {
	k := key(orgID, shipmentID)
	s := tx.repo.shipments[k]
	s.Status = StatusLoaded
	s.ShipmentNo = shipmentNo
	s.LoadedBy = actorID
	s.LoadedAt = &at
	tx.repo.shipments[k] = s
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

func opsGate() *stubGate {
	return &stubGate{roles: map[int64]orgs.Role{1: orgs.RoleOpsManager, 3: orgs.RoleAccounting}}
}

func draftShipment(id string, lines []Line) Shipment {
	return Shipment{
		OrgID:     "org-a",
		ID:        id,
		Status:    StatusDraft,
		Lines:     lines,
		CreatedAt: testTime,
	}
}

func TestPostDeductsReceiptBalance(t *testing.T) {
	repo := newMemoryRepo()
	repo.balances[key("org-a", "r1")] = 1000
	repo.shipments[key("org-a", "s1")] = draftShipment("s1", []Line{{ReceiptID: "r1", QtyKg: 400}})
	svc := newTestService(repo, opsGate())

	err := svc.Post(context.Background(), "org-a", "s1", 1)
	require.NoError(t, err)

	require.Equal(t, float64(600), repo.balances[key("org-a", "r1")])

	loaded := repo.shipments[key("org-a", "s1")]
	require.Equal(t, StatusLoaded, loaded.Status)
	require.Equal(t, "SHP-20250601-0001", loaded.ShipmentNo)
	require.Equal(t, int64(1), loaded.LoadedBy)
	require.NotNil(t, loaded.LoadedAt)
}

func TestPostInsufficientRemainingLeavesBalanceUntouched(t *testing.T) {
	repo := newMemoryRepo()
	repo.balances[key("org-a", "r1")] = 1000
	repo.shipments[key("org-a", "s1")] = draftShipment("s1", []Line{{ReceiptID: "r1", QtyKg: 400}})
	repo.shipments[key("org-a", "s2")] = draftShipment("s2", []Line{{ReceiptID: "r1", QtyKg: 700}})
	svc := newTestService(repo, opsGate())

	require.NoError(t, svc.Post(context.Background(), "org-a", "s1", 1))

	err := svc.Post(context.Background(), "org-a", "s2", 1)
	require.EqualError(t, err, "Insufficient remaining for receipt r1. Remaining=600, required=700")
	require.Equal(t, shared.CodeFailedPrecondition, shared.CodeOf(err))
	require.Equal(t, float64(600), repo.balances[key("org-a", "r1")])
	require.Equal(t, StatusDraft, repo.shipments[key("org-a", "s2")].Status)
	// The failed attempt must not consume a sequence value.
	require.Equal(t, int64(1), repo.counters[key("org-a", "SHP_20250601")])
}

func TestPostMissingReceiptBalance(t *testing.T) {
	repo := newMemoryRepo()
	repo.shipments[key("org-a", "s1")] = draftShipment("s1", []Line{{ReceiptID: "r9", QtyKg: 10}})
	svc := newTestService(repo, opsGate())

	err := svc.Post(context.Background(), "org-a", "s1", 1)

	require.EqualError(t, err, "Receipt balance missing: r9")
	require.Equal(t, shared.CodeFailedPrecondition, shared.CodeOf(err))
}

func TestPostTwoLinesSameReceiptAccumulate(t *testing.T) {
	repo := newMemoryRepo()
	repo.balances[key("org-a", "r1")] = 100
	repo.shipments[key("org-a", "s1")] = draftShipment("s1", []Line{
		{ReceiptID: "r1", QtyKg: 60},
		{ReceiptID: "r1", QtyKg: 30},
	})
	svc := newTestService(repo, opsGate())

	require.NoError(t, svc.Post(context.Background(), "org-a", "s1", 1))
	require.Equal(t, float64(10), repo.balances[key("org-a", "r1")])
}

func TestPostTwoLinesSameReceiptOverdraw(t *testing.T) {
	repo := newMemoryRepo()
	repo.balances[key("org-a", "r1")] = 100
	repo.shipments[key("org-a", "s1")] = draftShipment("s1", []Line{
		{ReceiptID: "r1", QtyKg: 60},
		{ReceiptID: "r1", QtyKg: 50},
	})
	svc := newTestService(repo, opsGate())

	err := svc.Post(context.Background(), "org-a", "s1", 1)

	// The second line sees the first line's deduction already applied.
	require.EqualError(t, err, "Insufficient remaining for receipt r1. Remaining=40, required=50")
	require.Equal(t, float64(100), repo.balances[key("org-a", "r1")])
}

func TestPostSecondCallFailsPrecondition(t *testing.T) {
	repo := newMemoryRepo()
	repo.balances[key("org-a", "r1")] = 100
	repo.shipments[key("org-a", "s1")] = draftShipment("s1", []Line{{ReceiptID: "r1", QtyKg: 10}})
	svc := newTestService(repo, opsGate())

	require.NoError(t, svc.Post(context.Background(), "org-a", "s1", 1))

	err := svc.Post(context.Background(), "org-a", "s1", 1)
	require.EqualError(t, err, "Only DRAFT can be posted.")
	require.Equal(t, float64(90), repo.balances[key("org-a", "r1")])
}

func TestPostRejectsAssignedShipmentNo(t *testing.T) {
	repo := newMemoryRepo()
	sh := draftShipment("s1", []Line{{ReceiptID: "r1", QtyKg: 10}})
	sh.ShipmentNo = "SHP-20250531-0002"
	repo.shipments[key("org-a", "s1")] = sh
	svc := newTestService(repo, opsGate())

	err := svc.Post(context.Background(), "org-a", "s1", 1)

	require.EqualError(t, err, "shipmentNo already set.")
}

func TestPostValidatesPayload(t *testing.T) {
	repo := newMemoryRepo()
	repo.balances[key("org-a", "r1")] = 100
	repo.shipments[key("org-a", "s1")] = draftShipment("s1", nil)
	repo.shipments[key("org-a", "s2")] = draftShipment("s2", []Line{{ReceiptID: "", QtyKg: 10}})
	repo.shipments[key("org-a", "s3")] = draftShipment("s3", []Line{
		{ReceiptID: "r1", QtyKg: 10},
		{ReceiptID: "r1", QtyKg: -5},
	})
	svc := newTestService(repo, opsGate())

	err := svc.Post(context.Background(), "org-a", "s1", 1)
	require.EqualError(t, err, "Shipment lines required.")

	err = svc.Post(context.Background(), "org-a", "s2", 1)
	require.EqualError(t, err, "receiptId required in lines.")

	err = svc.Post(context.Background(), "org-a", "s3", 1)
	require.EqualError(t, err, "Field lines[1].qtyKg must be a non-negative number.")
	require.Equal(t, shared.CodeInvalidArgument, shared.CodeOf(err))
}

func TestPostUnknownShipment(t *testing.T) {
	svc := newTestService(newMemoryRepo(), opsGate())

	err := svc.Post(context.Background(), "org-a", "missing", 1)

	require.EqualError(t, err, "Shipment not found.")
	require.Equal(t, shared.CodeNotFound, shared.CodeOf(err))
}

func TestPostAccountingRoleDenied(t *testing.T) {
	repo := newMemoryRepo()
	repo.balances[key("org-a", "r1")] = 100
	repo.shipments[key("org-a", "s1")] = draftShipment("s1", []Line{{ReceiptID: "r1", QtyKg: 10}})
	svc := newTestService(repo, opsGate())

	err := svc.Post(context.Background(), "org-a", "s1", 3)

	require.EqualError(t, err, "Insufficient role.")
	require.Equal(t, shared.CodePermissionDenied, shared.CodeOf(err))
}

func TestPostRequiresIdentifiers(t *testing.T) {
	svc := newTestService(newMemoryRepo(), opsGate())

	err := svc.Post(context.Background(), "org-a", "", 1)

	require.EqualError(t, err, "orgId and shipmentId are required.")
}
