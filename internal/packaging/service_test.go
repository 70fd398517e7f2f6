package packaging

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
	transfers map[string]Transfer
	balances  map[string]map[string]int64
	counters  map[string]int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		transfers: make(map[string]Transfer),
		balances:  make(map[string]map[string]int64),
		counters:  make(map[string]int64),
	}
}

func docKey(orgID, docID string) string { return orgID + "/" + docID }

// WithTx snapshots the whole store, runs fn, and restores the snapshot on
// failure, mirroring transaction rollback.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	snapTransfers := make(map[string]Transfer, len(r.transfers))
	for k, v := range r.transfers {
		snapTransfers[k] = v
	}
	snapBalances := make(map[string]map[string]int64, len(r.balances))
	for k, m := range r.balances {
		cp := make(map[string]int64, len(m))
		for mk, mv := range m {
			cp[mk] = mv
		}
		snapBalances[k] = cp
	}
	snapCounters := make(map[string]int64, len(r.counters))
	for k, v := range r.counters {
		snapCounters[k] = v
	}

	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.transfers = snapTransfers
		r.balances = snapBalances
		r.counters = snapCounters
		return err
	}
	return nil
}

func (r *memoryRepo) CreateTransfer(_ context.Context, t Transfer) error {
	r.transfers[docKey(t.OrgID, t.ID)] = t
	return nil
}

func (r *memoryRepo) GetTransfer(_ context.Context, orgID, docID string) (Transfer, error) {
	t, ok := r.transfers[docKey(orgID, docID)]
	if !ok {
		return Transfer{}, ErrTransferNotFound
	}
	return t, nil
}

func (r *memoryRepo) ListBalances(_ context.Context, orgID string) ([]Balance, error) {
	var out []Balance
	for k, m := range r.balances {
		out = append(out, Balance{OrgID: orgID, OwnerKey: k, Balances: m})
	}
	return out, nil
}

func (r *memoryRepo) setBalance(orgID, ownerKey string, balances map[string]int64) {
	r.balances[docKey(orgID, ownerKey)] = balances
}

func (r *memoryRepo) balance(orgID, ownerKey string) map[string]int64 {
	return r.balances[docKey(orgID, ownerKey)]
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) GetTransferForUpdate(ctx context.Context, orgID, docID string) (Transfer, error) {
	return tx.repo.GetTransfer(ctx, orgID, docID)
}

func (tx *memoryTx) NextSequence(_ context.Context, orgID, name string) (int64, error) {
	key := docKey(orgID, name)
	tx.repo.counters[key]++
	return tx.repo.counters[key], nil
}

func (tx *memoryTx) GetBalanceForUpdate(_ context.Context, orgID, ownerKey string) (Balance, error) {
	m, ok := tx.repo.balances[docKey(orgID, ownerKey)]
	if !ok {
		return Balance{}, ErrBalanceNotFound
	}
	cp := make(map[string]int64, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Balance{OrgID: orgID, OwnerKey: ownerKey, Balances: cp}, nil
}

func (tx *memoryTx) SaveBalance(_ context.Context, b Balance) error {
	tx.repo.balances[docKey(b.OrgID, b.OwnerKey)] = b.Balances
	return nil
}

func (tx *memoryTx) MarkPosted(_ context.Context, orgID, docID, docNo string, actorID int64, at time.Time) error {
	key := docKey(orgID, docID)
	t := tx.repo.transfers[key]
	t.Status = StatusPosted
	t.DocNo = docNo
	t.PostedBy = actorID
	t.PostedAt = &at
	tx.repo.transfers[key] = t
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

func warehouseGate() *stubGate {
	return &stubGate{roles: map[int64]orgs.Role{1: orgs.RoleWarehouse, 2: orgs.RoleViewer}}
}

func draftTransfer(id string, from, to Owner, items []Item) Transfer {
	return Transfer{
		OrgID:     "org-a",
		ID:        id,
		Status:    StatusDraft,
		FromOwner: from,
		ToOwner:   to,
		Items:     items,
		CreatedAt: testTime,
	}
}

func TestPostMovesBalancesAndNumbersDocument(t *testing.T) {
	repo := newMemoryRepo()
	repo.setBalance("org-a", "PLANT_plant1", map[string]int64{"PLT": 5})
	repo.transfers[docKey("org-a", "t1")] = draftTransfer("t1",
		Owner{Type: OwnerPlant, ID: "plant1"},
		Owner{Type: OwnerCompany, ID: "hq"},
		[]Item{{PackType: "PLT", Qty: 5}})
	svc := newTestService(repo, warehouseGate())

	err := svc.Post(context.Background(), "org-a", "t1", 1)
	require.NoError(t, err)

	require.Equal(t, int64(0), repo.balance("org-a", "PLANT_plant1")["PLT"])
	require.Equal(t, int64(5), repo.balance("org-a", "COMPANY_org-a")["PLT"])

	posted := repo.transfers[docKey("org-a", "t1")]
	require.Equal(t, StatusPosted, posted.Status)
	require.Equal(t, "PKG-20250601-0001", posted.DocNo)
	require.Equal(t, int64(1), posted.PostedBy)
	require.NotNil(t, posted.PostedAt)
}

func TestPostInsufficientBalanceLeavesStateUntouched(t *testing.T) {
	repo := newMemoryRepo()
	repo.setBalance("org-a", "PLANT_plant1", map[string]int64{"PLT": 3})
	repo.transfers[docKey("org-a", "t1")] = draftTransfer("t1",
		Owner{Type: OwnerPlant, ID: "plant1"},
		Owner{Type: OwnerCompany, ID: "hq"},
		[]Item{{PackType: "PLT", Qty: 5}})
	svc := newTestService(repo, warehouseGate())

	err := svc.Post(context.Background(), "org-a", "t1", 1)

	require.EqualError(t, err, "Insufficient balance for PLT on PLANT_plant1. Current=3, required=5.")
	require.Equal(t, shared.CodeFailedPrecondition, shared.CodeOf(err))
	require.Equal(t, int64(3), repo.balance("org-a", "PLANT_plant1")["PLT"])
	require.Nil(t, repo.balance("org-a", "COMPANY_org-a"))
	require.Equal(t, StatusDraft, repo.transfers[docKey("org-a", "t1")].Status)
	// The rolled-back attempt must not consume a sequence value.
	require.Zero(t, repo.counters[docKey("org-a", "PKG_20250601")])
}

func TestPostSecondCallFailsPrecondition(t *testing.T) {
	repo := newMemoryRepo()
	repo.setBalance("org-a", "PLANT_plant1", map[string]int64{"PLT": 10})
	repo.transfers[docKey("org-a", "t1")] = draftTransfer("t1",
		Owner{Type: OwnerPlant, ID: "plant1"},
		Owner{Type: OwnerFarm, ID: "farm9"},
		[]Item{{PackType: "PLT", Qty: 4}})
	svc := newTestService(repo, warehouseGate())

	require.NoError(t, svc.Post(context.Background(), "org-a", "t1", 1))

	err := svc.Post(context.Background(), "org-a", "t1", 1)
	require.EqualError(t, err, "Only DRAFT can be posted.")
	require.Equal(t, shared.CodeFailedPrecondition, shared.CodeOf(err))
	// Ledger untouched by the second call.
	require.Equal(t, int64(6), repo.balance("org-a", "PLANT_plant1")["PLT"])
	require.Equal(t, int64(4), repo.balance("org-a", "FARM_farm9")["PLT"])
}

func TestPostRejectsAssignedDocNo(t *testing.T) {
	repo := newMemoryRepo()
	tr := draftTransfer("t1",
		Owner{Type: OwnerPlant, ID: "plant1"},
		Owner{Type: OwnerFarm, ID: "farm9"},
		[]Item{{PackType: "PLT", Qty: 1}})
	tr.DocNo = "PKG-20250531-0007"
	repo.transfers[docKey("org-a", "t1")] = tr
	svc := newTestService(repo, warehouseGate())

	err := svc.Post(context.Background(), "org-a", "t1", 1)

	require.EqualError(t, err, "docNo already set.")
}

func TestPostUnknownDocument(t *testing.T) {
	svc := newTestService(newMemoryRepo(), warehouseGate())

	err := svc.Post(context.Background(), "org-a", "missing", 1)

	require.EqualError(t, err, "Transfer document not found.")
	require.Equal(t, shared.CodeNotFound, shared.CodeOf(err))
}

func TestPostRequiresPostingRole(t *testing.T) {
	repo := newMemoryRepo()
	repo.transfers[docKey("org-a", "t1")] = draftTransfer("t1",
		Owner{Type: OwnerPlant, ID: "plant1"},
		Owner{Type: OwnerFarm, ID: "farm9"},
		[]Item{{PackType: "PLT", Qty: 1}})
	svc := newTestService(repo, warehouseGate())

	err := svc.Post(context.Background(), "org-a", "t1", 2)

	require.EqualError(t, err, "Insufficient role.")
	require.Equal(t, shared.CodePermissionDenied, shared.CodeOf(err))
}

func TestPostValidatesPayload(t *testing.T) {
	svc := func(tr Transfer) *Service {
		repo := newMemoryRepo()
		repo.transfers[docKey("org-a", tr.ID)] = tr
		return newTestService(repo, warehouseGate())
	}

	err := svc(draftTransfer("t1", Owner{}, Owner{Type: OwnerFarm, ID: "f"}, []Item{{PackType: "PLT", Qty: 1}})).
		Post(context.Background(), "org-a", "t1", 1)
	require.EqualError(t, err, "Invalid transfer payload.")

	err = svc(draftTransfer("t2", Owner{Type: OwnerPlant, ID: "p"}, Owner{Type: OwnerFarm, ID: "f"}, nil)).
		Post(context.Background(), "org-a", "t2", 1)
	require.EqualError(t, err, "Invalid transfer payload.")

	err = svc(draftTransfer("t3", Owner{Type: OwnerPlant, ID: "p"}, Owner{Type: OwnerFarm, ID: "f"},
		[]Item{{PackType: "", Qty: 1}})).
		Post(context.Background(), "org-a", "t3", 1)
	require.EqualError(t, err, "packType required.")

	err = svc(draftTransfer("t4", Owner{Type: OwnerPlant, ID: "p"}, Owner{Type: OwnerFarm, ID: "f"},
		[]Item{{PackType: "PLT", Qty: 2}, {PackType: "CRT", Qty: -1}})).
		Post(context.Background(), "org-a", "t4", 1)
	require.EqualError(t, err, "Field items[1].qty must be a non-negative integer.")
	require.Equal(t, shared.CodeInvalidArgument, shared.CodeOf(err))
}

func TestPostConservesTotalsAcrossOwners(t *testing.T) {
	repo := newMemoryRepo()
	repo.setBalance("org-a", "PLANT_plant1", map[string]int64{"PLT": 8, "CRT": 2})
	repo.setBalance("org-a", "FARM_farm9", map[string]int64{"PLT": 1})
	repo.transfers[docKey("org-a", "t1")] = draftTransfer("t1",
		Owner{Type: OwnerPlant, ID: "plant1"},
		Owner{Type: OwnerFarm, ID: "farm9"},
		[]Item{{PackType: "PLT", Qty: 3}})
	svc := newTestService(repo, warehouseGate())

	require.NoError(t, svc.Post(context.Background(), "org-a", "t1", 1))

	from := repo.balance("org-a", "PLANT_plant1")
	to := repo.balance("org-a", "FARM_farm9")
	require.Equal(t, int64(9), from["PLT"]+to["PLT"])
	// Unrelated pack types survive the merge write.
	require.Equal(t, int64(2), from["CRT"])
}

func TestPostCompanyToCompanyUsesOneBalanceRow(t *testing.T) {
	repo := newMemoryRepo()
	repo.setBalance("org-a", "COMPANY_org-a", map[string]int64{"PLT": 7})
	// Two distinct company actors collapse to the same key per org.
	repo.transfers[docKey("org-a", "t1")] = draftTransfer("t1",
		Owner{Type: OwnerCompany, ID: "hq"},
		Owner{Type: OwnerCompany, ID: "branch"},
		[]Item{{PackType: "PLT", Qty: 4}})
	svc := newTestService(repo, warehouseGate())

	require.NoError(t, svc.Post(context.Background(), "org-a", "t1", 1))

	require.Equal(t, int64(7), repo.balance("org-a", "COMPANY_org-a")["PLT"])
}

func TestPostSequenceIncrementsPerDay(t *testing.T) {
	repo := newMemoryRepo()
	repo.setBalance("org-a", "PLANT_plant1", map[string]int64{"PLT": 10})
	for _, id := range []string{"t1", "t2"} {
		repo.transfers[docKey("org-a", id)] = draftTransfer(id,
			Owner{Type: OwnerPlant, ID: "plant1"},
			Owner{Type: OwnerFarm, ID: "farm9"},
			[]Item{{PackType: "PLT", Qty: 1}})
	}
	svc := newTestService(repo, warehouseGate())

	require.NoError(t, svc.Post(context.Background(), "org-a", "t1", 1))
	require.NoError(t, svc.Post(context.Background(), "org-a", "t2", 1))

	require.Equal(t, "PKG-20250601-0001", repo.transfers[docKey("org-a", "t1")].DocNo)
	require.Equal(t, "PKG-20250601-0002", repo.transfers[docKey("org-a", "t2")].DocNo)
}

func TestPostRequiresIdentifiers(t *testing.T) {
	svc := newTestService(newMemoryRepo(), warehouseGate())

	err := svc.Post(context.Background(), "", "t1", 1)

	require.EqualError(t, err, "orgId and docId are required.")
	require.Equal(t, shared.CodeInvalidArgument, shared.CodeOf(err))
}

func TestCreateDraftAssignsIDAndDraftStatus(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, warehouseGate())

	tr, err := svc.CreateDraft(context.Background(), "org-a", 1, CreateTransferRequest{
		FromOwner: OwnerRequest{Type: "PLANT", ID: "plant1"},
		ToOwner:   OwnerRequest{Type: "FARM", ID: "farm9"},
		Items:     []ItemRequest{{PackType: "PLT", Qty: 2}},
	})

	require.NoError(t, err)
	require.NotEmpty(t, tr.ID)
	require.Equal(t, StatusDraft, tr.Status)
	require.Empty(t, tr.DocNo)

	stored, err := repo.GetTransfer(context.Background(), "org-a", tr.ID)
	require.NoError(t, err)
	require.Equal(t, tr.Items, stored.Items)
}
