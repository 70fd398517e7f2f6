package cartons

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/packhouse-erp/packhouse/internal/ledger"
	"github.com/packhouse-erp/packhouse/internal/orgs"
	"github.com/packhouse-erp/packhouse/internal/sequence"
	"github.com/packhouse-erp/packhouse/internal/shared"
)

// Role sets differ between the two carton workflows: purchasing involves
// accounting, issuing involves operations.
var (
	purchaseRoles = []orgs.Role{orgs.RoleAdmin, orgs.RoleWarehouse, orgs.RoleAccounting}
	issueRoles    = []orgs.Role{orgs.RoleAdmin, orgs.RoleWarehouse, orgs.RoleOpsManager}
)

// ErrPurchaseNotFound signals an absent purchase document.
var ErrPurchaseNotFound = errors.New("cartons: purchase not found")

// ErrIssueNotFound signals an absent issue document.
var ErrIssueNotFound = errors.New("cartons: issue not found")

// ErrBalanceNotFound signals an absent carton balance row, which posting
// treats as an implicit zero stock.
var ErrBalanceNotFound = errors.New("cartons: balance not found")

// AccessGate resolves the caller's role before any transactional work.
type AccessGate interface {
	Authorize(ctx context.Context, orgID string, userID int64, allowed ...orgs.Role) (orgs.Role, error)
}

// TxRepository is the repository surface available inside one posting
// transaction.
type TxRepository interface {
	GetPurchaseForUpdate(ctx context.Context, orgID, purchaseID string) (Purchase, error)
	GetIssueForUpdate(ctx context.Context, orgID, issueID string) (Issue, error)
	GetBalanceForUpdate(ctx context.Context, orgID, itemID string) (int64, error)
	SaveBalance(ctx context.Context, orgID, itemID string, qty int64, at time.Time) error
	NextSequence(ctx context.Context, orgID, name string) (int64, error)
	MarkPurchasePosted(ctx context.Context, orgID, purchaseID, purchaseNo string, actorID int64, at time.Time) error
	MarkIssuePosted(ctx context.Context, orgID, issueID, issueNo string, actorID int64, at time.Time) error
}

// RepositoryPort is the full persistence surface of the cartons module.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	CreatePurchase(ctx context.Context, p Purchase) error
	CreateIssue(ctx context.Context, i Issue) error
	GetPurchase(ctx context.Context, orgID, purchaseID string) (Purchase, error)
	GetIssue(ctx context.Context, orgID, issueID string) (Issue, error)
	ListBalances(ctx context.Context, orgID string) ([]Balance, error)
}

// AuditPort records posting events after commit.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates carton purchase and issue drafting and posting.
type Service struct {
	repo   RepositoryPort
	gate   AccessGate
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the cartons service.
func NewService(repo RepositoryPort, gate AccessGate, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		gate:   gate,
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

// CreatePurchaseDraft stores a new purchase in DRAFT state and returns it.
func (s *Service) CreatePurchaseDraft(ctx context.Context, orgID string, actorID int64, req CreateDocumentRequest) (Purchase, error) {
	if _, err := s.gate.Authorize(ctx, orgID, actorID, purchaseRoles...); err != nil {
		return Purchase{}, err
	}
	p := Purchase{
		OrgID:     orgID,
		ID:        uuid.NewString(),
		Status:    StatusDraft,
		Items:     toItems(req.Items),
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreatePurchase(ctx, p); err != nil {
		return Purchase{}, err
	}
	return p, nil
}

// CreateIssueDraft stores a new issue in DRAFT state and returns it.
func (s *Service) CreateIssueDraft(ctx context.Context, orgID string, actorID int64, req CreateDocumentRequest) (Issue, error) {
	if _, err := s.gate.Authorize(ctx, orgID, actorID, issueRoles...); err != nil {
		return Issue{}, err
	}
	i := Issue{
		OrgID:     orgID,
		ID:        uuid.NewString(),
		Status:    StatusDraft,
		Items:     toItems(req.Items),
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateIssue(ctx, i); err != nil {
		return Issue{}, err
	}
	return i, nil
}

// GetPurchase returns one purchase for any registered member.
func (s *Service) GetPurchase(ctx context.Context, orgID, purchaseID string, actorID int64) (Purchase, error) {
	if _, err := s.gate.Authorize(ctx, orgID, actorID, orgs.ReadRoles...); err != nil {
		return Purchase{}, err
	}
	p, err := s.repo.GetPurchase(ctx, orgID, purchaseID)
	if err != nil {
		if errors.Is(err, ErrPurchaseNotFound) {
			return Purchase{}, shared.NewError(shared.CodeNotFound, "Purchase not found.")
		}
		return Purchase{}, err
	}
	return p, nil
}

// GetIssue returns one issue for any registered member.
func (s *Service) GetIssue(ctx context.Context, orgID, issueID string, actorID int64) (Issue, error) {
	if _, err := s.gate.Authorize(ctx, orgID, actorID, orgs.ReadRoles...); err != nil {
		return Issue{}, err
	}
	i, err := s.repo.GetIssue(ctx, orgID, issueID)
	if err != nil {
		if errors.Is(err, ErrIssueNotFound) {
			return Issue{}, shared.NewError(shared.CodeNotFound, "Issue not found.")
		}
		return Issue{}, err
	}
	return i, nil
}

// ListBalances returns all carton stock rows of the organization.
func (s *Service) ListBalances(ctx context.Context, orgID string, actorID int64) ([]Balance, error) {
	if _, err := s.gate.Authorize(ctx, orgID, actorID, orgs.ReadRoles...); err != nil {
		return nil, err
	}
	return s.repo.ListBalances(ctx, orgID)
}

// PostPurchase numbers a DRAFT purchase, adds each line's quantity to the
// item's stock, and locks the document as POSTED, all in one transaction.
func (s *Service) PostPurchase(ctx context.Context, orgID, purchaseID string, actorID int64) error {
	if orgID == "" || purchaseID == "" {
		return shared.NewError(shared.CodeInvalidArgument, "orgId and purchaseId are required.")
	}
	if _, err := s.gate.Authorize(ctx, orgID, actorID, purchaseRoles...); err != nil {
		return err
	}

	now := s.now().UTC()

	var purchaseNo string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPurchaseForUpdate(ctx, orgID, purchaseID)
		if err != nil {
			if errors.Is(err, ErrPurchaseNotFound) {
				return shared.NewError(shared.CodeNotFound, "Purchase not found.")
			}
			return err
		}

		if p.Status != StatusDraft {
			return shared.NewError(shared.CodeFailedPrecondition, "Only DRAFT can be posted.")
		}
		if p.PurchaseNo != "" {
			return shared.NewError(shared.CodeFailedPrecondition, "purchaseNo already set.")
		}

		if err := s.applyItems(ctx, tx, orgID, p.Items, 1, now); err != nil {
			return err
		}

		seq, err := tx.NextSequence(ctx, orgID, sequence.CounterName(sequence.PrefixCartonPurchase, now))
		if err != nil {
			return err
		}
		purchaseNo = sequence.DocNo(sequence.PrefixCartonPurchase, now, seq)

		return tx.MarkPurchasePosted(ctx, orgID, purchaseID, purchaseNo, actorID, now)
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, shared.AuditLog{
		OrgID:    orgID,
		ActorID:  actorID,
		Action:   "cartons.purchase.posted",
		Entity:   "carton_purchase",
		EntityID: purchaseID,
		Meta:     map[string]any{"purchaseNo": purchaseNo},
		At:       now,
	})
	return nil
}

// PostIssue numbers a DRAFT issue, deducts each line's quantity from the
// item's stock under the non-negativity guard, and locks the document as
// POSTED, all in one transaction.
func (s *Service) PostIssue(ctx context.Context, orgID, issueID string, actorID int64) error {
	if orgID == "" || issueID == "" {
		return shared.NewError(shared.CodeInvalidArgument, "orgId and issueId are required.")
	}
	if _, err := s.gate.Authorize(ctx, orgID, actorID, issueRoles...); err != nil {
		return err
	}

	now := s.now().UTC()

	var issueNo string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetIssueForUpdate(ctx, orgID, issueID)
		if err != nil {
			if errors.Is(err, ErrIssueNotFound) {
				return shared.NewError(shared.CodeNotFound, "Issue not found.")
			}
			return err
		}

		if doc.Status != StatusDraft {
			return shared.NewError(shared.CodeFailedPrecondition, "Only DRAFT can be posted.")
		}
		if doc.IssueNo != "" {
			return shared.NewError(shared.CodeFailedPrecondition, "issueNo already set.")
		}

		if err := s.applyItems(ctx, tx, orgID, doc.Items, -1, now); err != nil {
			return err
		}

		seq, err := tx.NextSequence(ctx, orgID, sequence.CounterName(sequence.PrefixCartonIssue, now))
		if err != nil {
			return err
		}
		issueNo = sequence.DocNo(sequence.PrefixCartonIssue, now, seq)

		return tx.MarkIssuePosted(ctx, orgID, issueID, issueNo, actorID, now)
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, shared.AuditLog{
		OrgID:    orgID,
		ActorID:  actorID,
		Action:   "cartons.issue.posted",
		Entity:   "carton_issue",
		EntityID: issueID,
		Meta:     map[string]any{"issueNo": issueNo},
		At:       now,
	})
	return nil
}

// applyItems validates the line list and stages each item's stock change.
// Lines hitting the same item accumulate in a local view so the row is read
// and written once; sign is +1 for purchases, -1 for issues.
func (s *Service) applyItems(ctx context.Context, tx TxRepository, orgID string, items []Item, sign int64, now time.Time) error {
	if len(items) == 0 {
		return shared.NewError(shared.CodeInvalidArgument, "items required.")
	}

	stock := make(map[string]int64)
	loaded := make(map[string]bool)
	for i, it := range items {
		if it.ItemID == "" {
			return shared.NewError(shared.CodeInvalidArgument, "itemId required.")
		}
		if it.Qty < 0 {
			return shared.Errorf(shared.CodeInvalidArgument, "Field items[%d].qty must be a non-negative integer.", i)
		}

		if !loaded[it.ItemID] {
			cur, err := tx.GetBalanceForUpdate(ctx, orgID, it.ItemID)
			if err != nil {
				if !errors.Is(err, ErrBalanceNotFound) {
					return err
				}
				cur = 0
			}
			stock[it.ItemID] = cur
			loaded[it.ItemID] = true
		}

		next, err := ledger.ApplyScalar(it.ItemID, stock[it.ItemID], sign*it.Qty)
		if err != nil {
			var insufficient *ledger.InsufficientBalanceError
			if errors.As(err, &insufficient) {
				return shared.Errorf(shared.CodeFailedPrecondition,
					"Insufficient carton balance for %s. Current=%d, required=%d",
					insufficient.Key, int64(insufficient.Current), int64(insufficient.Required))
			}
			return err
		}
		stock[it.ItemID] = next
	}

	for itemID, qty := range stock {
		if err := tx.SaveBalance(ctx, orgID, itemID, qty, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit record failed", "action", log.Action, "entity_id", log.EntityID, "error", err)
	}
}

func toItems(reqs []ItemRequest) []Item {
	items := make([]Item, 0, len(reqs))
	for _, it := range reqs {
		items = append(items, Item{ItemID: it.ItemID, Qty: it.Qty})
	}
	return items
}
