package packaging

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

// postRoles may post packaging transfers.
var postRoles = []orgs.Role{orgs.RoleAdmin, orgs.RoleOpsManager, orgs.RoleWarehouse, orgs.RoleAccounting}

// ErrBalanceNotFound signals an absent balance row, which posting treats as
// an implicit zero balance.
var ErrBalanceNotFound = errors.New("packaging: balance not found")

// ErrTransferNotFound signals an absent transfer document.
var ErrTransferNotFound = errors.New("packaging: transfer not found")

// AccessGate resolves the caller's role before any transactional work.
type AccessGate interface {
	Authorize(ctx context.Context, orgID string, userID int64, allowed ...orgs.Role) (orgs.Role, error)
}

// TxRepository is the repository surface available inside one posting
// transaction. Reads take row locks so concurrent postings against the same
// balance or counter serialize instead of clobbering each other.
type TxRepository interface {
	GetTransferForUpdate(ctx context.Context, orgID, docID string) (Transfer, error)
	NextSequence(ctx context.Context, orgID, name string) (int64, error)
	GetBalanceForUpdate(ctx context.Context, orgID, ownerKey string) (Balance, error)
	SaveBalance(ctx context.Context, b Balance) error
	MarkPosted(ctx context.Context, orgID, docID, docNo string, actorID int64, at time.Time) error
}

// RepositoryPort is the full persistence surface of the packaging module.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	CreateTransfer(ctx context.Context, t Transfer) error
	GetTransfer(ctx context.Context, orgID, docID string) (Transfer, error)
	ListBalances(ctx context.Context, orgID string) ([]Balance, error)
}

// AuditPort records posting events after commit.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates packaging-transfer drafting and posting.
type Service struct {
	repo   RepositoryPort
	gate   AccessGate
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the packaging service.
func NewService(repo RepositoryPort, gate AccessGate, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		gate:   gate,
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

// CreateDraft stores a new transfer in DRAFT state and returns it.
func (s *Service) CreateDraft(ctx context.Context, orgID string, actorID int64, req CreateTransferRequest) (Transfer, error) {
	if _, err := s.gate.Authorize(ctx, orgID, actorID, postRoles...); err != nil {
		return Transfer{}, err
	}

	items := make([]Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, Item{PackType: it.PackType, Qty: it.Qty})
	}
	t := Transfer{
		OrgID:     orgID,
		ID:        uuid.NewString(),
		Status:    StatusDraft,
		FromOwner: Owner{Type: OwnerType(req.FromOwner.Type), ID: req.FromOwner.ID},
		ToOwner:   Owner{Type: OwnerType(req.ToOwner.Type), ID: req.ToOwner.ID},
		Items:     items,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateTransfer(ctx, t); err != nil {
		return Transfer{}, err
	}
	return t, nil
}

// Get returns one transfer for any registered member.
func (s *Service) Get(ctx context.Context, orgID, docID string, actorID int64) (Transfer, error) {
	if _, err := s.gate.Authorize(ctx, orgID, actorID, orgs.ReadRoles...); err != nil {
		return Transfer{}, err
	}
	t, err := s.repo.GetTransfer(ctx, orgID, docID)
	if err != nil {
		if errors.Is(err, ErrTransferNotFound) {
			return Transfer{}, shared.NewError(shared.CodeNotFound, "Transfer document not found.")
		}
		return Transfer{}, err
	}
	return t, nil
}

// ListBalances returns all packaging balance rows of the organization.
func (s *Service) ListBalances(ctx context.Context, orgID string, actorID int64) ([]Balance, error) {
	if _, err := s.gate.Authorize(ctx, orgID, actorID, orgs.ReadRoles...); err != nil {
		return nil, err
	}
	return s.repo.ListBalances(ctx, orgID)
}

// Post numbers a DRAFT transfer, moves each line's quantity from the source
// owner's balance to the destination owner's, and locks the document as
// POSTED, all in one transaction.
func (s *Service) Post(ctx context.Context, orgID, docID string, actorID int64) error {
	if orgID == "" || docID == "" {
		return shared.NewError(shared.CodeInvalidArgument, "orgId and docId are required.")
	}
	if _, err := s.gate.Authorize(ctx, orgID, actorID, postRoles...); err != nil {
		return err
	}

	// The business date is fixed before the transaction, so a conflict retry
	// spanning midnight keeps the original counter scope.
	now := s.now().UTC()

	var docNo string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.GetTransferForUpdate(ctx, orgID, docID)
		if err != nil {
			if errors.Is(err, ErrTransferNotFound) {
				return shared.NewError(shared.CodeNotFound, "Transfer document not found.")
			}
			return err
		}

		if t.Status != StatusDraft {
			return shared.NewError(shared.CodeFailedPrecondition, "Only DRAFT can be posted.")
		}
		if t.DocNo != "" {
			return shared.NewError(shared.CodeFailedPrecondition, "docNo already set.")
		}
		if t.FromOwner.Type == "" || t.ToOwner.Type == "" || len(t.Items) == 0 {
			return shared.NewError(shared.CodeInvalidArgument, "Invalid transfer payload.")
		}
		for i, it := range t.Items {
			if it.PackType == "" {
				return shared.NewError(shared.CodeInvalidArgument, "packType required.")
			}
			if it.Qty < 0 {
				return shared.Errorf(shared.CodeInvalidArgument, "Field items[%d].qty must be a non-negative integer.", i)
			}
		}

		seq, err := tx.NextSequence(ctx, orgID, sequence.CounterName(sequence.PrefixPackagingTransfer, now))
		if err != nil {
			return err
		}
		docNo = sequence.DocNo(sequence.PrefixPackagingTransfer, now, seq)

		fromKey := OwnerKey(orgID, t.FromOwner)
		toKey := OwnerKey(orgID, t.ToOwner)

		fromBalances, err := s.loadBalances(ctx, tx, orgID, fromKey)
		if err != nil {
			return err
		}
		// A transfer whose owners collapse to the same key moves quantities
		// within a single row; both sides must see the same map so the total
		// per pack type is conserved.
		toBalances := fromBalances
		if toKey != fromKey {
			toBalances, err = s.loadBalances(ctx, tx, orgID, toKey)
			if err != nil {
				return err
			}
		}

		for _, it := range t.Items {
			if _, err := ledger.Apply(fromBalances, fromKey, it.PackType, -it.Qty); err != nil {
				var insufficient *ledger.InsufficientBalanceError
				if errors.As(err, &insufficient) {
					return shared.Errorf(shared.CodeFailedPrecondition,
						"Insufficient balance for %s on %s. Current=%d, required=%d.",
						insufficient.SubKey, insufficient.Key, int64(insufficient.Current), int64(insufficient.Required))
				}
				return err
			}
			if _, err := ledger.Apply(toBalances, toKey, it.PackType, it.Qty); err != nil {
				return err
			}
		}

		if err := tx.SaveBalance(ctx, Balance{OrgID: orgID, OwnerKey: fromKey, Balances: fromBalances, UpdatedAt: now}); err != nil {
			return err
		}
		if toKey != fromKey {
			if err := tx.SaveBalance(ctx, Balance{OrgID: orgID, OwnerKey: toKey, Balances: toBalances, UpdatedAt: now}); err != nil {
				return err
			}
		}

		return tx.MarkPosted(ctx, orgID, docID, docNo, actorID, now)
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, shared.AuditLog{
		OrgID:    orgID,
		ActorID:  actorID,
		Action:   "packaging.transfer.posted",
		Entity:   "packaging_transfer",
		EntityID: docID,
		Meta:     map[string]any{"docNo": docNo},
		At:       now,
	})
	return nil
}

func (s *Service) loadBalances(ctx context.Context, tx TxRepository, orgID, ownerKey string) (map[string]int64, error) {
	b, err := tx.GetBalanceForUpdate(ctx, orgID, ownerKey)
	if err != nil {
		if errors.Is(err, ErrBalanceNotFound) {
			return make(map[string]int64), nil
		}
		return nil, err
	}
	if b.Balances == nil {
		return make(map[string]int64), nil
	}
	return b.Balances, nil
}

func (s *Service) recordAudit(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit record failed", "action", log.Action, "entity_id", log.EntityID, "error", err)
	}
}
