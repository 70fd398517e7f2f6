package receipts

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/packhouse-erp/packhouse/internal/orgs"
	"github.com/packhouse-erp/packhouse/internal/sequence"
	"github.com/packhouse-erp/packhouse/internal/shared"
)

// postRoles may approve inbound receipts.
var postRoles = []orgs.Role{orgs.RoleAdmin, orgs.RoleOpsManager, orgs.RoleWarehouse, orgs.RoleAccounting}

// ErrReceiptNotFound signals an absent receipt document.
var ErrReceiptNotFound = errors.New("receipts: receipt not found")

// ErrBalanceNotFound signals an absent receipt balance row.
var ErrBalanceNotFound = errors.New("receipts: balance not found")

// AccessGate resolves the caller's role before any transactional work.
type AccessGate interface {
	Authorize(ctx context.Context, orgID string, userID int64, allowed ...orgs.Role) (orgs.Role, error)
}

// TxRepository is the repository surface available inside one posting
// transaction.
type TxRepository interface {
	GetReceiptForUpdate(ctx context.Context, orgID, receiptID string) (Receipt, error)
	NextSequence(ctx context.Context, orgID, name string) (int64, error)
	SaveBalance(ctx context.Context, b Balance) error
	MarkApproved(ctx context.Context, orgID, receiptID, receiptNo string, actorID int64, at time.Time) error
}

// RepositoryPort is the full persistence surface of the receipts module.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	CreateReceipt(ctx context.Context, r Receipt) error
	GetReceipt(ctx context.Context, orgID, receiptID string) (Receipt, error)
	GetBalance(ctx context.Context, orgID, receiptID string) (Balance, error)
}

// AuditPort records posting events after commit.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates inbound-receipt drafting and approval.
type Service struct {
	repo   RepositoryPort
	gate   AccessGate
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the receipts service.
func NewService(repo RepositoryPort, gate AccessGate, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		gate:   gate,
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

// CreateDraft stores a new receipt in DRAFT state and returns it.
func (s *Service) CreateDraft(ctx context.Context, orgID string, actorID int64, req CreateReceiptRequest) (Receipt, error) {
	if _, err := s.gate.Authorize(ctx, orgID, actorID, postRoles...); err != nil {
		return Receipt{}, err
	}

	r := Receipt{
		OrgID:     orgID,
		ID:        uuid.NewString(),
		Status:    StatusDraft,
		FarmID:    req.FarmID,
		QtyKg:     req.QtyKg,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateReceipt(ctx, r); err != nil {
		return Receipt{}, err
	}
	return r, nil
}

// Get returns one receipt for any registered member.
func (s *Service) Get(ctx context.Context, orgID, receiptID string, actorID int64) (Receipt, error) {
	if _, err := s.gate.Authorize(ctx, orgID, actorID, orgs.ReadRoles...); err != nil {
		return Receipt{}, err
	}
	r, err := s.repo.GetReceipt(ctx, orgID, receiptID)
	if err != nil {
		if errors.Is(err, ErrReceiptNotFound) {
			return Receipt{}, shared.NewError(shared.CodeNotFound, "Receipt not found.")
		}
		return Receipt{}, err
	}
	return r, nil
}

// GetBalance returns the remaining weight of one approved receipt.
func (s *Service) GetBalance(ctx context.Context, orgID, receiptID string, actorID int64) (Balance, error) {
	if _, err := s.gate.Authorize(ctx, orgID, actorID, orgs.ReadRoles...); err != nil {
		return Balance{}, err
	}
	b, err := s.repo.GetBalance(ctx, orgID, receiptID)
	if err != nil {
		if errors.Is(err, ErrBalanceNotFound) {
			return Balance{}, shared.Errorf(shared.CodeNotFound, "Receipt balance missing: %s", receiptID)
		}
		return Balance{}, err
	}
	return b, nil
}

// Post numbers a DRAFT receipt, creates its remaining-weight balance equal to
// the received weight, and locks the document as APPROVED, all in one
// transaction. Re-approval is impossible, so the balance write is a plain
// overwrite.
func (s *Service) Post(ctx context.Context, orgID, receiptID string, actorID int64) error {
	if orgID == "" || receiptID == "" {
		return shared.NewError(shared.CodeInvalidArgument, "orgId and receiptId are required.")
	}
	if _, err := s.gate.Authorize(ctx, orgID, actorID, postRoles...); err != nil {
		return err
	}

	now := s.now().UTC()

	var receiptNo string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		r, err := tx.GetReceiptForUpdate(ctx, orgID, receiptID)
		if err != nil {
			if errors.Is(err, ErrReceiptNotFound) {
				return shared.NewError(shared.CodeNotFound, "Receipt not found.")
			}
			return err
		}

		if r.Status != StatusDraft {
			return shared.NewError(shared.CodeFailedPrecondition, "Only DRAFT can be posted.")
		}
		if r.ReceiptNo != "" {
			return shared.NewError(shared.CodeFailedPrecondition, "receiptNo already set.")
		}
		if r.FarmID == "" {
			return shared.NewError(shared.CodeInvalidArgument, "farmId required.")
		}
		if r.QtyKg < 0 || math.IsNaN(r.QtyKg) || math.IsInf(r.QtyKg, 0) {
			return shared.NewError(shared.CodeInvalidArgument, "Field qtyKg must be a non-negative number.")
		}

		seq, err := tx.NextSequence(ctx, orgID, sequence.CounterName(sequence.PrefixInboundReceipt, now))
		if err != nil {
			return err
		}
		receiptNo = sequence.DocNo(sequence.PrefixInboundReceipt, now, seq)

		if err := tx.SaveBalance(ctx, Balance{
			OrgID:       orgID,
			ReceiptID:   receiptID,
			RemainingKg: r.QtyKg,
			UpdatedAt:   now,
		}); err != nil {
			return err
		}

		return tx.MarkApproved(ctx, orgID, receiptID, receiptNo, actorID, now)
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, shared.AuditLog{
		OrgID:    orgID,
		ActorID:  actorID,
		Action:   "receipts.receipt.approved",
		Entity:   "inbound_receipt",
		EntityID: receiptID,
		Meta:     map[string]any{"receiptNo": receiptNo},
		At:       now,
	})
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
