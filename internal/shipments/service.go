package shipments

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/packhouse-erp/packhouse/internal/ledger"
	"github.com/packhouse-erp/packhouse/internal/orgs"
	"github.com/packhouse-erp/packhouse/internal/sequence"
	"github.com/packhouse-erp/packhouse/internal/shared"
)

// postRoles may load shipments. Accounting stays out of this one.
var postRoles = []orgs.Role{orgs.RoleAdmin, orgs.RoleOpsManager, orgs.RoleWarehouse}

// ErrShipmentNotFound signals an absent shipment document.
var ErrShipmentNotFound = errors.New("shipments: shipment not found")

// ErrReceiptBalanceNotFound signals an absent receipt balance row. Unlike
// packaging balances it is never an implicit zero: shipping against a receipt
// that was never approved is a precondition failure.
var ErrReceiptBalanceNotFound = errors.New("shipments: receipt balance not found")

// AccessGate resolves the caller's role before any transactional work.
type AccessGate interface {
	Authorize(ctx context.Context, orgID string, userID int64, allowed ...orgs.Role) (orgs.Role, error)
}

// TxRepository is the repository surface available inside one posting
// transaction.
type TxRepository interface {
	GetShipmentForUpdate(ctx context.Context, orgID, shipmentID string) (Shipment, error)
	GetReceiptBalanceForUpdate(ctx context.Context, orgID, receiptID string) (float64, error)
	SaveReceiptBalance(ctx context.Context, orgID, receiptID string, remainingKg float64, at time.Time) error
	NextSequence(ctx context.Context, orgID, name string) (int64, error)
	MarkLoaded(ctx context.Context, orgID, shipmentID, shipmentNo string, actorID int64, at time.Time) error
}

// RepositoryPort is the full persistence surface of the shipments module.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	CreateShipment(ctx context.Context, s Shipment) error
	GetShipment(ctx context.Context, orgID, shipmentID string) (Shipment, error)
}

// AuditPort records posting events after commit.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates shipment drafting and loading.
type Service struct {
	repo   RepositoryPort
	gate   AccessGate
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the shipments service.
func NewService(repo RepositoryPort, gate AccessGate, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		gate:   gate,
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

// CreateDraft stores a new shipment in DRAFT state and returns it.
func (s *Service) CreateDraft(ctx context.Context, orgID string, actorID int64, req CreateShipmentRequest) (Shipment, error) {
	if _, err := s.gate.Authorize(ctx, orgID, actorID, postRoles...); err != nil {
		return Shipment{}, err
	}

	lines := make([]Line, 0, len(req.Lines))
	for _, ln := range req.Lines {
		lines = append(lines, Line{ReceiptID: ln.ReceiptID, QtyKg: ln.QtyKg})
	}
	sh := Shipment{
		OrgID:     orgID,
		ID:        uuid.NewString(),
		Status:    StatusDraft,
		Lines:     lines,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateShipment(ctx, sh); err != nil {
		return Shipment{}, err
	}
	return sh, nil
}

// Get returns one shipment for any registered member.
func (s *Service) Get(ctx context.Context, orgID, shipmentID string, actorID int64) (Shipment, error) {
	if _, err := s.gate.Authorize(ctx, orgID, actorID, orgs.ReadRoles...); err != nil {
		return Shipment{}, err
	}
	sh, err := s.repo.GetShipment(ctx, orgID, shipmentID)
	if err != nil {
		if errors.Is(err, ErrShipmentNotFound) {
			return Shipment{}, shared.NewError(shared.CodeNotFound, "Shipment not found.")
		}
		return Shipment{}, err
	}
	return sh, nil
}

// Post numbers a DRAFT shipment, deducts each line's weight from the
// referenced receipt balance, and locks the document as LOADED, all in one
// transaction. Every referenced balance must already exist; the first
// insufficient line aborts the whole posting.
func (s *Service) Post(ctx context.Context, orgID, shipmentID string, actorID int64) error {
	if orgID == "" || shipmentID == "" {
		return shared.NewError(shared.CodeInvalidArgument, "orgId and shipmentId are required.")
	}
	if _, err := s.gate.Authorize(ctx, orgID, actorID, postRoles...); err != nil {
		return err
	}

	now := s.now().UTC()

	var shipmentNo string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sh, err := tx.GetShipmentForUpdate(ctx, orgID, shipmentID)
		if err != nil {
			if errors.Is(err, ErrShipmentNotFound) {
				return shared.NewError(shared.CodeNotFound, "Shipment not found.")
			}
			return err
		}

		if sh.Status != StatusDraft {
			return shared.NewError(shared.CodeFailedPrecondition, "Only DRAFT can be posted.")
		}
		if sh.ShipmentNo != "" {
			return shared.NewError(shared.CodeFailedPrecondition, "shipmentNo already set.")
		}
		if len(sh.Lines) == 0 {
			return shared.NewError(shared.CodeInvalidArgument, "Shipment lines required.")
		}

		// Two lines may hit the same receipt, so deductions accumulate in a
		// local view and each balance row is written once.
		remaining := make(map[string]float64)
		for i, ln := range sh.Lines {
			if ln.ReceiptID == "" {
				return shared.NewError(shared.CodeInvalidArgument, "receiptId required in lines.")
			}
			if ln.QtyKg < 0 || math.IsNaN(ln.QtyKg) || math.IsInf(ln.QtyKg, 0) {
				return shared.Errorf(shared.CodeInvalidArgument, "Field lines[%d].qtyKg must be a non-negative number.", i)
			}

			cur, ok := remaining[ln.ReceiptID]
			if !ok {
				cur, err = tx.GetReceiptBalanceForUpdate(ctx, orgID, ln.ReceiptID)
				if err != nil {
					if errors.Is(err, ErrReceiptBalanceNotFound) {
						return shared.Errorf(shared.CodeFailedPrecondition, "Receipt balance missing: %s", ln.ReceiptID)
					}
					return err
				}
			}

			next, err := ledger.ApplyScalar(ln.ReceiptID, cur, -ln.QtyKg)
			if err != nil {
				var insufficient *ledger.InsufficientBalanceError
				if errors.As(err, &insufficient) {
					return shared.Errorf(shared.CodeFailedPrecondition,
						"Insufficient remaining for receipt %s. Remaining=%v, required=%v",
						insufficient.Key, insufficient.Current, insufficient.Required)
				}
				return err
			}
			remaining[ln.ReceiptID] = next
		}

		for receiptID, kg := range remaining {
			if err := tx.SaveReceiptBalance(ctx, orgID, receiptID, kg, now); err != nil {
				return err
			}
		}

		seq, err := tx.NextSequence(ctx, orgID, sequence.CounterName(sequence.PrefixShipment, now))
		if err != nil {
			return err
		}
		shipmentNo = sequence.DocNo(sequence.PrefixShipment, now, seq)

		return tx.MarkLoaded(ctx, orgID, shipmentID, shipmentNo, actorID, now)
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, shared.AuditLog{
		OrgID:    orgID,
		ActorID:  actorID,
		Action:   "shipments.shipment.loaded",
		Entity:   "shipment",
		EntityID: shipmentID,
		Meta:     map[string]any{"shipmentNo": shipmentNo},
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
