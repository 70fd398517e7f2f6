package receipts

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/packhouse-erp/packhouse/internal/observability"
	"github.com/packhouse-erp/packhouse/internal/platform/httpx"
	"github.com/packhouse-erp/packhouse/internal/shared"
)

// Handler serves the inbound-receipt endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
	metrics  *observability.Metrics
}

// NewHandler constructs the receipts handler.
func NewHandler(svc *Service, validate *validator.Validate, metrics *observability.Metrics) *Handler {
	return &Handler{svc: svc, validate: validate, metrics: metrics}
}

// Routes mounts the receipt endpoints under an /orgs/{orgID} subtree.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/receipts", func(r chi.Router) {
		r.Post("/", h.createDraft)
		r.Get("/{receiptID}", h.getReceipt)
		r.Get("/{receiptID}/balance", h.getBalance)
		r.Post("/{receiptID}/post", h.postReceipt)
	})
}

func (h *Handler) createDraft(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orgID := chi.URLParam(r, "orgID")

	var req CreateReceiptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.NewError(shared.CodeInvalidArgument, "invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Errorf(shared.CodeInvalidArgument, "validation failed: %v", err))
		return
	}

	rec, err := h.svc.CreateDraft(r.Context(), orgID, actorID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toReceiptResponse(rec))
}

func (h *Handler) getReceipt(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orgID := chi.URLParam(r, "orgID")
	receiptID := chi.URLParam(r, "receiptID")

	rec, err := h.svc.Get(r.Context(), orgID, receiptID, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReceiptResponse(rec))
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orgID := chi.URLParam(r, "orgID")
	receiptID := chi.URLParam(r, "receiptID")

	b, err := h.svc.GetBalance(r.Context(), orgID, receiptID, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, BalanceResponse{ReceiptID: b.ReceiptID, RemainingKg: b.RemainingKg})
}

func (h *Handler) postReceipt(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orgID := chi.URLParam(r, "orgID")
	receiptID := chi.URLParam(r, "receiptID")

	if err := h.svc.Post(r.Context(), orgID, receiptID, actorID); err != nil {
		h.metrics.CountPosting("inbound_receipt", "error")
		httpx.RespondError(w, err)
		return
	}
	h.metrics.CountPosting("inbound_receipt", "ok")
	httpx.OK(w)
}

func toReceiptResponse(r Receipt) ReceiptResponse {
	return ReceiptResponse{
		ID:        r.ID,
		Status:    string(r.Status),
		ReceiptNo: r.ReceiptNo,
		FarmID:    r.FarmID,
		QtyKg:     r.QtyKg,
	}
}
