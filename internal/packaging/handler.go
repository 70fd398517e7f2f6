package packaging

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/packhouse-erp/packhouse/internal/observability"
	"github.com/packhouse-erp/packhouse/internal/platform/httpx"
	"github.com/packhouse-erp/packhouse/internal/shared"
)

// Handler serves the packaging-transfer endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
	metrics  *observability.Metrics
}

// NewHandler constructs the packaging handler.
func NewHandler(svc *Service, validate *validator.Validate, metrics *observability.Metrics) *Handler {
	return &Handler{svc: svc, validate: validate, metrics: metrics}
}

// Routes mounts the packaging endpoints under an /orgs/{orgID} subtree.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/packaging", func(r chi.Router) {
		r.Post("/transfers", h.createDraft)
		r.Get("/transfers/{docID}", h.getTransfer)
		r.Post("/transfers/{docID}/post", h.postTransfer)
		r.Get("/balances", h.listBalances)
	})
}

func (h *Handler) createDraft(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orgID := chi.URLParam(r, "orgID")

	var req CreateTransferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.NewError(shared.CodeInvalidArgument, "invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Errorf(shared.CodeInvalidArgument, "validation failed: %v", err))
		return
	}

	t, err := h.svc.CreateDraft(r.Context(), orgID, actorID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransferResponse(t))
}

func (h *Handler) getTransfer(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orgID := chi.URLParam(r, "orgID")
	docID := chi.URLParam(r, "docID")

	t, err := h.svc.Get(r.Context(), orgID, docID, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransferResponse(t))
}

func (h *Handler) postTransfer(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orgID := chi.URLParam(r, "orgID")
	docID := chi.URLParam(r, "docID")

	if err := h.svc.Post(r.Context(), orgID, docID, actorID); err != nil {
		h.metrics.CountPosting("packaging_transfer", "error")
		httpx.RespondError(w, err)
		return
	}
	h.metrics.CountPosting("packaging_transfer", "ok")
	httpx.OK(w)
}

func (h *Handler) listBalances(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orgID := chi.URLParam(r, "orgID")

	balances, err := h.svc.ListBalances(r.Context(), orgID, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]BalanceResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, BalanceResponse{OwnerKey: b.OwnerKey, Balances: b.Balances})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func toTransferResponse(t Transfer) TransferResponse {
	return TransferResponse{
		ID:        t.ID,
		Status:    string(t.Status),
		DocNo:     t.DocNo,
		FromOwner: t.FromOwner,
		ToOwner:   t.ToOwner,
		Items:     t.Items,
	}
}
