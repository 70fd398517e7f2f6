package cartons

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/packhouse-erp/packhouse/internal/observability"
	"github.com/packhouse-erp/packhouse/internal/platform/httpx"
	"github.com/packhouse-erp/packhouse/internal/shared"
)

// Handler serves the carton purchase, issue and stock endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
	metrics  *observability.Metrics
}

// NewHandler constructs the cartons handler.
func NewHandler(svc *Service, validate *validator.Validate, metrics *observability.Metrics) *Handler {
	return &Handler{svc: svc, validate: validate, metrics: metrics}
}

// Routes mounts the carton endpoints under an /orgs/{orgID} subtree.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/cartons", func(r chi.Router) {
		r.Post("/purchases", h.createPurchase)
		r.Get("/purchases/{purchaseID}", h.getPurchase)
		r.Post("/purchases/{purchaseID}/post", h.postPurchase)
		r.Post("/issues", h.createIssue)
		r.Get("/issues/{issueID}", h.getIssue)
		r.Post("/issues/{issueID}/post", h.postIssue)
		r.Get("/balances", h.listBalances)
	})
}

func (h *Handler) createPurchase(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orgID := chi.URLParam(r, "orgID")

	req, ok := h.decodeDocument(w, r)
	if !ok {
		return
	}
	p, err := h.svc.CreatePurchaseDraft(r.Context(), orgID, actorID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, DocumentResponse{ID: p.ID, Status: string(p.Status), DocNo: p.PurchaseNo, Items: p.Items})
}

func (h *Handler) createIssue(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orgID := chi.URLParam(r, "orgID")

	req, ok := h.decodeDocument(w, r)
	if !ok {
		return
	}
	i, err := h.svc.CreateIssueDraft(r.Context(), orgID, actorID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, DocumentResponse{ID: i.ID, Status: string(i.Status), DocNo: i.IssueNo, Items: i.Items})
}

func (h *Handler) getPurchase(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.svc.GetPurchase(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "purchaseID"), actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, DocumentResponse{ID: p.ID, Status: string(p.Status), DocNo: p.PurchaseNo, Items: p.Items})
}

func (h *Handler) getIssue(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	i, err := h.svc.GetIssue(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "issueID"), actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, DocumentResponse{ID: i.ID, Status: string(i.Status), DocNo: i.IssueNo, Items: i.Items})
}

func (h *Handler) postPurchase(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.svc.PostPurchase(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "purchaseID"), actorID); err != nil {
		h.metrics.CountPosting("carton_purchase", "error")
		httpx.RespondError(w, err)
		return
	}
	h.metrics.CountPosting("carton_purchase", "ok")
	httpx.OK(w)
}

func (h *Handler) postIssue(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.svc.PostIssue(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "issueID"), actorID); err != nil {
		h.metrics.CountPosting("carton_issue", "error")
		httpx.RespondError(w, err)
		return
	}
	h.metrics.CountPosting("carton_issue", "ok")
	httpx.OK(w)
}

func (h *Handler) listBalances(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	balances, err := h.svc.ListBalances(r.Context(), chi.URLParam(r, "orgID"), actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]BalanceResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, BalanceResponse{ItemID: b.ItemID, Qty: b.Qty})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) decodeDocument(w http.ResponseWriter, r *http.Request) (CreateDocumentRequest, bool) {
	var req CreateDocumentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.NewError(shared.CodeInvalidArgument, "invalid JSON body"))
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Errorf(shared.CodeInvalidArgument, "validation failed: %v", err))
		return req, false
	}
	return req, true
}
