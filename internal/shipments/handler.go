package shipments

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/packhouse-erp/packhouse/internal/observability"
	"github.com/packhouse-erp/packhouse/internal/platform/httpx"
	"github.com/packhouse-erp/packhouse/internal/shared"
)

// Handler serves the shipment endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
	metrics  *observability.Metrics
}

// NewHandler constructs the shipments handler.
func NewHandler(svc *Service, validate *validator.Validate, metrics *observability.Metrics) *Handler {
	return &Handler{svc: svc, validate: validate, metrics: metrics}
}

// Routes mounts the shipment endpoints under an /orgs/{orgID} subtree.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/shipments", func(r chi.Router) {
		r.Post("/", h.createDraft)
		r.Get("/{shipmentID}", h.getShipment)
		r.Post("/{shipmentID}/post", h.postShipment)
	})
}

func (h *Handler) createDraft(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orgID := chi.URLParam(r, "orgID")

	var req CreateShipmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.NewError(shared.CodeInvalidArgument, "invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Errorf(shared.CodeInvalidArgument, "validation failed: %v", err))
		return
	}

	sh, err := h.svc.CreateDraft(r.Context(), orgID, actorID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toShipmentResponse(sh))
}

func (h *Handler) getShipment(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orgID := chi.URLParam(r, "orgID")
	shipmentID := chi.URLParam(r, "shipmentID")

	sh, err := h.svc.Get(r.Context(), orgID, shipmentID, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toShipmentResponse(sh))
}

func (h *Handler) postShipment(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orgID := chi.URLParam(r, "orgID")
	shipmentID := chi.URLParam(r, "shipmentID")

	if err := h.svc.Post(r.Context(), orgID, shipmentID, actorID); err != nil {
		h.metrics.CountPosting("shipment", "error")
		httpx.RespondError(w, err)
		return
	}
	h.metrics.CountPosting("shipment", "ok")
	httpx.OK(w)
}

func toShipmentResponse(s Shipment) ShipmentResponse {
	return ShipmentResponse{
		ID:         s.ID,
		Status:     string(s.Status),
		ShipmentNo: s.ShipmentNo,
		Lines:      s.Lines,
	}
}
