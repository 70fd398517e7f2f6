package orgs

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/packhouse-erp/packhouse/internal/platform/httpx"
	"github.com/packhouse-erp/packhouse/internal/shared"
)

// Handler serves membership management endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

// NewHandler constructs the membership handler.
func NewHandler(svc *Service, validate *validator.Validate) *Handler {
	return &Handler{svc: svc, validate: validate}
}

// Routes mounts the membership endpoints under an /orgs/{orgID} subtree.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/members", h.listMembers)
	r.Put("/members", h.upsertMember)
}

type memberRequest struct {
	UserID int64  `json:"userId" validate:"required"`
	Role   string `json:"role" validate:"required"`
}

type memberResponse struct {
	UserID int64  `json:"userId"`
	Role   string `json:"role"`
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orgID := chi.URLParam(r, "orgID")

	members, err := h.svc.Members(r.Context(), orgID, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, memberResponse{UserID: m.UserID, Role: string(m.Role)})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) upsertMember(w http.ResponseWriter, r *http.Request) {
	actorID, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orgID := chi.URLParam(r, "orgID")

	var req memberRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.NewError(shared.CodeInvalidArgument, "invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Errorf(shared.CodeInvalidArgument, "validation failed: %v", err))
		return
	}

	member, err := h.svc.Register(r.Context(), orgID, actorID, Member{
		UserID: req.UserID,
		Role:   Role(req.Role),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, memberResponse{UserID: member.UserID, Role: string(member.Role)})
}
