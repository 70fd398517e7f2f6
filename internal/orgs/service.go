package orgs

import (
	"context"

	"github.com/packhouse-erp/packhouse/internal/shared"
)

// Repository defines persistence for organizations and memberships.
type Repository interface {
	GetOrganization(ctx context.Context, orgID string) (Organization, error)
	GetMember(ctx context.Context, orgID string, userID int64) (Member, error)
	ListMembers(ctx context.Context, orgID string) ([]Member, error)
	UpsertMember(ctx context.Context, m Member) error
}

// Service resolves caller roles for the posting workflows. It is the access
// gate: read-only, consulted before any transactional work begins.
type Service struct {
	repo Repository
}

// NewService constructs the access gate service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authorize resolves the caller's membership in the organization and checks
// the resolved role against the allowed set. The role is assumed stable for
// the duration of one call, so the lookup stays outside the posting
// transaction.
func (s *Service) Authorize(ctx context.Context, orgID string, userID int64, allowed ...Role) (Role, error) {
	member, err := s.repo.GetMember(ctx, orgID, userID)
	if err != nil {
		if shared.CodeOf(err) == shared.CodeNotFound {
			return "", shared.NewError(shared.CodePermissionDenied, "User not registered in org.")
		}
		return "", err
	}
	for _, role := range allowed {
		if member.Role == role {
			return member.Role, nil
		}
	}
	return "", shared.NewError(shared.CodePermissionDenied, "Insufficient role.")
}

// Register adds or updates a membership. Only admins manage members.
func (s *Service) Register(ctx context.Context, orgID string, actorID int64, m Member) (Member, error) {
	if _, err := s.Authorize(ctx, orgID, actorID, RoleAdmin); err != nil {
		return Member{}, err
	}
	if m.UserID == 0 {
		return Member{}, shared.NewError(shared.CodeInvalidArgument, "userId is required.")
	}
	if !m.Role.Valid() {
		return Member{}, shared.Errorf(shared.CodeInvalidArgument, "unknown role %q", m.Role)
	}
	m.OrgID = orgID
	if err := s.repo.UpsertMember(ctx, m); err != nil {
		return Member{}, err
	}
	return m, nil
}

// Members lists the organization's memberships for admins.
func (s *Service) Members(ctx context.Context, orgID string, actorID int64) ([]Member, error) {
	if _, err := s.Authorize(ctx, orgID, actorID, RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, orgID)
}
