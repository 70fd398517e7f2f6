package orgs

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/packhouse-erp/packhouse/internal/shared"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// GetOrganization fetches one organization by id.
func (r *PGRepository) GetOrganization(ctx context.Context, orgID string) (Organization, error) {
	var org Organization
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM orgs WHERE id = $1`, orgID).
		Scan(&org.ID, &org.Name, &org.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Organization{}, shared.Errorf(shared.CodeNotFound, "organization %s not found", orgID)
		}
		return Organization{}, err
	}
	return org, nil
}

// GetMember fetches the caller's membership record.
func (r *PGRepository) GetMember(ctx context.Context, orgID string, userID int64) (Member, error) {
	m := Member{OrgID: orgID, UserID: userID}
	err := r.pool.QueryRow(ctx,
		`SELECT role, created_at FROM org_members WHERE org_id = $1 AND user_id = $2`, orgID, userID).
		Scan(&m.Role, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, shared.NewError(shared.CodeNotFound, "membership not found")
		}
		return Member{}, err
	}
	return m, nil
}

// ListMembers returns all memberships of an organization.
func (r *PGRepository) ListMembers(ctx context.Context, orgID string) ([]Member, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT org_id, user_id, role, created_at FROM org_members WHERE org_id = $1 ORDER BY user_id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.OrgID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// UpsertMember creates or updates a membership record.
func (r *PGRepository) UpsertMember(ctx context.Context, m Member) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO org_members (org_id, user_id, role, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (org_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		m.OrgID, m.UserID, m.Role)
	return err
}

var _ Repository = (*PGRepository)(nil)
