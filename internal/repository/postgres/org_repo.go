package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/vaultkeep/vaultkeep/internal/errs"
	"github.com/vaultkeep/vaultkeep/internal/model"
)

// MembershipRepo implements MembershipRepository using PostgreSQL.
type MembershipRepo struct{ db *DB }

// NewMembershipRepo constructs a membership repository.
func NewMembershipRepo(db *DB) *MembershipRepo { return &MembershipRepo{db: db} }

// Get loads the membership of a user in one organization. Only confirmed
// memberships grant vault access, so invited and accepted rows are treated
// as absent.
func (r *MembershipRepo) Get(ctx context.Context, userID, orgID uuid.UUID) (*model.Membership, error) {
	const q = `
SELECT user_id, organization_id, role, status, access_all
FROM memberships WHERE user_id=$1 AND organization_id=$2 AND status=2`
	var m model.Membership
	err := r.db.Pool.QueryRow(ctx, q, userID, orgID).
		Scan(&m.UserID, &m.OrganizationID, &m.Role, &m.Status, &m.AccessAll)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// FindByUser returns all confirmed memberships of a user.
func (r *MembershipRepo) FindByUser(ctx context.Context, userID uuid.UUID) ([]model.Membership, error) {
	const q = `
SELECT user_id, organization_id, role, status, access_all
FROM memberships WHERE user_id=$1 AND status=2`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Membership
	for rows.Next() {
		var m model.Membership
		if err := rows.Scan(&m.UserID, &m.OrganizationID, &m.Role, &m.Status, &m.AccessAll); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// OrganizationIDsByUser returns the organizations of the user's confirmed
// memberships.
func (r *MembershipRepo) OrganizationIDsByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	const q = `SELECT organization_id FROM memberships WHERE user_id=$1 AND status=2`
	return queryIDs(ctx, r.db, q, userID)
}

// GroupRepo implements GroupRepository using PostgreSQL.
type GroupRepo struct{ db *DB }

// NewGroupRepo constructs a group repository.
func NewGroupRepo(db *DB) *GroupRepo { return &GroupRepo{db: db} }

// FullAccessOrganizationIDsByUser returns organizations where the user is in
// an access-all group.
func (r *GroupRepo) FullAccessOrganizationIDsByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	const q = `
SELECT DISTINCT g.organization_id
FROM groups g
JOIN groups_users gu ON gu.group_id = g.id
WHERE gu.user_id=$1 AND g.access_all`
	return queryIDs(ctx, r.db, q, userID)
}

// PolicyRepo implements PolicyRepository using PostgreSQL.
type PolicyRepo struct{ db *DB }

// NewPolicyRepo constructs a policy repository.
func NewPolicyRepo(db *DB) *PolicyRepo { return &PolicyRepo{db: db} }

// IsApplicable reports whether the policy kind applies to the user. Policies
// bind accepted and confirmed members; owners and admins are exempt.
func (r *PolicyRepo) IsApplicable(ctx context.Context, userID uuid.UUID, kind model.PolicyKind) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM org_policies p
  JOIN memberships m ON m.organization_id = p.organization_id
  WHERE m.user_id=$1 AND p.kind=$2 AND p.enabled
    AND m.status >= 1 AND m.role >= 2)`
	var applicable bool
	if err := r.db.Pool.QueryRow(ctx, q, userID, kind).Scan(&applicable); err != nil {
		return false, err
	}
	return applicable, nil
}

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// BumpRevision advances one user's revision timestamp.
func (r *UserRepo) BumpRevision(ctx context.Context, userID uuid.UUID) error {
	const q = `UPDATE users SET revision_at=now() WHERE id=$1`
	_, err := r.db.Pool.Exec(ctx, q, userID)
	return err
}

// BumpRevisionForCipher advances the revision of every user who can see the
// cipher and returns their IDs.
func (r *UserRepo) BumpRevisionForCipher(ctx context.Context, c *model.Cipher) ([]uuid.UUID, error) {
	if c.UserID != nil {
		if err := r.BumpRevision(ctx, *c.UserID); err != nil {
			return nil, err
		}
		return []uuid.UUID{*c.UserID}, nil
	}
	if c.OrganizationID == nil {
		return nil, nil
	}

	const q = `
UPDATE users SET revision_at=now()
WHERE id IN (
  SELECT m.user_id FROM memberships m
  WHERE m.organization_id=$1 AND m.status=2 AND (m.access_all OR m.role <= 1)
  UNION
  SELECT cu.user_id FROM collections_users cu
  JOIN collections_ciphers cc ON cc.collection_id = cu.collection_id
  WHERE cc.cipher_id=$2
  UNION
  SELECT gu.user_id FROM groups_users gu
  JOIN collections_groups cg ON cg.group_id = gu.group_id
  JOIN collections_ciphers cc ON cc.collection_id = cg.collection_id
  WHERE cc.cipher_id=$2
  UNION
  SELECT gu.user_id FROM groups_users gu
  JOIN groups g ON g.id = gu.group_id
  WHERE g.organization_id=$1 AND g.access_all)
RETURNING id`
	return queryIDs(ctx, r.db, q, *c.OrganizationID, c.ID)
}

func queryIDs(ctx context.Context, db *DB, q string, args ...any) ([]uuid.UUID, error) {
	rows, err := db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
