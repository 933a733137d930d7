package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/vaultkeep/vaultkeep/internal/model"
)

// MembershipRepository provides access to organization memberships.
type MembershipRepository interface {
	// Get loads the membership of a user in one organization.
	Get(ctx context.Context, userID, orgID uuid.UUID) (*model.Membership, error)

	// FindByUser returns all memberships of a user.
	FindByUser(ctx context.Context, userID uuid.UUID) ([]model.Membership, error)

	// OrganizationIDsByUser returns the organizations the user belongs to.
	OrganizationIDsByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// GroupRepository provides group-derived access lookups.
type GroupRepository interface {
	// FullAccessOrganizationIDsByUser returns organizations where the user
	// has full access through a group marked access-all.
	FullAccessOrganizationIDsByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// PolicyRepository answers organization policy questions.
type PolicyRepository interface {
	// IsApplicable reports whether the policy kind applies to the user via
	// any confirmed, non-exempt membership in an org with the policy enabled.
	// Owners and admins are exempt.
	IsApplicable(ctx context.Context, userID uuid.UUID, kind model.PolicyKind) (bool, error)
}

// UserRepository maintains per-user revision counters used for client cache
// invalidation.
type UserRepository interface {
	// BumpRevision advances one user's revision counter.
	BumpRevision(ctx context.Context, userID uuid.UUID) error

	// BumpRevisionForCipher advances the revision of every user who can see
	// the cipher (the personal owner, or all org users with access through
	// full access, collections or groups) and returns their IDs.
	BumpRevisionForCipher(ctx context.Context, c *model.Cipher) ([]uuid.UUID, error)
}
