package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/vaultkeep/vaultkeep/internal/model"
)

// CollectionRepository provides access to collections, cipher links and
// per-user/per-group grants.
type CollectionRepository interface {
	// GetByIDAndOrganization loads a collection, verifying it belongs to
	// the given organization.
	GetByIDAndOrganization(ctx context.Context, id, orgID uuid.UUID) (*model.Collection, error)

	// AddCipher links a cipher into a collection (idempotent).
	AddCipher(ctx context.Context, collectionID, cipherID uuid.UUID) error

	// RemoveCipher deletes the link between a cipher and a collection.
	RemoveCipher(ctx context.Context, collectionID, cipherID uuid.UUID) error

	// UserGrantsByUser returns all direct collection grants of the user.
	UserGrantsByUser(ctx context.Context, userID uuid.UUID) ([]model.CollectionUser, error)

	// GroupGrantsByUser returns all collection grants reachable through the
	// user's group memberships. One collection may appear multiple times.
	GroupGrantsByUser(ctx context.Context, userID uuid.UUID) ([]model.CollectionGroup, error)

	// UserAccessForCipher returns the user's direct grants on collections
	// linking the given cipher.
	UserAccessForCipher(ctx context.Context, userID, cipherID uuid.UUID) ([]model.CollectionUser, error)

	// GroupAccessForCipher returns the group grants reachable by the user
	// on collections linking the given cipher.
	GroupAccessForCipher(ctx context.Context, userID, cipherID uuid.UUID) ([]model.CollectionGroup, error)

	// UserAccessForCollection returns the user's direct grant rows on one collection.
	UserAccessForCollection(ctx context.Context, userID, collectionID uuid.UUID) ([]model.CollectionUser, error)

	// GroupAccessForCollection returns the user's group grant rows on one collection.
	GroupAccessForCollection(ctx context.Context, userID, collectionID uuid.UUID) ([]model.CollectionGroup, error)
}
