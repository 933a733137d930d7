// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/vaultkeep/vaultkeep/internal/model"
)

// CipherRepository provides access to vault items and their per-user relations.
type CipherRepository interface {
	// Get loads a cipher by ID.
	Get(ctx context.Context, id uuid.UUID) (*model.Cipher, error)

	// Save inserts or updates a cipher and refreshes UpdatedAt.
	Save(ctx context.Context, c *model.Cipher) error

	// Delete hard-deletes a cipher together with its collection links,
	// folder assignments, favorites and attachment rows.
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteAllByOrganization hard-deletes every cipher of an organization.
	DeleteAllByOrganization(ctx context.Context, orgID uuid.UUID) error

	// DeleteTrashedBefore hard-deletes soft-deleted ciphers whose deletion
	// timestamp is older than cutoff, returning the removed rows so callers
	// can clean up attachment blobs.
	DeleteTrashedBefore(ctx context.Context, cutoff time.Time) ([]model.Cipher, error)

	// FindOwnedByUser returns ciphers personally owned by the user.
	FindOwnedByUser(ctx context.Context, userID uuid.UUID) ([]model.Cipher, error)

	// FindVisibleByUser returns every cipher the user can see: owned ones
	// plus org ciphers reachable via full access or collection grants.
	FindVisibleByUser(ctx context.Context, userID uuid.UUID) ([]model.Cipher, error)

	// FindByOrganization returns every cipher of an organization.
	FindByOrganization(ctx context.Context, orgID uuid.UUID) ([]model.Cipher, error)

	// SetFolder reconciles the cipher's folder assignment for one user.
	// A nil folderID clears the assignment.
	SetFolder(ctx context.Context, cipherID, userID uuid.UUID, folderID *uuid.UUID) error

	// SetFavorite reconciles the cipher's favorite flag for one user.
	SetFavorite(ctx context.Context, cipherID, userID uuid.UUID, favorite bool) error

	// CollectionIDs returns the collections linking the cipher that are
	// visible to the user through membership, grants or groups.
	CollectionIDs(ctx context.Context, cipherID, userID uuid.UUID) ([]uuid.UUID, error)

	// CollectionIDsAdmin returns every collection linking the cipher,
	// regardless of the user's grants. Used by admin variants.
	CollectionIDsAdmin(ctx context.Context, cipherID uuid.UUID) ([]uuid.UUID, error)

	// CollectionLinksByUser returns all (collection, cipher) links visible
	// to the user in one query, for sync aggregation.
	CollectionLinksByUser(ctx context.Context, userID uuid.UUID) ([]model.CollectionCipher, error)

	// FavoriteIDsByUser returns the IDs of all ciphers the user marked favorite.
	FavoriteIDsByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}
