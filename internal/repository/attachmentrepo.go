package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/vaultkeep/vaultkeep/internal/model"
)

// AttachmentRepository provides access to attachment metadata rows. The
// attachment bytes themselves live in the blob store.
type AttachmentRepository interface {
	// Get loads an attachment by ID.
	Get(ctx context.Context, id string) (*model.Attachment, error)

	// Save inserts or updates an attachment row.
	Save(ctx context.Context, a *model.Attachment) error

	// Delete removes an attachment row.
	Delete(ctx context.Context, id string) error

	// FindByCipher returns all attachments of one cipher.
	FindByCipher(ctx context.Context, cipherID uuid.UUID) ([]model.Attachment, error)

	// FindByUserAndOrganizations returns attachments of every cipher owned
	// by the user or by any of the given organizations, in one query.
	FindByUserAndOrganizations(ctx context.Context, userID uuid.UUID, orgIDs []uuid.UUID) ([]model.Attachment, error)

	// SizeByUser sums declared attachment sizes over the user's own ciphers.
	SizeByUser(ctx context.Context, userID uuid.UUID) (int64, error)

	// SizeByOrganization sums declared attachment sizes over an org's ciphers.
	SizeByOrganization(ctx context.Context, orgID uuid.UUID) (int64, error)
}

// FolderRepository provides access to per-user folders.
type FolderRepository interface {
	// GetByIDAndUser loads a folder, verifying it belongs to the user.
	GetByIDAndUser(ctx context.Context, id, userID uuid.UUID) (*model.Folder, error)

	// FindByUser returns all folders of a user.
	FindByUser(ctx context.Context, userID uuid.UUID) ([]model.Folder, error)

	// Create inserts a new folder.
	Create(ctx context.Context, f *model.Folder) error

	// Delete removes a folder and its cipher assignments.
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteAllByUser removes every folder of a user.
	DeleteAllByUser(ctx context.Context, userID uuid.UUID) error

	// AssignmentsByUser returns all (folder, cipher) assignments of the user.
	AssignmentsByUser(ctx context.Context, userID uuid.UUID) ([]model.FolderCipher, error)
}
