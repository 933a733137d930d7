package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/vaultkeep/vaultkeep/internal/errs"
	"github.com/vaultkeep/vaultkeep/internal/model"
)

// FolderRepo implements FolderRepository using PostgreSQL.
type FolderRepo struct{ db *DB }

// NewFolderRepo constructs a folder repository.
func NewFolderRepo(db *DB) *FolderRepo { return &FolderRepo{db: db} }

// GetByIDAndUser loads a folder, verifying it belongs to the user.
func (r *FolderRepo) GetByIDAndUser(ctx context.Context, id, userID uuid.UUID) (*model.Folder, error) {
	const q = `SELECT id, user_id, name, updated_at FROM folders WHERE id=$1 AND user_id=$2`
	var f model.Folder
	if err := r.db.Pool.QueryRow(ctx, q, id, userID).Scan(&f.ID, &f.UserID, &f.Name, &f.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// FindByUser returns all folders of a user.
func (r *FolderRepo) FindByUser(ctx context.Context, userID uuid.UUID) ([]model.Folder, error) {
	const q = `SELECT id, user_id, name, updated_at FROM folders WHERE user_id=$1`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Folder
	for rows.Next() {
		var f model.Folder
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Create inserts a new folder.
func (r *FolderRepo) Create(ctx context.Context, f *model.Folder) error {
	const q = `
INSERT INTO folders (id, user_id, name, updated_at) VALUES ($1,$2,$3,now())
RETURNING updated_at`
	if err := r.db.Pool.QueryRow(ctx, q, f.ID, f.UserID, f.Name).Scan(&f.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return errs.ErrConflict
		}
		return err
	}
	return nil
}

// Delete removes a folder and its cipher assignments.
func (r *FolderRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM folders WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteAllByUser removes every folder of a user.
func (r *FolderRepo) DeleteAllByUser(ctx context.Context, userID uuid.UUID) error {
	const q = `DELETE FROM folders WHERE user_id=$1`
	_, err := r.db.Pool.Exec(ctx, q, userID)
	return err
}

// AssignmentsByUser returns all (folder, cipher) assignments of the user.
func (r *FolderRepo) AssignmentsByUser(ctx context.Context, userID uuid.UUID) ([]model.FolderCipher, error) {
	const q = `
SELECT fc.folder_id, fc.cipher_id
FROM folders_ciphers fc
JOIN folders f ON f.id = fc.folder_id
WHERE f.user_id=$1`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FolderCipher
	for rows.Next() {
		var fc model.FolderCipher
		if err := rows.Scan(&fc.FolderID, &fc.CipherID); err != nil {
			return nil, err
		}
		out = append(out, fc)
	}
	return out, rows.Err()
}
