package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/vaultkeep/vaultkeep/internal/errs"
	"github.com/vaultkeep/vaultkeep/internal/model"
)

// AttachmentRepo implements AttachmentRepository using PostgreSQL.
type AttachmentRepo struct{ db *DB }

// NewAttachmentRepo constructs an attachment repository.
func NewAttachmentRepo(db *DB) *AttachmentRepo { return &AttachmentRepo{db: db} }

// Get loads an attachment by id.
func (r *AttachmentRepo) Get(ctx context.Context, id string) (*model.Attachment, error) {
	const q = `SELECT id, cipher_id, file_name, file_size, key FROM attachments WHERE id=$1`
	var a model.Attachment
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(&a.ID, &a.CipherID, &a.FileName, &a.FileSize, &a.Key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Save upserts an attachment row.
func (r *AttachmentRepo) Save(ctx context.Context, a *model.Attachment) error {
	const q = `
INSERT INTO attachments (id, cipher_id, file_name, file_size, key)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET file_name=$3, file_size=$4, key=$5`
	_, err := r.db.Pool.Exec(ctx, q, a.ID, a.CipherID, a.FileName, a.FileSize, a.Key)
	return err
}

// Delete removes an attachment row.
func (r *AttachmentRepo) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM attachments WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// FindByCipher returns all attachments of one cipher.
func (r *AttachmentRepo) FindByCipher(ctx context.Context, cipherID uuid.UUID) ([]model.Attachment, error) {
	const q = `SELECT id, cipher_id, file_name, file_size, key FROM attachments WHERE cipher_id=$1`
	return r.collect(ctx, q, cipherID)
}

// FindByUserAndOrganizations returns attachments of every cipher owned by
// the user or by any of the given organizations.
func (r *AttachmentRepo) FindByUserAndOrganizations(ctx context.Context, userID uuid.UUID, orgIDs []uuid.UUID) ([]model.Attachment, error) {
	const q = `
SELECT a.id, a.cipher_id, a.file_name, a.file_size, a.key
FROM attachments a
JOIN ciphers c ON c.id = a.cipher_id
WHERE c.user_id=$1 OR c.organization_id = ANY($2::uuid[])`
	ids := make([]string, len(orgIDs))
	for i, id := range orgIDs {
		ids[i] = id.String()
	}
	return r.collect(ctx, q, userID, ids)
}

// SizeByUser sums declared attachment sizes over the user's own ciphers.
func (r *AttachmentRepo) SizeByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	const q = `
SELECT COALESCE(SUM(a.file_size),0)
FROM attachments a
JOIN ciphers c ON c.id = a.cipher_id
WHERE c.user_id=$1`
	var total int64
	if err := r.db.Pool.QueryRow(ctx, q, userID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// SizeByOrganization sums declared attachment sizes over an org's ciphers.
func (r *AttachmentRepo) SizeByOrganization(ctx context.Context, orgID uuid.UUID) (int64, error) {
	const q = `
SELECT COALESCE(SUM(a.file_size),0)
FROM attachments a
JOIN ciphers c ON c.id = a.cipher_id
WHERE c.organization_id=$1`
	var total int64
	if err := r.db.Pool.QueryRow(ctx, q, orgID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *AttachmentRepo) collect(ctx context.Context, q string, args ...any) ([]model.Attachment, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Attachment
	for rows.Next() {
		var a model.Attachment
		if err := rows.Scan(&a.ID, &a.CipherID, &a.FileName, &a.FileSize, &a.Key); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
