package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/vaultkeep/vaultkeep/internal/errs"
	"github.com/vaultkeep/vaultkeep/internal/model"
)

// CipherRepo implements CipherRepository using PostgreSQL.
type CipherRepo struct{ db *DB }

// NewCipherRepo constructs a cipher repository.
func NewCipherRepo(db *DB) *CipherRepo { return &CipherRepo{db: db} }

const cipherColumns = `id, user_id, organization_id, type, name, key,
data, notes, fields, password_history, reprompt, created_at, updated_at, deleted_at`

func scanCipher(row pgx.Row, c *model.Cipher) error {
	return row.Scan(
		&c.ID, &c.UserID, &c.OrganizationID, &c.Type, &c.Name, &c.Key,
		&c.Data, &c.Notes, &c.Fields, &c.PasswordHistory, &c.Reprompt,
		&c.CreatedAt, &c.UpdatedAt, &c.DeletedAt,
	)
}

func collectCiphers(rows pgx.Rows) ([]model.Cipher, error) {
	defer rows.Close()
	var out []model.Cipher
	for rows.Next() {
		var c model.Cipher
		if err := scanCipher(rows, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get returns a single cipher by id.
func (r *CipherRepo) Get(ctx context.Context, id uuid.UUID) (*model.Cipher, error) {
	const q = `SELECT ` + cipherColumns + ` FROM ciphers WHERE id=$1`
	var c model.Cipher
	if err := scanCipher(r.db.Pool.QueryRow(ctx, q, id), &c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Save upserts a cipher and refreshes its updated_at.
func (r *CipherRepo) Save(ctx context.Context, c *model.Cipher) error {
	const q = `
INSERT INTO ciphers
  (id, user_id, organization_id, type, name, key, data, notes, fields,
   password_history, reprompt, created_at, updated_at, deleted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),$13)
ON CONFLICT (id) DO UPDATE SET
  user_id=$2, organization_id=$3, type=$4, name=$5, key=$6, data=$7,
  notes=$8, fields=$9, password_history=$10, reprompt=$11,
  updated_at=now(), deleted_at=$13
RETURNING updated_at`
	return r.db.Pool.QueryRow(ctx, q,
		c.ID, c.UserID, c.OrganizationID, c.Type, c.Name, c.Key, c.Data,
		c.Notes, c.Fields, c.PasswordHistory, c.Reprompt, c.CreatedAt, c.DeletedAt,
	).Scan(&c.UpdatedAt)
}

// Delete hard-deletes a cipher. Collection links, folder assignments,
// favorites and attachment rows go with it via ON DELETE CASCADE.
func (r *CipherRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM ciphers WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteAllByOrganization hard-deletes every cipher of an organization.
func (r *CipherRepo) DeleteAllByOrganization(ctx context.Context, orgID uuid.UUID) error {
	const q = `DELETE FROM ciphers WHERE organization_id=$1`
	_, err := r.db.Pool.Exec(ctx, q, orgID)
	return err
}

// DeleteTrashedBefore hard-deletes soft-deleted ciphers older than cutoff
// and returns the removed rows.
func (r *CipherRepo) DeleteTrashedBefore(ctx context.Context, cutoff time.Time) ([]model.Cipher, error) {
	const q = `
DELETE FROM ciphers WHERE deleted_at IS NOT NULL AND deleted_at < $1
RETURNING ` + cipherColumns
	rows, err := r.db.Pool.Query(ctx, q, cutoff)
	if err != nil {
		return nil, err
	}
	return collectCiphers(rows)
}

// FindOwnedByUser returns ciphers personally owned by the user.
func (r *CipherRepo) FindOwnedByUser(ctx context.Context, userID uuid.UUID) ([]model.Cipher, error) {
	const q = `SELECT ` + cipherColumns + ` FROM ciphers WHERE user_id=$1`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	return collectCiphers(rows)
}

// FindVisibleByUser returns owned ciphers plus org ciphers reachable
// through full access, collection grants or access-all groups.
func (r *CipherRepo) FindVisibleByUser(ctx context.Context, userID uuid.UUID) ([]model.Cipher, error) {
	const q = `
SELECT DISTINCT c.id, c.user_id, c.organization_id, c.type, c.name, c.key,
  c.data, c.notes, c.fields, c.password_history, c.reprompt,
  c.created_at, c.updated_at, c.deleted_at
FROM ciphers c
LEFT JOIN memberships m
  ON m.organization_id = c.organization_id AND m.user_id = $1 AND m.status = 2
WHERE c.user_id = $1
   OR (m.user_id IS NOT NULL AND (
        m.access_all
        OR m.role <= 1
        OR EXISTS (
          SELECT 1 FROM collections_ciphers cc
          JOIN collections_users cu ON cu.collection_id = cc.collection_id
          WHERE cc.cipher_id = c.id AND cu.user_id = $1)
        OR EXISTS (
          SELECT 1 FROM collections_ciphers cc
          JOIN collections_groups cg ON cg.collection_id = cc.collection_id
          JOIN groups_users gu ON gu.group_id = cg.group_id
          WHERE cc.cipher_id = c.id AND gu.user_id = $1)
        OR EXISTS (
          SELECT 1 FROM groups g
          JOIN groups_users gu ON gu.group_id = g.id
          WHERE g.organization_id = c.organization_id
            AND g.access_all AND gu.user_id = $1)))`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	return collectCiphers(rows)
}

// FindByOrganization returns every cipher of an organization.
func (r *CipherRepo) FindByOrganization(ctx context.Context, orgID uuid.UUID) ([]model.Cipher, error) {
	const q = `SELECT ` + cipherColumns + ` FROM ciphers WHERE organization_id=$1`
	rows, err := r.db.Pool.Query(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	return collectCiphers(rows)
}

// SetFolder reconciles the cipher's folder assignment for one user.
func (r *CipherRepo) SetFolder(ctx context.Context, cipherID, userID uuid.UUID, folderID *uuid.UUID) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const del = `
DELETE FROM folders_ciphers fc USING folders f
WHERE fc.folder_id = f.id AND f.user_id = $2 AND fc.cipher_id = $1`
	if _, err = tx.Exec(ctx, del, cipherID, userID); err != nil {
		return err
	}
	if folderID == nil {
		return nil
	}
	const ins = `INSERT INTO folders_ciphers (folder_id, cipher_id) VALUES ($1,$2)`
	_, err = tx.Exec(ctx, ins, *folderID, cipherID)
	return err
}

// SetFavorite reconciles the cipher's favorite flag for one user.
func (r *CipherRepo) SetFavorite(ctx context.Context, cipherID, userID uuid.UUID, favorite bool) error {
	if favorite {
		const ins = `
INSERT INTO favorites (user_id, cipher_id) VALUES ($1,$2)
ON CONFLICT (user_id, cipher_id) DO NOTHING`
		_, err := r.db.Pool.Exec(ctx, ins, userID, cipherID)
		return err
	}
	const del = `DELETE FROM favorites WHERE user_id=$1 AND cipher_id=$2`
	_, err := r.db.Pool.Exec(ctx, del, userID, cipherID)
	return err
}

// CollectionIDs returns the collections linking the cipher that the user
// can see.
func (r *CipherRepo) CollectionIDs(ctx context.Context, cipherID, userID uuid.UUID) ([]uuid.UUID, error) {
	const q = `
SELECT cc.collection_id
FROM collections_ciphers cc
JOIN collections col ON col.id = cc.collection_id
JOIN memberships m
  ON m.organization_id = col.organization_id AND m.user_id = $2 AND m.status = 2
WHERE cc.cipher_id = $1
  AND (m.access_all
       OR m.role <= 1
       OR EXISTS (
         SELECT 1 FROM collections_users cu
         WHERE cu.collection_id = cc.collection_id AND cu.user_id = $2)
       OR EXISTS (
         SELECT 1 FROM collections_groups cg
         JOIN groups_users gu ON gu.group_id = cg.group_id
         WHERE cg.collection_id = cc.collection_id AND gu.user_id = $2)
       OR EXISTS (
         SELECT 1 FROM groups g
         JOIN groups_users gu ON gu.group_id = g.id
         WHERE g.organization_id = col.organization_id
           AND g.access_all AND gu.user_id = $2))`
	return queryIDs(ctx, r.db, q, cipherID, userID)
}

// CollectionIDsAdmin returns every collection linking the cipher.
func (r *CipherRepo) CollectionIDsAdmin(ctx context.Context, cipherID uuid.UUID) ([]uuid.UUID, error) {
	const q = `SELECT collection_id FROM collections_ciphers WHERE cipher_id=$1`
	return queryIDs(ctx, r.db, q, cipherID)
}

// CollectionLinksByUser returns all (collection, cipher) links on
// collections visible to the user.
func (r *CipherRepo) CollectionLinksByUser(ctx context.Context, userID uuid.UUID) ([]model.CollectionCipher, error) {
	const q = `
SELECT cc.collection_id, cc.cipher_id
FROM collections_ciphers cc
JOIN collections col ON col.id = cc.collection_id
JOIN memberships m
  ON m.organization_id = col.organization_id AND m.user_id = $1 AND m.status = 2
WHERE m.access_all
   OR m.role <= 1
   OR EXISTS (
     SELECT 1 FROM collections_users cu
     WHERE cu.collection_id = cc.collection_id AND cu.user_id = $1)
   OR EXISTS (
     SELECT 1 FROM collections_groups cg
     JOIN groups_users gu ON gu.group_id = cg.group_id
     WHERE cg.collection_id = cc.collection_id AND gu.user_id = $1)
   OR EXISTS (
     SELECT 1 FROM groups g
     JOIN groups_users gu ON gu.group_id = g.id
     WHERE g.organization_id = col.organization_id
       AND g.access_all AND gu.user_id = $1)`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CollectionCipher
	for rows.Next() {
		var link model.CollectionCipher
		if err := rows.Scan(&link.CollectionID, &link.CipherID); err != nil {
			return nil, err
		}
		out = append(out, link)
	}
	return out, rows.Err()
}

// FavoriteIDsByUser returns the IDs of the user's favorite ciphers.
func (r *CipherRepo) FavoriteIDsByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	const q = `SELECT cipher_id FROM favorites WHERE user_id=$1`
	return queryIDs(ctx, r.db, q, userID)
}
