package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/vaultkeep/vaultkeep/internal/errs"
	"github.com/vaultkeep/vaultkeep/internal/model"
)

// CollectionRepo implements CollectionRepository using PostgreSQL.
type CollectionRepo struct{ db *DB }

// NewCollectionRepo constructs a collection repository.
func NewCollectionRepo(db *DB) *CollectionRepo { return &CollectionRepo{db: db} }

// GetByIDAndOrganization loads a collection scoped to one organization.
func (r *CollectionRepo) GetByIDAndOrganization(ctx context.Context, id, orgID uuid.UUID) (*model.Collection, error) {
	const q = `SELECT id, organization_id, name FROM collections WHERE id=$1 AND organization_id=$2`
	var col model.Collection
	if err := r.db.Pool.QueryRow(ctx, q, id, orgID).Scan(&col.ID, &col.OrganizationID, &col.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &col, nil
}

// AddCipher links a cipher into a collection. Linking twice is a no-op.
func (r *CollectionRepo) AddCipher(ctx context.Context, collectionID, cipherID uuid.UUID) error {
	const q = `INSERT INTO collections_ciphers (collection_id, cipher_id) VALUES ($1,$2)`
	if _, err := r.db.Pool.Exec(ctx, q, collectionID, cipherID); err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return err
	}
	return nil
}

// RemoveCipher deletes the link between a cipher and a collection.
func (r *CollectionRepo) RemoveCipher(ctx context.Context, collectionID, cipherID uuid.UUID) error {
	const q = `DELETE FROM collections_ciphers WHERE collection_id=$1 AND cipher_id=$2`
	_, err := r.db.Pool.Exec(ctx, q, collectionID, cipherID)
	return err
}

// UserGrantsByUser returns all direct collection grants of the user.
func (r *CollectionRepo) UserGrantsByUser(ctx context.Context, userID uuid.UUID) ([]model.CollectionUser, error) {
	const q = `
SELECT collection_id, user_id, read_only, hide_passwords, manage
FROM collections_users WHERE user_id=$1`
	return r.collectUserGrants(ctx, q, userID)
}

// GroupGrantsByUser returns the collection grants reachable through the
// user's groups. A collection granted via several groups appears once per
// group.
func (r *CollectionRepo) GroupGrantsByUser(ctx context.Context, userID uuid.UUID) ([]model.CollectionGroup, error) {
	const q = `
SELECT cg.collection_id, cg.group_id, cg.read_only, cg.hide_passwords, cg.manage
FROM collections_groups cg
JOIN groups_users gu ON gu.group_id = cg.group_id
WHERE gu.user_id=$1`
	return r.collectGroupGrants(ctx, q, userID)
}

// UserAccessForCipher returns the user's direct grants on collections
// linking the cipher.
func (r *CollectionRepo) UserAccessForCipher(ctx context.Context, userID, cipherID uuid.UUID) ([]model.CollectionUser, error) {
	const q = `
SELECT cu.collection_id, cu.user_id, cu.read_only, cu.hide_passwords, cu.manage
FROM collections_users cu
JOIN collections_ciphers cc ON cc.collection_id = cu.collection_id
WHERE cu.user_id=$1 AND cc.cipher_id=$2`
	return r.collectUserGrants(ctx, q, userID, cipherID)
}

// GroupAccessForCipher returns the group grants reachable by the user on
// collections linking the cipher.
func (r *CollectionRepo) GroupAccessForCipher(ctx context.Context, userID, cipherID uuid.UUID) ([]model.CollectionGroup, error) {
	const q = `
SELECT cg.collection_id, cg.group_id, cg.read_only, cg.hide_passwords, cg.manage
FROM collections_groups cg
JOIN groups_users gu ON gu.group_id = cg.group_id
JOIN collections_ciphers cc ON cc.collection_id = cg.collection_id
WHERE gu.user_id=$1 AND cc.cipher_id=$2`
	return r.collectGroupGrants(ctx, q, userID, cipherID)
}

// UserAccessForCollection returns the user's direct grant rows on one collection.
func (r *CollectionRepo) UserAccessForCollection(ctx context.Context, userID, collectionID uuid.UUID) ([]model.CollectionUser, error) {
	const q = `
SELECT collection_id, user_id, read_only, hide_passwords, manage
FROM collections_users WHERE user_id=$1 AND collection_id=$2`
	return r.collectUserGrants(ctx, q, userID, collectionID)
}

// GroupAccessForCollection returns the user's group grant rows on one collection.
func (r *CollectionRepo) GroupAccessForCollection(ctx context.Context, userID, collectionID uuid.UUID) ([]model.CollectionGroup, error) {
	const q = `
SELECT cg.collection_id, cg.group_id, cg.read_only, cg.hide_passwords, cg.manage
FROM collections_groups cg
JOIN groups_users gu ON gu.group_id = cg.group_id
WHERE gu.user_id=$1 AND cg.collection_id=$2`
	return r.collectGroupGrants(ctx, q, userID, collectionID)
}

func (r *CollectionRepo) collectUserGrants(ctx context.Context, q string, args ...any) ([]model.CollectionUser, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CollectionUser
	for rows.Next() {
		var cu model.CollectionUser
		if err := rows.Scan(&cu.CollectionID, &cu.UserID, &cu.ReadOnly, &cu.HidePasswords, &cu.Manage); err != nil {
			return nil, err
		}
		out = append(out, cu)
	}
	return out, rows.Err()
}

func (r *CollectionRepo) collectGroupGrants(ctx context.Context, q string, args ...any) ([]model.CollectionGroup, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CollectionGroup
	for rows.Next() {
		var cg model.CollectionGroup
		if err := rows.Scan(&cg.CollectionID, &cg.GroupID, &cg.ReadOnly, &cg.HidePasswords, &cg.Manage); err != nil {
			return nil, err
		}
		out = append(out, cg)
	}
	return out, rows.Err()
}
