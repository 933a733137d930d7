// Package access decides read/write accessibility of ciphers and collections
// for a user under the layered permission model: direct ownership, org
// membership, collection grants, group grants and admin override.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/vaultkeep/vaultkeep/internal/errs"
	"github.com/vaultkeep/vaultkeep/internal/model"
	"github.com/vaultkeep/vaultkeep/internal/repository"
)

// Grant is the effective permission of one access path to a collection.
type Grant struct {
	ReadOnly      bool
	HidePasswords bool
	Manage        bool
}

// Combine merges two grants taking the most permissive settings: a user who
// can write or see passwords via any path keeps that ability.
func Combine(a, b Grant) Grant {
	return Grant{
		ReadOnly:      a.ReadOnly && b.ReadOnly,
		HidePasswords: a.HidePasswords && b.HidePasswords,
		Manage:        a.Manage || b.Manage,
	}
}

// CombineAll folds grants with Combine. ok is false when the list is empty,
// meaning no access path exists at all.
func CombineAll(grants []Grant) (g Grant, ok bool) {
	for i, gr := range grants {
		if i == 0 {
			g = gr
			continue
		}
		g = Combine(g, gr)
	}
	return g, len(grants) > 0
}

// Resolver answers single-item accessibility questions against the entity
// store. Group-derived access is consulted only when groups are enabled,
// passed explicitly at construction.
type Resolver struct {
	members       repository.MembershipRepository
	collections   repository.CollectionRepository
	groups        repository.GroupRepository
	groupsEnabled bool
}

// NewResolver constructs a Resolver.
func NewResolver(
	members repository.MembershipRepository,
	collections repository.CollectionRepository,
	groups repository.GroupRepository,
	groupsEnabled bool,
) *Resolver {
	return &Resolver{
		members:       members,
		collections:   collections,
		groups:        groups,
		groupsEnabled: groupsEnabled,
	}
}

// CanAccess reports whether the user may read the cipher.
func (r *Resolver) CanAccess(ctx context.Context, userID uuid.UUID, c *model.Cipher) (bool, error) {
	_, ok, err := r.cipherGrant(ctx, userID, c)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// CanEdit reports whether the user may modify the cipher.
func (r *Resolver) CanEdit(ctx context.Context, userID uuid.UUID, c *model.Cipher) (bool, error) {
	g, ok, err := r.cipherGrant(ctx, userID, c)
	if err != nil {
		return false, err
	}
	return ok && !g.ReadOnly, nil
}

// CipherGrant returns the effective grant the user holds on the cipher and
// whether any access path exists. Owners and full-access members get an
// unrestricted grant.
func (r *Resolver) CipherGrant(ctx context.Context, userID uuid.UUID, c *model.Cipher) (Grant, bool, error) {
	return r.cipherGrant(ctx, userID, c)
}

func (r *Resolver) cipherGrant(ctx context.Context, userID uuid.UUID, c *model.Cipher) (Grant, bool, error) {
	// Direct personal ownership grants everything.
	if c.OwnedBy(userID) {
		return Grant{}, true, nil
	}
	if !c.InOrganization() {
		return Grant{}, false, nil
	}

	member, err := r.members.Get(ctx, userID, *c.OrganizationID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return Grant{}, false, nil
		}
		return Grant{}, false, fmt.Errorf("load membership: %w", err)
	}
	if member.HasFullAccess() {
		return Grant{}, true, nil
	}

	if r.groupsEnabled {
		full, err := r.hasGroupFullAccess(ctx, userID, *c.OrganizationID)
		if err != nil {
			return Grant{}, false, err
		}
		if full {
			return Grant{}, true, nil
		}
	}

	grants, err := r.collectGrantsForCipher(ctx, userID, c.ID)
	if err != nil {
		return Grant{}, false, err
	}
	g, ok := CombineAll(grants)
	return g, ok, nil
}

// IsOrgAdmin reports whether the user is an Owner or Admin of the
// organization. Admin operation variants check this first and, when it
// holds, grant access unconditionally without consulting collection grants.
// It is a separate entry point on purpose: folding the override into the
// collection-based path risks weakening the non-admin checks.
func (r *Resolver) IsOrgAdmin(ctx context.Context, userID, orgID uuid.UUID) (bool, error) {
	member, err := r.members.Get(ctx, userID, orgID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load membership: %w", err)
	}
	return member.IsAdmin(), nil
}

// CollectionWritable reports whether the user may modify the membership of
// the collection, via full access or a non-read-only grant.
func (r *Resolver) CollectionWritable(ctx context.Context, userID uuid.UUID, col *model.Collection) (bool, error) {
	member, err := r.members.Get(ctx, userID, col.OrganizationID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load membership: %w", err)
	}
	if member.HasFullAccess() {
		return true, nil
	}

	if r.groupsEnabled {
		full, err := r.hasGroupFullAccess(ctx, userID, col.OrganizationID)
		if err != nil {
			return false, err
		}
		if full {
			return true, nil
		}
	}

	var grants []Grant
	users, err := r.collections.UserAccessForCollection(ctx, userID, col.ID)
	if err != nil {
		return false, fmt.Errorf("collection user grants: %w", err)
	}
	for _, cu := range users {
		grants = append(grants, Grant{ReadOnly: cu.ReadOnly, HidePasswords: cu.HidePasswords, Manage: cu.Manage})
	}
	if r.groupsEnabled {
		groups, err := r.collections.GroupAccessForCollection(ctx, userID, col.ID)
		if err != nil {
			return false, fmt.Errorf("collection group grants: %w", err)
		}
		for _, cg := range groups {
			grants = append(grants, Grant{ReadOnly: cg.ReadOnly, HidePasswords: cg.HidePasswords, Manage: cg.Manage})
		}
	}
	g, ok := CombineAll(grants)
	return ok && !g.ReadOnly, nil
}

// CollectionWritableAdmin is the admin-aware variant of CollectionWritable:
// Owner/Admin of the collection's organization passes unconditionally.
func (r *Resolver) CollectionWritableAdmin(ctx context.Context, userID uuid.UUID, col *model.Collection) (bool, error) {
	admin, err := r.IsOrgAdmin(ctx, userID, col.OrganizationID)
	if err != nil {
		return false, err
	}
	if admin {
		return true, nil
	}
	return r.CollectionWritable(ctx, userID, col)
}

func (r *Resolver) hasGroupFullAccess(ctx context.Context, userID, orgID uuid.UUID) (bool, error) {
	orgs, err := r.groups.FullAccessOrganizationIDsByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("group full access: %w", err)
	}
	for _, id := range orgs {
		if id == orgID {
			return true, nil
		}
	}
	return false, nil
}

func (r *Resolver) collectGrantsForCipher(ctx context.Context, userID, cipherID uuid.UUID) ([]Grant, error) {
	var grants []Grant
	users, err := r.collections.UserAccessForCipher(ctx, userID, cipherID)
	if err != nil {
		return nil, fmt.Errorf("cipher user grants: %w", err)
	}
	for _, cu := range users {
		grants = append(grants, Grant{ReadOnly: cu.ReadOnly, HidePasswords: cu.HidePasswords, Manage: cu.Manage})
	}
	if r.groupsEnabled {
		groups, err := r.collections.GroupAccessForCipher(ctx, userID, cipherID)
		if err != nil {
			return nil, fmt.Errorf("cipher group grants: %w", err)
		}
		for _, cg := range groups {
			grants = append(grants, Grant{ReadOnly: cg.ReadOnly, HidePasswords: cg.HidePasswords, Manage: cg.Manage})
		}
	}
	return grants, nil
}
