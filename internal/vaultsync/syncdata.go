// Package vaultsync builds the bulk permission and annotation snapshot used
// to serialize a full sync response without per-item queries.
package vaultsync

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/vaultkeep/vaultkeep/internal/access"
	"github.com/vaultkeep/vaultkeep/internal/model"
	"github.com/vaultkeep/vaultkeep/internal/repository"
)

// Scope selects the view a snapshot is built for.
type Scope int

const (
	// ScopeUser is a personal sync: folders and favorites are included.
	ScopeUser Scope = iota
	// ScopeOrganization is an org-wide view: folders and favorites are
	// per-user data and must stay empty so they cannot leak across users.
	ScopeOrganization
)

// SyncData holds everything needed to annotate every cipher of a sync
// response. It is built once per request from a fixed number of bulk
// queries, independent of cipher count, and is immutable afterwards.
type SyncData struct {
	CipherFolders     map[uuid.UUID]uuid.UUID
	CipherFavorites   map[uuid.UUID]struct{}
	CipherAttachments map[uuid.UUID][]model.Attachment
	CipherCollections map[uuid.UUID][]uuid.UUID
	Members           map[uuid.UUID]model.Membership
	UserCollections   map[uuid.UUID]model.CollectionUser
	// GroupCollections holds per-collection group grants already combined
	// into the most permissive effective grant.
	GroupCollections    map[uuid.UUID]access.Grant
	GroupFullAccessOrgs map[uuid.UUID]struct{}
}

// Aggregator builds SyncData snapshots.
type Aggregator struct {
	ciphers       repository.CipherRepository
	collections   repository.CollectionRepository
	members       repository.MembershipRepository
	attachments   repository.AttachmentRepository
	folders       repository.FolderRepository
	groups        repository.GroupRepository
	groupsEnabled bool
}

// NewAggregator constructs an Aggregator. groupsEnabled mirrors the resolver
// configuration and disables the two group queries when false.
func NewAggregator(
	ciphers repository.CipherRepository,
	collections repository.CollectionRepository,
	members repository.MembershipRepository,
	attachments repository.AttachmentRepository,
	folders repository.FolderRepository,
	groups repository.GroupRepository,
	groupsEnabled bool,
) *Aggregator {
	return &Aggregator{
		ciphers:       ciphers,
		collections:   collections,
		members:       members,
		attachments:   attachments,
		folders:       folders,
		groups:        groups,
		groupsEnabled: groupsEnabled,
	}
}

// Build assembles the snapshot for one user. The queries are not snapshot
// isolated against concurrent writers; sync is polling in nature and
// tolerates that.
func (a *Aggregator) Build(ctx context.Context, userID uuid.UUID, scope Scope) (*SyncData, error) {
	d := &SyncData{
		CipherFolders:       make(map[uuid.UUID]uuid.UUID),
		CipherFavorites:     make(map[uuid.UUID]struct{}),
		CipherAttachments:   make(map[uuid.UUID][]model.Attachment),
		CipherCollections:   make(map[uuid.UUID][]uuid.UUID),
		Members:             make(map[uuid.UUID]model.Membership),
		UserCollections:     make(map[uuid.UUID]model.CollectionUser),
		GroupCollections:    make(map[uuid.UUID]access.Grant),
		GroupFullAccessOrgs: make(map[uuid.UUID]struct{}),
	}

	if scope == ScopeUser {
		assignments, err := a.folders.AssignmentsByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("folder assignments: %w", err)
		}
		for _, fc := range assignments {
			d.CipherFolders[fc.CipherID] = fc.FolderID
		}

		favorites, err := a.ciphers.FavoriteIDsByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("favorites: %w", err)
		}
		for _, id := range favorites {
			d.CipherFavorites[id] = struct{}{}
		}
	}

	orgIDs, err := a.members.OrganizationIDsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("org ids: %w", err)
	}
	attachments, err := a.attachments.FindByUserAndOrganizations(ctx, userID, orgIDs)
	if err != nil {
		return nil, fmt.Errorf("attachments: %w", err)
	}
	for _, att := range attachments {
		d.CipherAttachments[att.CipherID] = append(d.CipherAttachments[att.CipherID], att)
	}

	links, err := a.ciphers.CollectionLinksByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("collection links: %w", err)
	}
	for _, link := range links {
		d.CipherCollections[link.CipherID] = append(d.CipherCollections[link.CipherID], link.CollectionID)
	}

	memberships, err := a.members.FindByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("memberships: %w", err)
	}
	for _, m := range memberships {
		d.Members[m.OrganizationID] = m
	}

	userGrants, err := a.collections.UserGrantsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user grants: %w", err)
	}
	for _, cu := range userGrants {
		d.UserCollections[cu.CollectionID] = cu
	}

	if a.groupsEnabled {
		groupGrants, err := a.collections.GroupGrantsByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("group grants: %w", err)
		}
		for _, cg := range groupGrants {
			g := access.Grant{ReadOnly: cg.ReadOnly, HidePasswords: cg.HidePasswords, Manage: cg.Manage}
			if existing, ok := d.GroupCollections[cg.CollectionID]; ok {
				g = access.Combine(existing, g)
			}
			d.GroupCollections[cg.CollectionID] = g
		}

		fullAccess, err := a.groups.FullAccessOrganizationIDsByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("group full access: %w", err)
		}
		for _, id := range fullAccess {
			d.GroupFullAccessOrgs[id] = struct{}{}
		}
	}

	return d, nil
}

// Grant resolves the effective grant the user holds on the cipher from
// snapshot data only, and whether any access path exists.
func (d *SyncData) Grant(userID uuid.UUID, c *model.Cipher) (access.Grant, bool) {
	if c.OwnedBy(userID) {
		return access.Grant{}, true
	}
	if !c.InOrganization() {
		return access.Grant{}, false
	}
	member, ok := d.Members[*c.OrganizationID]
	if !ok {
		return access.Grant{}, false
	}
	if member.HasFullAccess() {
		return access.Grant{}, true
	}
	if _, ok := d.GroupFullAccessOrgs[*c.OrganizationID]; ok {
		return access.Grant{}, true
	}

	var grants []access.Grant
	for _, colID := range d.CipherCollections[c.ID] {
		if cu, ok := d.UserCollections[colID]; ok {
			grants = append(grants, access.Grant{ReadOnly: cu.ReadOnly, HidePasswords: cu.HidePasswords, Manage: cu.Manage})
		}
		if g, ok := d.GroupCollections[colID]; ok {
			grants = append(grants, g)
		}
	}
	return access.CombineAll(grants)
}

// CanEdit reports write accessibility of the cipher from the snapshot.
func (d *SyncData) CanEdit(userID uuid.UUID, c *model.Cipher) bool {
	g, ok := d.Grant(userID, c)
	return ok && !g.ReadOnly
}

// ViewPassword reports whether the user may see concealed login fields.
func (d *SyncData) ViewPassword(userID uuid.UUID, c *model.Cipher) bool {
	g, ok := d.Grant(userID, c)
	return ok && !g.HidePasswords
}
