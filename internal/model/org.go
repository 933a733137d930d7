package model

import "github.com/gofrs/uuid/v5"

// MembershipRole is a user's role within one organization.
type MembershipRole int32

const (
	RoleOwner   MembershipRole = 0
	RoleAdmin   MembershipRole = 1
	RoleUser    MembershipRole = 2
	RoleManager MembershipRole = 3
	RoleCustom  MembershipRole = 4
)

// MembershipStatus tracks the invite lifecycle of a membership.
type MembershipStatus int32

const (
	MembershipInvited   MembershipStatus = 0
	MembershipAccepted  MembershipStatus = 1
	MembershipConfirmed MembershipStatus = 2
)

// Membership is a (user, organization) pair. One user has at most one
// membership per organization.
type Membership struct {
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Role           MembershipRole
	Status         MembershipStatus
	AccessAll      bool // implicit access to all org collections
}

// IsAdmin reports whether the membership carries the Owner or Admin role.
func (m Membership) IsAdmin() bool {
	return m.Role == RoleOwner || m.Role == RoleAdmin
}

// HasFullAccess reports whether the membership grants implicit read/write
// access to every collection of the organization.
func (m Membership) HasFullAccess() bool {
	return m.AccessAll || m.IsAdmin()
}

// Collection is an organization-scoped grouping of ciphers with its own
// access grants.
type Collection struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
}

// CollectionCipher links a cipher into a collection.
type CollectionCipher struct {
	CollectionID uuid.UUID
	CipherID     uuid.UUID
}

// CollectionUser grants one user access to one collection.
type CollectionUser struct {
	CollectionID  uuid.UUID
	UserID        uuid.UUID
	ReadOnly      bool
	HidePasswords bool
	Manage        bool
}

// CollectionGroup grants one group access to one collection.
type CollectionGroup struct {
	CollectionID  uuid.UUID
	GroupID       uuid.UUID
	ReadOnly      bool
	HidePasswords bool
	Manage        bool
}

// Group is an organization-scoped set of users. A group marked AccessAll
// grants its members implicit access to all org collections.
type Group struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	AccessAll      bool
}

// PolicyKind identifies an organization policy.
type PolicyKind int32

const (
	PolicyTwoFactorAuthentication PolicyKind = 0
	PolicyMasterPassword          PolicyKind = 1
	PolicyPasswordGenerator       PolicyKind = 2
	PolicySingleOrg               PolicyKind = 3
	PolicyRequireSSO              PolicyKind = 4
	PolicyPersonalOwnership       PolicyKind = 5
	PolicyDisableSend             PolicyKind = 6
	PolicySendOptions             PolicyKind = 7
)

// OrgPolicy is one enabled/disabled policy row of an organization.
type OrgPolicy struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Kind           PolicyKind
	Enabled        bool
	Data           []byte
}
