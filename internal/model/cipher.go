// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// CipherType identifies the payload shape of a vault item.
type CipherType int32

const (
	CipherTypeLogin      CipherType = 1
	CipherTypeSecureNote CipherType = 2
	CipherTypeCard       CipherType = 3
	CipherTypeIdentity   CipherType = 4
	CipherTypeSSHKey     CipherType = 5
)

// Valid reports whether t is one of the known cipher types.
func (t CipherType) Valid() bool {
	return t >= CipherTypeLogin && t <= CipherTypeSSHKey
}

// RepromptType controls whether clients must re-enter the master password
// before revealing the item.
type RepromptType int32

const (
	RepromptNone     RepromptType = 0
	RepromptPassword RepromptType = 1
)

// Cipher is a single encrypted vault item. The payload blobs (Data, Fields,
// PasswordHistory) are opaque ciphertext-bearing JSON produced client side.
//
// Exactly one of UserID / OrganizationID is set; this is enforced at every
// write path, never by the storage layer alone.
type Cipher struct {
	ID             uuid.UUID
	UserID         *uuid.UUID // personal owner, nil when org-owned
	OrganizationID *uuid.UUID // organizational owner, nil when personal

	Type CipherType
	Name string
	Key  *string // per-item wrapped key

	Data            []byte // type-specific payload, serialized
	Notes           *string
	Fields          []byte
	PasswordHistory []byte
	Reprompt        RepromptType

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time // soft-delete marker
}

// OwnedBy reports whether the cipher is the personal property of userID.
func (c *Cipher) OwnedBy(userID uuid.UUID) bool {
	return c.UserID != nil && *c.UserID == userID
}

// InOrganization reports whether the cipher is organization-owned.
func (c *Cipher) InOrganization() bool { return c.OrganizationID != nil }

// Trashed reports whether the cipher is soft-deleted.
func (c *Cipher) Trashed() bool { return c.DeletedAt != nil }

// Folder is a per-user grouping of ciphers. Folder assignment is a
// per-(user, cipher) relation and is never visible to other users.
type Folder struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	UpdatedAt time.Time
}

// Favorite marks a cipher as favorite for one user.
type Favorite struct {
	UserID   uuid.UUID
	CipherID uuid.UUID
}

// FolderCipher assigns a cipher to a folder for the folder's owner.
type FolderCipher struct {
	FolderID uuid.UUID
	CipherID uuid.UUID
}
