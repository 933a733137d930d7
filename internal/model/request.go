package model

import "github.com/gofrs/uuid/v5"

// CipherRequest is a client change intent for one cipher. Payload maps are
// decoded JSON; their values stay opaque except for the transient "response"
// key which is stripped before storage.
type CipherRequest struct {
	// ID is set only in bulk share requests.
	ID             *uuid.UUID
	FolderID       *uuid.UUID
	OrganizationID *uuid.UUID

	Key  *string
	Type CipherType
	Name string

	Notes           *string
	Fields          []map[string]any
	PasswordHistory []map[string]any

	// Exactly one of these should be present, matching Type.
	Login      map[string]any
	SecureNote map[string]any
	Card       map[string]any
	Identity   map[string]any
	SSHKey     map[string]any

	Favorite *bool
	Reprompt *int32

	// AttachmentRotations carries re-wrapped attachment keys during client
	// key rotation, keyed by attachment ID.
	AttachmentRotations map[string]AttachmentRotation

	// LastKnownRevisionDate is the ISO 8601 revision timestamp of the
	// client's local copy, used for stale-write detection. Absent or
	// unparseable values are tolerated for older clients.
	LastKnownRevisionDate *string
}

// Payload returns the type-specific payload object and whether the declared
// type is known.
func (r *CipherRequest) Payload() (map[string]any, bool) {
	switch r.Type {
	case CipherTypeLogin:
		return r.Login, true
	case CipherTypeSecureNote:
		return r.SecureNote, true
	case CipherTypeCard:
		return r.Card, true
	case CipherTypeIdentity:
		return r.Identity, true
	case CipherTypeSSHKey:
		return r.SSHKey, true
	default:
		return nil, false
	}
}

// AttachmentRotation is the re-keyed name and key of one attachment.
type AttachmentRotation struct {
	FileName string
	Key      string
}

// PartialCipherRequest updates only the per-user folder and favorite
// relations, which do not require write access to the cipher itself.
type PartialCipherRequest struct {
	FolderID *uuid.UUID
	Favorite bool
}

// ShareRequest moves a cipher into an organization and links it into the
// posted collections.
type ShareRequest struct {
	Cipher        CipherRequest
	CollectionIDs []uuid.UUID
}

// ImportFolder is one folder of an import payload. ID is set when the
// folder already exists.
type ImportFolder struct {
	ID   *uuid.UUID
	Name string
}

// ImportRelation maps a cipher index to a folder index within an import.
type ImportRelation struct {
	CipherIndex int
	FolderIndex int
}

// ImportRequest is a bulk vault import. Items are processed sequentially
// with staleness checks and per-item notifications disabled.
type ImportRequest struct {
	Ciphers   []CipherRequest
	Folders   []ImportFolder
	Relations []ImportRelation
}

// AttachmentRequest reserves an attachment slot before the data upload.
type AttachmentRequest struct {
	Key      string
	FileName string
	FileSize int64
}
