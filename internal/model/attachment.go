package model

import "github.com/gofrs/uuid/v5"

// Attachment is a binary blob attached to exactly one cipher. FileName and
// Key are ciphertext; FileSize is the declared size in bytes and is counted
// against the owning user's or organization's storage quota.
type Attachment struct {
	ID       string // random hex, assigned server side
	CipherID uuid.UUID
	FileName string
	FileSize int64
	Key      *string // wrapped symmetric key
}

// BlobKey returns the object-store key for the attachment content.
func (a *Attachment) BlobKey() string {
	return a.CipherID.String() + "/" + a.ID
}
