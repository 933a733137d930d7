// Package service contains the application services of the vault engine:
// the cipher update pipeline, the attachment quota guard and the collection
// membership editor.
package service

import (
	"github.com/gofrs/uuid/v5"

	"github.com/vaultkeep/vaultkeep/internal/model"
)

// Actor identifies the authenticated requester. Authentication itself
// happens upstream; services trust the IDs given here.
type Actor struct {
	UserID uuid.UUID
	Device model.Device
	IP     string
}

// Limits carries the configured size and retention ceilings. All knobs are
// passed explicitly so services stay testable without ambient state.
type Limits struct {
	// MaxNoteSize bounds the length of the encrypted notes field.
	MaxNoteSize int

	// UserAttachmentLimitKB / OrgAttachmentLimitKB are per-owner storage
	// ceilings in KiB. nil means unlimited; zero disables attachments.
	UserAttachmentLimitKB *int64
	OrgAttachmentLimitKB  *int64

	// TrashAutoDeleteDays controls the background purge of soft-deleted
	// ciphers. nil disables auto-purge.
	TrashAutoDeleteDays *int
}

// DefaultMaxNoteSize matches the upstream default for encrypted notes.
const DefaultMaxNoteSize = 10_000

func checkedMul(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	r := a * b
	if r/b != a {
		return 0, false
	}
	return r, true
}

func checkedAdd(a, b int64) (int64, bool) {
	r := a + b
	if (b > 0 && r < a) || (b < 0 && r > a) {
		return 0, false
	}
	return r, true
}

func checkedSub(a, b int64) (int64, bool) {
	r := a - b
	if (b > 0 && r > a) || (b < 0 && r < a) {
		return 0, false
	}
	return r, true
}
