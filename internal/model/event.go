package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// EventType is an audit event identifier. Values follow the upstream
// Bitwarden event catalogue so exported logs stay interoperable.
type EventType int32

const (
	EventCipherCreated            EventType = 1100
	EventCipherUpdated            EventType = 1101
	EventCipherDeleted            EventType = 1102
	EventCipherAttachmentCreated  EventType = 1103
	EventCipherAttachmentDeleted  EventType = 1104
	EventCipherShared             EventType = 1105
	EventCipherUpdatedCollections EventType = 1106
	EventCipherSoftDeleted        EventType = 1115
	EventCipherRestored           EventType = 1116
	EventOrganizationPurgedVault  EventType = 1613
)

// ChangeKind classifies a mutation for notification fan-out.
type ChangeKind int32

const (
	ChangeCipherUpdate ChangeKind = 0
	ChangeCipherCreate ChangeKind = 1
	ChangeCipherDelete ChangeKind = 2
	ChangeVault        ChangeKind = 5
	// ChangeNone suppresses per-item notifications, used during import.
	ChangeNone ChangeKind = 100
)

// DeviceKind is the client device category reported in audit events.
type DeviceKind int32

// Device identifies the client device originating a request.
type Device struct {
	ID     uuid.UUID
	Kind   DeviceKind
	PushID *string
}

// Event is one audit record. Only organization-owned ciphers produce events.
type Event struct {
	Kind           EventType
	SubjectID      string // cipher or organization ID
	OrganizationID uuid.UUID
	ActorUserID    uuid.UUID
	DeviceKind     DeviceKind
	ActorIP        string
	OccurredAt     time.Time
}
