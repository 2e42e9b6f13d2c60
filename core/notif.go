package core

// Event is a plain JSON notification frame pushed over the socket channel.
// Events mirror database writes; they carry no protocol semantics.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`

	// Recipients are user IDs; not serialized.
	Recipients []string `json:"-"`
}

// Event types.
const (
	EventMessageCreated      = "message.created"
	EventAbsenceUpdated      = "absence.updated"
	EventInterventionUpdated = "intervention.updated"
	EventUploadProgress      = "upload.progress"
)

// Notifier is any service that can push events to connected users.
// Notify must not block; events to disconnected users are dropped.
type Notifier interface {
	Notify(evt Event)
}
