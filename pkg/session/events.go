package session

// EventType enumerates the webhook event vocabulary. Every client-originated
// event is normalized to exactly one of these before delivery.
type EventType string

const (
	EventQR              EventType = "qr"
	EventReady           EventType = "ready"
	EventMessage         EventType = "message"
	EventMessageEdit     EventType = "message_edit"
	EventMessageDelete   EventType = "message_delete"
	EventMessageReaction EventType = "message_reaction"
	EventPresence        EventType = "presence"
	EventConnection      EventType = "connection"
	EventDisconnected    EventType = "disconnected"
	EventReconnecting    EventType = "reconnecting"
	EventError           EventType = "error"
)

// AllEventTypes lists every member of the closed event vocabulary
var AllEventTypes = []EventType{
	EventQR,
	EventReady,
	EventMessage,
	EventMessageEdit,
	EventMessageDelete,
	EventMessageReaction,
	EventPresence,
	EventConnection,
	EventDisconnected,
	EventReconnecting,
	EventError,
}

// ValidEventType reports whether s names a known webhook event
func ValidEventType(s string) bool {
	for _, e := range AllEventTypes {
		if string(e) == s {
			return true
		}
	}
	return false
}

// Status enumerates session lifecycle states
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusQRRequired   Status = "qr_required"
)

// ValidStatus reports whether s names one of the five lifecycle states
func ValidStatus(s string) bool {
	switch Status(s) {
	case StatusDisconnected, StatusConnecting, StatusConnected, StatusReconnecting, StatusQRRequired:
		return true
	}
	return false
}
