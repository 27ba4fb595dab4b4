package session

import "context"

// EventHandlers is the bounded set of named callbacks a registry attaches to
// a protocol client at session creation and detaches at deletion. Nil
// callbacks are simply never invoked.
type EventHandlers struct {
	OnConnection      func(state Status)
	OnQR              func(challenge string)
	OnReconnecting    func(attempt int)
	OnDisconnected    func(reason string)
	OnError           func(err error)
	OnMessage         func(msg interface{})
	OnMessageEdit     func(edit interface{})
	OnMessageDelete   func(deletion interface{})
	OnMessageReaction func(reaction interface{})
	OnPresence        func(update interface{})
	OnSessionSaved    func()
}

// Client is the external protocol client backing one session: an event
// source plus a command sink. Implementations must tolerate Subscribe and
// Unsubscribe being called at most once each, in that order.
type Client interface {
	// Connect initiates the protocol connection
	Connect(ctx context.Context) error

	// Disconnect tears the connection down
	Disconnect(ctx context.Context) error

	// AuthenticatedID returns the account identifier (phone number) once the
	// client has authenticated, or false before that point
	AuthenticatedID() (string, bool)

	// Subscribe attaches the event callbacks
	Subscribe(handlers EventHandlers)

	// Unsubscribe detaches all event callbacks
	Unsubscribe()
}

// ClientFactory constructs the protocol client for a new session. A factory
// error fails session creation atomically.
type ClientFactory func(sessionID string) (Client, error)
