package session

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/sirupsen/logrus"
)

// SimulatedClient is an in-process protocol client used when no real
// messaging backend is configured. It drives the full lifecycle event stream
// (connecting, qr, connected) so the registry, filters, and delivery pipeline
// can be exercised end to end, and exposes Emit* methods for injecting
// domain events.
type SimulatedClient struct {
	id    string
	log   *logrus.Entry
	phone string

	mu        sync.Mutex
	handlers  EventHandlers
	connected bool
}

// NewSimulatedClient creates a simulated client for the given session id
func NewSimulatedClient(sessionID string, log *logrus.Logger) *SimulatedClient {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SimulatedClient{
		id:    sessionID,
		log:   log.WithField("session", sessionID),
		phone: derivePhone(sessionID),
	}
}

// derivePhone produces a stable fake E.164 number per session id
func derivePhone(sessionID string) string {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return fmt.Sprintf("+1555%07d", h.Sum32()%10000000)
}

// Connect walks the simulated handshake: connecting, a QR challenge, then
// connected. Events fire synchronously so callers observe the final state on
// return.
func (c *SimulatedClient) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return fmt.Errorf("session %s already connected", c.id)
	}
	c.connected = true
	h := c.handlers
	c.mu.Unlock()

	c.log.Info("simulated connect")

	if h.OnConnection != nil {
		h.OnConnection(StatusConnecting)
	}
	if h.OnQR != nil {
		h.OnQR(fmt.Sprintf("chatwire-sim-qr-%s", c.id))
	}
	if h.OnConnection != nil {
		h.OnConnection(StatusConnected)
	}
	if h.OnSessionSaved != nil {
		h.OnSessionSaved()
	}
	return nil
}

// Disconnect emits the disconnected event and resets the connection flag
func (c *SimulatedClient) Disconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return fmt.Errorf("session %s not connected", c.id)
	}
	c.connected = false
	h := c.handlers
	c.mu.Unlock()

	c.log.Info("simulated disconnect")

	if h.OnDisconnected != nil {
		h.OnDisconnected("client disconnect")
	}
	if h.OnConnection != nil {
		h.OnConnection(StatusDisconnected)
	}
	return nil
}

// AuthenticatedID returns the fake account number while connected
func (c *SimulatedClient) AuthenticatedID() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return "", false
	}
	return c.phone, true
}

// Subscribe attaches the registry's callbacks
func (c *SimulatedClient) Subscribe(handlers EventHandlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = handlers
}

// Unsubscribe detaches all callbacks
func (c *SimulatedClient) Unsubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = EventHandlers{}
}

func (c *SimulatedClient) currentHandlers() EventHandlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers
}

// EmitMessage injects an inbound message event
func (c *SimulatedClient) EmitMessage(msg interface{}) {
	if h := c.currentHandlers(); h.OnMessage != nil {
		h.OnMessage(msg)
	}
}

// EmitMessageEdit injects a message-edit event
func (c *SimulatedClient) EmitMessageEdit(edit interface{}) {
	if h := c.currentHandlers(); h.OnMessageEdit != nil {
		h.OnMessageEdit(edit)
	}
}

// EmitMessageDelete injects a message-delete event
func (c *SimulatedClient) EmitMessageDelete(deletion interface{}) {
	if h := c.currentHandlers(); h.OnMessageDelete != nil {
		h.OnMessageDelete(deletion)
	}
}

// EmitMessageReaction injects a reaction event
func (c *SimulatedClient) EmitMessageReaction(reaction interface{}) {
	if h := c.currentHandlers(); h.OnMessageReaction != nil {
		h.OnMessageReaction(reaction)
	}
}

// EmitPresence injects a presence update
func (c *SimulatedClient) EmitPresence(update interface{}) {
	if h := c.currentHandlers(); h.OnPresence != nil {
		h.OnPresence(update)
	}
}

// EmitReconnecting injects a reconnect attempt notification
func (c *SimulatedClient) EmitReconnecting(attempt int) {
	if h := c.currentHandlers(); h.OnReconnecting != nil {
		h.OnReconnecting(attempt)
	}
}

// EmitError injects a client error
func (c *SimulatedClient) EmitError(err error) {
	if h := c.currentHandlers(); h.OnError != nil {
		h.OnError(err)
	}
}

// SimulatedFactory returns a ClientFactory producing simulated clients that
// share one logrus logger
func SimulatedFactory(log *logrus.Logger) ClientFactory {
	return func(sessionID string) (Client, error) {
		return NewSimulatedClient(sessionID, log), nil
	}
}
