package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chatwire/chatwire/pkg/async"
	"github.com/chatwire/chatwire/pkg/observability"
	"github.com/chatwire/chatwire/pkg/webhook"
)

var (
	// ErrSessionExists is returned by Create for a duplicate session id
	ErrSessionExists = errors.New("session already exists")

	// ErrSessionNotFound is returned for operations on an unknown session id
	ErrSessionNotFound = errors.New("session not found")
)

// disposeConcurrency bounds parallel disconnects during Dispose
const disposeConcurrency = 8

// disconnectTimeout bounds the background disconnect issued by Delete
const disconnectTimeout = 10 * time.Second

// Session is a snapshot of one managed session. Snapshots are values; mutating
// one has no effect on the registry.
type Session struct {
	ID            string      `json:"id"`
	Status        Status      `json:"status"`
	WebhookURL    string      `json:"webhookUrl,omitempty"`
	WebhookEvents []EventType `json:"webhookEvents,omitempty"`
	PhoneNumber   string      `json:"phoneNumber,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	LastActivity  time.Time   `json:"lastActivity"`
	ConnectedAt   *time.Time  `json:"connectedAt,omitempty"`
}

// CreateConfig carries the caller-supplied attributes of a new session. An
// empty WebhookEvents list means all events are forwarded.
type CreateConfig struct {
	ID            string      `json:"id"`
	WebhookURL    string      `json:"webhookUrl,omitempty"`
	WebhookEvents []EventType `json:"webhookEvents,omitempty"`
}

// Queuer accepts webhook payloads for delivery
type Queuer interface {
	Queue(url string, payload webhook.Payload)
}

type entry struct {
	session Session
	client  Client
}

// Registry owns the lifecycle of named sessions. It constructs a protocol
// client per session, subscribes to its events, normalizes them into webhook
// payloads, applies per-session filters, and forwards accepted payloads to
// the delivery queue.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	factory ClientFactory
	queue   Queuer
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewRegistry creates a session registry. metrics may be nil.
func NewRegistry(factory ClientFactory, queue Queuer, logger *observability.Logger, metrics *observability.Metrics) *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		factory:  factory,
		queue:    queue,
		logger:   logger.WithField("component", "session_registry"),
		metrics:  metrics,
	}
}

// Create registers a new session in status disconnected and wires its client
// event stream. A client construction error fails the call atomically; no
// partial session is left behind.
func (r *Registry) Create(cfg CreateConfig) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[cfg.ID]; exists {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionExists, cfg.ID)
	}

	client, err := r.factory(cfg.ID)
	if err != nil {
		return Session{}, fmt.Errorf("failed to create client for session %s: %w", cfg.ID, err)
	}

	now := time.Now()
	e := &entry{
		session: Session{
			ID:            cfg.ID,
			Status:        StatusDisconnected,
			WebhookURL:    cfg.WebhookURL,
			WebhookEvents: append([]EventType(nil), cfg.WebhookEvents...),
			CreatedAt:     now,
			LastActivity:  now,
		},
		client: client,
	}

	client.Subscribe(r.handlersFor(cfg.ID))
	r.sessions[cfg.ID] = e

	if r.metrics != nil {
		r.metrics.SessionsByStatus.WithLabelValues(string(StatusDisconnected)).Inc()
	}
	r.logger.WithSession(cfg.ID).Info("Session created")
	return snapshot(e), nil
}

// Get returns a snapshot of a session
func (r *Registry) Get(id string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return snapshot(e), nil
}

// List returns snapshots of all sessions
func (r *Registry) List() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		result = append(result, snapshot(e))
	}
	return result
}

// Client returns the protocol client handle for command dispatch
func (r *Registry) Client(id string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return e.client, true
}

// Connect initiates the protocol connection for a session
func (r *Registry) Connect(ctx context.Context, id string) error {
	client, ok := r.Client(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return client.Connect(ctx)
}

// Disconnect tears down the protocol connection for a session
func (r *Registry) Disconnect(ctx context.Context, id string) error {
	client, ok := r.Client(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return client.Disconnect(ctx)
}

// Delete removes a session. A connected session gets a best-effort,
// fire-and-forget disconnect; disconnect errors are logged and swallowed so
// the delete always completes.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(r.sessions, id)
	status := e.session.Status
	r.mu.Unlock()

	if status != StatusDisconnected {
		// Detached from the request context so the teardown outlives the
		// HTTP handler that triggered it.
		async.SafeGo(context.Background(), disconnectTimeout, "session disconnect", func(ctx context.Context) error {
			defer e.client.Unsubscribe()
			if err := e.client.Disconnect(ctx); err != nil {
				r.logger.WithSession(id).WithError(err).Warn("Disconnect during delete failed")
			}
			return nil
		})
	} else {
		e.client.Unsubscribe()
	}

	if r.metrics != nil {
		r.metrics.SessionsByStatus.WithLabelValues(string(status)).Dec()
	}
	r.logger.WithSession(id).Info("Session deleted")
	return nil
}

// Dispose disconnects every session concurrently and clears the registry.
// Per-session failures are logged, never propagated, and never abort the
// shutdown of sibling sessions.
func (r *Registry) Dispose(ctx context.Context) error {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(disposeConcurrency)
	for _, e := range entries {
		e := e
		g.Go(func() error {
			if e.session.Status != StatusDisconnected {
				if err := e.client.Disconnect(ctx); err != nil {
					r.logger.WithSession(e.session.ID).WithError(err).Warn("Disconnect during dispose failed")
				}
			}
			e.client.Unsubscribe()
			return nil
		})
	}
	g.Wait()

	if r.metrics != nil {
		r.metrics.SessionsByStatus.Reset()
	}
	r.logger.Infof("Registry disposed, %d sessions released", len(entries))
	return nil
}

// Count returns the number of managed sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func snapshot(e *entry) Session {
	s := e.session
	s.WebhookEvents = append([]EventType(nil), e.session.WebhookEvents...)
	if e.session.ConnectedAt != nil {
		t := *e.session.ConnectedAt
		s.ConnectedAt = &t
	}
	return s
}

// handlersFor builds the callback set wired to one session's client. Each
// handler normalizes the client event, applies the session's filter, and
// forwards the payload. Client errors after creation surface only as error
// webhook events, never as panics or returned errors.
func (r *Registry) handlersFor(id string) EventHandlers {
	return EventHandlers{
		OnConnection: func(state Status) {
			r.handleConnection(id, state)
		},
		OnQR: func(challenge string) {
			r.countEvent(EventQR)
			r.setStatus(id, StatusQRRequired)
			r.emit(id, EventQR, map[string]interface{}{"qr": challenge})
		},
		OnReconnecting: func(attempt int) {
			r.countEvent(EventReconnecting)
			r.setStatus(id, StatusReconnecting)
			r.emit(id, EventReconnecting, map[string]interface{}{"attempt": attempt})
		},
		OnDisconnected: func(reason string) {
			r.countEvent(EventDisconnected)
			r.setStatus(id, StatusDisconnected)
			data := map[string]interface{}{}
			if reason != "" {
				data["reason"] = reason
			}
			r.emit(id, EventDisconnected, data)
		},
		OnError: func(err error) {
			r.countEvent(EventError)
			r.touch(id)
			r.logger.WithSession(id).WithError(err).Warn("Client error")
			r.emit(id, EventError, map[string]interface{}{"error": err.Error()})
		},
		OnMessage: func(msg interface{}) {
			r.countEvent(EventMessage)
			r.touch(id)
			r.emit(id, EventMessage, msg)
		},
		OnMessageEdit: func(edit interface{}) {
			r.countEvent(EventMessageEdit)
			r.touch(id)
			r.emit(id, EventMessageEdit, edit)
		},
		OnMessageDelete: func(deletion interface{}) {
			r.countEvent(EventMessageDelete)
			r.touch(id)
			r.emit(id, EventMessageDelete, deletion)
		},
		OnMessageReaction: func(reaction interface{}) {
			r.countEvent(EventMessageReaction)
			r.touch(id)
			r.emit(id, EventMessageReaction, reaction)
		},
		OnPresence: func(update interface{}) {
			r.countEvent(EventPresence)
			r.touch(id)
			r.emit(id, EventPresence, update)
		},
		OnSessionSaved: func() {
			// Housekeeping signal, logged but never forwarded
			r.logger.WithSession(id).Debug("Session credentials saved")
		},
	}
}

// handleConnection applies a connection-state transition verbatim and emits
// the connection event. Entering connected additionally captures the
// connected-at timestamp and authenticated identity, and synthesizes a
// distinct ready event subject to the same filter.
func (r *Registry) handleConnection(id string, state Status) {
	r.countEvent(EventConnection)
	if !ValidStatus(string(state)) {
		r.logger.WithSession(id).Warnf("Ignoring unknown connection state %q", state)
		return
	}

	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	prev := e.session.Status
	e.session.Status = state
	e.session.LastActivity = time.Now()
	if state == StatusConnected {
		now := time.Now()
		e.session.ConnectedAt = &now
		if phone, authed := e.client.AuthenticatedID(); authed {
			e.session.PhoneNumber = phone
		}
	}
	r.mu.Unlock()

	if r.metrics != nil && prev != state {
		r.metrics.SessionsByStatus.WithLabelValues(string(prev)).Dec()
		r.metrics.SessionsByStatus.WithLabelValues(string(state)).Inc()
	}

	r.emit(id, EventConnection, map[string]interface{}{"state": string(state)})
	if state == StatusConnected {
		r.emit(id, EventReady, nil)
	}
}

func (r *Registry) setStatus(id string, status Status) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	prev := e.session.Status
	e.session.Status = status
	e.session.LastActivity = time.Now()
	r.mu.Unlock()

	if r.metrics != nil && prev != status {
		r.metrics.SessionsByStatus.WithLabelValues(string(prev)).Dec()
		r.metrics.SessionsByStatus.WithLabelValues(string(status)).Inc()
	}
}

func (r *Registry) touch(id string) {
	r.mu.Lock()
	if e, ok := r.sessions[id]; ok {
		e.session.LastActivity = time.Now()
	}
	r.mu.Unlock()
}

func (r *Registry) countEvent(event EventType) {
	if r.metrics != nil {
		r.metrics.ClientEventsTotal.WithLabelValues(string(event)).Inc()
	}
}

// emit runs the per-session filter and queues the payload on acceptance.
// Drops are silent apart from the filtered-events metric.
func (r *Registry) emit(id string, event EventType, data interface{}) {
	r.mu.RLock()
	e, ok := r.sessions[id]
	if !ok {
		r.mu.RUnlock()
		return
	}
	url := e.session.WebhookURL
	allowed := len(e.session.WebhookEvents) == 0
	for _, allowedEvent := range e.session.WebhookEvents {
		if allowedEvent == event {
			allowed = true
			break
		}
	}
	r.mu.RUnlock()

	if url == "" {
		if r.metrics != nil {
			r.metrics.WebhookFilteredTotal.WithLabelValues("no_url").Inc()
		}
		return
	}
	if !allowed {
		if r.metrics != nil {
			r.metrics.WebhookFilteredTotal.WithLabelValues("not_subscribed").Inc()
		}
		return
	}

	r.queue.Queue(url, webhook.Payload{
		Event:     string(event),
		SessionID: id,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	})
}
