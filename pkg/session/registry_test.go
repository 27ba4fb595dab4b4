package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatwire/chatwire/pkg/observability"
	"github.com/chatwire/chatwire/pkg/webhook"
)

// recordingQueue captures queued payloads for assertions
type recordingQueue struct {
	mu       sync.Mutex
	payloads []webhook.Payload
}

func (q *recordingQueue) Queue(url string, payload webhook.Payload) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.payloads = append(q.payloads, payload)
}

func (q *recordingQueue) all() []webhook.Payload {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]webhook.Payload(nil), q.payloads...)
}

func (q *recordingQueue) events() []string {
	var out []string
	for _, p := range q.all() {
		out = append(out, p.Event)
	}
	return out
}

// fakeClient records commands and lets tests drive the event stream
type fakeClient struct {
	mu            sync.Mutex
	handlers      EventHandlers
	connectErr    error
	disconnectErr error
	connects      int
	disconnects   int
	unsubscribed  bool
	phone         string
}

func (c *fakeClient) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	return c.connectErr
}

func (c *fakeClient) Disconnect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return c.disconnectErr
}

func (c *fakeClient) AuthenticatedID() (string, bool) {
	if c.phone == "" {
		return "", false
	}
	return c.phone, true
}

func (c *fakeClient) Subscribe(h EventHandlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h
}

func (c *fakeClient) Unsubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = true
	c.handlers = EventHandlers{}
}

func (c *fakeClient) emit() EventHandlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers
}

func (c *fakeClient) disconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

func (c *fakeClient) isUnsubscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unsubscribed
}

type fixture struct {
	registry *Registry
	queue    *recordingQueue
	clients  map[string]*fakeClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		queue:   &recordingQueue{},
		clients: make(map[string]*fakeClient),
	}
	factory := func(sessionID string) (Client, error) {
		c := &fakeClient{phone: "+15550001111"}
		f.clients[sessionID] = c
		return c, nil
	}
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	f.registry = NewRegistry(factory, f.queue, logger, nil)
	return f
}

func (f *fixture) create(t *testing.T, cfg CreateConfig) *fakeClient {
	t.Helper()
	_, err := f.registry.Create(cfg)
	require.NoError(t, err)
	return f.clients[cfg.ID]
}

func TestRegistry_Create(t *testing.T) {
	f := newFixture(t)

	s, err := f.registry.Create(CreateConfig{
		ID:            "main",
		WebhookURL:    "http://example.com/hook",
		WebhookEvents: []EventType{EventMessage},
	})
	require.NoError(t, err)

	assert.Equal(t, "main", s.ID)
	assert.Equal(t, StatusDisconnected, s.Status)
	assert.Equal(t, "http://example.com/hook", s.WebhookURL)
	assert.Equal(t, []EventType{EventMessage}, s.WebhookEvents)
	assert.False(t, s.CreatedAt.IsZero())
	assert.Nil(t, s.ConnectedAt)
	assert.Equal(t, 1, f.registry.Count())
}

func TestRegistry_CreateDuplicateConflicts(t *testing.T) {
	f := newFixture(t)
	f.create(t, CreateConfig{ID: "main", WebhookURL: "http://a.example.com"})

	_, err := f.registry.Create(CreateConfig{ID: "main"})
	require.ErrorIs(t, err, ErrSessionExists)

	// The original session is unaffected
	s, err := f.registry.Get("main")
	require.NoError(t, err)
	assert.Equal(t, "http://a.example.com", s.WebhookURL)
}

func TestRegistry_CreateFactoryErrorIsAtomic(t *testing.T) {
	factoryErr := errors.New("protocol handshake refused")
	factory := func(string) (Client, error) { return nil, factoryErr }
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	registry := NewRegistry(factory, &recordingQueue{}, logger, nil)

	_, err := registry.Create(CreateConfig{ID: "main"})
	require.ErrorIs(t, err, factoryErr)
	assert.Equal(t, 0, registry.Count())

	_, err = registry.Get("main")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_GetUnknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.Get("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_List(t *testing.T) {
	f := newFixture(t)
	assert.Empty(t, f.registry.List())

	f.create(t, CreateConfig{ID: "a"})
	f.create(t, CreateConfig{ID: "b"})

	sessions := f.registry.List()
	require.Len(t, sessions, 2)

	ids := []string{sessions[0].ID, sessions[1].ID}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestRegistry_SnapshotsAreCopies(t *testing.T) {
	f := newFixture(t)
	f.create(t, CreateConfig{ID: "main", WebhookEvents: []EventType{EventMessage}})

	s, err := f.registry.Get("main")
	require.NoError(t, err)
	s.WebhookEvents[0] = EventQR
	s.Status = StatusConnected

	fresh, err := f.registry.Get("main")
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventMessage}, fresh.WebhookEvents)
	assert.Equal(t, StatusDisconnected, fresh.Status)
}

func TestRegistry_StatusFollowsConnectionEvents(t *testing.T) {
	f := newFixture(t)
	client := f.create(t, CreateConfig{ID: "main"})

	states := []Status{StatusConnecting, StatusConnected, StatusReconnecting, StatusConnected, StatusDisconnected}
	for _, state := range states {
		client.emit().OnConnection(state)
		s, err := f.registry.Get("main")
		require.NoError(t, err)
		assert.Equal(t, state, s.Status, "status must track the most recent state event")
		assert.True(t, ValidStatus(string(s.Status)))
	}
}

func TestRegistry_ConnectedCapturesIdentity(t *testing.T) {
	f := newFixture(t)
	client := f.create(t, CreateConfig{ID: "main"})

	client.emit().OnConnection(StatusConnected)

	s, err := f.registry.Get("main")
	require.NoError(t, err)
	require.NotNil(t, s.ConnectedAt)
	assert.Equal(t, "+15550001111", s.PhoneNumber)
}

func TestRegistry_UnknownConnectionStateIgnored(t *testing.T) {
	f := newFixture(t)
	client := f.create(t, CreateConfig{ID: "main"})

	client.emit().OnConnection(Status("exploded"))

	s, err := f.registry.Get("main")
	require.NoError(t, err)
	assert.Equal(t, StatusDisconnected, s.Status)
}

func TestRegistry_QREventForcesState(t *testing.T) {
	f := newFixture(t)
	client := f.create(t, CreateConfig{ID: "main", WebhookURL: "http://example.com/hook"})

	client.emit().OnQR("challenge-data")

	s, err := f.registry.Get("main")
	require.NoError(t, err)
	assert.Equal(t, StatusQRRequired, s.Status)

	payloads := f.queue.all()
	require.Len(t, payloads, 1)
	assert.Equal(t, "qr", payloads[0].Event)
	assert.Equal(t, "main", payloads[0].SessionID)
	assert.Equal(t, map[string]interface{}{"qr": "challenge-data"}, payloads[0].Data)
	assert.NotZero(t, payloads[0].Timestamp)
}

func TestRegistry_AllowlistFiltersEvents(t *testing.T) {
	f := newFixture(t)
	client := f.create(t, CreateConfig{
		ID:            "s1",
		WebhookURL:    "http://example.com/hook",
		WebhookEvents: []EventType{EventMessage},
	})

	// qr is not on the allowlist: dropped silently
	client.emit().OnQR("challenge")
	assert.Empty(t, f.queue.all())

	// message is allowed
	client.emit().OnMessage(map[string]interface{}{"body": "hello"})
	payloads := f.queue.all()
	require.Len(t, payloads, 1)
	assert.Equal(t, "message", payloads[0].Event)
}

func TestRegistry_NoWebhookURLDropsAll(t *testing.T) {
	f := newFixture(t)
	client := f.create(t, CreateConfig{ID: "main"})

	client.emit().OnMessage(map[string]interface{}{"body": "hello"})
	client.emit().OnQR("challenge")
	client.emit().OnConnection(StatusConnected)

	assert.Empty(t, f.queue.all())
}

func TestRegistry_ConnectedEmitsConnectionAndReady(t *testing.T) {
	f := newFixture(t)
	client := f.create(t, CreateConfig{ID: "s2", WebhookURL: "http://example.com/hook"})

	client.emit().OnConnection(StatusConnected)

	assert.Equal(t, []string{"connection", "ready"}, f.queue.events())
}

func TestRegistry_ReadyFilteredIndependently(t *testing.T) {
	f := newFixture(t)
	client := f.create(t, CreateConfig{
		ID:            "main",
		WebhookURL:    "http://example.com/hook",
		WebhookEvents: []EventType{EventReady},
	})

	client.emit().OnConnection(StatusConnected)

	// connection is filtered out, ready passes
	assert.Equal(t, []string{"ready"}, f.queue.events())
}

func TestRegistry_ClientErrorBecomesErrorEvent(t *testing.T) {
	f := newFixture(t)
	client := f.create(t, CreateConfig{ID: "main", WebhookURL: "http://example.com/hook"})

	client.emit().OnError(errors.New("stream torn down"))

	payloads := f.queue.all()
	require.Len(t, payloads, 1)
	assert.Equal(t, "error", payloads[0].Event)
	assert.Equal(t, map[string]interface{}{"error": "stream torn down"}, payloads[0].Data)
}

func TestRegistry_ConnectDisconnectDispatch(t *testing.T) {
	f := newFixture(t)
	client := f.create(t, CreateConfig{ID: "main"})

	ctx := context.Background()
	require.NoError(t, f.registry.Connect(ctx, "main"))
	require.NoError(t, f.registry.Disconnect(ctx, "main"))
	assert.Equal(t, 1, client.connects)
	assert.Equal(t, 1, client.disconnects)

	assert.ErrorIs(t, f.registry.Connect(ctx, "missing"), ErrSessionNotFound)
	assert.ErrorIs(t, f.registry.Disconnect(ctx, "missing"), ErrSessionNotFound)
}

func TestRegistry_DeleteUnknown(t *testing.T) {
	f := newFixture(t)
	f.create(t, CreateConfig{ID: "main"})

	err := f.registry.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 1, f.registry.Count())
}

func TestRegistry_DeleteDisconnectsConnected(t *testing.T) {
	f := newFixture(t)
	client := f.create(t, CreateConfig{ID: "main"})
	client.emit().OnConnection(StatusConnected)

	require.NoError(t, f.registry.Delete(context.Background(), "main"))

	assert.Equal(t, 0, f.registry.Count())
	// The disconnect is fire-and-forget in the background
	require.Eventually(t, func() bool {
		return client.disconnectCount() == 1 && client.isUnsubscribed()
	}, time.Second, 10*time.Millisecond)
}

func TestRegistry_DeleteSwallowsDisconnectError(t *testing.T) {
	f := newFixture(t)
	client := f.create(t, CreateConfig{ID: "main"})
	client.disconnectErr = errors.New("socket already gone")
	client.emit().OnConnection(StatusConnected)

	// The delete must complete despite the disconnect failure
	require.NoError(t, f.registry.Delete(context.Background(), "main"))
	assert.Equal(t, 0, f.registry.Count())
	require.Eventually(t, func() bool {
		return client.disconnectCount() == 1 && client.isUnsubscribed()
	}, time.Second, 10*time.Millisecond)
}

func TestRegistry_DeleteSkipsDisconnectWhenDisconnected(t *testing.T) {
	f := newFixture(t)
	client := f.create(t, CreateConfig{ID: "main"})

	require.NoError(t, f.registry.Delete(context.Background(), "main"))
	assert.Equal(t, 0, client.disconnectCount())
	assert.True(t, client.isUnsubscribed())
}

func TestRegistry_EventsAfterDeleteIgnored(t *testing.T) {
	f := newFixture(t)
	client := f.create(t, CreateConfig{ID: "main", WebhookURL: "http://example.com/hook"})
	handlers := client.emit()

	require.NoError(t, f.registry.Delete(context.Background(), "main"))

	// A straggling callback held by the old client must be a no-op
	handlers.OnMessage(map[string]interface{}{"body": "late"})
	handlers.OnConnection(StatusConnected)
	assert.Empty(t, f.queue.all())
}

func TestRegistry_Dispose(t *testing.T) {
	f := newFixture(t)
	connected := f.create(t, CreateConfig{ID: "a"})
	connected.emit().OnConnection(StatusConnected)
	failing := f.create(t, CreateConfig{ID: "b"})
	failing.disconnectErr = errors.New("timeout")
	failing.emit().OnConnection(StatusConnected)
	idle := f.create(t, CreateConfig{ID: "c"})

	require.NoError(t, f.registry.Dispose(context.Background()))

	assert.Equal(t, 0, f.registry.Count())
	assert.Equal(t, 1, connected.disconnects)
	assert.Equal(t, 1, failing.disconnects, "a failing sibling must not abort others")
	assert.Equal(t, 0, idle.disconnects)
	assert.True(t, connected.unsubscribed)
	assert.True(t, idle.unsubscribed)
}
