// Package session manages the lifecycle of named protocol-client sessions.
//
// # Overview
//
// The Registry owns a mapping of session id to a protocol client handle and
// lifecycle state. At creation it builds a client through a ClientFactory and
// attaches a bounded set of event callbacks; every client event is counted,
// normalized into the webhook event vocabulary, run through the session's
// per-event allowlist, and on acceptance handed to a Queuer for delivery.
//
// Sessions move between five states (disconnected, connecting, connected,
// reconnecting, qr_required) driven entirely by client connection events.
// There is no terminal state; a session cycles until explicitly deleted.
//
// # Usage
//
//	registry := session.NewRegistry(session.SimulatedFactory(nil), dispatcher, logger, metrics)
//
//	s, err := registry.Create(session.CreateConfig{
//		ID:            "support-line",
//		WebhookURL:    "https://api.example.com/hooks",
//		WebhookEvents: []session.EventType{session.EventMessage},
//	})
//
//	err = registry.Connect(ctx, s.ID)
//
// # Related Packages
//
//   - pkg/webhook: Delivers the payloads emitted here
package session
