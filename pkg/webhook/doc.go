// Package webhook provides signed, retrying webhook delivery for session events.
//
// # Overview
//
// The Dispatcher owns an in-memory queue of delivery tasks keyed by a
// deterministic dedupe key (event, session, timestamp). A fixed-interval
// scheduler tick scans the queue and attempts delivery of every due task:
// a signed HTTP POST with a bounded timeout. Successes leave the queue;
// failures reschedule on a fixed backoff table until retries are exhausted,
// after which the task is dropped and counted.
//
// # Usage
//
//	d := webhook.NewDispatcher(webhook.Config{Secret: secret}, logger, metrics, limiter, history)
//	d.Start(ctx)
//	defer d.Dispose(ctx)
//
//	d.Queue("https://api.example.com/hooks", webhook.Payload{
//		Event:     "message",
//		SessionID: "support-line",
//		Timestamp: time.Now().UnixMilli(),
//		Data:      msg,
//	})
//
// # Signatures
//
// Every delivery carries an X-Signature header computed over
// "{timestamp}.{body}" with HMAC-SHA256 and an X-Timestamp header. Receivers
// verify with:
//
//	ok := webhook.Verify(body, sig, ts, secret, 5*time.Minute)
//
// # Retry Policy
//
// Fixed backoff schedule: immediate, 1m, 5m, 15m, 1h (clamped). Tasks that
// exhaust the configured retries are dropped; the loss is observable through
// Stats and the dropped-task metric, not through any callback.
//
// # Related Packages
//
//   - pkg/session: Produces the payloads queued here
package webhook
