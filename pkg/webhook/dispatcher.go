package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/chatwire/chatwire/pkg/observability"
)

// Payload is the wire body of a webhook delivery
type Payload struct {
	Event     string      `json:"event"`
	SessionID string      `json:"sessionId"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// DedupeKey returns the deterministic identity of a delivery task. Two
// payloads with the same event, session, and timestamp collapse to one task.
func (p Payload) DedupeKey() string {
	return fmt.Sprintf("%s:%s:%d", p.Event, p.SessionID, p.Timestamp)
}

// Task is a queued, retryable unit of webhook delivery work
type Task struct {
	URL         string
	Payload     Payload
	Attempts    int
	NextRetryAt *time.Time
}

// Stats is a snapshot of dispatcher counters. Queued is the live queue size;
// the remaining counters are cumulative since startup or the last reset.
type Stats struct {
	Queued           int        `json:"queued"`
	Delivered        int64      `json:"delivered"`
	Failed           int64      `json:"failed"`
	Dropped          int64      `json:"dropped"`
	LastDeliveryTime *time.Time `json:"lastDeliveryTime,omitempty"`
	LastFailureTime  *time.Time `json:"lastFailureTime,omitempty"`
}

// Config configures the dispatcher
type Config struct {
	// Secret keys the HMAC signature on every delivery
	Secret string

	// Timeout bounds each outbound HTTP POST
	Timeout time.Duration

	// MaxRetries is the attempt count at which a failing task is dropped
	MaxRetries int

	// TickInterval is the scheduler scan interval
	TickInterval time.Duration

	// UserAgent identifies the gateway on outbound requests
	UserAgent string
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "chatwire-webhook/1.0"
	}
	return c
}

// backoffSchedule is the fixed retry cadence indexed by attempt count,
// clamped to the last entry. A table rather than a formula keeps the cadence
// auditable and bounded.
var backoffSchedule = []time.Duration{
	0,
	time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	time.Hour,
}

func nextRetryDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= len(backoffSchedule) {
		attempts = len(backoffSchedule) - 1
	}
	return backoffSchedule[attempts]
}

// Dispatcher delivers queued webhook payloads on a fixed scheduler tick.
// Queueing never blocks on network I/O; all delivery happens inside the tick
// loop, so queue mutation from delivery outcomes is serialized there.
type Dispatcher struct {
	cfg     Config
	client  *http.Client
	logger  *observability.Logger
	metrics *observability.Metrics
	limiter Limiter
	history *History

	mu           sync.Mutex
	tasks        map[string]*Task
	queuedTotal  int64
	delivered    int64
	failed       int64
	dropped      int64
	lastDelivery *time.Time
	lastFailure  *time.Time

	started  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewDispatcher creates a dispatcher. metrics, limiter, and history are
// optional and may be nil.
func NewDispatcher(cfg Config, logger *observability.Logger, metrics *observability.Metrics, limiter Limiter, history *History) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger:  logger.WithField("component", "webhook_dispatcher"),
		metrics: metrics,
		limiter: limiter,
		history: history,
		tasks:   make(map[string]*Task),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// History returns the delivery attempt history, or nil if none is configured
func (d *Dispatcher) History() *History {
	return d.history
}

// Queue records a delivery task for the payload. The call is idempotent per
// dedupe key: re-queueing overwrites the pending task with a fresh attempt
// count instead of creating a duplicate in-flight delivery. It returns as
// soon as the task is recorded.
func (d *Dispatcher) Queue(url string, payload Payload) {
	key := payload.DedupeKey()

	d.mu.Lock()
	d.tasks[key] = &Task{URL: url, Payload: payload}
	d.queuedTotal++
	size := len(d.tasks)
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.WebhookQueueSize.Set(float64(size))
	}
	d.logger.WithSession(payload.SessionID).Debugf("Queued %s webhook for %s", payload.Event, url)
}

// QueueSize returns the current count of pending tasks
func (d *Dispatcher) QueueSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// Stats returns a stats snapshot
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Queued:           len(d.tasks),
		Delivered:        d.delivered,
		Failed:           d.failed,
		Dropped:          d.dropped,
		LastDeliveryTime: d.lastDelivery,
		LastFailureTime:  d.lastFailure,
	}
}

// ResetStats zeroes the cumulative counters. Pending tasks are unaffected.
func (d *Dispatcher) ResetStats() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queuedTotal = 0
	d.delivered = 0
	d.failed = 0
	d.dropped = 0
	d.lastDelivery = nil
	d.lastFailure = nil
}

// Start launches the scheduler tick. Subsequent calls are no-ops.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	go d.run(ctx)
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.doneCh)

	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.processTick(ctx)
		}
	}
}

// processTick scans all pending tasks and attempts every due one. Keys are
// snapshotted first so removals cannot invalidate the scan.
func (d *Dispatcher) processTick(ctx context.Context) {
	now := time.Now()

	d.mu.Lock()
	keys := make([]string, 0, len(d.tasks))
	for key := range d.tasks {
		keys = append(keys, key)
	}
	d.mu.Unlock()

	for _, key := range keys {
		d.mu.Lock()
		task, ok := d.tasks[key]
		d.mu.Unlock()
		if !ok {
			continue
		}
		if task.NextRetryAt != nil && task.NextRetryAt.After(now) {
			continue
		}
		d.attempt(ctx, key, task)
	}

	if d.metrics != nil {
		d.metrics.WebhookQueueSize.Set(float64(d.QueueSize()))
	}
}

// attempt performs one delivery attempt. Any panic is contained here so a
// single task can never abort the remainder of the scan.
func (d *Dispatcher) attempt(ctx context.Context, key string, task *Task) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithFields(map[string]interface{}{
				"panic": fmt.Sprintf("%v", r),
				"stack": string(debug.Stack()),
				"url":   task.URL,
			}).Error("Delivery attempt panicked")
		}
	}()

	if d.limiter != nil && !d.limiter.Allow(ctx, task.URL) {
		// Deferred to a later tick without consuming an attempt.
		if d.metrics != nil {
			d.metrics.WebhookThrottledTotal.Inc()
		}
		d.logger.WithSession(task.Payload.SessionID).Debugf("Delivery to %s throttled", task.URL)
		return
	}

	task.Attempts++

	start := time.Now()
	statusCode, err := d.deliver(ctx, task)
	duration := time.Since(start)

	if d.metrics != nil {
		d.metrics.WebhookDeliveryDuration.Observe(duration.Seconds())
	}

	if err == nil {
		d.recordSuccess(key, task, statusCode, duration)
		return
	}
	d.recordFailure(key, task, statusCode, err, duration)
}

// deliver issues the signed HTTP POST for a task. The signature timestamp is
// taken at send time, not from the payload, so receivers can enforce
// freshness on retried deliveries.
func (d *Dispatcher) deliver(ctx context.Context, task *Task) (int, error) {
	body, err := json.Marshal(task.Payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal payload: %w", err)
	}

	signedAt := time.Now().UnixMilli()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, task.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", Sign(body, signedAt, d.cfg.Secret))
	req.Header.Set("X-Timestamp", strconv.FormatInt(signedAt, 10))
	req.Header.Set("User-Agent", d.cfg.UserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (d *Dispatcher) recordSuccess(key string, task *Task, statusCode int, duration time.Duration) {
	now := time.Now()

	d.mu.Lock()
	delete(d.tasks, key)
	d.delivered++
	d.lastDelivery = &now
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.WebhookDeliveriesTotal.WithLabelValues(string(OutcomeDelivered)).Inc()
	}
	if d.history != nil {
		d.history.Record(&DeliveryRecord{
			URL:        task.URL,
			Event:      task.Payload.Event,
			SessionID:  task.Payload.SessionID,
			Attempt:    task.Attempts,
			Outcome:    OutcomeDelivered,
			StatusCode: statusCode,
			Duration:   duration,
		})
	}
	d.logger.WithSession(task.Payload.SessionID).Debugf("Delivered %s webhook to %s", task.Payload.Event, task.URL)
}

func (d *Dispatcher) recordFailure(key string, task *Task, statusCode int, deliveryErr error, duration time.Duration) {
	now := time.Now()
	outcome := OutcomeFailed

	d.mu.Lock()
	d.failed++
	d.lastFailure = &now
	if task.Attempts >= d.cfg.MaxRetries {
		// Retries exhausted: the task is dropped for good. There is no
		// dead-letter store; the loss is visible in the dropped counter.
		delete(d.tasks, key)
		d.dropped++
		outcome = OutcomeDropped
	} else {
		retryAt := now.Add(nextRetryDelay(task.Attempts))
		task.NextRetryAt = &retryAt
	}
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.WebhookDeliveriesTotal.WithLabelValues(string(OutcomeFailed)).Inc()
		if outcome == OutcomeDropped {
			d.metrics.WebhookDroppedTotal.Inc()
		}
	}
	if d.history != nil {
		d.history.Record(&DeliveryRecord{
			URL:        task.URL,
			Event:      task.Payload.Event,
			SessionID:  task.Payload.SessionID,
			Attempt:    task.Attempts,
			Outcome:    outcome,
			StatusCode: statusCode,
			Error:      deliveryErr.Error(),
			Duration:   duration,
		})
	}

	log := d.logger.WithSession(task.Payload.SessionID).WithError(deliveryErr)
	if outcome == OutcomeDropped {
		log.Warnf("Dropping %s webhook to %s after %d attempts", task.Payload.Event, task.URL, task.Attempts)
	} else {
		log.Warnf("Delivery of %s webhook to %s failed (attempt %d)", task.Payload.Event, task.URL, task.Attempts)
	}
}

// Dispose halts the scheduler and discards all pending tasks. Deliveries run
// inside the tick loop, so joining the loop guarantees nothing is in flight
// once Dispose returns.
func (d *Dispatcher) Dispose(ctx context.Context) error {
	d.stopOnce.Do(func() { close(d.stopCh) })

	d.mu.Lock()
	started := d.started
	d.mu.Unlock()

	if started {
		select {
		case <-d.doneCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	d.mu.Lock()
	d.tasks = make(map[string]*Task)
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.WebhookQueueSize.Set(0)
	}
	return nil
}
