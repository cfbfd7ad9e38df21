package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/model"
	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/store"
)

const signatureHeader = "X-Webhook-Signature"

// payload is the body posted to every subscribed endpoint.
type payload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Dispatcher fans an event out to every active webhook subscribed to it.
// Delivery is best-effort, single attempt, one goroutine per endpoint; a
// failing endpoint never blocks the others. Every attempt lands in the
// bounded webhook-logs collection.
type Dispatcher struct {
	store  store.Store
	client *http.Client
	logCap int

	wg sync.WaitGroup

	// logMu serializes the read-modify-write of the log collection across
	// concurrent deliveries.
	logMu sync.Mutex

	now func() time.Time
}

func NewDispatcher(s store.Store, timeout time.Duration, logCap int) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logCap <= 0 {
		logCap = 100
	}
	return &Dispatcher{
		store:  s,
		client: &http.Client{Timeout: timeout},
		logCap: logCap,
		now:    time.Now,
	}
}

// Trigger starts delivery to all matching webhooks and returns immediately.
// Callers that need determinism (tests, shutdown) follow up with Wait.
func (d *Dispatcher) Trigger(ctx context.Context, event string, data any) {
	hooks, err := store.LoadList[model.Webhook](ctx, d.store, store.KeyWebhooks)
	if err != nil {
		slog.Error("webhook trigger: loading webhooks failed", "event", event, "error", err)
		return
	}

	body, err := json.Marshal(payload{Event: event, Timestamp: d.now().UTC(), Data: data})
	if err != nil {
		slog.Error("webhook trigger: encoding payload failed", "event", event, "error", err)
		return
	}

	for _, h := range hooks {
		if !h.IsActive || !subscribed(h, event) {
			continue
		}

		d.wg.Add(1)
		go func(h model.Webhook) {
			defer d.wg.Done()
			d.deliver(h, event, body)
		}(h)
	}
}

// Wait blocks until every in-flight delivery has finished and been logged.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(h model.Webhook, event string, body []byte) {
	// Deliveries outlive the triggering request, so they get their own
	// deadline instead of the caller's context.
	ctx, cancel := context.WithTimeout(context.Background(), d.client.Timeout)
	defer cancel()

	entry := model.WebhookLog{
		ID:        uuid.NewString(),
		WebhookID: h.ID,
		Event:     event,
		Payload:   string(body),
		CreatedAt: d.now().UTC(),
	}

	start := time.Now()
	statusCode, err := d.post(ctx, h, body)
	entry.ResponseTime = time.Since(start).Milliseconds()
	entry.StatusCode = statusCode

	switch {
	case err != nil:
		entry.ErrorMessage = err.Error()
		slog.Warn("webhook delivery failed", "webhook", h.ID, "event", event, "error", err)
	case statusCode < 200 || statusCode > 299:
		entry.ErrorMessage = http.StatusText(statusCode)
		slog.Warn("webhook delivery rejected", "webhook", h.ID, "event", event, "status", statusCode)
	default:
		entry.Success = true
	}

	d.appendLog(entry)
}

func (d *Dispatcher) post(ctx context.Context, h model.Webhook, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, "sha256="+Sign(h.Secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

func (d *Dispatcher) appendLog(entry model.WebhookLog) {
	d.logMu.Lock()
	defer d.logMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logs, err := store.LoadList[model.WebhookLog](ctx, d.store, store.KeyWebhookLogs)
	if err != nil {
		slog.Error("webhook log load failed", "error", err)
		return
	}

	ring := newLogRing(d.logCap, logs)
	ring.Push(entry)

	if err := store.SaveList(ctx, d.store, store.KeyWebhookLogs, ring.Snapshot()); err != nil {
		slog.Error("webhook log save failed", "error", err)
	}
}

// Sign computes the hex HMAC-SHA256 of body under secret, the value carried
// in the X-Webhook-Signature header after the "sha256=" prefix.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature is the receiver-side check, exported for consumers and
// tests: constant-time comparison against the expected signature.
func VerifySignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte("sha256="+Sign(secret, body)), []byte(signature))
}

func subscribed(h model.Webhook, event string) bool {
	for _, e := range h.Events {
		if e == event {
			return true
		}
	}
	return false
}
