package delivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"opspulse_backend/internal/telemetry"
	"opspulse_backend/platform/config"
	"opspulse_backend/platform/logger"
)

const (
	headerEvent     = "X-OpsPulse-Event"
	headerSignature = "X-OpsPulse-Signature"
)

// Dispatcher fans a domain event out to every subscribed endpoint. Endpoints
// are independent: one slow or failing endpoint never delays another.
type Dispatcher struct {
	repo   Repository
	log    *logger.Logger
	client *http.Client
	wg     sync.WaitGroup

	maxAttempts      int
	suspendThreshold int
	backoffBase      time.Duration
	attemptTimeout   time.Duration
}

// NewDispatcher creates a dispatcher from the delivery configuration.
func NewDispatcher(repo Repository, log *logger.Logger, cfg config.DeliveryConfig) *Dispatcher {
	return &Dispatcher{
		repo:             repo,
		log:              log,
		client:           &http.Client{},
		maxAttempts:      cfg.GetDeliveryMaxAttempts(),
		suspendThreshold: cfg.GetDeliverySuspendThreshold(),
		backoffBase:      cfg.GetDeliveryBackoffBase(),
		attemptTimeout:   cfg.GetDeliveryAttemptTimeout(),
	}
}

// Dispatch serializes the payload and delivers it in the background. The
// caller is never blocked on endpoint latency.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID uuid.UUID, event string, payload any) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.DispatchSync(context.WithoutCancel(ctx), tenantID, event, payload); err != nil {
			d.log.Error("webhook dispatch failed", "event", event, "error", err)
		}
	}()
}

// Wait blocks until all background dispatches have drained.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// DispatchSync delivers the event to all subscribed endpoints and waits for
// every endpoint to finish its attempt sequence.
func (d *Dispatcher) DispatchSync(ctx context.Context, tenantID uuid.UUID, event string, payload any) error {
	// Serialize once so every endpoint signs and receives identical bytes.
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal delivery payload: %w", err)
	}

	endpoints, err := d.repo.ListActiveSubscribed(ctx, tenantID, event)
	if err != nil {
		return fmt.Errorf("resolve delivery endpoints: %w", err)
	}
	if len(endpoints) == 0 {
		return nil
	}

	sum := sha256.Sum256(body)
	bodyHash := hex.EncodeToString(sum[:])

	g := new(errgroup.Group)
	for _, ep := range endpoints {
		g.Go(func() error {
			d.deliver(ctx, ep, event, body, bodyHash)
			return nil
		})
	}
	return g.Wait()
}

// deliver runs the sequential attempt loop for a single endpoint.
func (d *Dispatcher) deliver(ctx context.Context, ep Endpoint, event string, body []byte, bodyHash string) {
	signature := Sign(ep.Secret, body)

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		status, duration, err := d.attempt(ctx, ep, event, body, signature)

		rec := RecordParams{
			EndpointID: ep.ID,
			Event:      event,
			StatusCode: status,
			Success:    err == nil,
			Attempt:    attempt,
			DurationMs: duration.Milliseconds(),
			BodyHash:   bodyHash,
		}
		if recErr := d.repo.RecordAttempt(ctx, rec); recErr != nil {
			d.log.DatabaseError("delivery.record_attempt", recErr)
		}
		telemetry.DeliveryDuration.Observe(duration.Seconds())

		if err == nil {
			telemetry.DeliveryAttemptsTotal.WithLabelValues("success").Inc()
			if markErr := d.repo.MarkSuccess(ctx, ep.ID); markErr != nil {
				d.log.DatabaseError("delivery.mark_success", markErr)
			}
			return
		}

		telemetry.DeliveryAttemptsTotal.WithLabelValues("failure").Inc()
		d.log.DeliveryFailure(ep.ID.String(), event, attempt, err)

		if attempt < d.maxAttempts {
			backoff := d.backoffBase * time.Duration(1<<attempt)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
		}
	}

	count, suspended, err := d.repo.MarkFailure(ctx, ep.ID, d.suspendThreshold)
	if err != nil {
		d.log.DatabaseError("delivery.mark_failure", err)
		return
	}
	if suspended {
		telemetry.EndpointsSuspendedTotal.Inc()
		d.log.EndpointSuspended(ep.ID.String(), count)
	}
}

// attempt performs one signed POST within the per-attempt timeout. A non-2xx
// status counts as a failure.
func (d *Dispatcher) attempt(ctx context.Context, ep Endpoint, event string, body []byte, signature string) (*int, time.Duration, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerEvent, event)
	req.Header.Set(headerSignature, signature)

	start := time.Now()
	resp, err := d.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return nil, duration, fmt.Errorf("post to endpoint: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	status := resp.StatusCode
	if status < 200 || status > 299 {
		return &status, duration, fmt.Errorf("endpoint returned status %d", status)
	}
	return &status, duration, nil
}

// Sign computes the hex HMAC-SHA256 signature over the exact request body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature against the body in constant
// time. Exported for receiver implementations and tests.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(expected, mac.Sum(nil))
}
