package delivery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"opspulse_backend/platform/logger"
)

type fakeDeliveryRepo struct {
	mu        sync.Mutex
	endpoints map[uuid.UUID]*Endpoint
	records   []RecordParams
	suspended []uuid.UUID
}

func newFakeDeliveryRepo(endpoints ...Endpoint) *fakeDeliveryRepo {
	repo := &fakeDeliveryRepo{endpoints: make(map[uuid.UUID]*Endpoint)}
	for _, ep := range endpoints {
		copied := ep
		repo.endpoints[ep.ID] = &copied
	}
	return repo
}

var _ Repository = (*fakeDeliveryRepo)(nil)

func (f *fakeDeliveryRepo) ListActiveSubscribed(_ context.Context, tenantID uuid.UUID, event string) ([]Endpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Endpoint
	for _, ep := range f.endpoints {
		if ep.TenantID != tenantID || !ep.IsActive {
			continue
		}
		for _, sub := range ep.SubscribedEvents {
			if sub == event {
				out = append(out, *ep)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeDeliveryRepo) ListEndpoints(_ context.Context, tenantID uuid.UUID) ([]Endpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Endpoint
	for _, ep := range f.endpoints {
		if ep.TenantID == tenantID {
			out = append(out, *ep)
		}
	}
	return out, nil
}

func (f *fakeDeliveryRepo) ListRecords(_ context.Context, _, endpointID uuid.UUID, _ int) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Record
	for i, rec := range f.records {
		if rec.EndpointID == endpointID {
			out = append(out, Record{
				ID:         int64(i + 1),
				EndpointID: rec.EndpointID,
				Event:      rec.Event,
				StatusCode: rec.StatusCode,
				Success:    rec.Success,
				Attempt:    rec.Attempt,
				BodyHash:   rec.BodyHash,
			})
		}
	}
	return out, nil
}

func (f *fakeDeliveryRepo) Activate(_ context.Context, tenantID, id uuid.UUID) (*Endpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ep := f.endpoints[id]
	ep.IsActive = true
	ep.FailureCount = 0
	copied := *ep
	return &copied, nil
}

func (f *fakeDeliveryRepo) RecordAttempt(_ context.Context, params RecordParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, params)
	return nil
}

func (f *fakeDeliveryRepo) MarkSuccess(_ context.Context, endpointID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ep, ok := f.endpoints[endpointID]; ok {
		ep.FailureCount = 0
	}
	return nil
}

func (f *fakeDeliveryRepo) MarkFailure(_ context.Context, endpointID uuid.UUID, threshold int) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ep, ok := f.endpoints[endpointID]
	if !ok {
		return 0, false, nil
	}
	ep.FailureCount++
	tripped := false
	if ep.FailureCount >= threshold {
		if ep.IsActive && ep.FailureCount == threshold {
			tripped = true
			f.suspended = append(f.suspended, endpointID)
		}
		ep.IsActive = false
	}
	return ep.FailureCount, tripped, nil
}

func (f *fakeDeliveryRepo) failureCount(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.endpoints[id].FailureCount
}

func (f *fakeDeliveryRepo) active(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.endpoints[id].IsActive
}

type deliveryCfg struct {
	maxAttempts int
	threshold   int
}

func (c deliveryCfg) GetDeliveryMaxAttempts() int { return c.maxAttempts }
func (c deliveryCfg) GetDeliveryBackoffBase() time.Duration {
	return time.Millisecond
}
func (c deliveryCfg) GetDeliveryAttemptTimeout() time.Duration {
	return 2 * time.Second
}
func (c deliveryCfg) GetDeliverySuspendThreshold() int { return c.threshold }

func testEndpoint(tenantID uuid.UUID, url, secret string, events ...string) Endpoint {
	return Endpoint{
		ID:               uuid.New(),
		TenantID:         tenantID,
		URL:              url,
		Secret:           secret,
		SubscribedEvents: events,
		IsActive:         true,
	}
}

func TestDispatchSync_SignsAndDeliversExactBytes(t *testing.T) {
	tenantID := uuid.New()
	var gotBody []byte
	var gotEvent, gotSig, gotType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotEvent = r.Header.Get("X-OpsPulse-Event")
		gotSig = r.Header.Get("X-OpsPulse-Signature")
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ep := testEndpoint(tenantID, server.URL, "topsecret", "insights.insight.created")
	repo := newFakeDeliveryRepo(ep)
	d := NewDispatcher(repo, logger.New("test"), deliveryCfg{maxAttempts: 3, threshold: 10})

	payload := map[string]string{"kind": "stalled_deals"}
	if err := d.DispatchSync(context.Background(), tenantID, "insights.insight.created", payload); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if gotEvent != "insights.insight.created" {
		t.Fatalf("unexpected event header %q", gotEvent)
	}
	if gotType != "application/json" {
		t.Fatalf("unexpected content type %q", gotType)
	}
	expected, _ := json.Marshal(payload)
	if string(gotBody) != string(expected) {
		t.Fatalf("body mismatch: got %s want %s", gotBody, expected)
	}
	if !VerifySignature("topsecret", gotBody, gotSig) {
		t.Fatal("signature does not verify against the received bytes")
	}
	if VerifySignature("wrongsecret", gotBody, gotSig) {
		t.Fatal("signature verified with the wrong secret")
	}

	if len(repo.records) != 1 || !repo.records[0].Success || repo.records[0].Attempt != 1 {
		t.Fatalf("unexpected records %+v", repo.records)
	}
}

func TestDispatchSync_RetriesUntilSuccess(t *testing.T) {
	tenantID := uuid.New()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	ep := testEndpoint(tenantID, server.URL, "s", "actions.action.executed")
	repo := newFakeDeliveryRepo(ep)
	d := NewDispatcher(repo, logger.New("test"), deliveryCfg{maxAttempts: 3, threshold: 10})

	if err := d.DispatchSync(context.Background(), tenantID, "actions.action.executed", testPayload()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	if len(repo.records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(repo.records))
	}
	for i, rec := range repo.records {
		if rec.Attempt != i+1 {
			t.Fatalf("record %d has attempt %d", i, rec.Attempt)
		}
		if rec.Success != (i == 2) {
			t.Fatalf("record %d success=%v", i, rec.Success)
		}
	}
	if repo.failureCount(ep.ID) != 0 {
		t.Fatal("successful delivery must not count as a failure")
	}
}

func testPayload() map[string]string {
	return map[string]string{"ok": "yes"}
}

func TestDispatchSync_ExhaustedAttemptsCountOneFailure(t *testing.T) {
	tenantID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ep := testEndpoint(tenantID, server.URL, "s", "actions.action.failed")
	repo := newFakeDeliveryRepo(ep)
	d := NewDispatcher(repo, logger.New("test"), deliveryCfg{maxAttempts: 3, threshold: 10})

	if err := d.DispatchSync(context.Background(), tenantID, "actions.action.failed", testPayload()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(repo.records) != 3 {
		t.Fatalf("expected 3 attempt records, got %d", len(repo.records))
	}
	if got := repo.failureCount(ep.ID); got != 1 {
		t.Fatalf("a full exhausted sequence is one consecutive failure, got %d", got)
	}
	if !repo.active(ep.ID) {
		t.Fatal("endpoint must stay active below the threshold")
	}
}

func TestDispatchSync_CircuitBreakerSuspendsAtThreshold(t *testing.T) {
	tenantID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ep := testEndpoint(tenantID, server.URL, "s", "insights.insight.resolved")
	repo := newFakeDeliveryRepo(ep)
	d := NewDispatcher(repo, logger.New("test"), deliveryCfg{maxAttempts: 2, threshold: 3})

	for i := 0; i < 3; i++ {
		if err := d.DispatchSync(context.Background(), tenantID, "insights.insight.resolved", testPayload()); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}

	if repo.active(ep.ID) {
		t.Fatal("endpoint should be suspended at the threshold")
	}
	if len(repo.suspended) != 1 {
		t.Fatalf("breaker should trip exactly once, got %d", len(repo.suspended))
	}

	// Suspended endpoints receive no further traffic.
	before := len(repo.records)
	if err := d.DispatchSync(context.Background(), tenantID, "insights.insight.resolved", testPayload()); err != nil {
		t.Fatalf("dispatch after suspend: %v", err)
	}
	if len(repo.records) != before {
		t.Fatal("suspended endpoint must not be attempted")
	}
}

func TestDispatchSync_SuccessResetsConsecutiveFailures(t *testing.T) {
	tenantID := uuid.New()
	var fail atomic.Bool
	fail.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ep := testEndpoint(tenantID, server.URL, "s", "actions.action.approved")
	repo := newFakeDeliveryRepo(ep)
	d := NewDispatcher(repo, logger.New("test"), deliveryCfg{maxAttempts: 2, threshold: 5})

	// Two exhausted sequences, then one success, then two more failures.
	// The breaker must not trip because the success reset the streak.
	for i := 0; i < 2; i++ {
		if err := d.DispatchSync(context.Background(), tenantID, "actions.action.approved", testPayload()); err != nil {
			t.Fatalf("failing dispatch: %v", err)
		}
	}
	fail.Store(false)
	if err := d.DispatchSync(context.Background(), tenantID, "actions.action.approved", testPayload()); err != nil {
		t.Fatalf("succeeding dispatch: %v", err)
	}
	if got := repo.failureCount(ep.ID); got != 0 {
		t.Fatalf("success must reset the counter, got %d", got)
	}
	fail.Store(true)
	for i := 0; i < 2; i++ {
		if err := d.DispatchSync(context.Background(), tenantID, "actions.action.approved", testPayload()); err != nil {
			t.Fatalf("failing dispatch: %v", err)
		}
	}

	if !repo.active(ep.ID) {
		t.Fatal("endpoint should survive non-consecutive failures")
	}
	if got := repo.failureCount(ep.ID); got != 2 {
		t.Fatalf("expected 2 consecutive failures, got %d", got)
	}
}

func TestDispatchSync_OnlySubscribedEndpointsReceive(t *testing.T) {
	tenantID := uuid.New()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	subscribed := testEndpoint(tenantID, server.URL, "a", "insights.insight.created")
	other := testEndpoint(tenantID, server.URL, "b", "actions.action.executed")
	foreign := testEndpoint(uuid.New(), server.URL, "c", "insights.insight.created")
	repo := newFakeDeliveryRepo(subscribed, other, foreign)
	d := NewDispatcher(repo, logger.New("test"), deliveryCfg{maxAttempts: 3, threshold: 10})

	if err := d.DispatchSync(context.Background(), tenantID, "insights.insight.created", testPayload()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected exactly the subscribed tenant endpoint, got %d hits", hits.Load())
	}
}

func TestDispatchSync_EndpointDeletedMidDispatchIsSkipped(t *testing.T) {
	tenantID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ep := testEndpoint(tenantID, server.URL, "s", "actions.action.undone")
	repo := newFakeDeliveryRepo(ep)
	d := NewDispatcher(repo, logger.New("test"), deliveryCfg{maxAttempts: 1, threshold: 3})

	// Simulate deletion after endpoint resolution but before bookkeeping.
	repo.mu.Lock()
	delete(repo.endpoints, ep.ID)
	repo.mu.Unlock()

	if err := d.DispatchSync(context.Background(), tenantID, "actions.action.undone", testPayload()); err != nil {
		t.Fatalf("dispatch should not surface the vanished endpoint: %v", err)
	}
}
