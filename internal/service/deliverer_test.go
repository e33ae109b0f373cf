package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/payment-engine/internal/domain"
	"github.com/kursadbilgin/payment-engine/internal/sender"
)

type scriptedResponse struct {
	resp *sender.Response
	err  error
}

type fakeSender struct {
	mu        sync.Mutex
	responses []scriptedResponse
	requests  []sender.Request
}

func (f *fakeSender) Send(ctx context.Context, req sender.Request) (*sender.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	idx := len(f.requests) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	scripted := f.responses[idx]
	return scripted.resp, scripted.err
}

type fakeDeliveryRepo struct {
	mu         sync.Mutex
	deliveries []domain.WebhookDelivery
	err        error
}

func (f *fakeDeliveryRepo) Create(ctx context.Context, d *domain.WebhookDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deliveries = append(f.deliveries, *d)
	return nil
}

func (f *fakeDeliveryRepo) ListByWebhook(ctx context.Context, storeID, webhookID string, limit int) ([]domain.WebhookDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.WebhookDelivery
	for _, d := range f.deliveries {
		if d.StoreID == storeID && d.WebhookID == webhookID {
			out = append(out, d)
		}
	}
	return out, nil
}

func newTestDeliverer(t *testing.T, webhooks *fakeWebhookRepo, deliveries *fakeDeliveryRepo, httpSender sender.Sender) (*Deliverer, *[]time.Duration) {
	t.Helper()

	d, err := NewDeliverer(webhooks, deliveries, httpSender, nil)
	if err != nil {
		t.Fatalf("NewDeliverer() error = %v", err)
	}

	var sleeps []time.Duration
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		sleeps = append(sleeps, dur)
		return nil
	}
	return d, &sleeps
}

func ok200() scriptedResponse {
	return scriptedResponse{resp: &sender.Response{StatusCode: 200, Body: "ok", Duration: 20 * time.Millisecond}}
}

func fail500() scriptedResponse {
	return scriptedResponse{
		resp: &sender.Response{StatusCode: 500, Body: "boom", Duration: 20 * time.Millisecond},
		err:  &sender.DeliveryError{StatusCode: 500, Message: "endpoint returned status 500", Transient: true},
	}
}

func fail400() scriptedResponse {
	return scriptedResponse{
		resp: &sender.Response{StatusCode: 400, Body: "bad payload", Duration: 20 * time.Millisecond},
		err:  &sender.DeliveryError{StatusCode: 400, Message: "endpoint returned status 400", Transient: false},
	}
}

func TestDeliverSuccessFirstAttempt(t *testing.T) {
	t.Parallel()

	webhook := testWebhook("wh-1", "store-1", "*")
	webhooks := newFakeWebhookRepo(webhook)
	deliveries := &fakeDeliveryRepo{}
	httpSender := &fakeSender{responses: []scriptedResponse{ok200()}}

	d, sleeps := newTestDeliverer(t, webhooks, deliveries, httpSender)

	result, err := d.Deliver(context.Background(), webhook, "evt-1", domain.EventPaymentCaptured, []byte(`{}`))
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if !result.Success || result.Attempts != 1 {
		t.Errorf("result = %+v, want success on attempt 1", result)
	}
	if len(deliveries.deliveries) != 1 {
		t.Errorf("delivery rows = %d, want 1", len(deliveries.deliveries))
	}
	if len(webhooks.successes) != 1 || len(webhooks.failures) != 0 {
		t.Errorf("accounting: successes=%d failures=%d, want 1/0", len(webhooks.successes), len(webhooks.failures))
	}
	if len(*sleeps) != 0 {
		t.Errorf("slept %d times, want 0", len(*sleeps))
	}
}

func TestDeliverRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	webhook := testWebhook("wh-1", "store-1", "*")
	webhooks := newFakeWebhookRepo(webhook)
	deliveries := &fakeDeliveryRepo{}
	httpSender := &fakeSender{responses: []scriptedResponse{fail500(), fail500(), fail500()}}

	d, sleeps := newTestDeliverer(t, webhooks, deliveries, httpSender)

	result, err := d.Deliver(context.Background(), webhook, "evt-1", domain.EventPaymentCaptured, []byte(`{}`))
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if result.Success {
		t.Error("result.Success = true, want false")
	}
	if result.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", result.Attempts)
	}
	if len(deliveries.deliveries) != 3 {
		t.Errorf("delivery rows = %d, want one per attempt (3)", len(deliveries.deliveries))
	}
	for i, row := range deliveries.deliveries {
		if row.AttemptNumber != i+1 {
			t.Errorf("row %d attemptNumber = %d, want %d", i, row.AttemptNumber, i+1)
		}
		if row.Success {
			t.Errorf("row %d success = true, want false", i)
		}
	}

	want := []time.Duration{time.Second, 5 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("slept %v, want %v", *sleeps, want)
	}
	for i := range want {
		if (*sleeps)[i] != want[i] {
			t.Errorf("backoff[%d] = %v, want %v", i, (*sleeps)[i], want[i])
		}
	}

	if len(webhooks.failures) != 1 {
		t.Errorf("RecordFailure calls = %d, want 1 (once per job, not per attempt)", len(webhooks.failures))
	}
}

func TestDeliverPermanentFailureNoRetry(t *testing.T) {
	t.Parallel()

	webhook := testWebhook("wh-1", "store-1", "*")
	webhooks := newFakeWebhookRepo(webhook)
	deliveries := &fakeDeliveryRepo{}
	httpSender := &fakeSender{responses: []scriptedResponse{fail400()}}

	d, sleeps := newTestDeliverer(t, webhooks, deliveries, httpSender)

	result, err := d.Deliver(context.Background(), webhook, "evt-1", domain.EventPaymentCaptured, []byte(`{}`))
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if result.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 for permanent failure", result.Attempts)
	}
	if len(*sleeps) != 0 {
		t.Errorf("slept %d times, want 0", len(*sleeps))
	}
	if len(webhooks.failures) != 1 {
		t.Errorf("RecordFailure calls = %d, want 1", len(webhooks.failures))
	}
}

func TestDeliverRecoveryResetsFailureCount(t *testing.T) {
	t.Parallel()

	webhook := testWebhook("wh-1", "store-1", "*")
	webhook.FailureCount = 7
	webhooks := newFakeWebhookRepo(webhook)
	deliveries := &fakeDeliveryRepo{}
	httpSender := &fakeSender{responses: []scriptedResponse{ok200()}}

	d, _ := newTestDeliverer(t, webhooks, deliveries, httpSender)

	if _, err := d.Deliver(context.Background(), webhook, "evt-1", domain.EventPaymentCaptured, []byte(`{}`)); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	updated, err := webhooks.GetByID(context.Background(), "store-1", "wh-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if updated.FailureCount != 0 {
		t.Errorf("failureCount = %d, want 0 after success", updated.FailureCount)
	}
}

func TestDeliverCircuitBreakerDisablesWebhook(t *testing.T) {
	t.Parallel()

	webhook := testWebhook("wh-1", "store-1", "*")
	webhook.FailureCount = domain.WebhookMaxConsecutiveFailures - 1
	webhooks := newFakeWebhookRepo(webhook)
	deliveries := &fakeDeliveryRepo{}
	httpSender := &fakeSender{responses: []scriptedResponse{fail400()}}

	d, _ := newTestDeliverer(t, webhooks, deliveries, httpSender)

	if _, err := d.Deliver(context.Background(), webhook, "evt-1", domain.EventPaymentCaptured, []byte(`{}`)); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	updated, err := webhooks.GetByID(context.Background(), "store-1", "wh-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if updated.IsActive {
		t.Error("webhook still active after reaching the failure threshold")
	}
	if updated.FailureCount != domain.WebhookMaxConsecutiveFailures {
		t.Errorf("failureCount = %d, want %d", updated.FailureCount, domain.WebhookMaxConsecutiveFailures)
	}
}

func TestDeliverContextCancellationStopsRetries(t *testing.T) {
	t.Parallel()

	webhook := testWebhook("wh-1", "store-1", "*")
	webhooks := newFakeWebhookRepo(webhook)
	deliveries := &fakeDeliveryRepo{}
	httpSender := &fakeSender{responses: []scriptedResponse{fail500()}}

	d, err := NewDeliverer(webhooks, deliveries, httpSender, nil)
	if err != nil {
		t.Fatalf("NewDeliverer() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		cancel()
		return ctx.Err()
	}

	if _, err := d.Deliver(ctx, webhook, "evt-1", domain.EventPaymentCaptured, []byte(`{}`)); err == nil {
		t.Fatal("Deliver() error = nil, want context cancellation error")
	}
}
