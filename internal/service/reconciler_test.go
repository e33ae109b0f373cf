package service

import (
	"context"
	"testing"
	"time"

	"github.com/kursadbilgin/payment-engine/internal/domain"
)

func TestReconcilerRunsInitialScan(t *testing.T) {
	t.Parallel()

	svc, store, audits, _ := newTestPaymentService(t)

	now := time.Now().UTC()
	svc.now = func() time.Time { return now }

	stuck := createTestAttempt(t, svc, "store-1")
	store.mu.Lock()
	store.attempts[stuck.ID].Status = domain.StatusAuthorizing
	store.attempts[stuck.ID].CreatedAt = now.Add(-30 * time.Minute)
	store.mu.Unlock()

	r, err := NewReconciler(svc, time.Hour, 15, nil)
	if err != nil {
		t.Fatalf("NewReconciler() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(audits.byAction(domain.AuditReconciliation)) == 0 {
		select {
		case <-deadline:
			t.Fatal("initial reconciliation scan never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

func TestReconcilerDefaults(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestPaymentService(t)

	r, err := NewReconciler(svc, 0, 0, nil)
	if err != nil {
		t.Fatalf("NewReconciler() error = %v", err)
	}
	if r.interval != defaultReconcileInterval {
		t.Errorf("interval = %v, want %v", r.interval, defaultReconcileInterval)
	}
	if r.timeoutMinutes != defaultStuckTimeoutMinutes {
		t.Errorf("timeoutMinutes = %d, want %d", r.timeoutMinutes, defaultStuckTimeoutMinutes)
	}
}
