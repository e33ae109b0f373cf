package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/payment-engine/internal/domain"
	"github.com/kursadbilgin/payment-engine/internal/observability"
	"github.com/kursadbilgin/payment-engine/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultStuckTimeoutMinutes = 15

// PaymentService owns the payment attempt state machine. Status changes and
// their ledger rows commit atomically through the repository; audit entries
// are written after commit and never roll a payment back.
type PaymentService struct {
	payments     repository.PaymentRepository
	transactions repository.TransactionRepository
	audits       repository.AuditRepository
	dispatcher   EventDispatcher
	logger       *zap.Logger
	metrics      *observability.Metrics
	now          func() time.Time
}

type CreateAttemptInput struct {
	StoreID        string
	OrderID        string
	Provider       string
	Amount         int64
	Currency       string
	IdempotencyKey *string
}

type FailAuthorizationInput struct {
	ErrorCode         *string
	ErrorMessage      *string
	ScheduleRetry     bool
	RetryDelayMinutes int
}

type CaptureInput struct {
	Amount            *int64
	ProviderReference *string
}

type RefundInput struct {
	Amount            int64
	Reason            *string
	ProviderReference *string
}

type VoidInput struct {
	Reason            *string
	ProviderReference *string
}

func NewPaymentService(
	payments repository.PaymentRepository,
	transactions repository.TransactionRepository,
	audits repository.AuditRepository,
	dispatcher EventDispatcher,
	logger *zap.Logger,
) (*PaymentService, error) {
	if payments == nil {
		return nil, fmt.Errorf("payment repository is required")
	}
	if transactions == nil {
		return nil, fmt.Errorf("transaction repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PaymentService{
		payments:     payments,
		transactions: transactions,
		audits:       audits,
		dispatcher:   dispatcher,
		logger:       logger,
		now:          time.Now,
	}, nil
}

func (s *PaymentService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *PaymentService) CreateAttempt(ctx context.Context, input CreateAttemptInput) (*domain.PaymentAttempt, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	key := normalizeOptionalString(input.IdempotencyKey)
	if key != nil {
		existing, err := s.payments.GetByIdempotencyKey(ctx, *key)
		if err == nil {
			if existing.StoreID != strings.TrimSpace(input.StoreID) {
				return nil, domain.ErrIdempotencyKeyConflict
			}
			return existing, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	attempt := &domain.PaymentAttempt{
		ID:             uuid.NewString(),
		StoreID:        strings.TrimSpace(input.StoreID),
		OrderID:        strings.TrimSpace(input.OrderID),
		Provider:       strings.TrimSpace(input.Provider),
		Amount:         input.Amount,
		Currency:       strings.ToUpper(strings.TrimSpace(input.Currency)),
		Status:         domain.StatusInitiated,
		AttemptCount:   1,
		IdempotencyKey: key,
	}
	if err := attempt.Validate(); err != nil {
		return nil, err
	}

	if err := s.payments.Create(ctx, attempt); err != nil {
		existing, resolved, resolveErr := s.resolveIdempotencyConflict(ctx, err, attempt.StoreID, key)
		if resolveErr != nil {
			return nil, resolveErr
		}
		if resolved {
			return existing, nil
		}
		return nil, err
	}

	s.writeAudit(ctx, attempt.StoreID, attempt.ID, domain.AuditCreate, nil, auditValue(map[string]any{
		"status":   attempt.Status,
		"amount":   attempt.Amount,
		"currency": attempt.Currency,
	}))

	return attempt, nil
}

func (s *PaymentService) StartAuthorization(ctx context.Context, storeID, attemptID string) (*domain.PaymentAttempt, error) {
	attempt, err := s.getAttempt(ctx, storeID, attemptID)
	if err != nil {
		return nil, err
	}

	if !attempt.Status.CanTransitionTo(domain.StatusAuthorizing) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, attempt.Status, domain.StatusAuthorizing)
	}

	err = s.payments.Transition(ctx, repository.TransitionParams{
		AttemptID:  attempt.ID,
		StoreID:    attempt.StoreID,
		FromStatus: attempt.Status,
		ToStatus:   domain.StatusAuthorizing,
	})
	if err != nil {
		return nil, transitionError(err, attempt.Status, domain.StatusAuthorizing)
	}

	s.recordTransition(ctx, attempt, domain.StatusAuthorizing, nil)

	return s.getAttempt(ctx, storeID, attemptID)
}

func (s *PaymentService) CompleteAuthorization(ctx context.Context, storeID, attemptID string, providerReference *string) (*domain.PaymentAttempt, error) {
	attempt, err := s.getAttempt(ctx, storeID, attemptID)
	if err != nil {
		return nil, err
	}

	if attempt.Status != domain.StatusAuthorizing {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, attempt.Status, domain.StatusAuthorized)
	}

	updates := map[string]any{
		"last_error_code":    nil,
		"last_error_message": nil,
	}
	providerReference = normalizeOptionalString(providerReference)
	if providerReference != nil {
		updates["provider_reference"] = *providerReference
	}

	err = s.payments.Transition(ctx, repository.TransitionParams{
		AttemptID:  attempt.ID,
		StoreID:    attempt.StoreID,
		FromStatus: domain.StatusAuthorizing,
		ToStatus:   domain.StatusAuthorized,
		Updates:    updates,
		Ledger:     s.newTransaction(attempt, domain.TransactionAuth, attempt.Amount, providerReference, nil),
	})
	if err != nil {
		return nil, transitionError(err, attempt.Status, domain.StatusAuthorized)
	}

	s.recordTransition(ctx, attempt, domain.StatusAuthorized, map[string]any{"authorizedAmount": attempt.Amount})

	return s.getAttempt(ctx, storeID, attemptID)
}

func (s *PaymentService) FailAuthorization(ctx context.Context, storeID, attemptID string, input FailAuthorizationInput) (*domain.PaymentAttempt, error) {
	attempt, err := s.getAttempt(ctx, storeID, attemptID)
	if err != nil {
		return nil, err
	}

	if !attempt.Status.CanTransitionTo(domain.StatusFailed) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, attempt.Status, domain.StatusFailed)
	}

	updates := map[string]any{
		"attempt_count":      attempt.AttemptCount + 1,
		"last_error_code":    normalizeOptionalString(input.ErrorCode),
		"last_error_message": normalizeOptionalString(input.ErrorMessage),
	}
	if input.ScheduleRetry && input.RetryDelayMinutes > 0 {
		updates["next_retry_at"] = s.now().UTC().Add(time.Duration(input.RetryDelayMinutes) * time.Minute)
	}

	err = s.payments.Transition(ctx, repository.TransitionParams{
		AttemptID:  attempt.ID,
		StoreID:    attempt.StoreID,
		FromStatus: attempt.Status,
		ToStatus:   domain.StatusFailed,
		Updates:    updates,
	})
	if err != nil {
		return nil, transitionError(err, attempt.Status, domain.StatusFailed)
	}

	s.recordTransition(ctx, attempt, domain.StatusFailed, map[string]any{
		"errorCode": derefOrEmpty(input.ErrorCode),
	})
	s.emitEvent(ctx, domain.EventPaymentFailed, attempt, domain.StatusFailed, map[string]any{
		"errorCode":    derefOrEmpty(input.ErrorCode),
		"errorMessage": derefOrEmpty(input.ErrorMessage),
	})

	return s.getAttempt(ctx, storeID, attemptID)
}

func (s *PaymentService) Capture(ctx context.Context, storeID, attemptID string, input CaptureInput) (*domain.PaymentAttempt, error) {
	attempt, err := s.getAttempt(ctx, storeID, attemptID)
	if err != nil {
		return nil, err
	}

	if attempt.Status == domain.StatusCaptured {
		return nil, domain.ErrAlreadyCaptured
	}
	if !attempt.Status.CanTransitionTo(domain.StatusCaptured) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, attempt.Status, domain.StatusCaptured)
	}

	authorized, err := s.transactions.SumByType(ctx, storeID, attemptID, domain.TransactionAuth)
	if err != nil {
		return nil, err
	}

	amount := authorized
	if input.Amount != nil {
		amount = *input.Amount
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: capture amount must be positive (got %d)", domain.ErrValidation, amount)
	}
	if amount > authorized {
		return nil, domain.ErrCaptureExceedsAuthorization
	}

	updates := map[string]any{}
	providerReference := normalizeOptionalString(input.ProviderReference)
	if providerReference != nil {
		updates["provider_reference"] = *providerReference
	}

	err = s.payments.Transition(ctx, repository.TransitionParams{
		AttemptID:  attempt.ID,
		StoreID:    attempt.StoreID,
		FromStatus: domain.StatusAuthorized,
		ToStatus:   domain.StatusCaptured,
		Updates:    updates,
		Ledger:     s.newTransaction(attempt, domain.TransactionCapture, amount, providerReference, nil),
	})
	if err != nil {
		return nil, transitionError(err, attempt.Status, domain.StatusCaptured)
	}

	if s.metrics != nil {
		s.metrics.IncPaymentTransition(domain.StatusCaptured.String())
		s.metrics.AddLedgerAmount(domain.TransactionCapture.String(), amount)
	}

	s.writeAudit(ctx, attempt.StoreID, attempt.ID, domain.AuditCapture,
		auditValue(map[string]any{"status": attempt.Status}),
		auditValue(map[string]any{"status": domain.StatusCaptured, "capturedAmount": amount}),
	)
	s.emitEvent(ctx, domain.EventPaymentCaptured, attempt, domain.StatusCaptured, map[string]any{
		"capturedAmount": amount,
	})

	return s.getAttempt(ctx, storeID, attemptID)
}

func (s *PaymentService) Refund(ctx context.Context, storeID, attemptID string, input RefundInput) (*domain.PaymentTransaction, error) {
	attempt, err := s.getAttempt(ctx, storeID, attemptID)
	if err != nil {
		return nil, err
	}

	if input.Amount <= 0 {
		return nil, fmt.Errorf("%w: refund amount must be positive (got %d)", domain.ErrValidation, input.Amount)
	}

	txn := s.newTransaction(attempt, domain.TransactionRefund, input.Amount,
		normalizeOptionalString(input.ProviderReference),
		normalizeOptionalString(input.Reason),
	)
	if err := s.payments.AppendRefund(ctx, txn); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.AddLedgerAmount(domain.TransactionRefund.String(), input.Amount)
	}

	s.writeAudit(ctx, attempt.StoreID, attempt.ID, domain.AuditRefund, nil,
		auditValue(map[string]any{"refundedAmount": input.Amount, "reason": derefOrEmpty(input.Reason)}),
	)
	s.emitEvent(ctx, domain.EventPaymentRefunded, attempt, attempt.Status, map[string]any{
		"refundedAmount": input.Amount,
		"reason":         derefOrEmpty(input.Reason),
	})

	return txn, nil
}

func (s *PaymentService) Void(ctx context.Context, storeID, attemptID string, input VoidInput) (*domain.PaymentAttempt, error) {
	attempt, err := s.getAttempt(ctx, storeID, attemptID)
	if err != nil {
		return nil, err
	}

	if !attempt.Status.CanTransitionTo(domain.StatusCanceled) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, attempt.Status, domain.StatusCanceled)
	}

	err = s.payments.Transition(ctx, repository.TransitionParams{
		AttemptID:  attempt.ID,
		StoreID:    attempt.StoreID,
		FromStatus: attempt.Status,
		ToStatus:   domain.StatusCanceled,
		Ledger: s.newTransaction(attempt, domain.TransactionVoid, attempt.Amount,
			normalizeOptionalString(input.ProviderReference),
			normalizeOptionalString(input.Reason),
		),
	})
	if err != nil {
		return nil, transitionError(err, attempt.Status, domain.StatusCanceled)
	}

	if s.metrics != nil {
		s.metrics.IncPaymentTransition(domain.StatusCanceled.String())
	}

	s.writeAudit(ctx, attempt.StoreID, attempt.ID, domain.AuditVoid,
		auditValue(map[string]any{"status": attempt.Status}),
		auditValue(map[string]any{"status": domain.StatusCanceled, "reason": derefOrEmpty(input.Reason)}),
	)
	s.emitEvent(ctx, domain.EventPaymentVoided, attempt, domain.StatusCanceled, map[string]any{
		"reason": derefOrEmpty(input.Reason),
	})

	return s.getAttempt(ctx, storeID, attemptID)
}

func (s *PaymentService) GetAttempt(ctx context.Context, storeID, attemptID string) (*domain.PaymentAttempt, error) {
	return s.getAttempt(ctx, storeID, attemptID)
}

func (s *PaymentService) GetAttemptsByOrder(ctx context.Context, storeID, orderID string) ([]domain.PaymentAttempt, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}
	return s.payments.GetByOrderID(ctx, strings.TrimSpace(storeID), strings.TrimSpace(orderID))
}

func (s *PaymentService) GetTransactions(ctx context.Context, storeID, attemptID string) ([]domain.PaymentTransaction, error) {
	if _, err := s.getAttempt(ctx, storeID, attemptID); err != nil {
		return nil, err
	}
	return s.transactions.GetByAttemptID(ctx, storeID, attemptID)
}

// GetRefundableAmount derives the remaining refundable balance from the
// ledger: SUM(CAPTURE) minus SUM(REFUND).
func (s *PaymentService) GetRefundableAmount(ctx context.Context, storeID, attemptID string) (int64, error) {
	if _, err := s.getAttempt(ctx, storeID, attemptID); err != nil {
		return 0, err
	}

	captured, err := s.transactions.SumByType(ctx, storeID, attemptID, domain.TransactionCapture)
	if err != nil {
		return 0, err
	}
	refunded, err := s.transactions.SumByType(ctx, storeID, attemptID, domain.TransactionRefund)
	if err != nil {
		return 0, err
	}

	return captured - refunded, nil
}

func (s *PaymentService) FindStuckAttempts(ctx context.Context, timeoutMinutes int) ([]domain.StuckAttempt, error) {
	if timeoutMinutes <= 0 {
		timeoutMinutes = defaultStuckTimeoutMinutes
	}

	now := s.now().UTC()
	cutoff := now.Add(-time.Duration(timeoutMinutes) * time.Minute)

	attempts, err := s.payments.FindStuck(ctx, domain.StatusAuthorizing, cutoff)
	if err != nil {
		return nil, err
	}

	stuck := make([]domain.StuckAttempt, 0, len(attempts))
	for i := range attempts {
		a := attempts[i]
		stuck = append(stuck, domain.StuckAttempt{
			ID:           a.ID,
			StoreID:      a.StoreID,
			OrderID:      a.OrderID,
			Status:       a.Status,
			CreatedAt:    a.CreatedAt,
			StuckMinutes: int(now.Sub(a.CreatedAt).Minutes()),
		})
	}

	return stuck, nil
}

func (s *PaymentService) RunReconciliation(ctx context.Context, timeoutMinutes int) (*domain.ReconciliationReport, error) {
	stuck, err := s.FindStuckAttempts(ctx, timeoutMinutes)
	if err != nil {
		return nil, err
	}

	report := &domain.ReconciliationReport{
		StuckAttempts: stuck,
		TotalStuck:    len(stuck),
		CheckedAt:     s.now().UTC(),
	}

	if s.metrics != nil {
		s.metrics.SetStuckAttempts(report.TotalStuck)
	}

	if report.TotalStuck == 0 {
		return report, nil
	}

	for i := range stuck {
		s.logger.Warn("payment attempt stuck in authorizing",
			zap.String("attemptId", stuck[i].ID),
			zap.String("storeId", stuck[i].StoreID),
			zap.String("orderId", stuck[i].OrderID),
			zap.Int("stuckMinutes", stuck[i].StuckMinutes),
		)
	}

	s.writeAudit(ctx, "", "reconciliation", domain.AuditReconciliation, nil,
		auditValue(map[string]any{"totalStuck": report.TotalStuck, "timeoutMinutes": timeoutMinutes}),
	)

	return report, nil
}

func (s *PaymentService) getAttempt(ctx context.Context, storeID, attemptID string) (*domain.PaymentAttempt, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(storeID) == "" {
		return nil, fmt.Errorf("%w: store id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(attemptID) == "" {
		return nil, fmt.Errorf("%w: attempt id is required", domain.ErrValidation)
	}
	return s.payments.GetByID(ctx, strings.TrimSpace(storeID), strings.TrimSpace(attemptID))
}

func (s *PaymentService) newTransaction(
	attempt *domain.PaymentAttempt,
	txType domain.TransactionType,
	amount int64,
	providerReference *string,
	reason *string,
) *domain.PaymentTransaction {
	return &domain.PaymentTransaction{
		ID:                uuid.NewString(),
		AttemptID:         attempt.ID,
		StoreID:           attempt.StoreID,
		Type:              txType,
		Amount:            amount,
		Currency:          attempt.Currency,
		ProviderReference: providerReference,
		Reason:            reason,
		CreatedAt:         s.now().UTC(),
	}
}

func (s *PaymentService) recordTransition(ctx context.Context, attempt *domain.PaymentAttempt, to domain.Status, extra map[string]any) {
	if s.metrics != nil {
		s.metrics.IncPaymentTransition(to.String())
	}

	newValue := map[string]any{"status": to}
	for k, v := range extra {
		newValue[k] = v
	}
	s.writeAudit(ctx, attempt.StoreID, attempt.ID, domain.AuditStatusChange,
		auditValue(map[string]any{"status": attempt.Status}),
		auditValue(newValue),
	)
}

// writeAudit appends an audit entry. Failures are logged and swallowed so an
// audit outage can never fail or roll back a payment mutation.
func (s *PaymentService) writeAudit(ctx context.Context, storeID, entityID string, action domain.AuditAction, oldValue, newValue *string) {
	if s.audits == nil {
		return
	}

	entry := &domain.AuditLog{
		ID:         uuid.NewString(),
		StoreID:    storeID,
		EntityType: "payment_attempt",
		EntityID:   entityID,
		Action:     action,
		OldValue:   oldValue,
		NewValue:   newValue,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.audits.Create(ctx, entry); err != nil {
		s.logger.Error("failed to write audit entry",
			zap.String("entityId", entityID),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}
}

func (s *PaymentService) emitEvent(ctx context.Context, event string, attempt *domain.PaymentAttempt, status domain.Status, extra map[string]any) {
	if s.dispatcher == nil {
		return
	}

	data := map[string]any{
		"attemptId": attempt.ID,
		"orderId":   attempt.OrderID,
		"provider":  attempt.Provider,
		"amount":    attempt.Amount,
		"currency":  attempt.Currency,
		"status":    status.String(),
	}
	for k, v := range extra {
		data[k] = v
	}

	s.dispatcher.Dispatch(ctx, attempt.StoreID, event, data)
}

func (s *PaymentService) resolveIdempotencyConflict(
	ctx context.Context,
	createErr error,
	storeID string,
	idempotencyKey *string,
) (*domain.PaymentAttempt, bool, error) {
	if idempotencyKey == nil {
		return nil, false, nil
	}
	if !isUniqueViolationError(createErr) {
		return nil, false, nil
	}

	existing, err := s.payments.GetByIdempotencyKey(ctx, *idempotencyKey)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load existing attempt after idempotency conflict: %w", err)
	}
	if existing.StoreID != storeID {
		return nil, false, domain.ErrIdempotencyKeyConflict
	}

	s.logger.Info("idempotency conflict resolved",
		zap.String("existingId", existing.ID),
		zap.String("idempotencyKey", *idempotencyKey),
	)
	return existing, true, nil
}

// transitionError maps a repository CAS miss to the state-machine error the
// caller expects: the row moved underneath us, so the requested transition is
// no longer legal.
func transitionError(err error, from, to domain.Status) error {
	if errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("%w: %s -> %s (concurrent update)", domain.ErrInvalidTransition, from, to)
	}
	return err
}

func isUniqueViolationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

func normalizeOptionalString(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func derefOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func auditValue(fields map[string]any) *string {
	encoded, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	value := string(encoded)
	return &value
}
