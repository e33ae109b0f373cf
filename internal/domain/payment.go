package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a payment attempt.
type Status string

const (
	StatusInitiated   Status = "INITIATED"
	StatusAuthorizing Status = "AUTHORIZING"
	StatusAuthorized  Status = "AUTHORIZED"
	StatusCaptured    Status = "CAPTURED"
	StatusFailed      Status = "FAILED"
	StatusCanceled    Status = "CANCELED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusInitiated, StatusAuthorizing, StatusAuthorized, StatusCaptured, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusFailed || s == StatusCanceled
}

// legalTransitions is the single source of truth for state-machine legality.
var legalTransitions = map[Status][]Status{
	StatusInitiated:   {StatusAuthorizing, StatusFailed, StatusCanceled},
	StatusAuthorizing: {StatusAuthorized, StatusFailed, StatusCanceled},
	StatusAuthorized:  {StatusCaptured, StatusCanceled, StatusFailed},
	StatusCaptured:    {StatusFailed},
	StatusFailed:      {},
	StatusCanceled:    {},
}

// CanTransitionTo reports whether s -> to is a legal transition.
func (s Status) CanTransitionTo(to Status) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TransactionAuth    TransactionType = "AUTH"
	TransactionCapture TransactionType = "CAPTURE"
	TransactionRefund  TransactionType = "REFUND"
	TransactionVoid    TransactionType = "VOID"
)

func (t TransactionType) String() string { return string(t) }

func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionAuth, TransactionCapture, TransactionRefund, TransactionVoid:
		return true
	}
	return false
}

// PaymentAttempt is one try at collecting payment for an order. It is owned
// exclusively by the store that created it.
type PaymentAttempt struct {
	ID                string
	StoreID           string
	OrderID           string
	Provider          string
	ProviderReference *string
	Amount            int64
	Currency          string
	Status            Status
	AttemptCount      int
	LastErrorCode     *string
	LastErrorMessage  *string
	NextRetryAt       *time.Time
	IdempotencyKey    *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (a *PaymentAttempt) Validate() error {
	if strings.TrimSpace(a.StoreID) == "" {
		return fmt.Errorf("%w: store id is required", ErrValidation)
	}
	if strings.TrimSpace(a.OrderID) == "" {
		return fmt.Errorf("%w: order id is required", ErrValidation)
	}
	if strings.TrimSpace(a.Provider) == "" {
		return fmt.Errorf("%w: provider is required", ErrValidation)
	}
	if a.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive (got %d)", ErrValidation, a.Amount)
	}
	if len(a.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter ISO code (got %q)", ErrValidation, a.Currency)
	}
	if !a.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, a.Status)
	}
	return nil
}

// PaymentTransaction is an immutable ledger entry attached to an attempt.
// Captured and refunded totals are always derived by summing ledger rows of
// the relevant type, never tracked as a mutable counter.
type PaymentTransaction struct {
	ID                string
	AttemptID         string
	StoreID           string
	Type              TransactionType
	Amount            int64
	Currency          string
	ProviderReference *string
	Reason            *string
	CreatedAt         time.Time
}

// StuckAttempt describes an attempt left in AUTHORIZING past the
// reconciliation timeout.
type StuckAttempt struct {
	ID           string    `json:"id"`
	StoreID      string    `json:"storeId"`
	OrderID      string    `json:"orderId"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	StuckMinutes int       `json:"stuckMinutes"`
}

// ReconciliationReport is the result of a stuck-attempt scan.
type ReconciliationReport struct {
	StuckAttempts []StuckAttempt `json:"stuckAttempts"`
	TotalStuck    int            `json:"totalStuck"`
	CheckedAt     time.Time      `json:"checkedAt"`
}
