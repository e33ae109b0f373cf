package sender

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultDeliveryTimeout = 10 * time.Second

	// maxResponseBodyChars caps the response excerpt stored per delivery.
	maxResponseBodyChars = 1000
)

// Request describes one outbound webhook delivery attempt.
type Request struct {
	URL     string
	Body    []byte
	Secret  string
	Headers map[string]string
	Event   string
	EventID string
}

// Response stores delivery call metadata for audit and persistence.
type Response struct {
	StatusCode int
	Body       string
	Duration   time.Duration
}

// Sender performs a single webhook delivery attempt. Retries, backoff and
// per-attempt audit rows are owned by the caller.
type Sender interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// HTTPSender posts signed JSON payloads to subscriber endpoints. Every
// attempt re-validates the destination URL and uses a fresh request bounded
// by the delivery timeout.
type HTTPSender struct {
	client    *resty.Client
	validator *URLValidator
	now       func() time.Time
}

func NewHTTPSender(validator *URLValidator) (*HTTPSender, error) {
	client := resty.New()
	client.SetTimeout(defaultDeliveryTimeout)
	client.SetRetryCount(0)

	return NewHTTPSenderWithClient(validator, client)
}

func NewHTTPSenderWithClient(validator *URLValidator, client *resty.Client) (*HTTPSender, error) {
	if validator == nil {
		return nil, fmt.Errorf("url validator is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultDeliveryTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPSender{
		client:    client,
		validator: validator,
		now:       time.Now,
	}, nil
}

func (s *HTTPSender) Send(ctx context.Context, req Request) (*Response, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("sender is not initialized")
	}

	if err := s.validator.Validate(ctx, req.URL); err != nil {
		return nil, &DeliveryError{
			Message:   "destination rejected",
			Transient: false,
			Cause:     err,
		}
	}

	r := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Webhook-Event", req.Event).
		SetHeader("X-Webhook-Event-Id", req.EventID).
		SetBody(req.Body)

	for name, value := range FilterCustomHeaders(req.Headers) {
		r.SetHeader(name, value)
	}

	if req.Secret != "" {
		signature := Sign(req.Body, req.Secret)
		r.SetHeader(SignatureHeader, signature)
		r.SetHeader(SignatureHeaderSHA256, "sha256="+signature)
	}

	start := s.now()
	response, err := r.Post(req.URL)
	elapsed := s.now().Sub(start)

	if err != nil {
		return nil, &DeliveryError{
			Message:   "delivery request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &DeliveryError{
			Message:   "endpoint returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := truncateBody(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &Response{
			StatusCode: statusCode,
			Body:       responseBody,
			Duration:   elapsed,
		}, nil
	}

	return &Response{
			StatusCode: statusCode,
			Body:       responseBody,
			Duration:   elapsed,
		}, &DeliveryError{
			StatusCode: statusCode,
			Message:    deliveryErrorMessage(statusCode, responseBody),
			Transient:  isTransientHTTPStatus(statusCode),
		}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusRequestTimeout ||
		(statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func deliveryErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("endpoint returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func truncateBody(body string) string {
	trimmed := strings.TrimSpace(body)
	if len(trimmed) <= maxResponseBodyChars {
		return trimmed
	}
	return trimmed[:maxResponseBodyChars]
}
