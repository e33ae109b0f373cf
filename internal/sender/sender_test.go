package sender

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-resty/resty/v2"
)

// permissiveValidator resolves every hostname to a public address so tests
// can deliver to httptest servers without tripping the SSRF rules.
func permissiveValidator() *URLValidator {
	return NewURLValidatorWithLookup(func(ctx context.Context, host string) ([]net.IP, error) {
		return []net.IP{net.ParseIP("93.184.216.34")}, nil
	})
}

// testSender wires an HTTPSender whose transport rewrites https URLs onto the
// plain-HTTP httptest listener.
func testSender(t *testing.T, serverURL string) *HTTPSender {
	t.Helper()

	target, err := url.Parse(serverURL)
	if err != nil {
		t.Fatalf("failed to parse test server url: %v", err)
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return net.Dial(network, target.Host)
		},
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return net.Dial(network, target.Host)
		},
	}

	client := resty.NewWithClient(&http.Client{Transport: transport})
	s, err := NewHTTPSenderWithClient(permissiveValidator(), client)
	if err != nil {
		t.Fatalf("NewHTTPSenderWithClient() error = %v", err)
	}
	return s
}

func TestHTTPSenderSendSuccessSignsPayload(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"id":"evt-1","event":"payment.captured"}`)
	secret := "whsec_test"

	var gotHeaders http.Header
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotHeaders = r.Header.Clone()
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("failed to read request body: %v", err)
		}
		gotBody = body
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"received":true}`))
	}))
	defer server.Close()

	s := testSender(t, server.URL)

	resp, err := s.Send(context.Background(), Request{
		URL:     "https://hooks.example.com/receive",
		Body:    payload,
		Secret:  secret,
		Event:   "payment.captured",
		EventID: "evt-1",
	})
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want 200", resp.StatusCode)
	}

	signature := gotHeaders.Get(SignatureHeader)
	if signature == "" {
		t.Fatal("expected X-Webhook-Signature header")
	}
	if !VerifySignature(gotBody, signature, secret) {
		t.Fatal("signature does not verify against payload and secret")
	}
	if got := gotHeaders.Get(SignatureHeaderSHA256); got != "sha256="+signature {
		t.Fatalf("X-Webhook-Signature-256 = %q, want sha256-prefixed signature", got)
	}
	if got := gotHeaders.Get("X-Webhook-Event"); got != "payment.captured" {
		t.Fatalf("X-Webhook-Event = %q, want payment.captured", got)
	}
}

func TestHTTPSenderSendStripsForbiddenHeaders(t *testing.T) {
	t.Parallel()

	var gotHeaders http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := testSender(t, server.URL)

	_, err := s.Send(context.Background(), Request{
		URL:  "https://hooks.example.com/receive",
		Body: []byte(`{}`),
		Headers: map[string]string{
			"Authorization":   "Bearer token",
			"X-Forwarded-For": "1.2.3.4",
			"Cookie":          "session=abc",
			"Host":            "evil.internal",
		},
		Event:   "payment.captured",
		EventID: "evt-1",
	})
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}

	if got := gotHeaders.Get("Authorization"); got != "Bearer token" {
		t.Fatalf("Authorization = %q, want allow-listed header forwarded", got)
	}
	if got := gotHeaders.Get("X-Forwarded-For"); got != "" {
		t.Fatalf("X-Forwarded-For = %q, want stripped", got)
	}
	if got := gotHeaders.Get("Cookie"); got != "" {
		t.Fatalf("Cookie = %q, want stripped", got)
	}
}

func TestHTTPSenderSendStatusClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		statusCode    int
		wantTransient bool
	}{
		{name: "internal server error is transient", statusCode: http.StatusInternalServerError, wantTransient: true},
		{name: "bad gateway is transient", statusCode: http.StatusBadGateway, wantTransient: true},
		{name: "too many requests is transient", statusCode: http.StatusTooManyRequests, wantTransient: true},
		{name: "bad request is permanent", statusCode: http.StatusBadRequest, wantTransient: false},
		{name: "gone is permanent", statusCode: http.StatusGone, wantTransient: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte("nope"))
			}))
			defer server.Close()

			s := testSender(t, server.URL)

			resp, err := s.Send(context.Background(), Request{
				URL:     "https://hooks.example.com/receive",
				Body:    []byte(`{}`),
				Event:   "payment.captured",
				EventID: "evt-1",
			})
			if err == nil {
				t.Fatal("Send() expected error, got nil")
			}
			if resp == nil || resp.StatusCode != tc.statusCode {
				t.Fatalf("response = %+v, want status %d recorded", resp, tc.statusCode)
			}
			if got := IsTransient(err); got != tc.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", got, tc.wantTransient)
			}
		})
	}
}

func TestHTTPSenderSendTruncatesResponseBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(strings.Repeat("a", 5000)))
	}))
	defer server.Close()

	s := testSender(t, server.URL)

	resp, err := s.Send(context.Background(), Request{
		URL:     "https://hooks.example.com/receive",
		Body:    []byte(`{}`),
		Event:   "payment.captured",
		EventID: "evt-1",
	})
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}
	if len(resp.Body) != maxResponseBodyChars {
		t.Fatalf("response body length = %d, want %d", len(resp.Body), maxResponseBodyChars)
	}
}

func TestHTTPSenderSendRejectsBlockedDestination(t *testing.T) {
	t.Parallel()

	s, err := NewHTTPSender(NewURLValidator())
	if err != nil {
		t.Fatalf("NewHTTPSender() error = %v", err)
	}

	_, err = s.Send(context.Background(), Request{
		URL:     "https://169.254.169.254/latest/meta-data/",
		Body:    []byte(`{}`),
		Event:   "payment.captured",
		EventID: "evt-1",
	})
	if err == nil {
		t.Fatal("Send() expected error for metadata endpoint, got nil")
	}
	if IsTransient(err) {
		t.Fatal("SSRF rejection should be permanent")
	}
}

func TestFilterCustomHeaders(t *testing.T) {
	t.Parallel()

	got := FilterCustomHeaders(map[string]string{
		"Authorization":    "Bearer x",
		"X-Api-Key":        "key",
		"X-Request-Id":     "rid",
		"X-Custom-Tenant":  "acme",
		"X-Forwarded-For":  "1.2.3.4",
		"X-Forwarded-Host": "internal",
		"Cookie":           "session=1",
		"Host":             "evil",
		"":                 "empty",
	})

	want := map[string]string{
		"authorization":   "Bearer x",
		"x-api-key":       "key",
		"x-request-id":    "rid",
		"x-custom-tenant": "acme",
	}

	if len(got) != len(want) {
		t.Fatalf("filtered headers = %v, want %v", got, want)
	}
	for name, value := range want {
		if got[name] != value {
			t.Fatalf("header %q = %q, want %q", name, got[name], value)
		}
	}
}

func TestSignatureRoundTrip(t *testing.T) {
	t.Parallel()

	payload, err := json.Marshal(map[string]string{"event": "payment.captured"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	signature := Sign(payload, "secret")
	if !VerifySignature(payload, signature, "secret") {
		t.Fatal("signature should verify with the signing secret")
	}
	if VerifySignature(payload, signature, "other") {
		t.Fatal("signature should not verify with a different secret")
	}
	if VerifySignature([]byte("tampered"), signature, "secret") {
		t.Fatal("signature should not verify for a tampered payload")
	}
}
