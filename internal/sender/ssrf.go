package sender

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/kursadbilgin/payment-engine/internal/domain"
)

// blockedHostSuffixes catches internal hostnames before any DNS resolution.
var blockedHostSuffixes = []string{
	"localhost",
	".localhost",
	".local",
	".internal",
	".intranet",
}

// metadataHosts are well-known cloud metadata endpoints.
var metadataHosts = map[string]struct{}{
	"metadata.google.internal": {},
	"metadata.goog":            {},
	"169.254.169.254":          {},
}

// URLValidator rejects webhook destinations that could be abused for SSRF.
// It runs at webhook creation and again before every delivery attempt, since
// a hostname accepted earlier may resolve differently later.
type URLValidator struct {
	lookupIP func(ctx context.Context, host string) ([]net.IP, error)
}

func NewURLValidator() *URLValidator {
	return &URLValidator{lookupIP: defaultLookupIP}
}

// NewURLValidatorWithLookup allows injecting a resolver, used by tests.
func NewURLValidatorWithLookup(lookupIP func(ctx context.Context, host string) ([]net.IP, error)) *URLValidator {
	if lookupIP == nil {
		lookupIP = defaultLookupIP
	}
	return &URLValidator{lookupIP: lookupIP}
}

func (v *URLValidator) Validate(ctx context.Context, rawURL string) error {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return fmt.Errorf("%w: url is required", domain.ErrValidation)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("%w: invalid url: %v", domain.ErrValidation, err)
	}

	if !strings.EqualFold(u.Scheme, "https") {
		return fmt.Errorf("%w: webhook url must use https", domain.ErrValidation)
	}
	if u.User != nil {
		return fmt.Errorf("%w: webhook url must not embed credentials", domain.ErrValidation)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: webhook url has no host", domain.ErrValidation)
	}

	if _, blocked := metadataHosts[host]; blocked {
		return fmt.Errorf("%w: webhook url resolves to a metadata endpoint", domain.ErrValidation)
	}
	for _, suffix := range blockedHostSuffixes {
		if host == strings.TrimPrefix(suffix, ".") || strings.HasSuffix(host, suffix) {
			return fmt.Errorf("%w: webhook url targets an internal hostname", domain.ErrValidation)
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		return validateIP(ip)
	}

	addrs, err := v.lookupIP(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: webhook host %q did not resolve: %v", domain.ErrValidation, host, err)
	}
	for _, addr := range addrs {
		if err := validateIP(addr); err != nil {
			return err
		}
	}

	return nil
}

func validateIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("%w: webhook url targets a loopback address", domain.ErrValidation)
	case ip.IsPrivate():
		return fmt.Errorf("%w: webhook url targets a private address", domain.ErrValidation)
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("%w: webhook url targets a link-local address", domain.ErrValidation)
	case ip.IsUnspecified():
		return fmt.Errorf("%w: webhook url targets an unspecified address", domain.ErrValidation)
	}
	return nil
}

func defaultLookupIP(ctx context.Context, host string) ([]net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}

	ips := make([]net.IP, 0, len(addrs))
	for _, addr := range addrs {
		ips = append(ips, addr.IP)
	}
	return ips, nil
}
