package sender

import "strings"

// allowedCustomHeaders is the allow-list of tenant-configured header names
// that may be forwarded on outbound deliveries. Anything else, in particular
// host, forwarding and cookie headers, is dropped.
var allowedCustomHeaders = map[string]struct{}{
	"authorization":    {},
	"x-api-key":        {},
	"x-request-id":     {},
	"x-correlation-id": {},
	"user-agent":       {},
	"accept":           {},
	"accept-language":  {},
	"content-language": {},
}

const customHeaderPrefix = "x-custom-"

// FilterCustomHeaders returns only the headers a tenant is allowed to attach
// to outbound webhook requests.
func FilterCustomHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}

	filtered := make(map[string]string, len(headers))
	for name, value := range headers {
		normalized := strings.ToLower(strings.TrimSpace(name))
		if normalized == "" {
			continue
		}

		_, allowed := allowedCustomHeaders[normalized]
		if !allowed && !strings.HasPrefix(normalized, customHeaderPrefix) {
			continue
		}

		filtered[normalized] = value
	}

	if len(filtered) == 0 {
		return nil
	}
	return filtered
}
