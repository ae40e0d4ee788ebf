package source

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
)

// throttleSignatures are body fragments of block and challenge pages the
// trends and wiki endpoints serve instead of a clean 429 when they decide
// a client is abusive.
var throttleSignatures = [][]byte{
	[]byte("rate limit"),
	[]byte("too many requests"),
	[]byte("unusual traffic"),
	[]byte("captcha"),
	[]byte("Attention Required! | Cloudflare"),
}

// ClassifyResponse maps an HTTP response to the upstream error taxonomy.
// It returns nil for any 2xx status. The caller passes the body it already
// read; only a prefix is inspected.
func ClassifyResponse(statusCode int, headers http.Header, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: status 429", ErrThrottled)
	case http.StatusForbidden, http.StatusUnauthorized:
		return fmt.Errorf("%w: access denied (status %d)", ErrThrottled, statusCode)
	}

	if statusCode == http.StatusServiceUnavailable && looksThrottled(headers, body) {
		return fmt.Errorf("%w: challenge page (status 503)", ErrThrottled)
	}

	if statusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, statusCode)
	}

	// Remaining 4xx: the request shape was not what the upstream expects.
	return fmt.Errorf("%w: unexpected status %d", ErrMalformed, statusCode)
}

func looksThrottled(headers http.Header, body []byte) bool {
	server := strings.ToLower(headers.Get("Server"))
	if strings.Contains(server, "cloudflare") {
		return true
	}

	probe := body
	if len(probe) > 4096 {
		probe = probe[:4096]
	}
	probe = bytes.ToLower(probe)
	for _, sig := range throttleSignatures {
		if bytes.Contains(probe, bytes.ToLower(sig)) {
			return true
		}
	}
	return false
}
