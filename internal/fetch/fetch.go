// ABOUTME: HTTP fetcher issuing conditional requests from stored ETag and Last-Modified validators.
// ABOUTME: Classifies responses as fresh content, 304 Not Modified, or a typed failure, with SSRF and DoS protection.

package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

const MaxResponseSize = 10 * 1024 * 1024 // 10MB

// Result contains the classified response from a fetch.
//
// NotModified and Body are mutually exclusive: a 304 carries no body and the
// caller must skip parsing entirely.
type Result struct {
	Body         []byte
	ETag         string
	LastModified string
	NotModified  bool
}

// StatusError reports a response outside the 2xx range that is not a 304.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// Fetcher issues conditional GET requests.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// New creates a Fetcher. Timeouts live here, not in callers: the pipeline
// defines no per-source timeout above the transport.
func New(timeout time.Duration, userAgent string) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// isPrivateIP checks if an IP address is in a private range (excluding loopback for tests).
func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() {
		return false
	}
	return ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

// Fetch retrieves a URL, conditionally when validators are present.
// A non-nil etag sets If-None-Match; a non-nil lastModified sets
// If-Modified-Since. When either validator is present the request also opts
// in to incremental feed updates via A-IM (RFC 3229). Returns
// NotModified=true for 304 responses and an error for anything outside the
// 2xx range.
func (f *Fetcher) Fetch(ctx context.Context, urlStr string, etag, lastModified *string) (*Result, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	// SSRF protection: block private IP ranges
	if ips, err := net.LookupIP(parsedURL.Hostname()); err == nil {
		for _, ip := range ips {
			if isPrivateIP(ip) {
				return nil, fmt.Errorf("access to private IP ranges is not allowed")
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)

	conditional := false
	if etag != nil && *etag != "" {
		req.Header.Set("If-None-Match", *etag)
		conditional = true
	}
	if lastModified != nil && *lastModified != "" {
		req.Header.Set("If-Modified-Since", *lastModified)
		conditional = true
	}
	if conditional {
		req.Header.Set("A-IM", "feed")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &Result{NotModified: true}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	// Read response body with DoS protection (10MB limit)
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response too large (exceeds %d bytes)", MaxResponseSize)
	}

	return &Result{
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		NotModified:  false,
	}, nil
}
