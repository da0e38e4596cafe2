// Package security provides SSRF-safe outbound HTTP helpers and the
// credential-store envelope used at startup.
//
// Grounded on decision/engine.go's calls into `security.ValidateURL`,
// `security.SafeHTTPClient` and `security.SafeGet` (this package imports
// this package but its source was not part of the retrieved pack; this
// is a from-scratch reimplementation matching the call sites' contract).
package security

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrBlockedHost is returned when a URL resolves to a disallowed target.
type ErrBlockedHost struct{ Host string }

func (e *ErrBlockedHost) Error() string {
	return fmt.Sprintf("security: host %q is blocked (private/loopback/link-local)", e.Host)
}

// ValidateURL rejects URLs that are not plain HTTP(S), or whose host
// resolves to a loopback, private, link-local, or multicast address.
// This is the synchronous check external-data-source fetches run before
// any request is issued (decision engine's fetchSingleExternalSource).
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("security: invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("security: unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("security: URL has no host")
	}
	if strings.EqualFold(host, "localhost") {
		return &ErrBlockedHost{Host: host}
	}
	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return &ErrBlockedHost{Host: host}
		}
		return nil
	}
	addrs, err := net.LookupIP(host)
	if err != nil {
		// DNS failures are surfaced to the caller as a normal (transient)
		// error rather than a security rejection.
		return fmt.Errorf("security: DNS lookup failed for %q: %w", host, err)
	}
	for _, ip := range addrs {
		if isBlockedIP(ip) {
			return &ErrBlockedHost{Host: fmt.Sprintf("%s (%s)", host, ip)}
		}
	}
	return nil
}

func isBlockedIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsMulticast() || ip.IsUnspecified()
}

// safeDialer refuses to connect to a blocked address even if DNS
// resolved to something allowed at validation time and then changed
// (a classic TOCTOU SSRF bypass via DNS rebinding).
func safeDialer(timeout time.Duration) func(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: timeout}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		if ip := net.ParseIP(host); ip != nil && isBlockedIP(ip) {
			return nil, &ErrBlockedHost{Host: host}
		}
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if tcp, ok := conn.RemoteAddr().(*net.TCPAddr); ok && isBlockedIP(tcp.IP) {
			conn.Close()
			return nil, &ErrBlockedHost{Host: tcp.IP.String()}
		}
		return conn, nil
	}
}

// SafeHTTPClient returns an *http.Client whose transport refuses to dial
// blocked addresses, with the given request timeout.
func SafeHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		DialContext:           safeDialer(timeout),
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// SafeGet validates the URL then performs a GET with an SSRF-safe client.
func SafeGet(rawURL string, timeout time.Duration) (*http.Response, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}
	client := SafeHTTPClient(timeout)
	return client.Get(rawURL)
}
