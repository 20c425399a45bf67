// Package transport builds the outbound HTTP clients used for catalog fetches
// and order delivery.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// DefaultTimeout applies when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Options configures NewClient.
type Options struct {
	Timeout time.Duration

	// ChromeFingerprint dials TLS with a Chrome ClientHello. Static hosts and
	// form endpoints behind bot-filtering CDNs throttle Go's default fingerprint.
	ChromeFingerprint bool

	// RootCAs overrides the system pool, for intakes behind a private CA.
	RootCAs *x509.CertPool
}

// NewClient returns an http.Client for opts.
func NewClient(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var rt http.RoundTripper
	if opts.ChromeFingerprint {
		rt = NewChromeTransport(timeout, opts.RootCAs)
	} else {
		t := http.DefaultTransport.(*http.Transport).Clone()
		if opts.RootCAs != nil {
			t.TLSClientConfig = &tls.Config{RootCAs: opts.RootCAs}
		}
		rt = t
	}
	return &http.Client{Timeout: timeout, Transport: rt}
}

// =============================================================================
// CHROME TLS FINGERPRINT
// =============================================================================
//
// The ClientHello is produced by uTLS (HelloChrome_Auto) and ALPN offers
// h2 and http/1.1 like a browser would. The negotiated protocol decides which
// framing layer carries the request:
//
//   h2        → golang.org/x/net/http2 over the uTLS conn
//   http/1.1  → net/http Transport over a fresh uTLS conn
//
// The fallback happens only when the server refused h2 during the handshake,
// before any request bytes were written, so order POSTs are never sent twice.
// Hosts that refuse h2 are remembered and dialed with HTTP/1.1 directly.
// =============================================================================

// errNoH2 reports that the server negotiated something other than h2.
var errNoH2 = errors.New("server did not negotiate h2")

// NewChromeTransport creates an http.RoundTripper that presents Chrome's TLS
// fingerprint. rootCAs may be nil to use the system pool.
func NewChromeTransport(timeout time.Duration, rootCAs *x509.CertPool) http.RoundTripper {
	t := &chromeTransport{
		dialer:  &net.Dialer{Timeout: timeout},
		rootCAs: rootCAs,
	}
	t.h2 = &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			conn, err := t.dial(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if conn.ConnectionState().NegotiatedProtocol != http2.NextProtoTLS {
				conn.Close()
				t.h1Hosts.Store(addr, true)
				return nil, errNoH2
			}
			return conn, nil
		},
	}
	t.h1 = &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return t.dial(ctx, network, addr)
		},
		ForceAttemptHTTP2:   false,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	return t
}

type chromeTransport struct {
	dialer  *net.Dialer
	rootCAs *x509.CertPool
	h2      *http2.Transport
	h1      *http.Transport

	h1Hosts sync.Map // host:port → true once a server refused h2
}

// RoundTrip implements http.RoundTripper.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}
	if _, ok := t.h1Hosts.Load(canonicalAddr(req)); ok {
		return t.h1.RoundTrip(req)
	}

	resp, err := t.h2.RoundTrip(req)
	if err == nil || !errors.Is(err, errNoH2) {
		return resp, err
	}
	return t.h1.RoundTrip(req)
}

// dial establishes a TLS connection with Chrome's fingerprint.
func (t *chromeTransport) dial(ctx context.Context, network, addr string) (*utls.UConn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := t.dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host, RootCAs: t.rootCAs}, utls.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return tlsConn, nil
}

func canonicalAddr(req *http.Request) string {
	host := req.URL.Host
	if req.URL.Port() == "" {
		host = net.JoinHostPort(req.URL.Hostname(), "443")
	}
	return host
}
