// Package client builds the *http.Client a share session talks through.
//
// Two transport profiles exist.  "standard" is a tuned net/http transport.
// "chrome" presents a Chrome ClientHello via uTLS and speaks HTTP/2 with
// Chrome's SETTINGS and header order, for when the service starts rejecting
// Go's default fingerprint.  Both are wrapped in a decoding layer and,
// optionally, a rate limiter.
package client

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/time/rate"
)

// Transport profiles.
const (
	ProfileStandard = "standard"
	ProfileChrome   = "chrome"
)

// Options configures NewHTTPClient.  The zero value is a direct, unlimited
// standard client with a 30 s timeout.
type Options struct {
	// Proxy is an optional proxy URL.  Empty means direct.
	Proxy string

	// Timeout is the end-to-end per-request timeout.  Zero means 30 s.
	Timeout time.Duration

	// Profile is ProfileStandard (default) or ProfileChrome.
	Profile string

	// HelloID overrides the ClientHello used by ProfileChrome.
	HelloID utls.ClientHelloID

	// RateLimit caps requests per second.  Zero disables limiting.
	RateLimit float64

	// RateBurst is the limiter burst; values below 1 become 1.
	RateBurst int

	// Pool sizing for ProfileStandard.  Zero values use the defaults below.
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
}

// defaultPool is sized for one login plus a handful of sends against two
// hosts; a share client never fans out.
var defaultPool = struct {
	maxIdleConns        int
	maxIdleConnsPerHost int
	maxConnsPerHost     int
}{
	maxIdleConns:        16,
	maxIdleConnsPerHost: 4,
	maxConnsPerHost:     8,
}

// ErrChromeProxy is returned when a proxy is combined with the chrome
// profile; the HTTP/2 transport dials its own TLS connections.
var ErrChromeProxy = errors.New("client: the chrome profile does not support proxies")

// NewHTTPClient constructs the *http.Client described by opts.
//
// The client has no cookie jar: the session replays cookies itself and a jar
// would send them twice.  Redirects are followed (up to net/http's limit of
// 10); the session inspects them through CheckRedirect on a per-request copy.
func NewHTTPClient(opts Options) (*http.Client, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	var base http.RoundTripper
	switch opts.Profile {
	case "", ProfileStandard:
		t, err := buildTransport(opts)
		if err != nil {
			return nil, err
		}
		base = t
	case ProfileChrome:
		if opts.Proxy != "" {
			return nil, ErrChromeProxy
		}
		base = NewChromeTransport(ChromeTransportConfig{HelloID: opts.HelloID})
	default:
		return nil, fmt.Errorf("client: unknown profile %q", opts.Profile)
	}

	rt := http.RoundTripper(&DecodingTransport{Base: base})
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		rt = &RateLimitedTransport{
			Base:    rt,
			Limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), burst),
		}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   timeout,
	}, nil
}

// buildTransport creates the standard *http.Transport.
func buildTransport(opts Options) (*http.Transport, error) {
	t := &http.Transport{
		ForceAttemptHTTP2: true,

		MaxIdleConns:        orDefault(opts.MaxIdleConns, defaultPool.maxIdleConns),
		MaxIdleConnsPerHost: orDefault(opts.MaxIdleConnsPerHost, defaultPool.maxIdleConnsPerHost),
		MaxConnsPerHost:     orDefault(opts.MaxConnsPerHost, defaultPool.maxConnsPerHost),

		// Evict idle connections after 90 s so we do not hold dead sockets.
		IdleConnTimeout: 90 * time.Second,

		// TLS handshakes that stall for more than 10 s are aborted.
		TLSHandshakeTimeout: 10 * time.Second,

		ExpectContinueTimeout: 1 * time.Second,
	}

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("client: parse proxy URL %q: %w", opts.Proxy, err)
		}
		if proxyURL.Scheme == "" || proxyURL.Host == "" {
			return nil, fmt.Errorf("client: proxy URL %q needs a scheme and host", opts.Proxy)
		}
		t.Proxy = http.ProxyURL(proxyURL)
	}

	return t, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
