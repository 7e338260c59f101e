package client

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Chrome 120 HTTP/2 SETTINGS values.
const (
	chrome120H2HeaderTableSize   uint32 = 65536
	chrome120H2MaxHeaderListSize uint32 = 262144
)

// Chrome120PseudoHeaderOrder is the order Chrome sends HTTP/2 pseudo-headers
// in.  x/net/http2 writes its own fixed order; this is recorded for
// integrators who patch the framer.
var Chrome120PseudoHeaderOrder = []string{
	":method",
	":authority",
	":scheme",
	":path",
}

// ChromeTransportConfig groups the tunables of NewChromeTransport.
type ChromeTransportConfig struct {
	// HelloID is the uTLS ClientHello to present.  Zero means Chrome 120.
	HelloID utls.ClientHelloID

	// IdleConnTimeout defaults to 90 s.
	IdleConnTimeout time.Duration

	// ReadIdleTimeout enables ping health checks when > 0.
	ReadIdleTimeout time.Duration

	// InsecureSkipVerify disables certificate checks.  Tests only.
	InsecureSkipVerify bool
}

// NewChromeTransport returns an HTTP/2-only RoundTripper that looks like
// Chrome on the wire: uTLS ClientHello, Chrome's header table and header
// list sizes, and Chrome's default request headers in Chrome's order.
func NewChromeTransport(cfg ChromeTransportConfig) http.RoundTripper {
	if cfg.HelloID == (utls.ClientHelloID{}) {
		cfg.HelloID = utls.HelloChrome_120
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}

	dialFn := UTLSDialer(cfg.HelloID)
	h2t := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, tlsCfg *tls.Config) (net.Conn, error) {
			return dialFn(ctx, network, addr, tlsCfg)
		},
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, // #nosec G402 – tests only
		},

		MaxDecoderHeaderTableSize: chrome120H2HeaderTableSize,
		MaxEncoderHeaderTableSize: chrome120H2HeaderTableSize,
		MaxHeaderListSize:         chrome120H2MaxHeaderListSize,

		// The ordered headers carry Accept-Encoding; DecodingTransport
		// undoes the encoding.
		DisableCompression: true,

		IdleConnTimeout: cfg.IdleConnTimeout,
		ReadIdleTimeout: cfg.ReadIdleTimeout,
	}

	return &chromeRoundTripper{h2: h2t}
}

// chromeRoundTripper lays the caller's headers over Chrome's defaults.
type chromeRoundTripper struct {
	h2 *http2.Transport
}

// RoundTrip clones req, applies Chrome's ordered defaults, then replaces any
// default the caller also set (matching names case-insensitively) so a
// header is never sent twice.
func (t *chromeRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())

	h := ChromeOrderedHeaders()
	for key, vals := range req.Header {
		if len(vals) == 0 {
			continue
		}
		h.Set(key, vals[0])
		for _, v := range vals[1:] {
			h.Add(key, v)
		}
	}
	h.ApplyToRequest(r)

	return t.h2.RoundTrip(r)
}
