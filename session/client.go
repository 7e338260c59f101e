// Package session implements the login and share-to-chat flow of the
// KakaoLink web SDK.
//
// A Client emulates the browser: it fetches the login page, submits
// credentials encrypted with the page's one-time key, and replays the
// resulting cookies to the share picker to deliver a template message into a
// chat room.  Every Login and Send runs its requests strictly in order and
// holds the client's lock throughout, so one Client may be shared between
// goroutines but never works on two operations at once.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cjh980402/kakao-link/cookiejar"
	"github.com/cjh980402/kakao-link/logger"
	"github.com/cjh980402/kakao-link/metrics"
	"github.com/cjh980402/kakao-link/schema"
)

// sdkTag prefixes the User-Agent the JavaScript SDK reports.
const sdkTag = "sdk/1.36.6 os/javascript lang/en-US device/Win32 origin/"

// AppKeyLength is the length of a JavaScript app key.
const AppKeyLength = 32

// maxBodySize caps how much of any response is read.
const maxBodySize = 8 << 20

// maxRedirects matches net/http's default policy.
const maxRedirects = 10

var originPattern = regexp.MustCompile(`^https?://.+`)

// Client is one logged-in browser identity bound to an app key and the web
// origin registered for it.  Build it with New; the zero value rejects every
// operation with ErrIllegalState.
type Client struct {
	appKey    string
	originTag string

	endpoints      Endpoints
	httpClient     *http.Client
	cipher         Cipher
	log            *logger.Logger
	metrics        *metrics.Metrics
	watcher        *schema.Watcher
	tolerantBeacon bool

	mu      sync.Mutex // serialises Login and Send; guards referer
	referer string
	jar     cookiejar.Jar
}

// New validates appKey and originURL and returns an unauthenticated Client.
// It performs no network I/O.
func New(appKey, originURL string, opts ...Option) (*Client, error) {
	if len(appKey) != AppKeyLength {
		return nil, &Error{
			Kind: KindInvalidArgument,
			Op:   "new",
			Err:  fmt.Errorf("app key must be %d characters, got %d", AppKeyLength, len(appKey)),
		}
	}
	if !originPattern.MatchString(originURL) {
		return nil, &Error{
			Kind: KindInvalidArgument,
			Op:   "new",
			Err:  fmt.Errorf("origin %q is not an http(s) URL", originURL),
		}
	}

	c := &Client{
		appKey:     appKey,
		originTag:  sdkTag + encodeURIComponent(originURL),
		endpoints:  DefaultEndpoints(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cipher:     defaultCipher,
		log:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Referer returns the effective login page URL recorded by the last Login,
// or "" before one got that far.
func (c *Client) Referer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.referer
}

// Cookies returns a copy of the cookie jar.
func (c *Client) Cookies() map[string]string {
	return c.jar.Snapshot()
}

// HasAuthCookies reports whether every cookie in AuthCookieNames is held.
func (c *Client) HasAuthCookies() bool {
	for _, name := range AuthCookieNames {
		if _, ok := c.jar.Get(name); !ok {
			return false
		}
	}
	return true
}

// OriginTag returns the SDK User-Agent string sent with every request.
func (c *Client) OriginTag() string { return c.originTag }

func (c *Client) initialised() bool { return c.appKey != "" }

// do executes req.  Set-Cookie headers on intermediate redirect responses
// are merged into the jar as they pass, and a redirect that stays on the
// original host carries the refreshed Cookie header, the way a browser
// follows a login redirect chain.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	hc := *c.httpClient
	hc.CheckRedirect = func(next *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		c.jar.MergeResponse(next.Response)
		if next.URL.Host == via[0].URL.Host && c.jar.Len() > 0 {
			next.Header.Set("Cookie", c.jar.Serialize())
		}
		return nil
	}
	if c.metrics != nil {
		c.metrics.IncrementRequests()
	}
	c.log.Debugf("%s %s", req.Method, redactQuery(req.URL))
	return hc.Do(req)
}

// readBody drains and closes resp.Body.
func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
}

// newRequest builds a request carrying the SDK User-Agent.
func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.originTag)
	return req, nil
}

// multipartForm encodes fields, in order, as multipart/form-data.
func multipartForm(fields [][2]string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// observe feeds a JSON body to the schema watcher and logs any drift.
func (c *Client) observe(endpoint string, body []byte) {
	if c.watcher == nil {
		return
	}
	drifts, err := c.watcher.Observe(endpoint, body)
	if err != nil {
		c.log.With("endpoint", endpoint).Debugf("schema check skipped: %v", err)
		return
	}
	if len(drifts) > 0 {
		c.log.With("endpoint", endpoint).Warnf("response shape changed: %s", schema.Format(drifts))
	}
}

// transportError maps a failed round trip.  A cancelled or expired context
// is returned as the context's own error inside the protocol error so
// callers can still test for it with errors.Is.
func transportError(op string, err error) *Error {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		err = fmt.Errorf("%s %s: %w", ue.Op, redactString(ue.URL), ue.Err)
	}
	return newError(KindProtocol, op, err)
}

// redactQuery strips the query string, which may carry tokens, from logs.
func redactQuery(u *url.URL) string {
	cp := *u
	cp.RawQuery = ""
	return cp.String()
}

func redactString(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}

// encodeURIComponent escapes s the way JavaScript's encodeURIComponent does:
// everything except A-Z a-z 0-9 - _ . ! ~ * ' ( ) is percent-encoded.
func encodeURIComponent(s string) string {
	return jsEscapeReplacer.Replace(url.QueryEscape(s))
}

var jsEscapeReplacer = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)
