package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/cjh980402/kakao-link/logger"
	"github.com/cjh980402/kakao-link/scrape"
)

// Authenticate response statuses.
const (
	statusOK                = 0
	statusWrongCredentials  = -450
	statusNeedsVerification = -481
	statusProtectedAccount  = -484
)

// loginFlow carries what one step of Login hands to the next.
type loginFlow struct {
	log *logger.Logger
	key string // one-time encryption key from the login page
}

// Login signs in with email and password.  On success the jar holds the
// authentication cookies Send needs.
//
// A failed Login leaves whatever cookies and referer it gathered before the
// failing step in place; discard the client or call Login again.
func (c *Client) Login(ctx context.Context, email, password string) (err error) {
	if !c.initialised() {
		return newError(KindIllegalState, "login", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	f := &loginFlow{log: c.log.With("op", uuid.NewString()).With("flow", "login")}
	f.log.Info("logging in")
	defer func() {
		kind := KindOf(err)
		if c.metrics != nil {
			c.metrics.RecordLogin(string(kind))
		}
		if err != nil {
			f.log.With("kind", kind).Warnf("login failed: %v", err)
			return
		}
		f.log.Infof("logged in; %d cookies held", c.jar.Len())
	}()

	if err := c.fetchLoginPage(ctx, f); err != nil {
		return err
	}
	if err := c.trackBeacon(ctx, f); err != nil {
		return err
	}
	return c.authenticate(ctx, f, email, password)
}

// fetchLoginPage loads the login page, records where it landed as the
// referer and extracts the encryption key.
func (c *Client) fetchLoginPage(ctx context.Context, f *loginFlow) error {
	const op = "login/page"

	target := c.endpoints.LoginPage + querySep(c.endpoints.LoginPage) +
		"continue=" + url.QueryEscape(c.endpoints.LoginContinue)
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return newError(KindProtocol, op, err)
	}
	req.Header.Set("Referer", c.endpoints.AccountsOrigin)

	resp, err := c.do(req)
	if err != nil {
		return transportError(op, err)
	}
	body, err := readBody(resp)
	if resp.StatusCode != http.StatusOK {
		return &Error{Kind: KindAuthentication, Op: op, StatusCode: resp.StatusCode}
	}
	if err != nil {
		return transportError(op, err)
	}

	c.referer = resp.Request.URL.String()
	c.jar.MergeResponse(resp)
	f.log.Debugf("login page served from %s; cookies %v", redactQuery(resp.Request.URL), c.jar.Names())

	doc, err := scrape.Parse(bytes.NewReader(body))
	if err != nil {
		return newError(KindProtocol, op, err)
	}
	key, ok := doc.EncryptionKey()
	if !ok {
		return &Error{Kind: KindProtocol, Op: op, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("login page carries no encryption key")}
	}
	f.key = key
	return nil
}

// trackBeacon hits the telemetry endpoint for the cookie it sets.  The
// status is ignored; only a failed round trip counts as failure.
func (c *Client) trackBeacon(ctx context.Context, f *loginFlow) error {
	const op = "login/beacon"

	req, err := c.newRequest(ctx, http.MethodGet, c.endpoints.Beacon, nil)
	if err != nil {
		return newError(KindProtocol, op, err)
	}
	resp, err := c.do(req)
	if err != nil {
		if c.tolerantBeacon && ctx.Err() == nil {
			f.log.Warnf("beacon failed, continuing: %v", transportError(op, err))
			return nil
		}
		return transportError(op, err)
	}
	_, _ = readBody(resp)
	c.jar.MergeResponse(resp)
	return nil
}

type authenticateResponse struct {
	Status *int `json:"status"`
}

// authenticate submits the encrypted credentials.
func (c *Client) authenticate(ctx context.Context, f *loginFlow, email, password string) error {
	const op = "login/authenticate"

	encEmail, err := c.cipher.Encrypt(email, f.key)
	if err != nil {
		return newError(KindProtocol, op, fmt.Errorf("encrypt email: %w", err))
	}
	encPassword, err := c.cipher.Encrypt(password, f.key)
	if err != nil {
		return newError(KindProtocol, op, fmt.Errorf("encrypt password: %w", err))
	}

	body, contentType, err := multipartForm([][2]string{
		{"os", "web"},
		{"webview_v", "2"},
		{"email", encEmail},
		{"password", encPassword},
		{"continue", continueTarget(c.referer, c.endpoints.LoginContinue)},
		{"third", "false"},
		{"k", "true"},
	})
	if err != nil {
		return newError(KindProtocol, op, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.endpoints.Authenticate, body)
	if err != nil {
		return newError(KindProtocol, op, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Referer", c.referer)
	req.Header.Set("Cookie", c.jar.Serialize())

	resp, err := c.do(req)
	if err != nil {
		return transportError(op, err)
	}
	raw, err := readBody(resp)
	if err != nil {
		return transportError(op, err)
	}
	text := string(raw)
	if resp.StatusCode != http.StatusOK {
		return &Error{Kind: KindProtocol, Op: op, StatusCode: resp.StatusCode, Body: text}
	}

	var ar authenticateResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return &Error{Kind: KindProtocol, Op: op, StatusCode: resp.StatusCode, Body: text, Err: err}
	}
	if ar.Status == nil {
		return &Error{Kind: KindProtocol, Op: op, StatusCode: resp.StatusCode, Body: text,
			Err: fmt.Errorf("response has no status")}
	}
	c.observe("authenticate", raw)

	switch *ar.Status {
	case statusOK:
		c.jar.MergeResponse(resp)
		return nil
	case statusWrongCredentials:
		return &Error{Kind: KindInvalidCredentials, Op: op, StatusCode: resp.StatusCode}
	case statusNeedsVerification, statusProtectedAccount:
		return &Error{Kind: KindAccountRestricted, Op: op, StatusCode: resp.StatusCode, Body: text}
	default:
		return &Error{Kind: KindProtocol, Op: op, StatusCode: resp.StatusCode, Body: text}
	}
}

// continueTarget returns the decoded continue= parameter of referer, or
// fallback when referer has none.
func continueTarget(referer, fallback string) string {
	_, rest, ok := strings.Cut(referer, "continue=")
	if !ok {
		return fallback
	}
	if i := strings.IndexByte(rest, '&'); i >= 0 {
		rest = rest[:i]
	}
	decoded, err := url.PathUnescape(rest)
	if err != nil || decoded == "" {
		return fallback
	}
	return decoded
}

func querySep(u string) string {
	if strings.Contains(u, "?") {
		return "&"
	}
	return "?"
}
