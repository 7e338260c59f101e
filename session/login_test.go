package session_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cjh980402/kakao-link/logger"
	"github.com/cjh980402/kakao-link/metrics"
	"github.com/cjh980402/kakao-link/schema"
	"github.com/cjh980402/kakao-link/session"
)

func TestLogin_EndToEnd(t *testing.T) {
	f := newFakeService(t)
	m := metrics.NewMetrics()
	c := f.newClient(session.WithMetrics(m))

	if err := c.Login(context.Background(), "u@e.com", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got := c.Referer(); got != f.landingURL() {
		t.Errorf("Referer: got %q, want %q", got, f.landingURL())
	}
	if !c.HasAuthCookies() {
		t.Errorf("auth cookies missing; have %v", c.Cookies())
	}
	cookies := c.Cookies()
	for _, name := range append([]string{"_kadu", "_maldive_oauth_webapp_session_key", "TIARA"}, session.AuthCookieNames...) {
		if _, ok := cookies[name]; !ok {
			t.Errorf("cookie %s missing", name)
		}
	}
	if cookies["_kawlt"] != "v_kawlt" {
		t.Errorf("_kawlt: got %q", cookies["_kawlt"])
	}

	snap := m.Snapshot()
	if snap.Logins != 1 || snap.LoginFailures != 0 {
		t.Errorf("metrics: %+v", snap)
	}
	// The login page redirect is followed inside one exchange.
	if snap.Requests != 3 {
		t.Errorf("Requests: got %d, want 3", snap.Requests)
	}
}

func TestLogin_HiddenInputKey(t *testing.T) {
	f := newFakeService(t)
	f.set(func(f *fakeService) { f.pageHTML = inputPage(testPageKey) })
	c := f.newClient()
	if err := c.Login(context.Background(), "u@e.com", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
}

func TestLogin_StatusMapping(t *testing.T) {
	cases := []struct {
		body     string
		want     error
		wantBody bool
	}{
		{`{"status":-450}`, session.ErrInvalidCredentials, false},
		{`{"status":-481,"message":"verify"}`, session.ErrAccountRestricted, true},
		{`{"status":-484}`, session.ErrAccountRestricted, true},
		{`{"status":-999}`, session.ErrProtocol, true},
		{`{"nostatus":true}`, session.ErrProtocol, true},
		{`<html>`, session.ErrProtocol, true},
	}
	for _, tc := range cases {
		f := newFakeService(t)
		f.set(func(f *fakeService) { f.authBodies = []string{tc.body} })
		c := f.newClient()

		err := c.Login(context.Background(), "u@e.com", "pw")
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.body, err, tc.want)
			continue
		}
		var se *session.Error
		if !errors.As(err, &se) {
			t.Fatalf("%s: not a *session.Error", tc.body)
		}
		if tc.wantBody && se.Body != tc.body {
			t.Errorf("%s: Body got %q", tc.body, se.Body)
		}
		if c.HasAuthCookies() {
			t.Errorf("%s: failed login must not hold auth cookies", tc.body)
		}
		// Partial state stays.
		if c.Referer() == "" {
			t.Errorf("%s: referer should survive a failed authenticate", tc.body)
		}
	}
}

func TestLogin_PageNon200(t *testing.T) {
	f := newFakeService(t)
	f.set(func(f *fakeService) { f.pageStatus = http.StatusServiceUnavailable })
	c := f.newClient()

	err := c.Login(context.Background(), "u@e.com", "pw")
	if !errors.Is(err, session.ErrAuthenticationFailed) {
		t.Fatalf("got %v, want ErrAuthenticationFailed", err)
	}
	var se *session.Error
	if errors.As(err, &se) && se.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode: got %d", se.StatusCode)
	}
	if c.Referer() != "" {
		t.Error("referer must stay unset when the page request fails")
	}
}

func TestLogin_MissingKeyFailsFast(t *testing.T) {
	f := newFakeService(t)
	f.set(func(f *fakeService) { f.pageHTML = "<html><body>maintenance</body></html>" })
	c := f.newClient()

	err := c.Login(context.Background(), "u@e.com", "pw")
	if !errors.Is(err, session.ErrProtocol) {
		t.Fatalf("got %v, want ErrProtocol", err)
	}
	if session.KindOf(err) != session.KindProtocol {
		t.Errorf("KindOf: got %q", session.KindOf(err))
	}
}

func deadURL(t *testing.T) string {
	t.Helper()
	s := httptest.NewServer(http.NotFoundHandler())
	u := s.URL
	s.Close()
	return u
}

func TestLogin_BeaconFailure(t *testing.T) {
	f := newFakeService(t)
	e := f.endpoints()
	e.Beacon = deadURL(t) + "/track"

	c := f.newClient(session.WithEndpoints(e))
	err := c.Login(context.Background(), "u@e.com", "pw")
	if !errors.Is(err, session.ErrProtocol) {
		t.Fatalf("strict beacon: got %v, want ErrProtocol", err)
	}
}

func TestLogin_TolerantBeacon(t *testing.T) {
	f := newFakeService(t)
	e := f.endpoints()
	e.Beacon = deadURL(t) + "/track"

	var buf bytes.Buffer
	c := f.newClient(
		session.WithEndpoints(e),
		session.WithTolerantBeacon(),
		session.WithLogger(logger.NewWithOutput(&buf, logger.LevelDebug)),
	)
	f.set(func(f *fakeService) { f.skipBeaconCookie = true })
	if err := c.Login(context.Background(), "u@e.com", "pw"); err != nil {
		t.Fatalf("tolerant beacon: %v", err)
	}
	if !strings.Contains(buf.String(), "beacon failed") {
		t.Errorf("expected a beacon warning, log was:\n%s", buf.String())
	}
}

func TestLogin_Cancelled(t *testing.T) {
	f := newFakeService(t)
	c := f.newClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Login(ctx, "u@e.com", "pw")
	if !errors.Is(err, context.Canceled) || !errors.Is(err, session.ErrProtocol) {
		t.Errorf("got %v, want context.Canceled inside ErrProtocol", err)
	}
}

func TestLogin_CipherErrorIsProtocol(t *testing.T) {
	f := newFakeService(t)
	boom := errors.New("boom")
	c := f.newClient(session.WithCipher(session.CipherFunc(func(string, string) (string, error) {
		return "", boom
	})))
	err := c.Login(context.Background(), "u@e.com", "pw")
	if !errors.Is(err, boom) || !errors.Is(err, session.ErrProtocol) {
		t.Errorf("got %v", err)
	}
}

func TestLogin_LogsSchemaDrift(t *testing.T) {
	f := newFakeService(t)
	f.set(func(f *fakeService) {
		f.authBodies = []string{`{"status":0}`, `{"status":0,"nextUrl":"x"}`}
	})
	var buf bytes.Buffer
	c := f.newClient(
		session.WithSchemaWatcher(schema.NewWatcher()),
		session.WithLogger(logger.NewWithOutput(&buf, logger.LevelInfo)),
	)
	for i := 0; i < 2; i++ {
		if err := c.Login(context.Background(), "u@e.com", "pw"); err != nil {
			t.Fatalf("Login %d: %v", i, err)
		}
	}
	out := buf.String()
	if !strings.Contains(out, "response shape changed") || !strings.Contains(out, "nextUrl") {
		t.Errorf("expected drift warning, log was:\n%s", out)
	}
	if strings.Contains(out, testPageKey) {
		t.Error("encryption key leaked into logs")
	}
}
