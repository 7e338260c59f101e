package session_test

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/cjh980402/kakao-link/session"
)

const (
	testAppKey   = "0123456789abcdef0123456789abcdef"
	testOrigin   = "https://app.example"
	testContinue = "https://accounts.kakao.com/weblogin/account/info"
	testPageKey  = "k3y"
	testCSRF     = "csrf-123"
	testTalkLink = `{"link_ver":"4.0","template_object":{"object_type":"text"}}`
)

// testCipher makes encrypted form values predictable.
var testCipher = session.CipherFunc(func(plaintext, key string) (string, error) {
	return "enc(" + plaintext + "," + key + ")", nil
})

// fakeService imitates the accounts and sharer hosts on one httptest server.
type fakeService struct {
	t   *testing.T
	srv *httptest.Server

	mu           sync.Mutex
	pageStatus   int
	pageHTML     string
	authBodies   []string // served in turn; the last one repeats
	pickerStatus int
	pickerHTML   string
	chatsStatus  int
	chatsBody    string
	dispatched   []byte
	dispatchCT   string
	pickerForm   url.Values

	skipBeaconCookie bool
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	f := &fakeService{
		t:            t,
		pageStatus:   http.StatusOK,
		pageHTML:     nextDataPage(testPageKey),
		authBodies:   []string{`{"status":0}`},
		pickerStatus: http.StatusOK,
		pickerHTML:   pickerPage(testTalkLink, testCSRF),
		chatsStatus:  http.StatusOK,
		chatsBody:    `{"chats":[{"id":1,"title":"A"},{"id":9007199254740993,"title":"B"},{"id":"0","title":"C"}],"securityKey":"sk-1"}`,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/login", f.login)
	mux.HandleFunc("/login/landing", f.landing)
	mux.HandleFunc("/track", f.track)
	mux.HandleFunc("/authenticate.json", f.authenticate)
	mux.HandleFunc("/picker", f.picker)
	mux.HandleFunc("/chats", f.chats)
	mux.HandleFunc("/dispatch", f.dispatch)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeService) endpoints() session.Endpoints {
	return session.Endpoints{
		LoginPage:      f.srv.URL + "/login",
		LoginContinue:  testContinue,
		AccountsOrigin: f.srv.URL,
		Beacon:         f.srv.URL + "/track",
		Authenticate:   f.srv.URL + "/authenticate.json",
		Picker:         f.srv.URL + "/picker",
		Chats:          f.srv.URL + "/chats",
		Dispatch:       f.srv.URL + "/dispatch",
	}
}

// landingURL is where the login page redirects to; Login records it as the
// referer.
func (f *fakeService) landingURL() string {
	return f.srv.URL + "/login/landing?continue=" + url.QueryEscape(testContinue)
}

func (f *fakeService) newClient(opts ...session.Option) *session.Client {
	f.t.Helper()
	opts = append([]session.Option{
		session.WithEndpoints(f.endpoints()),
		session.WithCipher(testCipher),
		session.WithHTTPClient(f.srv.Client()),
	}, opts...)
	c, err := session.New(testAppKey, testOrigin, opts...)
	if err != nil {
		f.t.Fatalf("New: %v", err)
	}
	return c
}

func (f *fakeService) login(w http.ResponseWriter, r *http.Request) {
	if got := r.URL.Query().Get("continue"); got != testContinue {
		f.t.Errorf("login page continue: got %q, want %q", got, testContinue)
	}
	if got := r.Header.Get("Referer"); got != f.srv.URL {
		f.t.Errorf("login page Referer: got %q, want %q", got, f.srv.URL)
	}
	if !strings.HasPrefix(r.Header.Get("User-Agent"), "sdk/1.36.6 os/javascript") {
		f.t.Errorf("login page User-Agent: got %q", r.Header.Get("User-Agent"))
	}
	http.SetCookie(w, &http.Cookie{Name: "_kadu", Value: "d1", Path: "/"})
	http.Redirect(w, r, f.landingURL(), http.StatusFound)
}

func (f *fakeService) landing(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie("_kadu"); err != nil || c.Value != "d1" {
		f.t.Errorf("redirect hop did not replay the cookie set on the redirect: %v", err)
	}
	f.mu.Lock()
	status, page := f.pageStatus, f.pageHTML
	f.mu.Unlock()
	w.Header().Add("Set-Cookie", "_maldive_oauth_webapp_session_key=s1; Path=/; HttpOnly")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, page)
}

func (f *fakeService) track(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Set-Cookie", "TIARA=t1; Expires=Wed, 21 Oct 2037 07:28:00 GMT; Path=/")
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeService) authenticate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		f.t.Errorf("authenticate: parse form: %v", err)
	}
	want := map[string]string{
		"os":        "web",
		"webview_v": "2",
		"email":     "enc(u@e.com," + testPageKey + ")",
		"password":  "enc(pw," + testPageKey + ")",
		"continue":  testContinue,
		"third":     "false",
		"k":         "true",
	}
	for k, v := range want {
		if got := r.FormValue(k); got != v {
			f.t.Errorf("authenticate form %s: got %q, want %q", k, got, v)
		}
	}
	if got := r.Header.Get("Referer"); got != f.landingURL() {
		f.t.Errorf("authenticate Referer: got %q, want %q", got, f.landingURL())
	}
	cookie := r.Header.Get("Cookie")
	need := []string{"_kadu=d1", "_maldive_oauth_webapp_session_key=s1", "TIARA=t1"}
	f.mu.Lock()
	if f.skipBeaconCookie {
		need = need[:2]
	}
	f.mu.Unlock()
	for _, c := range need {
		if !strings.Contains(cookie, c) {
			f.t.Errorf("authenticate Cookie %q lacks %s", cookie, c)
		}
	}

	f.mu.Lock()
	body := f.authBodies[0]
	if len(f.authBodies) > 1 {
		f.authBodies = f.authBodies[1:]
	}
	f.mu.Unlock()

	var parsed struct{ Status int }
	_ = json.Unmarshal([]byte(body), &parsed)
	if parsed.Status == 0 {
		for _, name := range session.AuthCookieNames {
			w.Header().Add("Set-Cookie", name+"=v"+name+"; Domain=.kakao.com; Path=/; Secure")
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func (f *fakeService) picker(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		f.t.Errorf("picker: parse form: %v", err)
	}
	f.mu.Lock()
	f.pickerForm = r.MultipartForm.Value
	status, page := f.pickerStatus, f.pickerHTML
	f.mu.Unlock()

	w.Header().Add("Set-Cookie", "KSHARER=ks1; Path=/")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, page)
}

func (f *fakeService) checkSharerHeaders(r *http.Request, endpoint string) {
	if got := r.Header.Get("Csrf-Token"); got != testCSRF {
		f.t.Errorf("%s Csrf-Token: got %q", endpoint, got)
	}
	if got := r.Header.Get("App-Key"); got != testAppKey {
		f.t.Errorf("%s App-Key: got %q", endpoint, got)
	}
	if got := r.Header.Get("Referer"); got != f.srv.URL+"/picker" {
		f.t.Errorf("%s Referer: got %q", endpoint, got)
	}
	if !strings.Contains(r.Header.Get("Cookie"), "KSHARER=ks1") {
		f.t.Errorf("%s Cookie lacks KSHARER: %q", endpoint, r.Header.Get("Cookie"))
	}
}

func (f *fakeService) chats(w http.ResponseWriter, r *http.Request) {
	f.checkSharerHeaders(r, "chats")
	f.mu.Lock()
	status, body := f.chatsStatus, f.chatsBody
	f.mu.Unlock()
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (f *fakeService) dispatch(w http.ResponseWriter, r *http.Request) {
	f.checkSharerHeaders(r, "dispatch")
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.dispatched = body
	f.dispatchCT = r.Header.Get("Content-Type")
	f.mu.Unlock()
	_, _ = io.WriteString(w, `{"ok":true}`)
}

func (f *fakeService) set(fn func(f *fakeService)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func nextDataPage(key string) string {
	return `<html><head></head><body><div id="__next"></div>` +
		`<script id="__NEXT_DATA__" type="application/json">` +
		fmt.Sprintf(`{"props":{"pageProps":{"pageContext":{"commonContext":{"p":%q}}}}}`, key) +
		`</script></body></html>`
}

func inputPage(key string) string {
	return `<html><body><form><input type="hidden" name="p" value="` + html.EscapeString(key) + `"></form></body></html>`
}

func pickerPage(talkLink, csrf string) string {
	var b strings.Builder
	b.WriteString(`<html><body>`)
	b.WriteString(`<input type="hidden" id="validatedTalkLink" value="` + html.EscapeString(talkLink) + `">`)
	b.WriteString(`<div ng-init="ignored('nope')"></div>`)
	if csrf != "" {
		b.WriteString(`<div ng-init="init('` + csrf + `', 'picker')"></div>`)
	} else {
		b.WriteString(`<div class="login-required"></div>`)
	}
	b.WriteString(`<footer></footer></body></html>`)
	return b.String()
}
