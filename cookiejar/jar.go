// Package cookiejar provides the name→value cookie store a session replays on
// every request.
//
// Unlike net/http/cookiejar it does no domain, path or expiry bookkeeping:
// the remote service decides what is valid, and a stale cookie only shows up
// later as a failed request.  A name, once stored, is only ever overwritten.
package cookiejar

import (
	"net/http"
	"strings"
	"sync"
)

// Jar is a keyed cookie store.  The zero value is ready to use and it is safe
// for concurrent use.
type Jar struct {
	mu     sync.RWMutex
	values map[string]string
	order  []string // first-insertion order, used when serialising everything
}

// New returns an empty Jar.
func New() *Jar {
	return &Jar{}
}

// Merge parses one raw Set-Cookie header value and stores every name=value
// pair it carries.
//
// Transports disagree on how several cookies reach us: some deliver one header
// per cookie, others join them with commas.  Each comma-separated entry
// contributes only its first ';'-delimited token; attributes such as Path or
// Expires are discarded.  A fragment without '=' is what is left of an
// Expires date after the comma split ("21 Oct 2015 07:28:00 GMT") and is
// skipped.
func (j *Jar) Merge(setCookie string) {
	for _, entry := range strings.Split(setCookie, ",") {
		pair := entry
		if i := strings.IndexByte(pair, ';'); i >= 0 {
			pair = pair[:i]
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		j.Set(name, strings.TrimSpace(value))
	}
}

// MergeHeader merges every Set-Cookie value found in h.
func (j *Jar) MergeHeader(h http.Header) {
	for _, v := range h.Values("Set-Cookie") {
		j.Merge(v)
	}
}

// MergeResponse merges the cookies set by resp.  A nil response is ignored.
func (j *Jar) MergeResponse(resp *http.Response) {
	if resp == nil {
		return
	}
	j.MergeHeader(resp.Header)
}

// Set stores value under name, overwriting any previous value.
func (j *Jar) Set(name, value string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.values == nil {
		j.values = make(map[string]string)
	}
	if _, exists := j.values[name]; !exists {
		j.order = append(j.order, name)
	}
	j.values[name] = value
}

// Get returns the value stored under name.
func (j *Jar) Get(name string) (string, bool) {
	j.mu.RLock()
	v, ok := j.values[name]
	j.mu.RUnlock()
	return v, ok
}

// Len returns the number of stored cookies.
func (j *Jar) Len() int {
	j.mu.RLock()
	n := len(j.values)
	j.mu.RUnlock()
	return n
}

// Names returns the stored cookie names in first-insertion order.
func (j *Jar) Names() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]string, len(j.order))
	copy(out, j.order)
	return out
}

// Snapshot returns a copy of the stored cookies.
func (j *Jar) Snapshot() map[string]string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make(map[string]string, len(j.values))
	for k, v := range j.values {
		out[k] = v
	}
	return out
}

// Serialize renders a Cookie header value.  With keys it emits exactly those
// cookies, in the order given, skipping names that were never set.  Without
// keys it emits every cookie in first-insertion order.
func (j *Jar) Serialize(keys ...string) string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(keys) == 0 {
		keys = j.order
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, ok := j.values[k]
		if !ok {
			continue
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, "; ")
}
