package client

import (
	"net/http"
)

type headerField struct {
	name  string
	value string
}

// OrderedHeader is an insertion-ordered header list that keeps the exact
// casing of each name.  http.Header is a map, so it can express neither.
//
// Names are compared case-insensitively by Set, Del and Get.  Not safe for
// concurrent use; build one per request.
type OrderedHeader struct {
	fields []headerField
}

// Add appends name/value, keeping any existing fields with the same name.
func (h *OrderedHeader) Add(name, value string) {
	h.fields = append(h.fields, headerField{name: name, value: value})
}

// Set replaces the first field named name in place, dropping later
// duplicates, or appends when none exists.  The surviving field takes the
// casing of name.
func (h *OrderedHeader) Set(name, value string) {
	canon := http.CanonicalHeaderKey(name)
	kept := h.fields[:0]
	seen := false
	for _, f := range h.fields {
		if http.CanonicalHeaderKey(f.name) != canon {
			kept = append(kept, f)
			continue
		}
		if !seen {
			kept = append(kept, headerField{name: name, value: value})
			seen = true
		}
	}
	if !seen {
		kept = append(kept, headerField{name: name, value: value})
	}
	h.fields = kept
}

// Del removes every field named name.
func (h *OrderedHeader) Del(name string) {
	canon := http.CanonicalHeaderKey(name)
	kept := h.fields[:0]
	for _, f := range h.fields {
		if http.CanonicalHeaderKey(f.name) != canon {
			kept = append(kept, f)
		}
	}
	h.fields = kept
}

// Get returns the first value for name, or "".
func (h *OrderedHeader) Get(name string) string {
	canon := http.CanonicalHeaderKey(name)
	for _, f := range h.fields {
		if http.CanonicalHeaderKey(f.name) == canon {
			return f.value
		}
	}
	return ""
}

// Names returns the field names in wire order, duplicates included.
func (h *OrderedHeader) Names() []string {
	out := make([]string, len(h.fields))
	for i, f := range h.fields {
		out[i] = f.name
	}
	return out
}

// Len reports the number of fields, duplicates included.
func (h *OrderedHeader) Len() int { return len(h.fields) }

// Clone returns an independent copy.
func (h *OrderedHeader) Clone() *OrderedHeader {
	c := &OrderedHeader{fields: make([]headerField, len(h.fields))}
	copy(c.fields, h.fields)
	return c
}

// ApplyToRequest replaces req.Header with the fields of h.  Names are written
// into the map verbatim, bypassing canonicalisation, so their casing
// survives to the transport.
func (h *OrderedHeader) ApplyToRequest(req *http.Request) {
	req.Header = h.ToHTTPHeader()
}

// ToHTTPHeader converts h to an http.Header keyed by the raw names.  Order is
// lost; casing is not.
func (h *OrderedHeader) ToHTTPHeader() http.Header {
	out := make(http.Header, len(h.fields))
	for _, f := range h.fields {
		out[f.name] = append(out[f.name], f.value)
	}
	return out
}

// ChromeOrderedHeaders returns the headers Chrome 120 on Windows sends with
// a same-site fetch, in Chrome's order.  The session overrides User-Agent,
// Referer, Cookie and the content headers per request.
func ChromeOrderedHeaders() *OrderedHeader {
	h := &OrderedHeader{}
	h.Add("sec-ch-ua", `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`)
	h.Add("sec-ch-ua-mobile", "?0")
	h.Add("sec-ch-ua-platform", `"Windows"`)
	h.Add("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	h.Add("Accept", "application/json, text/plain, */*")
	h.Add("sec-fetch-site", "same-origin")
	h.Add("sec-fetch-mode", "cors")
	h.Add("sec-fetch-dest", "empty")
	h.Add("accept-encoding", "gzip, deflate, br, zstd")
	h.Add("accept-language", "en-US,en;q=0.9")
	return h
}
