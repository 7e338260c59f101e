// Package scrape locates the handful of values the share flow needs inside
// server-rendered pages.  It does not validate page structure; each lookup
// either finds its field or reports absence.
package scrape

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cjh980402/kakao-link/jsexpr"
)

// Selectors for the fields we read.
const (
	nextDataSelector  = "script#__NEXT_DATA__"
	keyInputSelector  = "input[name=p]"
	talkLinkSelector  = "#validatedTalkLink"
	csrfHostSelector  = "div"
	csrfHostAttribute = "ng-init"
)

// Document is a parsed HTML page.
type Document struct {
	doc *goquery.Document
}

// Parse reads and parses an HTML document from r.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("scrape: parse html: %w", err)
	}
	return &Document{doc: doc}, nil
}

// ParseString parses an HTML document held in memory.
func ParseString(html string) (*Document, error) {
	return Parse(strings.NewReader(html))
}

// nextData is the slice of the __NEXT_DATA__ blob holding the login key.
type nextData struct {
	Props struct {
		PageProps struct {
			PageContext struct {
				CommonContext struct {
					P string `json:"p"`
				} `json:"commonContext"`
			} `json:"pageContext"`
		} `json:"pageProps"`
	} `json:"props"`
}

// EncryptionKey returns the one-time key the login page issues for
// encrypting credentials.  The structured __NEXT_DATA__ blob is consulted
// first; pages without it carry the key in a hidden input named "p".
func (d *Document) EncryptionKey() (string, bool) {
	if raw := strings.TrimSpace(d.doc.Find(nextDataSelector).First().Text()); raw != "" {
		var nd nextData
		if err := json.Unmarshal([]byte(raw), &nd); err == nil {
			if p := nd.Props.PageProps.PageContext.CommonContext.P; p != "" {
				return p, true
			}
		}
	}
	v, ok := d.doc.Find(keyInputSelector).First().Attr("value")
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// ValidatedTalkLink returns the raw value of the hidden validatedTalkLink
// field: the server's pre-validated share payload, replayed verbatim.
func (d *Document) ValidatedTalkLink() (string, bool) {
	v, ok := d.doc.Find(talkLinkSelector).First().Attr("value")
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// CSRFToken returns the first single-quoted argument of the ng-init
// expression on the page's last div.  A last div without ng-init means the
// page is not the picker, and no token is reported.
func (d *Document) CSRFToken() (string, bool) {
	expr, ok := d.doc.Find(csrfHostSelector).Last().Attr(csrfHostAttribute)
	if !ok {
		return "", false
	}
	return jsexpr.FirstStringArg(expr)
}
