package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// AcceptEncoding is advertised on requests that do not set their own.
const AcceptEncoding = "gzip, deflate, br, zstd"

// DecodingTransport advertises AcceptEncoding and transparently decodes
// gzip, deflate, br and zstd response bodies.  Decoded responses lose their
// Content-Encoding and Content-Length headers and have Uncompressed set.
//
// net/http only handles gzip on its own, and only when it chose the
// Accept-Encoding itself; the chrome profile disables that entirely.
type DecodingTransport struct {
	// Base is the wrapped transport.  Nil means http.DefaultTransport.
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *DecodingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", AcceptEncoding)
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.Uncompressed || !hasBody(req, resp) {
		return resp, nil
	}

	codings := contentCodings(resp.Header.Get("Content-Encoding"))
	if len(codings) == 0 {
		return resp, nil
	}

	body, err := decodeBody(resp.Body, codings)
	if err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("client: decode %s response: %w", strings.Join(codings, ","), err)
	}
	resp.Body = body
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return resp, nil
}

func hasBody(req *http.Request, resp *http.Response) bool {
	if req.Method == http.MethodHead {
		return false
	}
	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusNotModified:
		return false
	}
	return resp.Body != nil && resp.Body != http.NoBody
}

// contentCodings splits a Content-Encoding value, dropping "identity".
func contentCodings(v string) []string {
	var out []string
	for _, c := range strings.Split(v, ",") {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || c == "identity" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ErrUnsupportedEncoding is returned for a Content-Encoding no decoder
// exists for.
var ErrUnsupportedEncoding = errors.New("unsupported content encoding")

// decodeBody undoes codings, which are listed in the order they were
// applied.
func decodeBody(rc io.ReadCloser, codings []string) (io.ReadCloser, error) {
	d := &decodedBody{raw: rc, r: rc}
	for i := len(codings) - 1; i >= 0; i-- {
		if err := d.push(codings[i]); err != nil {
			_ = d.closeDecoders()
			return nil, err
		}
	}
	return d, nil
}

// decodedBody chains decoders over the raw body.  Close releases the
// decoders first, then the connection.
type decodedBody struct {
	raw     io.ReadCloser
	r       io.Reader
	closers []func() error
}

func (d *decodedBody) push(coding string) error {
	switch coding {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(d.r)
		if err != nil {
			return err
		}
		d.r = zr
		d.closers = append(d.closers, zr.Close)
	case "deflate":
		d.r = newDeflateReader(d.r, d)
	case "br":
		d.r = brotli.NewReader(d.r)
	case "zstd":
		zr, err := zstd.NewReader(d.r)
		if err != nil {
			return err
		}
		d.r = zr
		d.closers = append(d.closers, func() error { zr.Close(); return nil })
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedEncoding, coding)
	}
	return nil
}

// newDeflateReader accepts both zlib-wrapped streams, which RFC 9110 calls
// deflate, and the raw DEFLATE some servers send instead.
func newDeflateReader(r io.Reader, d *decodedBody) io.Reader {
	br := bufio.NewReader(r)
	if hdr, err := br.Peek(2); err == nil && isZlibHeader(hdr[0], hdr[1]) {
		if zr, err := zlib.NewReader(br); err == nil {
			d.closers = append(d.closers, zr.Close)
			return zr
		}
	}
	fr := flate.NewReader(br)
	d.closers = append(d.closers, fr.Close)
	return fr
}

func isZlibHeader(cmf, flg byte) bool {
	return cmf&0x0f == 8 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}

func (d *decodedBody) Read(p []byte) (int, error) { return d.r.Read(p) }

func (d *decodedBody) closeDecoders() error {
	var first error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	d.closers = nil
	return first
}

func (d *decodedBody) Close() error {
	derr := d.closeDecoders()
	if err := d.raw.Close(); err != nil {
		return err
	}
	return derr
}
