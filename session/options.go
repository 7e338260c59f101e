package session

import (
	"net/http"

	"github.com/cjh980402/kakao-link/cryptojs"
	"github.com/cjh980402/kakao-link/logger"
	"github.com/cjh980402/kakao-link/metrics"
	"github.com/cjh980402/kakao-link/schema"
)

// Cipher encrypts a credential with the one-time key from the login page.
type Cipher interface {
	Encrypt(plaintext, key string) (string, error)
}

// CipherFunc adapts a function to Cipher.
type CipherFunc func(plaintext, key string) (string, error)

// Encrypt calls f.
func (f CipherFunc) Encrypt(plaintext, key string) (string, error) { return f(plaintext, key) }

// Option customises a Client built by New.
type Option func(*Client)

// WithHTTPClient sets the HTTP client, typically one from client.NewHTTPClient.
// It must not have a cookie jar.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithEndpoints replaces the production URLs.
func WithEndpoints(e Endpoints) Option {
	return func(c *Client) { c.endpoints = e }
}

// WithCipher replaces the default CryptoJS-compatible AES cipher.
func WithCipher(ci Cipher) Option {
	return func(c *Client) {
		if ci != nil {
			c.cipher = ci
		}
	}
}

// WithLogger enables logging.  Without it the client logs nothing.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics records requests, logins and sends into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithSchemaWatcher reports shape changes in the authenticate and chats
// responses as warnings.
func WithSchemaWatcher(w *schema.Watcher) Option {
	return func(c *Client) { c.watcher = w }
}

// WithTolerantBeacon lets Login continue when the telemetry beacon request
// fails.  By default such a failure aborts the login.
func WithTolerantBeacon() Option {
	return func(c *Client) { c.tolerantBeacon = true }
}

var defaultCipher = CipherFunc(cryptojs.Encrypt)
