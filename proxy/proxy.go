// Package proxy provides round-robin selection of outbound proxies for share
// clients.
package proxy

import (
	"bufio"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// Pool holds validated proxy URLs and hands them out in rotation.
//
// Thread-safety: a mutex guards the list and the cursor, so Next may be
// called from any goroutine, including concurrently with Load.
type Pool struct {
	proxies []string
	index   int
	mutex   sync.Mutex
}

// Load reads a newline-delimited proxy list from filename on fs.  Blank lines
// and lines starting with '#' are ignored.  A bare "host:port" is taken as an
// HTTP proxy.  Any line that is not a usable proxy URL fails the whole load
// and leaves the previous list in place.
func (p *Pool) Load(fs afero.Fs, filename string) error {
	f, err := fs.Open(filename)
	if err != nil {
		return fmt.Errorf("proxy: open %q: %w", filename, err)
	}
	defer f.Close()

	var loaded []string
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		normalised, err := Normalize(line)
		if err != nil {
			return fmt.Errorf("proxy: %s:%d: %w", filename, lineNo, err)
		}
		loaded = append(loaded, normalised)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("proxy: read %q: %w", filename, err)
	}

	p.mutex.Lock()
	p.proxies = loaded
	p.index = 0
	p.mutex.Unlock()
	return nil
}

// Normalize validates a proxy address and returns it as a URL string.
func Normalize(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return "", fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("proxy %q has no host", raw)
	}
	return u.String(), nil
}

// Next returns the next proxy in rotation, or "" when none are loaded, which
// callers treat as a direct connection.
func (p *Pool) Next() string {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if len(p.proxies) == 0 {
		return ""
	}
	out := p.proxies[p.index]
	p.index = (p.index + 1) % len(p.proxies)
	return out
}

// Count returns the number of loaded proxies.
func (p *Pool) Count() int {
	p.mutex.Lock()
	n := len(p.proxies)
	p.mutex.Unlock()
	return n
}
