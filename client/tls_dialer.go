package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// UTLSDialer returns a DialTLSContext-compatible function that performs the
// TLS handshake with uTLS, presenting the browser ClientHello described by
// helloID.  It is shaped for golang.org/x/net/http2.Transport.DialTLSContext.
//
// tlsCfg may be nil.  Its ServerName, when set, wins over the host in addr,
// and its InsecureSkipVerify is honoured; every other field is ignored
// because the ClientHelloSpec dictates ciphers, curves and extensions.
func UTLSDialer(helloID utls.ClientHelloID) func(ctx context.Context, network, addr string, tlsCfg *tls.Config) (net.Conn, error) {
	return func(ctx context.Context, network, addr string, tlsCfg *tls.Config) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("utls dialer: parse addr %q: %w", addr, err)
		}
		sni := host
		if tlsCfg != nil && tlsCfg.ServerName != "" {
			sni = tlsCfg.ServerName
		}

		var d net.Dialer
		rawConn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, fmt.Errorf("utls dialer: dial %s: %w", addr, err)
		}

		uCfg := &utls.Config{
			ServerName:         sni,
			InsecureSkipVerify: tlsCfg != nil && tlsCfg.InsecureSkipVerify, // #nosec G402 – caller-controlled
		}
		uConn := utls.UClient(rawConn, uCfg, helloID)

		spec := buildClientHelloSpec(helloID)
		if err := uConn.ApplyPreset(&spec); err != nil {
			_ = rawConn.Close()
			return nil, fmt.Errorf("utls dialer: apply preset for %s: %w", helloID.Str(), err)
		}

		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = uConn.Close()
			return nil, fmt.Errorf("utls dialer: TLS handshake with %s: %w", addr, err)
		}

		return uConn, nil
	}
}

// UTLSDialerHTTP1 adapts UTLSDialer to http.Transport.DialTLSContext, which
// passes no *tls.Config.  Only use it with servers that will settle on
// http/1.1: net/http cannot speak HTTP/2 over a uTLS connection.
func UTLSDialerHTTP1(helloID utls.ClientHelloID) func(ctx context.Context, network, addr string) (net.Conn, error) {
	inner := UTLSDialer(helloID)
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return inner(ctx, network, addr, nil)
	}
}

// HelloIDByName maps a config-friendly name to a ClientHelloID.  An empty
// name selects Chrome 120, the version our header set mirrors.
func HelloIDByName(name string) (utls.ClientHelloID, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "chrome120", "chrome_120":
		return utls.HelloChrome_120, nil
	case "chrome131", "chrome_131":
		return utls.HelloChrome_131, nil
	case "chrome", "chrome_auto":
		return utls.HelloChrome_Auto, nil
	}
	return utls.ClientHelloID{}, fmt.Errorf("client: unknown ClientHello %q", name)
}

// buildClientHelloSpec returns the parrot spec for the recognised Chrome IDs
// and an empty spec (uTLS fills it in during the handshake) for anything
// else.
func buildClientHelloSpec(helloID utls.ClientHelloID) utls.ClientHelloSpec {
	switch helloID {
	case utls.HelloChrome_120,
		utls.HelloChrome_120_PQ,
		utls.HelloChrome_131,
		utls.HelloChrome_Auto:
		spec, err := utls.UTLSIdToSpec(helloID)
		if err == nil {
			return spec
		}
	}
	return utls.ClientHelloSpec{}
}
