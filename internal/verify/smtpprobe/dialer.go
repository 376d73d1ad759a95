package smtpprobe

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// Dialer opens the TCP connection for an SMTP session.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type DialerConfig struct {
	ConnectTimeout time.Duration

	// SOCKS5Proxy is host:port of a SOCKS5 proxy. Empty dials directly.
	SOCKS5Proxy   string
	ProxyUser     string
	ProxyPassword string
}

// NewDialer returns a direct dialer, or a SOCKS5 dialer when a proxy is configured.
// There is no fallback to direct connections when the proxy is set.
func NewDialer(cfg DialerConfig) (Dialer, error) {
	base := &net.Dialer{Timeout: cfg.ConnectTimeout}
	addr := strings.TrimSpace(cfg.SOCKS5Proxy)
	if addr == "" {
		return base, nil
	}

	var auth *proxy.Auth
	if cfg.ProxyUser != "" {
		auth = &proxy.Auth{User: cfg.ProxyUser, Password: cfg.ProxyPassword}
	}
	d, err := proxy.SOCKS5("tcp", addr, auth, base)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy %s: %w", addr, err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 proxy %s: dialer does not support contexts", addr)
	}
	return cd, nil
}
