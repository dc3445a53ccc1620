package browser

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Proxy is an upstream endpoint for a browser. Chrome only takes the server
// on its command line, so credentials are answered over the Fetch domain.
type Proxy struct {
	Server   string // scheme://host:port handed to --proxy-server
	Username string
	Password string
}

// ParseProxy accepts host:port, scheme://host:port and the same forms with
// user:pass@ credentials. A missing scheme means http.
func ParseProxy(raw string) (Proxy, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Proxy{}, fmt.Errorf("browser: empty proxy")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Proxy{}, fmt.Errorf("browser: invalid proxy: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks4", "socks5":
	default:
		return Proxy{}, fmt.Errorf("browser: unsupported proxy scheme %q", u.Scheme)
	}
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil || host == "" || port == "" {
		return Proxy{}, fmt.Errorf("browser: proxy %q needs host:port", u.Redacted())
	}

	p := Proxy{Server: u.Scheme + "://" + u.Host}
	if u.User != nil {
		p.Username = u.User.Username()
		p.Password, _ = u.User.Password()
	}
	return p, nil
}

// HasCredentials reports whether the proxy expects authentication.
func (p Proxy) HasCredentials() bool { return p.Username != "" }

// String returns the endpoint without the password, for logs.
func (p Proxy) String() string {
	if p.Server == "" {
		return "direct"
	}
	if !p.HasCredentials() {
		return p.Server
	}
	scheme, host, _ := strings.Cut(p.Server, "://")
	return scheme + "://" + p.Username + "@" + host
}
