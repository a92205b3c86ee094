package dns_forward

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

type UpstreamConfig struct {
	// Addr is "[scheme://]host[:port]". Schemes are udp (default), tcp and
	// tls. Default ports are 53, or 853 for tls.
	Addr    string `yaml:"addr"`
	Trusted bool   `yaml:"trusted"`

	// Used by tls only.
	ServerName         string `yaml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// parseAddr returns the miekg/dns network name and host:port of addr.
func parseAddr(addr string) (network, hostport string, err error) {
	scheme, rest, found := strings.Cut(addr, "://")
	if !found {
		scheme, rest = "udp", addr
	}
	defaultPort := "53"
	switch scheme {
	case "udp":
		network = "udp"
	case "tcp":
		network = "tcp"
	case "tls", "dot":
		network = "tcp-tls"
		defaultPort = "853"
	default:
		return "", "", fmt.Errorf("unsupported upstream scheme %q", scheme)
	}
	if len(rest) == 0 {
		return "", "", fmt.Errorf("empty upstream address %q", addr)
	}
	if _, _, err := net.SplitHostPort(rest); err != nil {
		rest = net.JoinHostPort(strings.Trim(rest, "[]"), defaultPort)
	}
	return network, rest, nil
}

// upstream is one nameserver, it implements bundled_upstream.Upstream.
type upstream struct {
	addr    string
	trusted bool
	client  *dns.Client
}

func newUpstream(cfg *UpstreamConfig, timeout time.Duration, control controlFunc) (*upstream, error) {
	network, hostport, err := parseAddr(cfg.Addr)
	if err != nil {
		return nil, err
	}
	c := &dns.Client{
		Net:     network,
		Timeout: timeout,
		Dialer:  &net.Dialer{Timeout: timeout, Control: control},
	}
	if network == "tcp-tls" {
		serverName := cfg.ServerName
		if len(serverName) == 0 {
			serverName, _, _ = net.SplitHostPort(hostport)
		}
		c.TLSConfig = &tls.Config{
			ServerName:         serverName,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}
	}
	return &upstream{addr: hostport, trusted: cfg.Trusted, client: c}, nil
}

func (u *upstream) Exchange(ctx context.Context, q *dns.Msg) (*dns.Msg, error) {
	r, _, err := u.client.ExchangeContext(ctx, q, u.addr)
	return r, err
}

func (u *upstream) Trusted() bool { return u.trusted }

func (u *upstream) Address() string { return u.client.Net + "://" + u.addr }
