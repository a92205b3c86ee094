package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"

	"go4.org/netipx"
)

// BlackListedIPError is returned when every resolved address of a host is
// in the Dialer black list.
type BlackListedIPError struct {
	ip netip.Addr
}

func (b BlackListedIPError) Error() string {
	return fmt.Sprintf("IP (%s) is in a blacklisted range", b.ip)
}

// Dialer wraps net.Dialer and resolves host names through a Resolver.
type Dialer struct {
	net.Dialer

	Resolver        *Resolver
	Strategy        QueryStrategy
	ResolutionDelay time.Duration

	// Blacklist, if set, rejects resolved or literal addresses in its ranges.
	Blacklist *netipx.IPSet
	// Hosts overrides the resolver for the given names (normalized form).
	Hosts map[string][]netip.Addr
}

// NewBlacklist builds an IP set from CIDR prefixes or single addresses.
func NewBlacklist(entries []string) (*netipx.IPSet, error) {
	var b netipx.IPSetBuilder
	for _, e := range entries {
		if p, err := netip.ParsePrefix(e); err == nil {
			b.AddPrefix(p.Masked())
			continue
		}
		if ip, err := netip.ParseAddr(e); err == nil {
			b.Add(ip.Unmap())
			continue
		}
		if r, err := netipx.ParseIPRange(e); err == nil {
			b.AddRange(r)
			continue
		}
		return nil, fmt.Errorf("invalid blacklist entry %q", e)
	}
	return b.IPSet()
}

// DialContext connects to addr, where the host part of addr may be a name.
func (d *Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", port, err)
	}

	ips, err := d.lookup(ctx, host)
	if err != nil {
		return nil, err
	}

	var firstErr error
	for _, ip := range ips {
		conn, err := d.Dialer.DialContext(ctx, network, netip.AddrPortFrom(ip, uint16(portNum)).String())
		if err == nil {
			return conn, nil
		}
		if firstErr == nil {
			firstErr = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, firstErr
}

func (d *Dialer) lookup(ctx context.Context, host string) ([]netip.Addr, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		return d.filter([]netip.Addr{ip.Unmap()})
	}

	domain, err := NormalizeDomain(host)
	if err != nil {
		return nil, err
	}
	if ips, ok := d.Hosts[domain]; ok {
		return d.filter(ips)
	}
	if d.Resolver == nil {
		return nil, errors.New("dialer has no resolver")
	}
	delay := d.ResolutionDelay
	if delay == 0 {
		delay = DefaultResolutionDelay
	}
	ips, err := ResolveAddrs(ctx, d.Resolver, domain, d.Strategy, delay)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	return d.filter(ips)
}

func (d *Dialer) filter(ips []netip.Addr) ([]netip.Addr, error) {
	if d.Blacklist == nil {
		return ips, nil
	}
	allowed := make([]netip.Addr, 0, len(ips))
	for _, ip := range ips {
		if !d.Blacklist.Contains(ip.Unmap()) {
			allowed = append(allowed, ip)
		}
	}
	if len(allowed) == 0 && len(ips) > 0 {
		return nil, BlackListedIPError{ip: ips[0]}
	}
	return allowed, nil
}
