package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/pmkol/resolver-x/pkg/pool"
)

type QueryStrategy uint8

const (
	Ipv4First QueryStrategy = iota
	Ipv6First
	Ipv4Only
	Ipv6Only
)

func (s QueryStrategy) String() string {
	switch s {
	case Ipv4First:
		return "ipv4_first"
	case Ipv6First:
		return "ipv6_first"
	case Ipv4Only:
		return "ipv4_only"
	case Ipv6Only:
		return "ipv6_only"
	default:
		return fmt.Sprintf("strategy(%d)", uint8(s))
	}
}

func ParseQueryStrategy(s string) (QueryStrategy, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "", "ipv4_first", "ipv4first":
		return Ipv4First, nil
	case "ipv6_first", "ipv6first":
		return Ipv6First, nil
	case "ipv4_only", "ipv4only", "ipv4":
		return Ipv4Only, nil
	case "ipv6_only", "ipv6only", "ipv6":
		return Ipv6Only, nil
	default:
		return 0, fmt.Errorf("unknown query strategy %q", s)
	}
}

// DefaultResolutionDelay is the time to wait for the preferred family once the
// other one has answered, see RFC 8305 section 3.
const DefaultResolutionDelay = 50 * time.Millisecond

var errNoAddress = errors.New("no address found")

// ResolveAddrs resolves domain to addresses following the strategy. For the
// *_first strategies both families are queried at once; the preferred family
// wins if it answers within resolutionDelay after the other one.
func ResolveAddrs(ctx context.Context, r *Resolver, domain string, strategy QueryStrategy, resolutionDelay time.Duration) ([]netip.Addr, error) {
	switch strategy {
	case Ipv4Only:
		return resolveOne(ctx, r, FamilyV4, domain)
	case Ipv6Only:
		return resolveOne(ctx, r, FamilyV6, domain)
	}

	preferred, other := FamilyV4, FamilyV6
	if strategy == Ipv6First {
		preferred, other = FamilyV6, FamilyV4
	}
	pCh, err := r.query(ctx, preferred, domain)
	if err != nil {
		return nil, err
	}
	oCh, err := r.query(ctx, other, domain)
	if err != nil {
		return nil, err
	}

	select {
	case a := <-pCh:
		if addrs, err := answerAddrs(a); err == nil {
			return addrs, nil
		}
		// preferred failed, the other family is all that is left
		return waitAnswer(ctx, r, oCh)
	case a := <-oCh:
		addrs, err := answerAddrs(a)
		if err != nil {
			return waitAnswer(ctx, r, pCh)
		}
		return waitPreferred(ctx, r, pCh, addrs, resolutionDelay)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return closedAnswer(pCh, oCh)
	}
}

// closedAnswer picks up the answers the runtime sent before it exited.
func closedAnswer(pCh, oCh <-chan Answer) ([]netip.Addr, error) {
	err := ErrResolverClosed
	if a, ok := bufferedAnswer(pCh); ok {
		var addrs []netip.Addr
		if addrs, err = answerAddrs(a); err == nil {
			return addrs, nil
		}
	}
	if a, ok := bufferedAnswer(oCh); ok {
		return answerAddrs(a)
	}
	return nil, err
}

func bufferedAnswer(ch <-chan Answer) (Answer, bool) {
	select {
	case a := <-ch:
		return a, true
	default:
		return Answer{}, false
	}
}

// waitPreferred gives the preferred family resolutionDelay to catch up.
func waitPreferred(ctx context.Context, r *Resolver, pCh <-chan Answer, fallback []netip.Addr, delay time.Duration) ([]netip.Addr, error) {
	if delay <= 0 {
		return fallback, nil
	}
	timer := pool.GetTimer(delay)
	defer pool.ReleaseTimer(timer)
	select {
	case a := <-pCh:
		if addrs, err := answerAddrs(a); err == nil {
			return addrs, nil
		}
		return fallback, nil
	case <-timer.C:
		return fallback, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return fallback, nil
	}
}

func waitAnswer(ctx context.Context, r *Resolver, ch <-chan Answer) ([]netip.Addr, error) {
	select {
	case a := <-ch:
		return answerAddrs(a)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		if a, ok := bufferedAnswer(ch); ok {
			return answerAddrs(a)
		}
		return nil, ErrResolverClosed
	}
}

func resolveOne(ctx context.Context, r *Resolver, f Family, domain string) ([]netip.Addr, error) {
	record, _, err := r.Resolve(ctx, f, domain)
	if err != nil {
		return nil, err
	}
	return answerAddrs(Answer{Record: record})
}

func answerAddrs(a Answer) ([]netip.Addr, error) {
	if err := a.Record.Err(); err != nil {
		return nil, err
	}
	if len(a.Record.Addrs()) == 0 {
		return nil, fmt.Errorf("%w for %s", errNoAddress, a.Record.Domain())
	}
	return a.Record.Addrs(), nil
}
