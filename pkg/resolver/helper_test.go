package resolver

import (
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type driverQuery struct {
	domain string
	family Family
	cfg    *RuntimeConfig
	rsp    *Responder
}

// manualDriver hands every query to the test, which answers it by hand.
type manualDriver struct {
	queries chan driverQuery
	n       atomic.Int64
}

func newManualDriver() *manualDriver {
	return &manualDriver{queries: make(chan driverQuery, 128)}
}

func (d *manualDriver) Query(domain string, family Family, cfg *RuntimeConfig, rsp *Responder) {
	d.n.Add(1)
	d.queries <- driverQuery{domain: domain, family: family, cfg: cfg, rsp: rsp}
}

func (d *manualDriver) next(t *testing.T) driverQuery {
	t.Helper()
	select {
	case q := <-d.queries:
		return q
	case <-time.After(2 * time.Second):
		t.Fatal("driver query timed out")
		return driverQuery{}
	}
}

func (d *manualDriver) assertIdle(t *testing.T) {
	t.Helper()
	select {
	case q := <-d.queries:
		t.Fatalf("unexpected driver query for %s/%s", q.family, q.domain)
	case <-time.After(30 * time.Millisecond):
	}
}

type answer struct {
	addrs []netip.Addr
	err   *ResolveError
	delay time.Duration
}

// tableDriver answers from a fixed table after an optional delay.
type tableDriver struct {
	mu     sync.Mutex
	table  map[Family]map[string]answer
	policy TTLPolicy
	n      atomic.Int64
}

func newTableDriver() *tableDriver {
	return &tableDriver{
		table:  map[Family]map[string]answer{FamilyV4: {}, FamilyV6: {}},
		policy: TTLPolicy{PositiveMinTTL: 60, PositiveMaxTTL: 60, NegativeTTL: 10},
	}
}

func (d *tableDriver) set(f Family, domain string, a answer) {
	d.mu.Lock()
	d.table[f][domain] = a
	d.mu.Unlock()
}

func (d *tableDriver) Query(domain string, family Family, _ *RuntimeConfig, rsp *Responder) {
	d.n.Add(1)
	d.mu.Lock()
	a, ok := d.table[family][domain]
	d.mu.Unlock()
	go func() {
		if a.delay > 0 {
			time.Sleep(a.delay)
		}
		switch {
		case !ok:
			rsp.Send(d.policy.Failed(domain, &ResolveError{Kind: KindNotFound}))
		case a.err != nil:
			rsp.Send(d.policy.Failed(domain, a.err))
		default:
			rsp.Send(d.policy.Resolved(domain, 60, a.addrs))
		}
	}()
}

type staticDriverConfig struct {
	driver Driver
	err    error
}

func (c *staticDriverConfig) SpawnDriver() (Driver, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.driver, nil
}

var errBadDriver = errors.New("bad driver config")

func newTestResolver(t *testing.T, d Driver, rc RuntimeConfig) *Resolver {
	t.Helper()
	r, err := New("test", &Config{Runtime: rc, Driver: &staticDriverConfig{driver: d}}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func recvAnswer(t *testing.T, ch <-chan Answer) Answer {
	t.Helper()
	select {
	case a := <-ch:
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("answer timed out")
		return Answer{}
	}
}

func positiveRecord(domain string, expireIn, vanishIn time.Duration, addrs ...string) *Record {
	now := time.Now()
	ips := make([]netip.Addr, 0, len(addrs))
	for _, s := range addrs {
		ips = append(ips, netip.MustParseAddr(s))
	}
	var vanish time.Time
	if vanishIn > 0 {
		vanish = now.Add(vanishIn)
	}
	return NewRecord(domain, ips, nil, now.Add(expireIn), vanish)
}

func failedRecord(domain string, kind ErrorKind) *Record {
	return NewRecord(domain, nil, &ResolveError{Kind: kind}, time.Time{}, time.Time{})
}
