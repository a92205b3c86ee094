package resolver

import (
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	now := time.Now()
	addrs := []netip.Addr{netip.MustParseAddr("192.0.2.1")}

	r := NewRecord("example.com", addrs, nil, now.Add(time.Minute), now.Add(time.Second))
	_, ok := r.Vanish()
	assert.False(t, ok, "vanish before expire is dropped")
	assert.NoError(t, r.Err())
	assert.True(t, r.IsOK())
	assert.InDelta(t, 60, r.TTL(now), 1)
	assert.Equal(t, uint32(0), r.TTL(now.Add(2*time.Minute)))

	r = NewRecord("example.com", addrs, nil, time.Time{}, now.Add(time.Hour))
	_, ok = r.Vanish()
	assert.False(t, ok, "vanish without expire is dropped")

	r = NewRecord("example.com", addrs, &ResolveError{Kind: KindRefused, Msg: "by policy"}, time.Time{}, time.Time{})
	assert.Nil(t, r.Addrs())
	assert.False(t, r.IsAcceptable())
	assert.EqualError(t, r.Err(), "refused: by policy")
}

func TestTTLPolicy(t *testing.T) {
	p := TTLPolicy{PositiveMinTTL: 10, PositiveMaxTTL: 100, PositiveDelTTL: 30}
	p.Init()
	assert.Equal(t, uint32(defaultNegativeTTL), p.NegativeTTL)

	now := time.Now()
	addrs := []netip.Addr{netip.MustParseAddr("2001:db8::1")}
	for ttl, want := range map[uint32]time.Duration{1: 10 * time.Second, 50: 50 * time.Second, 1000: 100 * time.Second} {
		r := p.Resolved("example.com", ttl, addrs)
		expire, ok := r.Expire()
		require.True(t, ok)
		assert.WithinDuration(t, now.Add(want), expire, time.Second, "ttl %d", ttl)
		vanish, ok := r.Vanish()
		require.True(t, ok)
		assert.Equal(t, 30*time.Second, vanish.Sub(expire))
	}

	neg := p.Failed("example.com", &ResolveError{Kind: KindNotFound})
	_, ok := neg.Expire()
	assert.True(t, ok)
	assert.True(t, neg.IsAcceptable())

	fail := p.Failed("example.com", &ResolveError{Kind: KindTimeout})
	_, ok = fail.Expire()
	assert.False(t, ok)

	p = TTLPolicy{}
	p.Init()
	assert.Equal(t, DefaultTTLPolicy.PositiveMinTTL, p.PositiveMinTTL)
	assert.Equal(t, DefaultTTLPolicy.PositiveMaxTTL, p.PositiveMaxTTL)
}

func TestNormalizeDomain(t *testing.T) {
	for in, want := range map[string]string{
		"Example.COM.":          "example.com",
		"_sip._udp.example.com": "_sip._udp.example.com",
		"bücher.example":        "xn--bcher-kva.example",
		"localhost":             "localhost",
	} {
		got, err := NormalizeDomain(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", ".", "a..b", strings.Repeat("a", 64) + ".example", strings.Repeat("abc.", 70) + "com"} {
		_, err := NormalizeDomain(in)
		assert.ErrorIs(t, err, ErrInvalidDomain, in)
	}
}
