package static

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmkol/resolver-x/coremain"
	"github.com/pmkol/resolver-x/pkg/resolver"
)

func query(t *testing.T, d resolver.Driver, domain string, f resolver.Family) *resolver.Record {
	t.Helper()
	ch := make(chan *resolver.Record, 1)
	d.Query(domain, f, nil, resolver.NewResponder(f, func(r *resolver.Record) bool {
		ch <- r
		return true
	}))
	select {
	case r := <-ch:
		return r
	case <-time.After(time.Second):
		t.Fatal("driver did not answer")
		return nil
	}
}

func Test_static(t *testing.T) {
	dc, err := coremain.NewDriverConfig("test", &coremain.DriverSpec{
		Type: PluginType,
		Args: map[string]any{
			"hosts": []any{"Router.LAN 192.168.1.1 fd00::1", "v4only.lan 10.0.0.1 10.0.0.2"},
			"delay": "10ms",
			"ttl":   map[string]any{"positive_min_ttl": 5, "positive_max_ttl": 5},
		},
	}, nil)
	require.NoError(t, err)
	d, err := dc.SpawnDriver()
	require.NoError(t, err)

	start := time.Now()
	r := query(t, d, "router.lan", resolver.FamilyV6)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("fd00::1")}, r.Addrs())
	expire, ok := r.Expire()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(5*time.Second), expire, time.Second)

	r = query(t, d, "v4only.lan", resolver.FamilyV4)
	assert.Len(t, r.Addrs(), 2)

	r = query(t, d, "v4only.lan", resolver.FamilyV6)
	assert.Equal(t, resolver.KindNoData, r.ResolveErr().Kind)

	r = query(t, d, "unknown.lan", resolver.FamilyV4)
	assert.Equal(t, resolver.KindNotFound, r.ResolveErr().Kind)
	assert.True(t, r.IsAcceptable())
}

func Test_static_bad_args(t *testing.T) {
	for _, line := range []string{"lonely.lan", "a.lan not-an-ip", "a..lan 10.0.0.1"} {
		_, err := NewConfig(&Args{Hosts: []string{line}})
		assert.Error(t, err, line)
	}
	_, err := coremain.NewDriverConfig("test", &coremain.DriverSpec{
		Type: PluginType,
		Args: map[string]any{"unknown_field": 1},
	}, nil)
	assert.Error(t, err)
}
