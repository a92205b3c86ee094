package coremain

import (
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmkol/resolver-x/pkg/resolver"
)

const testDriverType = "coremain_test"

type testDriverArgs struct {
	Addr string `yaml:"addr"`
	Fail bool   `yaml:"fail"`
}

// testDriver answers every name with addr, except names starting with
// "missing." (NXDOMAIN) and "broken." (network error).
type testDriver struct {
	addr netip.Addr
}

func init() {
	RegNewDriverFunc(testDriverType, func(_ *BD, args any) (resolver.DriverConfig, error) {
		a := args.(*testDriverArgs)
		if a.Fail {
			return nil, errors.New("init failed")
		}
		addr, err := netip.ParseAddr(a.Addr)
		if err != nil {
			return nil, err
		}
		return &testDriver{addr: addr}, nil
	}, func() any { return new(testDriverArgs) })
}

func (d *testDriver) SpawnDriver() (resolver.Driver, error) { return d, nil }

func (d *testDriver) Query(domain string, family resolver.Family, _ *resolver.RuntimeConfig, rsp *resolver.Responder) {
	go func() {
		p := resolver.DefaultTTLPolicy
		switch {
		case strings.HasPrefix(domain, "missing."):
			rsp.Send(p.Failed(domain, &resolver.ResolveError{Kind: resolver.KindNotFound}))
		case strings.HasPrefix(domain, "broken."):
			rsp.Send(p.Failed(domain, &resolver.ResolveError{Kind: resolver.KindNetwork}))
		case d.addr.Is4() == (family == resolver.FamilyV4):
			rsp.Send(p.Resolved(domain, 60, []netip.Addr{d.addr}))
		default:
			rsp.Send(p.Failed(domain, &resolver.ResolveError{Kind: resolver.KindNoData}))
		}
	}()
}

func testResolverConfig(name, addr string) ResolverConfig {
	return ResolverConfig{
		Name:   name,
		Driver: DriverSpec{Type: testDriverType, Args: map[string]any{"addr": addr}},
	}
}

func newTestServer(t *testing.T, rcs ...ResolverConfig) *Server {
	t.Helper()
	s, err := NewServer(&Config{Resolvers: rcs}, nil)
	require.NoError(t, err)
	t.Cleanup(s.closeResolvers)
	return s
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}
