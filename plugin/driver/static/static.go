package static

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/pmkol/resolver-x/coremain"
	"github.com/pmkol/resolver-x/pkg/resolver"
)

const PluginType = "static"

func init() {
	coremain.RegNewDriverFunc(PluginType, Init, func() any { return new(Args) })
}

type Args struct {
	// Hosts are hosts file style lines: "domain ip [ip...]".
	Hosts []string           `yaml:"hosts"`
	Delay time.Duration      `yaml:"delay"`
	TTL   resolver.TTLPolicy `yaml:"ttl"`
}

func Init(_ *coremain.BD, args any) (resolver.DriverConfig, error) {
	return NewConfig(args.(*Args))
}

type entry struct {
	v4 []netip.Addr
	v6 []netip.Addr
}

// Config is immutable, every spawned driver shares its table.
type Config struct {
	table  map[string]*entry
	delay  time.Duration
	policy resolver.TTLPolicy
}

func NewConfig(args *Args) (*Config, error) {
	c := &Config{
		table:  make(map[string]*entry, len(args.Hosts)),
		delay:  args.Delay,
		policy: args.TTL,
	}
	c.policy.Init()
	for i, line := range args.Hosts {
		if err := c.addLine(line); err != nil {
			return nil, fmt.Errorf("invalid hosts line #%d, %w", i, err)
		}
	}
	return c, nil
}

func (c *Config) addLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return fmt.Errorf("want a domain and at least one address, got %q", line)
	}
	domain, err := resolver.NormalizeDomain(fields[0])
	if err != nil {
		return err
	}
	e := c.table[domain]
	if e == nil {
		e = new(entry)
		c.table[domain] = e
	}
	for _, s := range fields[1:] {
		ip, err := netip.ParseAddr(s)
		if err != nil {
			return err
		}
		ip = ip.Unmap()
		if ip.Is4() {
			e.v4 = append(e.v4, ip)
		} else {
			e.v6 = append(e.v6, ip)
		}
	}
	return nil
}

func (c *Config) SpawnDriver() (resolver.Driver, error) {
	return &driver{c: c}, nil
}

type driver struct {
	c *Config
}

func (d *driver) Query(domain string, family resolver.Family, _ *resolver.RuntimeConfig, rsp *resolver.Responder) {
	go func() {
		if d.c.delay > 0 {
			time.Sleep(d.c.delay)
		}
		rsp.Send(d.lookup(domain, family))
	}()
}

func (d *driver) lookup(domain string, family resolver.Family) *resolver.Record {
	e, ok := d.c.table[domain]
	if !ok {
		return d.c.policy.Failed(domain, &resolver.ResolveError{Kind: resolver.KindNotFound})
	}
	addrs := e.v4
	if family == resolver.FamilyV6 {
		addrs = e.v6
	}
	if len(addrs) == 0 {
		return d.c.policy.Failed(domain, &resolver.ResolveError{Kind: resolver.KindNoData})
	}
	return d.c.policy.Resolved(domain, d.c.policy.PositiveMaxTTL, addrs)
}
