package dns_forward

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pmkol/resolver-x/coremain"
	"github.com/pmkol/resolver-x/pkg/bundled_upstream"
	"github.com/pmkol/resolver-x/pkg/dnsutils"
	"github.com/pmkol/resolver-x/pkg/pool"
	"github.com/pmkol/resolver-x/pkg/resolver"
)

const PluginType = "dns"

const defaultTimeout = 5 * time.Second

func init() {
	coremain.RegNewDriverFunc(PluginType, Init, func() any { return new(Args) })
}

type Args struct {
	Upstreams []UpstreamConfig `yaml:"upstreams"`

	// Timeout of one query, including retries across upstreams. It never
	// exceeds the protective query timeout of the resolver. Default is 5s.
	Timeout time.Duration `yaml:"timeout"`

	// RateLimit is the max number of queries per second, 0 means unlimited.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	// Linux only socket options.
	SoMark       int    `yaml:"so_mark"`
	BindToDevice string `yaml:"bind_to_device"`

	TTL resolver.TTLPolicy `yaml:"ttl"`
}

func Init(bd *coremain.BD, args any) (resolver.DriverConfig, error) {
	return NewConfig(args.(*Args), bd.L())
}

// Config validates the args once. Each SpawnDriver builds fresh clients.
type Config struct {
	args    Args
	control controlFunc
	logger  *zap.Logger
}

func NewConfig(args *Args, logger *zap.Logger) (*Config, error) {
	if len(args.Upstreams) == 0 {
		return nil, errors.New("no upstream is configured")
	}
	for i := range args.Upstreams {
		if _, _, err := parseAddr(args.Upstreams[i].Addr); err != nil {
			return nil, fmt.Errorf("invalid upstream #%d, %w", i, err)
		}
	}
	control, err := newControl(args.SoMark, args.BindToDevice)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Config{args: *args, control: control, logger: logger}
	if c.args.Timeout <= 0 {
		c.args.Timeout = defaultTimeout
	}
	c.args.TTL.Init()
	return c, nil
}

func (c *Config) SpawnDriver() (resolver.Driver, error) {
	ctx, cancel := context.WithCancel(context.Background())
	d := &driver{
		ctx:     ctx,
		cancel:  cancel,
		timeout: c.args.Timeout,
		policy:  c.args.TTL,
		logger:  c.logger,
	}
	for i := range c.args.Upstreams {
		u, err := newUpstream(&c.args.Upstreams[i], c.args.Timeout, c.control)
		if err != nil {
			cancel()
			return nil, err
		}
		d.upstreams = append(d.upstreams, u)
	}
	if c.args.RateLimit > 0 {
		burst := c.args.RateBurst
		if burst <= 0 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(c.args.RateLimit), burst)
	}
	return d, nil
}

type driver struct {
	ctx    context.Context
	cancel context.CancelFunc

	upstreams []bundled_upstream.Upstream
	limiter   *rate.Limiter
	timeout   time.Duration
	policy    resolver.TTLPolicy
	logger    *zap.Logger
}

func (d *driver) Query(domain string, family resolver.Family, cfg *resolver.RuntimeConfig, rsp *resolver.Responder) {
	timeout := d.timeout
	if cfg != nil && cfg.ProtectiveQueryTimeout > 0 && cfg.ProtectiveQueryTimeout < timeout {
		timeout = cfg.ProtectiveQueryTimeout
	}
	go func() {
		ctx, cancel := context.WithTimeout(d.ctx, timeout)
		defer cancel()
		rsp.Send(d.resolve(ctx, domain, family))
	}()
}

func (d *driver) resolve(ctx context.Context, domain string, family resolver.Family) *resolver.Record {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return d.policy.Failed(domain, &resolver.ResolveError{Kind: resolver.KindTimeout, Msg: "rate limited"})
		}
	}

	q := dnsutils.FillQuery(pool.GetMsg(), domain, family)
	defer pool.ReleaseMsg(q)
	r, err := bundled_upstream.ExchangeParallel(ctx, q, d.upstreams, d.logger)
	if err != nil {
		d.logger.Debug("query failed", zap.String("domain", domain), zap.Stringer("family", family), zap.Error(err))
		return d.policy.Failed(domain, errorOf(err))
	}
	return dnsutils.ToRecord(domain, family, r, &d.policy)
}

// errorOf classifies an exchange error.
func errorOf(err error) *resolver.ResolveError {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return &resolver.ResolveError{Kind: resolver.KindTimeout, Msg: err.Error()}
	case errors.Is(err, context.Canceled):
		return &resolver.ResolveError{Kind: resolver.KindNoServer, Msg: "driver closed"}
	default:
		return &resolver.ResolveError{Kind: resolver.KindNetwork, Msg: err.Error()}
	}
}

// Close aborts the queries still running.
func (d *driver) Close() error {
	d.cancel()
	return nil
}
