package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrResolverClosed = errors.New("resolver closed")
	ErrInvalidDomain  = errors.New("invalid domain")
)

var nopLogger = zap.NewNop()

// Resolver is the handle of a running resolver runtime. All methods are safe
// for concurrent use.
type Resolver struct {
	name  string
	stats *Stats

	reqCh chan request
	ctlCh chan command
	done  chan struct{}

	closeMu sync.RWMutex
	closed  bool
}

// New spawns the driver of cfg and starts the runtime loop.
func New(name string, cfg *Config, logger *zap.Logger) (*Resolver, error) {
	if logger == nil {
		logger = nopLogger
	}
	c := *cfg
	if err := c.validate(); err != nil {
		return nil, err
	}
	driver, err := c.Driver.SpawnDriver()
	if err != nil {
		return nil, fmt.Errorf("failed to spawn resolver driver: %w", err)
	}

	r := &Resolver{
		name:  name,
		stats: new(Stats),
		reqCh: make(chan request, c.Runtime.RequestQueueSize),
		ctlCh: make(chan command, 16),
		done:  make(chan struct{}),
	}
	rt := newRuntime(&c, driver, r.reqCh, r.ctlCh, r.done, r.stats, logger.With(zap.String("resolver", name)))
	go rt.run()
	return r, nil
}

func (r *Resolver) Name() string { return r.name }

func (r *Resolver) Stats() *Stats { return r.stats }

// Done is closed once the runtime loop has exited.
func (r *Resolver) Done() <-chan struct{} { return r.done }

// Query sends a request and returns the channel its single answer will be
// delivered on. The answer may be a failed record, check Record.IsAcceptable.
func (r *Resolver) Query(family Family, domain string) (<-chan Answer, error) {
	return r.query(context.Background(), family, domain)
}

func (r *Resolver) query(ctx context.Context, family Family, domain string) (<-chan Answer, error) {
	d, err := NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}
	ch := make(chan Answer, 1)

	r.closeMu.RLock()
	defer r.closeMu.RUnlock()
	if r.closed {
		return nil, ErrResolverClosed
	}
	select {
	case <-r.done:
		return nil, ErrResolverClosed
	default:
	}
	select {
	case r.reqCh <- request{family: family, domain: d, w: ch}:
		return ch, nil
	case <-r.done:
		return nil, ErrResolverClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolve queries domain and waits for the answer until ctx is done. The
// runtime does not cancel the upstream query when the caller gives up.
func (r *Resolver) Resolve(ctx context.Context, family Family, domain string) (*Record, Source, error) {
	ch, err := r.query(ctx, family, domain)
	if err != nil {
		return nil, 0, err
	}
	select {
	case a := <-ch:
		return a.Record, a.Source, nil
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case <-r.done:
		select {
		case a := <-ch:
			return a.Record, a.Source, nil
		default:
			return nil, 0, ErrResolverClosed
		}
	}
}

// Update replaces the driver and runtime config. An invalid driver config is
// rejected by the runtime and only logged.
func (r *Resolver) Update(cfg *Config) error {
	c := *cfg
	if err := c.validate(); err != nil {
		return err
	}
	return r.sendCmd(command{update: &c})
}

// Quit asks the runtime to stop after its current iteration.
func (r *Resolver) Quit() {
	_ = r.sendCmd(command{})
}

func (r *Resolver) sendCmd(cmd command) error {
	select {
	case <-r.done:
		return ErrResolverClosed
	default:
	}
	select {
	case r.ctlCh <- cmd:
		return nil
	case <-r.done:
		return ErrResolverClosed
	}
}

// Close stops accepting requests and waits for the runtime to exit.
func (r *Resolver) Close() error {
	r.closeMu.Lock()
	if !r.closed {
		r.closed = true
		close(r.reqCh)
	}
	r.closeMu.Unlock()
	<-r.done
	return nil
}
