package coremain

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/pmkol/resolver-x/pkg/resolver"
	"github.com/pmkol/resolver-x/pkg/safe_close"
)

// Server owns the named resolvers of a config and the api around them.
type Server struct {
	logger *zap.Logger

	mu        sync.RWMutex
	resolvers map[string]*resolver.Resolver

	collector  *resolver.Collector
	metricsReg *prometheus.Registry
	httpAPIMux *http.ServeMux

	sc *safe_close.SafeClose
}

// NewServer starts every resolver of cfg. Nothing is left running on error.
func NewServer(cfg *Config, lg *zap.Logger) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if lg == nil {
		lg = zap.NewNop()
	}

	s := &Server{
		logger:     lg,
		resolvers:  make(map[string]*resolver.Resolver, len(cfg.Resolvers)),
		collector:  resolver.NewCollector(),
		metricsReg: newMetricsReg(),
		httpAPIMux: http.NewServeMux(),
		sc:         safe_close.NewSafeClose(),
	}
	s.metricsReg.MustRegister(s.collector)
	s.registerAPI()

	for i := range cfg.Resolvers {
		rc := &cfg.Resolvers[i]
		if err := s.startResolver(rc); err != nil {
			s.closeResolvers()
			return nil, fmt.Errorf("failed to start resolver %s, %w", rc.Name, err)
		}
	}
	return s, nil
}

func (s *Server) buildConfig(rc *ResolverConfig) (*resolver.Config, error) {
	dc, err := NewDriverConfig(rc.Name, &rc.Driver, s.logger.With(zap.String("resolver", rc.Name)))
	if err != nil {
		return nil, err
	}
	return &resolver.Config{
		Runtime: resolver.RuntimeConfig{
			InitialCacheCapacity:   rc.InitialCacheCapacity,
			BatchRequestCount:      rc.BatchRequestCount,
			ProtectiveQueryTimeout: rc.ProtectiveQueryTimeout,
			GracefulStopWait:       rc.GracefulStopWait,
		},
		Driver: dc,
	}, nil
}

// startResolver must be called with s.mu held or before s is shared.
func (s *Server) startResolver(rc *ResolverConfig) error {
	c, err := s.buildConfig(rc)
	if err != nil {
		return err
	}
	r, err := resolver.New(rc.Name, c, s.logger)
	if err != nil {
		return err
	}
	s.resolvers[rc.Name] = r
	s.collector.Add(r)
	s.logger.Info("resolver started", zap.String("resolver", rc.Name), zap.String("driver", rc.Driver.Type))
	return nil
}

// Apply brings the running resolvers in line with cfg: existing ones are
// updated in place, new ones started and missing ones quit. Resolvers whose
// new config is broken keep running with the old one.
func (s *Server) Apply(cfg *Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	keep := make(map[string]struct{}, len(cfg.Resolvers))
	for i := range cfg.Resolvers {
		rc := &cfg.Resolvers[i]
		keep[rc.Name] = struct{}{}

		r, ok := s.resolvers[rc.Name]
		if !ok {
			if err := s.startResolver(rc); err != nil {
				errs = append(errs, fmt.Errorf("resolver %s: %w", rc.Name, err))
			}
			continue
		}
		c, err := s.buildConfig(rc)
		if err != nil {
			errs = append(errs, fmt.Errorf("resolver %s: %w", rc.Name, err))
			continue
		}
		if err := r.Update(c); err != nil {
			errs = append(errs, fmt.Errorf("resolver %s: %w", rc.Name, err))
			continue
		}
		s.logger.Info("resolver updated", zap.String("resolver", rc.Name))
	}

	for name, r := range s.resolvers {
		if _, ok := keep[name]; ok {
			continue
		}
		r.Quit()
		delete(s.resolvers, name)
		s.collector.Remove(name)
		s.logger.Info("resolver removed", zap.String("resolver", name))
	}
	return errors.Join(errs...)
}

func (s *Server) Resolver(name string) (*resolver.Resolver, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resolvers[name]
	return r, ok
}

// ResolverNames returns the names of the running resolvers, sorted.
func (s *Server) ResolverNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.resolvers))
	for name := range s.resolvers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) closeResolvers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, r := range s.resolvers {
		_ = r.Close()
		s.collector.Remove(name)
		delete(s.resolvers, name)
	}
}

// Run serves the api and watches cfgFile, if set, until Shutdown is called
// or a fatal error occurs.
func (s *Server) Run(cfg *Config, cfgFile string) error {
	if httpAddr := cfg.API.HTTP; len(httpAddr) > 0 {
		httpServer := &http.Server{
			Addr:    httpAddr,
			Handler: s.httpAPIMux,
		}
		s.sc.Attach(func(closeSignal <-chan struct{}) {
			errChan := make(chan error, 1)
			go func() {
				s.logger.Info("starting api http server", zap.String("addr", httpAddr))
				errChan <- httpServer.ListenAndServe()
			}()
			select {
			case err := <-errChan:
				s.sc.SendCloseSignal(err)
			case <-closeSignal:
				_ = httpServer.Close()
			}
		})
	}

	if len(cfgFile) > 0 {
		if err := s.watchConfig(cfgFile, loadFullConfig); err != nil {
			s.logger.Warn("config hot reload disabled", zap.Error(err))
		}
	}

	<-s.sc.ReceiveCloseSignal()
	s.closeResolvers()
	s.sc.Done()
	s.sc.CloseWait()
	return s.sc.Err()
}

// Shutdown stops Run. It does not wait.
func (s *Server) Shutdown() {
	s.sc.SendCloseSignal(nil)
}

func (s *Server) GetMetricsReg() prometheus.Registerer {
	return s.metricsReg
}

func (s *Server) GetHTTPAPIMux() *http.ServeMux {
	return s.httpAPIMux
}

func newMetricsReg() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	return reg
}
