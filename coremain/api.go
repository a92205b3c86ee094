package coremain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/pprof"
	"net/netip"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pmkol/resolver-x/pkg/resolver"
)

const apiQueryTimeout = 10 * time.Second

func (s *Server) registerAPI() {
	s.httpAPIMux.Handle("/metrics", promhttp.HandlerFor(s.metricsReg, promhttp.HandlerOpts{}))
	s.httpAPIMux.HandleFunc("/debug/pprof/", pprof.Index)
	s.httpAPIMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	s.httpAPIMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	s.httpAPIMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	s.httpAPIMux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	s.httpAPIMux.HandleFunc("GET /resolvers", s.handleList)
	s.httpAPIMux.HandleFunc("GET /resolvers/{name}/query", s.handleQuery)
	s.httpAPIMux.HandleFunc("GET /resolvers/{name}/lookup", s.handleLookup)
}

type errorResponse struct {
	Error string `json:"error"`
}

type queryResponse struct {
	IPs []netip.Addr `json:"ips"`
}

type lookupResponse struct {
	Domain     string       `json:"domain"`
	Family     string       `json:"family"`
	Source     string       `json:"source"`
	IPs        []netip.Addr `json:"ips,omitempty"`
	Error      string       `json:"error,omitempty"`
	Acceptable bool         `json:"acceptable"`
	TTL        uint32       `json:"ttl"`
	Created    time.Time    `json:"created"`
	Expire     *time.Time   `json:"expire,omitempty"`
	Vanish     *time.Time   `json:"vanish,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write api response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.writeJSON(w, code, errorResponse{Error: err.Error()})
}

// errorStatus maps a resolve error to its http status.
func errorStatus(err error) int {
	var rErr *resolver.ResolveError
	switch {
	case errors.Is(err, resolver.ErrInvalidDomain):
		return http.StatusBadRequest
	case errors.Is(err, resolver.ErrResolverClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &rErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]string{"resolvers": s.ResolverNames()})
}

func (s *Server) lookupTarget(w http.ResponseWriter, req *http.Request) (*resolver.Resolver, string, bool) {
	r, ok := s.Resolver(req.PathValue("name"))
	if !ok {
		s.writeError(w, http.StatusNotFound, errors.New("no such resolver"))
		return nil, "", false
	}
	domain := req.URL.Query().Get("domain")
	if len(domain) == 0 {
		s.writeError(w, http.StatusBadRequest, errors.New("missing domain"))
		return nil, "", false
	}
	return r, domain, true
}

func (s *Server) handleQuery(w http.ResponseWriter, req *http.Request) {
	r, domain, ok := s.lookupTarget(w, req)
	if !ok {
		return
	}
	q := req.URL.Query()
	strategy, err := resolver.ParseQueryStrategy(q.Get("strategy"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	delay := resolver.DefaultResolutionDelay
	if v := q.Get("resolution_delay"); len(v) > 0 {
		if delay, err = time.ParseDuration(v); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	ctx, cancel := context.WithTimeout(req.Context(), apiQueryTimeout)
	defer cancel()
	ips, err := resolver.ResolveAddrs(ctx, r, domain, strategy, delay)
	if err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, queryResponse{IPs: ips})
}

func (s *Server) handleLookup(w http.ResponseWriter, req *http.Request) {
	r, domain, ok := s.lookupTarget(w, req)
	if !ok {
		return
	}
	family := resolver.FamilyV4
	switch req.URL.Query().Get("family") {
	case "", "4":
	case "6":
		family = resolver.FamilyV6
	default:
		s.writeError(w, http.StatusBadRequest, errors.New("family must be 4 or 6"))
		return
	}

	ctx, cancel := context.WithTimeout(req.Context(), apiQueryTimeout)
	defer cancel()
	record, source, err := r.Resolve(ctx, family, domain)
	if err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}

	now := time.Now()
	rsp := lookupResponse{
		Domain:     record.Domain(),
		Family:     family.String(),
		Source:     source.String(),
		IPs:        record.Addrs(),
		Acceptable: record.IsAcceptable(),
		TTL:        record.TTL(now),
		Created:    record.Created(),
	}
	if err := record.Err(); err != nil {
		rsp.Error = err.Error()
	}
	if t, ok := record.Expire(); ok {
		rsp.Expire = &t
	}
	if t, ok := record.Vanish(); ok {
		rsp.Vanish = &t
	}
	s.writeJSON(w, http.StatusOK, rsp)
}
