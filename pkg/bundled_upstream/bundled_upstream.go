/*
 * Copyright (C) 2020-2022, IrineSistiana
 *
 * This file is part of mosdns.
 */

package bundled_upstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// Upstream is one nameserver a driver can race.
type Upstream interface {
	Exchange(ctx context.Context, q *dns.Msg) (*dns.Msg, error)
	Trusted() bool
	Address() string
}

type parallelResult struct {
	r    *dns.Msg
	err  error
	from Upstream
}

var nopLogger = zap.NewNop()
var ErrAllFailed = errors.New("all upstreams failed")

func questionField(q *dns.Msg) zap.Field {
	if len(q.Question) == 0 {
		return zap.Skip()
	}
	return zap.String("question", q.Question[0].Name)
}

// ExchangeParallel sends q to all upstreams at once. The first NOERROR
// response with answers wins. Otherwise the first trusted response is
// returned, which may be a negative one, then the first negative response
// of an untrusted upstream.
func ExchangeParallel(ctx context.Context, q *dns.Msg, upstreams []Upstream, logger *zap.Logger) (*dns.Msg, error) {
	if logger == nil {
		logger = nopLogger
	}

	t := len(upstreams)
	if t == 0 {
		return nil, ErrAllFailed
	}
	if t == 1 {
		return upstreams[0].Exchange(ctx, q)
	}

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	c := make(chan *parallelResult, t)

	for _, u := range upstreams {
		u := u
		qCopy := q.Copy()
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := u.Exchange(taskCtx, qCopy)
			select {
			case c <- &parallelResult{r: r, err: err, from: u}:
			case <-taskCtx.Done():
			}
		}()
	}

	go func() {
		wg.Wait()
		close(c)
	}()

	qf := questionField(q)
	errMsgs := make([]string, 0, t)
	var trustedResponse *dns.Msg
	var negativeResponse *dns.Msg // first NXDOMAIN or NODATA of an untrusted upstream

	for res := range c {
		if res.err != nil {
			switch {
			case errors.Is(res.err, context.Canceled):
				logger.Debug("upstream exchange canceled", qf, zap.String("addr", res.from.Address()))
			case errors.Is(res.err, context.DeadlineExceeded):
				logger.Warn("upstream exchange timed out", qf, zap.String("addr", res.from.Address()))
				errMsgs = append(errMsgs, fmt.Sprintf("[%s: timeout]", res.from.Address()))
			default:
				logger.Warn("upstream exchange failed",
					qf,
					zap.String("addr", res.from.Address()),
					zap.Bool("trusted", res.from.Trusted()),
					zap.Error(res.err))
				errMsgs = append(errMsgs, fmt.Sprintf("[%s: %v]", res.from.Address(), res.err))
			}
			continue
		}

		if res.r == nil {
			continue
		}

		// empty NOERROR (NODATA) does not win the race
		if res.r.Rcode == dns.RcodeSuccess && len(res.r.Answer) > 0 {
			cancel()
			return res.r, nil
		}

		if res.from.Trusted() && trustedResponse == nil {
			trustedResponse = res.r
		} else if !res.from.Trusted() {
			if negativeResponse == nil && isNegative(res.r) {
				negativeResponse = res.r
			}
			logger.Debug("discarded untrusted response",
				qf,
				zap.String("addr", res.from.Address()),
				zap.String("rcode", dns.RcodeToString[res.r.Rcode]))
			errMsgs = append(errMsgs, fmt.Sprintf("[%s: rcode %s]", res.from.Address(), dns.RcodeToString[res.r.Rcode]))
		}
	}

	if trustedResponse != nil {
		return trustedResponse, nil
	}
	if negativeResponse != nil {
		return negativeResponse, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(errMsgs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrAllFailed, strings.Join(errMsgs, ", "))
	}
	return nil, ErrAllFailed
}

func isNegative(r *dns.Msg) bool {
	return r.Rcode == dns.RcodeNameError || (r.Rcode == dns.RcodeSuccess && len(r.Answer) == 0)
}
