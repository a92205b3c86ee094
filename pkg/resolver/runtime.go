package resolver

import (
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/pmkol/resolver-x/pkg/pool"
)

// command is a control message. A nil update means quit.
type command struct {
	update *Config
}

type request struct {
	family Family
	domain string
	w      waiter
}

type familyState struct {
	family Family
	cache  *recordCache
	doing  *doingTracker
	trash  *trashStore
	query  *QueryStats
	memory *MemoryStats
}

func newFamilyState(f Family, capacity int, stats *Stats) *familyState {
	return &familyState{
		family: f,
		cache:  newRecordCache(capacity),
		doing:  newDoingTracker(capacity),
		trash:  newTrashStore(capacity),
		query:  stats.Query(f),
		memory: stats.Memory(f),
	}
}

func (s *familyState) updateMemStats() {
	s.memory.cacheCapacity.Store(int64(s.cache.capacity()))
	s.memory.cacheLength.Store(int64(s.cache.len()))
	s.memory.doingCapacity.Store(int64(s.doing.capacity()))
	s.memory.doingLength.Store(int64(s.doing.len()))
	s.memory.trashCapacity.Store(int64(s.trash.capacity()))
	s.memory.trashLength.Store(int64(s.trash.len()))
}

// runtime is the single owner of all cache, doing and trash state.
// Everything below runs on the run goroutine only.
type runtime struct {
	logger *zap.Logger
	config *Config
	driver Driver

	reqCh <-chan request
	ctlCh <-chan command
	rspCh chan response
	done  chan struct{}

	v4 *familyState
	v6 *familyState

	timer   *time.Timer
	timerAt time.Time // zero when the timer is not armed

	// events picked up while blocked in wait, handled at their slot of the next iteration
	pendingCmd *command
	pendingRsp *response
	pendingReq *request

	draining bool
}

func newRuntime(
	config *Config,
	driver Driver,
	reqCh <-chan request,
	ctlCh <-chan command,
	done chan struct{},
	stats *Stats,
	logger *zap.Logger,
) *runtime {
	capacity := config.Runtime.InitialCacheCapacity
	return &runtime{
		logger: logger,
		config: config,
		driver: driver,
		reqCh:  reqCh,
		ctlCh:  ctlCh,
		rspCh:  make(chan response, config.Runtime.ResponseQueueSize),
		done:   done,
		v4:     newFamilyState(FamilyV4, capacity, stats),
		v6:     newFamilyState(FamilyV6, capacity, stats),
		timer:  pool.NewStoppedTimer(),
	}
}

func (r *runtime) family(f Family) *familyState {
	if f == FamilyV6 {
		return r.v6
	}
	return r.v4
}

func (r *runtime) run() {
	defer r.exit()

	r.v4.updateMemStats()
	r.v6.updateMemStats()

	for {
		stop, busy := r.iterate()
		if stop || r.draining {
			return
		}
		if busy {
			continue
		}
		if r.wait() {
			return
		}
	}
}

func (r *runtime) exit() {
	pool.StopTimer(r.timer)
	close(r.done)
	if c, ok := r.driver.(io.Closer); ok {
		if err := c.Close(); err != nil {
			r.logger.Warn("failed to close resolver driver", zap.Error(err))
		}
	}
	r.logger.Debug("resolver runtime exited")
}

// iterate runs one loop iteration. busy means the request batch was full and
// more requests may be queued.
func (r *runtime) iterate() (stop, busy bool) {
	// control
	cmd := r.pendingCmd
	r.pendingCmd = nil
	if cmd == nil {
		select {
		case c := <-r.ctlCh:
			cmd = &c
		default:
		}
	}
	if cmd != nil {
		r.handleCmd(cmd)
	}

	now := time.Now()
	changed := r.v4.trash.sweep(now)+r.v6.trash.sweep(now) > 0

	// responses
	if r.pendingRsp != nil {
		r.handleRsp(*r.pendingRsp)
		r.pendingRsp = nil
		changed = true
	}
	if r.drainResponses() > 0 {
		changed = true
	}

	// expired
	now = time.Now()
	if r.handleExpired(r.v4, now)+r.handleExpired(r.v6, now) > 0 {
		changed = true
	}

	// requests
	stop, busy = r.handleRequests()

	if changed {
		r.v4.updateMemStats()
		r.v6.updateMemStats()
	}
	return stop, busy
}

func (r *runtime) drainResponses() (n int) {
	for {
		select {
		case rsp := <-r.rspCh:
			r.handleRsp(rsp)
			n++
		default:
			return n
		}
	}
}

func (r *runtime) handleRequests() (stop, busy bool) {
	batch := r.config.Runtime.BatchRequestCount
	n := 0
	if r.pendingReq != nil {
		r.handleReq(*r.pendingReq)
		r.pendingReq = nil
		n++
	}
	for ; n < batch; n++ {
		select {
		case req, ok := <-r.reqCh:
			if !ok {
				return true, false
			}
			r.handleReq(req)
		default:
			return false, false
		}
	}
	return false, true
}

// wait blocks until any event source is ready.
func (r *runtime) wait() (stop bool) {
	select {
	case cmd := <-r.ctlCh:
		r.pendingCmd = &cmd
	case rsp := <-r.rspCh:
		r.pendingRsp = &rsp
	case <-r.armTimer():
		r.timerAt = time.Time{}
	case req, ok := <-r.reqCh:
		if !ok {
			return true
		}
		r.pendingReq = &req
	}
	return false
}

// armTimer points the timer at the earliest expiry of both families and
// returns its channel, or nil if nothing is scheduled.
func (r *runtime) armTimer() <-chan time.Time {
	next, ok := r.v4.cache.nextDeadline()
	if next6, ok6 := r.v6.cache.nextDeadline(); ok6 && (!ok || next6.Before(next)) {
		next, ok = next6, true
	}
	if !ok {
		if !r.timerAt.IsZero() {
			pool.StopTimer(r.timer)
			r.timerAt = time.Time{}
		}
		return nil
	}
	if !next.Equal(r.timerAt) {
		pool.ResetTimerAt(r.timer, next)
		r.timerAt = next
	}
	return r.timer.C
}

func (r *runtime) handleCmd(cmd *command) {
	if cmd.update == nil {
		r.logger.Debug("resolver runtime is quitting")
		r.draining = true
		return
	}

	cfg := cmd.update
	driver, err := cfg.Driver.SpawnDriver()
	if err != nil {
		r.logger.Warn("invalid resolver config, the old one is kept", zap.Error(err))
		return
	}
	old := r.driver
	wait := driverCloseWait(&r.config.Runtime, &cfg.Runtime)
	r.driver = driver
	r.config = cfg
	r.logger.Info("resolver driver updated")

	// queries already handed to the old driver still answer through rspCh
	if c, ok := old.(io.Closer); ok {
		logger := r.logger
		time.AfterFunc(wait, func() {
			if err := c.Close(); err != nil {
				logger.Warn("failed to close replaced resolver driver", zap.Error(err))
			}
		})
	}
}

// driverCloseWait is how long a replaced driver is kept open. Its in-flight
// queries may run until the protective timeout they were started with.
func driverCloseWait(old, next *RuntimeConfig) time.Duration {
	return max(next.GracefulStopWait, old.ProtectiveQueryTimeout)
}

func (r *runtime) handleRsp(rsp response) {
	s := r.family(rsp.family)
	record := rsp.record
	s.query.addRecord(record)

	if !record.IsAcceptable() {
		if stale, ok := s.trash.lookup(record.domain); ok {
			ws := s.doing.complete(record.domain)
			s.query.queryTrashed.Add(uint64(len(ws)))
			for _, w := range ws {
				w.reply(stale, SourceTrash)
			}
			return
		}
	} else {
		s.trash.promoteOut(record.domain)
	}

	if ws := s.doing.complete(record.domain); len(ws) > 0 {
		last := len(ws) - 1
		s.query.queryCached.Add(uint64(last))
		for _, w := range ws[:last] {
			w.reply(record, SourceCache)
		}
		ws[last].reply(record, SourceQuery)
	}

	if expireAt, ok := record.Expire(); ok {
		s.cache.upsert(record, expireAt)
	}
}

func (r *runtime) handleExpired(s *familyState, now time.Time) (n int) {
	for {
		domain, record, ok := s.cache.takeExpired(now)
		if !ok {
			return n
		}
		n++
		if record == nil {
			continue
		}
		if vanishAt, ok := record.Vanish(); ok && vanishAt.After(now) {
			r.logger.Debug("move expired record to trash", zap.Stringer("family", s.family), zap.String("domain", domain))
			s.trash.demote(record, vanishAt)
		} else {
			r.logger.Debug("clean expired record", zap.Stringer("family", s.family), zap.String("domain", domain))
		}
	}
}

func (r *runtime) handleReq(req request) {
	s := r.family(req.family)
	s.query.queryTotal.Add(1)

	if record, ok := s.cache.lookup(req.domain); ok {
		s.query.queryCached.Add(1)
		req.w.reply(record, SourceCache)
		return
	}

	if record, ok := s.trash.lookup(req.domain); ok {
		s.query.queryTrashed.Add(1)
		req.w.reply(record, SourceTrash)
		s.doing.startBackgroundRefreshIfAbsent(req.domain, func() { r.dispatch(s, req.domain) })
		return
	}

	s.doing.joinOrStart(req.domain, req.w, func() { r.dispatch(s, req.domain) })
}

func (r *runtime) dispatch(s *familyState, domain string) {
	if r.driver == nil {
		panic("resolver: no driver to dispatch the query to")
	}
	s.query.queryDriver.Add(1)
	r.driver.Query(domain, s.family, &r.config.Runtime, newLoopResponder(s.family, r.rspCh, r.done))
}
