package resolver

// Answer is what a caller receives for one request.
type Answer struct {
	Record *Record
	Source Source
}

// waiter is a one-shot reply channel with a buffer of one, so replying never
// blocks even if the caller stopped listening.
type waiter chan<- Answer

func (w waiter) reply(record *Record, source Source) {
	select {
	case w <- Answer{Record: record, Source: source}:
	default:
	}
}

// doingTracker holds the waiters of queries already handed to the driver.
// An entry with no waiters stands for a background refresh.
type doingTracker struct {
	m    map[string][]waiter
	peak int
}

func newDoingTracker(capacity int) *doingTracker {
	return &doingTracker{
		m:    make(map[string][]waiter, capacity),
		peak: capacity,
	}
}

// joinOrStart queues w behind the running query of domain, or records a new
// query and calls start.
func (d *doingTracker) joinOrStart(domain string, w waiter, start func()) {
	if ws, ok := d.m[domain]; ok {
		d.m[domain] = append(ws, w)
		return
	}
	d.m[domain] = []waiter{w}
	d.grown()
	start()
}

// startBackgroundRefreshIfAbsent calls start unless a query is already running.
func (d *doingTracker) startBackgroundRefreshIfAbsent(domain string, start func()) {
	if _, ok := d.m[domain]; ok {
		return
	}
	d.m[domain] = nil
	d.grown()
	start()
}

// complete removes the entry of domain and returns its waiters in join order.
func (d *doingTracker) complete(domain string) []waiter {
	ws, ok := d.m[domain]
	if !ok {
		return nil
	}
	delete(d.m, domain)
	return ws
}

func (d *doingTracker) grown() {
	if len(d.m) > d.peak {
		d.peak = len(d.m)
	}
}

func (d *doingTracker) len() int { return len(d.m) }

func (d *doingTracker) capacity() int { return d.peak }
