package resolver

// Driver performs the upstream lookups. Query must not block: it starts the
// work and delivers exactly one record through rsp, from any goroutine.
type Driver interface {
	Query(domain string, family Family, cfg *RuntimeConfig, rsp *Responder)
}

// DriverConfig builds drivers. It is applied at start up and on every Update.
type DriverConfig interface {
	SpawnDriver() (Driver, error)
}

// Responder carries a driver answer back to whoever asked for it.
type Responder struct {
	family Family
	send   func(*Record) bool
}

// NewResponder returns a Responder calling send with the answer. Drivers that
// wrap other drivers use it to intercept the inner answer.
func NewResponder(family Family, send func(*Record) bool) *Responder {
	return &Responder{family: family, send: send}
}

// Family returns the family the answer is expected for.
func (r *Responder) Family() Family { return r.family }

// Send delivers the record. It returns false if the receiver has gone away.
func (r *Responder) Send(record *Record) bool {
	return r.send(record)
}

type response struct {
	family Family
	record *Record
}

func newLoopResponder(family Family, ch chan<- response, done <-chan struct{}) *Responder {
	return NewResponder(family, func(record *Record) bool {
		select {
		case ch <- response{family: family, record: record}:
			return true
		case <-done:
			return false
		}
	})
}
