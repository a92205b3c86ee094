package resolver

import (
	"fmt"
	"net/netip"
	"time"
)

// Family is the address family a query is made for.
type Family uint8

const (
	FamilyV4 Family = iota
	FamilyV6
)

func (f Family) String() string {
	switch f {
	case FamilyV4:
		return "ipv4"
	case FamilyV6:
		return "ipv6"
	default:
		return fmt.Sprintf("family(%d)", uint8(f))
	}
}

// Source tells why a record was handed to a caller.
type Source uint8

const (
	SourceCache Source = iota
	SourceTrash
	SourceQuery
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceTrash:
		return "trash"
	case SourceQuery:
		return "query"
	default:
		return fmt.Sprintf("source(%d)", uint8(s))
	}
}

type ErrorKind uint8

const (
	KindNotFound ErrorKind = iota + 1 // NXDOMAIN
	KindNoData                        // name exists, no record of this family
	KindServerFailure
	KindRefused
	KindFormatError
	KindNotImplemented
	KindBadResponse
	KindTimeout
	KindNetwork
	KindNoServer
)

var kindNames = map[ErrorKind]string{
	KindNotFound:       "not found",
	KindNoData:         "no data",
	KindServerFailure:  "server failure",
	KindRefused:        "refused",
	KindFormatError:    "format error",
	KindNotImplemented: "not implemented",
	KindBadResponse:    "bad response",
	KindTimeout:        "timeout",
	KindNetwork:        "network error",
	KindNoServer:       "no server available",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ResolveError is the failure carried by a record. It is a value, not a
// transport error: a record with a ResolveError is still delivered to callers.
type ResolveError struct {
	Kind ErrorKind
	Msg  string
}

func (e *ResolveError) Error() string {
	if len(e.Msg) == 0 {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}

// IsAcceptable reports whether the error is a valid negative answer.
func (e *ResolveError) IsAcceptable() bool {
	return e.Kind == KindNotFound || e.Kind == KindNoData
}

// Record is a finished lookup for one (family, domain) pair.
// It is immutable once built and shared by every waiter of the same answer.
type Record struct {
	domain  string
	created time.Time
	addrs   []netip.Addr
	err     *ResolveError

	// zero means absent
	expire time.Time
	vanish time.Time
}

// NewRecord builds a record. A zero expire means the record is never cached,
// vanish is dropped unless it is strictly after expire.
func NewRecord(domain string, addrs []netip.Addr, rErr *ResolveError, expire, vanish time.Time) *Record {
	if expire.IsZero() || !vanish.After(expire) {
		vanish = time.Time{}
	}
	if rErr != nil {
		addrs = nil
	}
	return &Record{
		domain:  domain,
		created: time.Now(),
		addrs:   addrs,
		err:     rErr,
		expire:  expire,
		vanish:  vanish,
	}
}

func (r *Record) Domain() string { return r.domain }

func (r *Record) Created() time.Time { return r.created }

// Addrs returns the resolved addresses. The slice is shared and must not be modified.
func (r *Record) Addrs() []netip.Addr { return r.addrs }

// Err returns the failure of this record, nil on success.
func (r *Record) Err() error {
	if r.err == nil {
		return nil
	}
	return r.err
}

func (r *Record) ResolveErr() *ResolveError { return r.err }

func (r *Record) IsOK() bool { return r.err == nil }

// IsAcceptable reports whether the record is a usable answer (positive or
// valid negative) rather than a transient failure.
func (r *Record) IsAcceptable() bool {
	return r.err == nil || r.err.IsAcceptable()
}

func (r *Record) Expire() (time.Time, bool) { return r.expire, !r.expire.IsZero() }

func (r *Record) Vanish() (time.Time, bool) { return r.vanish, !r.vanish.IsZero() }

// TTL returns the seconds left before expiry, 0 if expired or never cached.
func (r *Record) TTL(now time.Time) uint32 {
	if r.expire.IsZero() || !r.expire.After(now) {
		return 0
	}
	return uint32(r.expire.Sub(now) / time.Second)
}

// TTLPolicy turns upstream ttl values into expire and vanish instants.
// All values are in seconds.
type TTLPolicy struct {
	PositiveMinTTL uint32 `yaml:"positive_min_ttl"`
	PositiveMaxTTL uint32 `yaml:"positive_max_ttl"`
	// PositiveDelTTL is how long an expired positive record stays usable as a
	// stale answer. Zero disables the grace period.
	PositiveDelTTL uint32 `yaml:"positive_del_ttl"`
	NegativeTTL    uint32 `yaml:"negative_ttl"`
}

const (
	defaultPositiveMinTTL = 30
	defaultPositiveMaxTTL = 3600
	defaultPositiveDelTTL = 60
	defaultNegativeTTL    = 30
)

// DefaultTTLPolicy is used by drivers when nothing is configured.
var DefaultTTLPolicy = TTLPolicy{
	PositiveMinTTL: defaultPositiveMinTTL,
	PositiveMaxTTL: defaultPositiveMaxTTL,
	PositiveDelTTL: defaultPositiveDelTTL,
	NegativeTTL:    defaultNegativeTTL,
}

func (p *TTLPolicy) Init() {
	if p.PositiveMinTTL == 0 && p.PositiveMaxTTL == 0 {
		p.PositiveMinTTL = defaultPositiveMinTTL
		p.PositiveMaxTTL = defaultPositiveMaxTTL
	}
	if p.PositiveMaxTTL < p.PositiveMinTTL {
		p.PositiveMaxTTL = p.PositiveMinTTL
	}
	if p.NegativeTTL == 0 {
		p.NegativeTTL = defaultNegativeTTL
	}
}

func (p *TTLPolicy) clamp(ttl uint32) uint32 {
	if ttl < p.PositiveMinTTL {
		return p.PositiveMinTTL
	}
	if p.PositiveMaxTTL > 0 && ttl > p.PositiveMaxTTL {
		return p.PositiveMaxTTL
	}
	return ttl
}

// Resolved builds a positive record.
func (p *TTLPolicy) Resolved(domain string, ttl uint32, addrs []netip.Addr) *Record {
	now := time.Now()
	expire := now.Add(time.Duration(p.clamp(ttl)) * time.Second)
	var vanish time.Time
	if p.PositiveDelTTL > 0 {
		vanish = expire.Add(time.Duration(p.PositiveDelTTL) * time.Second)
	}
	return NewRecord(domain, addrs, nil, expire, vanish)
}

// Failed builds a failed record. Valid negative answers are cached for
// NegativeTTL, transient failures are never cached.
func (p *TTLPolicy) Failed(domain string, rErr *ResolveError) *Record {
	var expire time.Time
	if rErr.IsAcceptable() && p.NegativeTTL > 0 {
		expire = time.Now().Add(time.Duration(p.NegativeTTL) * time.Second)
	}
	return NewRecord(domain, nil, rErr, expire, time.Time{})
}
