package resolver

import (
	"time"

	"github.com/pmkol/resolver-x/pkg/delay_queue"
)

type cachedRecord struct {
	record    *Record
	expireAt  time.Time
	expireKey delay_queue.Key[string]
}

// recordCache maps domains to live records of one family. Every entry owns
// exactly one key in the expiry queue.
type recordCache struct {
	m       map[string]*cachedRecord
	expired *delay_queue.DelayQueue[string]
	peak    int
}

func newRecordCache(capacity int) *recordCache {
	return &recordCache{
		m:       make(map[string]*cachedRecord, capacity),
		expired: delay_queue.New[string](capacity),
		peak:    capacity,
	}
}

func (c *recordCache) lookup(domain string) (*Record, bool) {
	e, ok := c.m[domain]
	if !ok {
		return nil, false
	}
	return e.record, true
}

// upsert stores record until expireAt. An existing entry keeps its expiry key,
// which is moved to the new instant.
func (c *recordCache) upsert(record *Record, expireAt time.Time) {
	if e, ok := c.m[record.domain]; ok {
		if !c.expired.ResetAt(e.expireKey, expireAt) {
			e.expireKey = c.expired.InsertAt(record.domain, expireAt)
		}
		e.record = record
		e.expireAt = expireAt
		return
	}
	c.m[record.domain] = &cachedRecord{
		record:    record,
		expireAt:  expireAt,
		expireKey: c.expired.InsertAt(record.domain, expireAt),
	}
	if len(c.m) > c.peak {
		c.peak = len(c.m)
	}
}

// takeExpired pops one fired domain and removes its entry. The returned
// record is nil if the entry was already gone.
func (c *recordCache) takeExpired(now time.Time) (domain string, record *Record, ok bool) {
	domain, ok = c.expired.PollExpired(now)
	if !ok {
		return "", nil, false
	}
	if e, found := c.m[domain]; found {
		delete(c.m, domain)
		record = e.record
	}
	return domain, record, true
}

func (c *recordCache) remove(domain string) {
	e, ok := c.m[domain]
	if !ok {
		return
	}
	c.expired.Remove(e.expireKey)
	delete(c.m, domain)
}

func (c *recordCache) nextDeadline() (time.Time, bool) {
	return c.expired.NextDeadline()
}

func (c *recordCache) len() int { return len(c.m) }

func (c *recordCache) capacity() int { return c.peak }
