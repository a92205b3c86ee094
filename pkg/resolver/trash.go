package resolver

import "time"

type trashedRecord struct {
	record   *Record
	vanishAt time.Time
}

// trashStore keeps expired records that may still serve as stale answers.
type trashStore struct {
	m    map[string]trashedRecord
	peak int
}

func newTrashStore(capacity int) *trashStore {
	return &trashStore{
		m:    make(map[string]trashedRecord, capacity),
		peak: capacity,
	}
}

func (t *trashStore) demote(record *Record, vanishAt time.Time) {
	t.m[record.domain] = trashedRecord{record: record, vanishAt: vanishAt}
	if len(t.m) > t.peak {
		t.peak = len(t.m)
	}
}

func (t *trashStore) lookup(domain string) (*Record, bool) {
	e, ok := t.m[domain]
	if !ok {
		return nil, false
	}
	return e.record, true
}

func (t *trashStore) promoteOut(domain string) {
	delete(t.m, domain)
}

// sweep drops every record whose vanish instant is not after now.
func (t *trashStore) sweep(now time.Time) (removed int) {
	for domain, e := range t.m {
		if !e.vanishAt.After(now) {
			delete(t.m, domain)
			removed++
		}
	}
	return removed
}

func (t *trashStore) len() int { return len(t.m) }

func (t *trashStore) capacity() int { return t.peak }
