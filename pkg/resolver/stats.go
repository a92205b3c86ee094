package resolver

import "sync/atomic"

// QueryStats counts requests and driver answers of one family.
type QueryStats struct {
	queryTotal   atomic.Uint64
	queryCached  atomic.Uint64
	queryTrashed atomic.Uint64
	queryDriver  atomic.Uint64

	recordOK       atomic.Uint64
	recordNegative atomic.Uint64
	recordFailed   atomic.Uint64
}

func (s *QueryStats) addRecord(r *Record) {
	switch {
	case r.IsOK():
		s.recordOK.Add(1)
	case r.IsAcceptable():
		s.recordNegative.Add(1)
	default:
		s.recordFailed.Add(1)
	}
}

func (s *QueryStats) QueryTotal() uint64   { return s.queryTotal.Load() }
func (s *QueryStats) QueryCached() uint64  { return s.queryCached.Load() }
func (s *QueryStats) QueryTrashed() uint64 { return s.queryTrashed.Load() }
func (s *QueryStats) QueryDriver() uint64  { return s.queryDriver.Load() }

func (s *QueryStats) RecordOK() uint64       { return s.recordOK.Load() }
func (s *QueryStats) RecordNegative() uint64 { return s.recordNegative.Load() }
func (s *QueryStats) RecordFailed() uint64   { return s.recordFailed.Load() }

// MemoryStats mirrors the size of the runtime maps of one family.
// Go maps never shrink, so capacity is the larger of the initial hint and the
// peak length.
type MemoryStats struct {
	cacheCapacity atomic.Int64
	cacheLength   atomic.Int64
	doingCapacity atomic.Int64
	doingLength   atomic.Int64
	trashCapacity atomic.Int64
	trashLength   atomic.Int64
}

func (s *MemoryStats) CacheCapacity() int { return int(s.cacheCapacity.Load()) }
func (s *MemoryStats) CacheLength() int   { return int(s.cacheLength.Load()) }
func (s *MemoryStats) DoingCapacity() int { return int(s.doingCapacity.Load()) }
func (s *MemoryStats) DoingLength() int   { return int(s.doingLength.Load()) }
func (s *MemoryStats) TrashCapacity() int { return int(s.trashCapacity.Load()) }
func (s *MemoryStats) TrashLength() int   { return int(s.trashLength.Load()) }

type Stats struct {
	QueryA     QueryStats
	QueryAAAA  QueryStats
	MemoryA    MemoryStats
	MemoryAAAA MemoryStats
}

func (s *Stats) Query(f Family) *QueryStats {
	if f == FamilyV6 {
		return &s.QueryAAAA
	}
	return &s.QueryA
}

func (s *Stats) Memory(f Family) *MemoryStats {
	if f == FamilyV6 {
		return &s.MemoryAAAA
	}
	return &s.MemoryA
}
