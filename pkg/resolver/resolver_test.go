package resolver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func Test_Resolver_dedup(t *testing.T) {
	d := newManualDriver()
	r := newTestResolver(t, d, RuntimeConfig{})

	chs := make([]<-chan Answer, 0, 3)
	for i := 0; i < 3; i++ {
		ch, err := r.Query(FamilyV4, "Example.COM.")
		require.NoError(t, err)
		chs = append(chs, ch)
	}
	require.Eventually(t, func() bool { return r.Stats().QueryA.QueryTotal() == 3 }, time.Second, time.Millisecond)

	q := d.next(t)
	assert.Equal(t, "example.com", q.domain)
	assert.Equal(t, FamilyV4, q.family)
	d.assertIdle(t)

	record := positiveRecord("example.com", time.Minute, 2*time.Minute, "192.0.2.1")
	require.True(t, q.rsp.Send(record))

	var sources []Source
	for _, ch := range chs {
		a := recvAnswer(t, ch)
		assert.Same(t, record, a.Record)
		sources = append(sources, a.Source)
	}
	// the last waiter is credited with the query
	assert.Equal(t, []Source{SourceCache, SourceCache, SourceQuery}, sources)

	// later requests are served from cache without the driver
	rec, src, err := r.Resolve(context.Background(), FamilyV4, "example.com")
	require.NoError(t, err)
	assert.Same(t, record, rec)
	assert.Equal(t, SourceCache, src)
	d.assertIdle(t)
	assert.Equal(t, uint64(1), r.Stats().QueryA.QueryDriver())
}

func Test_Resolver_families_are_separate(t *testing.T) {
	d := newManualDriver()
	r := newTestResolver(t, d, RuntimeConfig{})

	ch4, err := r.Query(FamilyV4, "example.com")
	require.NoError(t, err)
	ch6, err := r.Query(FamilyV6, "example.com")
	require.NoError(t, err)

	got := map[Family]driverQuery{}
	for i := 0; i < 2; i++ {
		q := d.next(t)
		got[q.family] = q
	}
	require.Len(t, got, 2)

	r4 := positiveRecord("example.com", time.Minute, 0, "192.0.2.1")
	r6 := positiveRecord("example.com", time.Minute, 0, "2001:db8::1")
	got[FamilyV4].rsp.Send(r4)
	got[FamilyV6].rsp.Send(r6)

	assert.Same(t, r4, recvAnswer(t, ch4).Record)
	assert.Same(t, r6, recvAnswer(t, ch6).Record)
}

func Test_Resolver_expire_to_trash(t *testing.T) {
	d := newManualDriver()
	r := newTestResolver(t, d, RuntimeConfig{})
	ctx := context.Background()

	ch, err := r.Query(FamilyV4, "example.com")
	require.NoError(t, err)
	stale := positiveRecord("example.com", 100*time.Millisecond, 10*time.Second, "192.0.2.1")
	d.next(t).rsp.Send(stale)
	assert.Equal(t, SourceQuery, recvAnswer(t, ch).Source)

	require.Eventually(t, func() bool { return r.Stats().MemoryA.TrashLength() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, r.Stats().MemoryA.CacheLength())

	// stale answers are served while one refresh runs in the background
	for i := 0; i < 5; i++ {
		rec, src, err := r.Resolve(ctx, FamilyV4, "example.com")
		require.NoError(t, err)
		assert.Same(t, stale, rec)
		assert.Equal(t, SourceTrash, src)
	}
	refresh := d.next(t)
	d.assertIdle(t)

	fresh := positiveRecord("example.com", time.Minute, 2*time.Minute, "192.0.2.2")
	refresh.rsp.Send(fresh)
	require.Eventually(t, func() bool {
		rec, src, err := r.Resolve(ctx, FamilyV4, "example.com")
		return err == nil && rec == fresh && src == SourceCache
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return r.Stats().MemoryA.TrashLength() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(2), r.Stats().QueryA.QueryDriver())
}

func Test_Resolver_grace_purge(t *testing.T) {
	d := newManualDriver()
	r := newTestResolver(t, d, RuntimeConfig{})

	ch, err := r.Query(FamilyV4, "example.com")
	require.NoError(t, err)
	d.next(t).rsp.Send(positiveRecord("example.com", 50*time.Millisecond, 150*time.Millisecond, "192.0.2.1"))
	recvAnswer(t, ch)

	time.Sleep(250 * time.Millisecond)

	// no stale fallback any more: the caller waits for a new query
	ch, err = r.Query(FamilyV4, "example.com")
	require.NoError(t, err)
	q := d.next(t)
	failed := failedRecord("example.com", KindTimeout)
	q.rsp.Send(failed)

	a := recvAnswer(t, ch)
	assert.Same(t, failed, a.Record)
	assert.Equal(t, SourceQuery, a.Source)
	assert.False(t, a.Record.IsAcceptable())

	// failures are never cached
	ch, err = r.Query(FamilyV4, "example.com")
	require.NoError(t, err)
	d.next(t).rsp.Send(failed)
	recvAnswer(t, ch)
}

func Test_Resolver_failure_keeps_trash(t *testing.T) {
	d := newManualDriver()
	r := newTestResolver(t, d, RuntimeConfig{})
	ctx := context.Background()

	ch, err := r.Query(FamilyV4, "example.com")
	require.NoError(t, err)
	stale := positiveRecord("example.com", 50*time.Millisecond, 10*time.Second, "192.0.2.1")
	d.next(t).rsp.Send(stale)
	recvAnswer(t, ch)
	require.Eventually(t, func() bool { return r.Stats().MemoryA.TrashLength() == 1 }, time.Second, 5*time.Millisecond)

	_, src, err := r.Resolve(ctx, FamilyV4, "example.com")
	require.NoError(t, err)
	assert.Equal(t, SourceTrash, src)
	d.next(t).rsp.Send(failedRecord("example.com", KindServerFailure))

	// the failed refresh changes nothing, the next stale hit refreshes again
	require.Eventually(t, func() bool { return r.Stats().QueryA.RecordFailed() == 1 }, time.Second, 5*time.Millisecond)
	rec, src, err := r.Resolve(ctx, FamilyV4, "example.com")
	require.NoError(t, err)
	assert.Same(t, stale, rec)
	assert.Equal(t, SourceTrash, src)
	d.next(t)
}

func Test_Resolver_hot_reload(t *testing.T) {
	oldDriver := newManualDriver()
	r := newTestResolver(t, oldDriver, RuntimeConfig{})

	ch, err := r.Query(FamilyV4, "old.example")
	require.NoError(t, err)
	inflight := oldDriver.next(t)

	// a broken config is rejected and the old driver stays
	require.NoError(t, r.Update(&Config{Driver: &staticDriverConfig{err: errBadDriver}}))
	ch2, err := r.Query(FamilyV4, "still-old.example")
	require.NoError(t, err)
	q := oldDriver.next(t)
	assert.Equal(t, "still-old.example", q.domain)
	q.rsp.Send(failedRecord("still-old.example", KindNotFound))
	recvAnswer(t, ch2)

	newDriver := newManualDriver()
	require.NoError(t, r.Update(&Config{Runtime: RuntimeConfig{BatchRequestCount: 4}, Driver: &staticDriverConfig{driver: newDriver}}))

	ch3, err := r.Query(FamilyV4, "new.example")
	require.NoError(t, err)
	q = newDriver.next(t)
	assert.Equal(t, "new.example", q.domain)
	assert.Equal(t, 4, q.cfg.BatchRequestCount)
	oldDriver.assertIdle(t)

	// the query dispatched before the swap still completes
	record := positiveRecord("old.example", time.Minute, 0, "192.0.2.7")
	require.True(t, inflight.rsp.Send(record))
	a := recvAnswer(t, ch)
	assert.Same(t, record, a.Record)
	assert.Equal(t, SourceQuery, a.Source)

	q.rsp.Send(positiveRecord("new.example", time.Minute, 0, "192.0.2.8"))
	recvAnswer(t, ch3)
}

func Test_Resolver_close(t *testing.T) {
	d := newManualDriver()
	r, err := New("test", &Config{Driver: &staticDriverConfig{driver: d}}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = r.Resolve(ctx, FamilyV4, "example.com")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	q := d.next(t)

	r.Quit()
	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("runtime did not quit")
	}

	// late answers are dropped without blocking the driver
	q.rsp.Send(failedRecord("example.com", KindTimeout))
	_, _, err = r.Resolve(context.Background(), FamilyV4, "example.com")
	assert.ErrorIs(t, err, ErrResolverClosed)
	assert.ErrorIs(t, r.Update(&Config{Driver: &staticDriverConfig{driver: d}}), ErrResolverClosed)
	require.NoError(t, r.Close())
}

func Test_Resolver_close_request_channel(t *testing.T) {
	r, err := New("test", &Config{Driver: &staticDriverConfig{driver: newManualDriver()}}, nil)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	_, err = r.Query(FamilyV4, "example.com")
	assert.ErrorIs(t, err, ErrResolverClosed)
}

func Test_Resolver_new_errors(t *testing.T) {
	_, err := New("test", &Config{}, nil)
	assert.Error(t, err)
	_, err = New("test", &Config{Driver: &staticDriverConfig{err: errBadDriver}}, nil)
	assert.ErrorIs(t, err, errBadDriver)
}

func Test_Resolver_invalid_domain(t *testing.T) {
	r := newTestResolver(t, newManualDriver(), RuntimeConfig{})
	for _, d := range []string{"", ".", "a..b", string(make([]byte, 300))} {
		_, err := r.Query(FamilyV4, d)
		assert.ErrorIs(t, err, ErrInvalidDomain, "domain %q", d)
	}
}

func Test_Resolver_concurrent_gomock(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := NewMockDriver(ctrl)
	record := positiveRecord("example.com", time.Minute, 0, "2001:db8::1")

	release := make(chan struct{})
	d.EXPECT().
		Query("example.com", FamilyV6, gomock.Any(), gomock.Any()).
		Times(1).
		Do(func(_ string, _ Family, _ *RuntimeConfig, rsp *Responder) {
			go func() {
				<-release
				rsp.Send(record)
			}()
		})

	r := newTestResolver(t, d, RuntimeConfig{BatchRequestCount: 2})

	const n = 32
	var wg sync.WaitGroup
	results := make([]*Record, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, _, err := r.Resolve(context.Background(), FamilyV6, "example.com")
			if err == nil {
				results[i] = rec
			}
		}(i)
	}
	require.Eventually(t, func() bool { return r.Stats().QueryAAAA.QueryTotal() == n }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	for _, rec := range results {
		assert.Same(t, record, rec)
	}
}
