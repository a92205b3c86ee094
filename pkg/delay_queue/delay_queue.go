package delay_queue

import (
	"container/heap"
	"time"
)

// DelayQueue orders values by an absolute instant. Each inserted value gets a
// Key that can be used to move it backward or forward in time, or to remove it.
// It is not safe for concurrent use.
type DelayQueue[T any] struct {
	h itemHeap[T]
}

type item[T any] struct {
	v     T
	at    time.Time
	index int // -1 once it left the queue
}

// Key is a handle of a value in a DelayQueue. The zero Key is never valid.
type Key[T any] struct {
	e *item[T]
}

func (k Key[T]) IsValid() bool {
	return k.e != nil && k.e.index >= 0
}

func New[T any](capacity int) *DelayQueue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &DelayQueue[T]{h: make(itemHeap[T], 0, capacity)}
}

func (q *DelayQueue[T]) Len() int {
	return len(q.h)
}

func (q *DelayQueue[T]) InsertAt(v T, at time.Time) Key[T] {
	e := &item[T]{v: v, at: at}
	heap.Push(&q.h, e)
	return Key[T]{e: e}
}

// ResetAt reschedules the value of k to at. It returns false if k has already
// left the queue.
func (q *DelayQueue[T]) ResetAt(k Key[T], at time.Time) bool {
	if !k.IsValid() {
		return false
	}
	k.e.at = at
	heap.Fix(&q.h, k.e.index)
	return true
}

// Remove takes the value of k out of the queue.
func (q *DelayQueue[T]) Remove(k Key[T]) (v T, ok bool) {
	if !k.IsValid() {
		return v, false
	}
	e := heap.Remove(&q.h, k.e.index).(*item[T])
	return e.v, true
}

// PollExpired pops one value whose instant is not after now.
func (q *DelayQueue[T]) PollExpired(now time.Time) (v T, ok bool) {
	if len(q.h) == 0 || q.h[0].at.After(now) {
		return v, false
	}
	e := heap.Pop(&q.h).(*item[T])
	return e.v, true
}

// NextDeadline returns the earliest instant in the queue.
func (q *DelayQueue[T]) NextDeadline() (time.Time, bool) {
	if len(q.h) == 0 {
		return time.Time{}, false
	}
	return q.h[0].at, true
}

type itemHeap[T any] []*item[T]

func (h itemHeap[T]) Len() int { return len(h) }

func (h itemHeap[T]) Less(i, j int) bool { return h[i].at.Before(h[j].at) }

func (h itemHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap[T]) Push(x any) {
	e := x.(*item[T])
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
