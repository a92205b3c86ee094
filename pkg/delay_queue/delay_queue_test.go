package delay_queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_DelayQueue_order(t *testing.T) {
	q := New[string](4)
	base := time.Now()
	q.InsertAt("c", base.Add(3*time.Second))
	q.InsertAt("a", base.Add(time.Second))
	q.InsertAt("b", base.Add(2*time.Second))

	next, ok := q.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, base.Add(time.Second), next)

	_, ok = q.PollExpired(base)
	assert.False(t, ok, "nothing is due yet")

	var got []string
	for {
		v, ok := q.PollExpired(base.Add(time.Hour))
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, 0, q.Len())
}

func Test_DelayQueue_reset(t *testing.T) {
	q := New[string](0)
	base := time.Now()
	ka := q.InsertAt("a", base.Add(time.Second))
	q.InsertAt("b", base.Add(2*time.Second))

	// push a after b, the key is reused in place
	require.True(t, q.ResetAt(ka, base.Add(3*time.Second)))
	assert.Equal(t, 2, q.Len())

	v, ok := q.PollExpired(base.Add(2 * time.Second))
	require.True(t, ok)
	assert.Equal(t, "b", v)
	_, ok = q.PollExpired(base.Add(2 * time.Second))
	assert.False(t, ok)

	// pull it backward again
	require.True(t, q.ResetAt(ka, base))
	v, ok = q.PollExpired(base)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	// fired keys are consumed exactly once
	assert.False(t, ka.IsValid())
	assert.False(t, q.ResetAt(ka, base))
	_, ok = q.Remove(ka)
	assert.False(t, ok)
}

func Test_DelayQueue_remove(t *testing.T) {
	q := New[int](0)
	base := time.Now()
	keys := make([]Key[int], 0, 16)
	for i := 0; i < 16; i++ {
		keys = append(keys, q.InsertAt(i, base.Add(time.Duration(i)*time.Millisecond)))
	}
	for i := 0; i < 16; i += 2 {
		v, ok := q.Remove(keys[i])
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 8, q.Len())

	prev := -1
	for {
		v, ok := q.PollExpired(base.Add(time.Second))
		if !ok {
			break
		}
		assert.Equal(t, 1, v%2)
		assert.Greater(t, v, prev)
		prev = v
	}

	var zero Key[int]
	assert.False(t, zero.IsValid())
}
