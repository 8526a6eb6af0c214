package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agiledragon/gomonkey/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGet(t *testing.T) {
	c := New()
	c.Set("k", 42, time.Minute)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	patches := gomonkey.ApplyFunc(time.Now, func() time.Time { return base })
	defer patches.Reset()

	c := New()
	c.Set("k", "v", 5*time.Second)

	_, ok := c.Get("k")
	assert.True(t, ok)

	// Jump past the deadline.
	patches.Reset()
	patches = gomonkey.ApplyFunc(time.Now, func() time.Time { return base.Add(6 * time.Second) })
	defer patches.Reset()

	_, ok = c.Get("k")
	assert.False(t, ok)

	c.Set("fresh", 1, time.Minute)
	assert.Equal(t, 1, c.PurgeExpired())
	assert.Equal(t, 1, c.Len())
}

func TestGetOrLoadsOnce(t *testing.T) {
	c := New()
	var calls int32

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOr("k", time.Minute, func() (any, error) {
				atomic.AddInt32(&calls, 1)
				return "loaded", nil
			})
			assert.NoError(t, err)
			assert.Equal(t, "loaded", v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrErrorNotCached(t *testing.T) {
	c := New()
	boom := errors.New("boom")

	_, err := c.GetOr("k", time.Minute, func() (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	v, err := c.GetOr("k", time.Minute, func() (any, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
