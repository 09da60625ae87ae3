package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestTTLExpiresLazily(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewTTL[[]int](5*time.Minute, clk.now)

	c.Set("polymarket:all-pages", []int{1, 2})
	v, ok := c.Get("polymarket:all-pages")
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, v)

	clk.advance(5 * time.Minute)
	_, ok = c.Get("polymarket:all-pages")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLSweep(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewTTL[string](time.Minute, clk.now)
	c.Set("a", "1")
	c.SetUntil("b", "2", clk.t.Add(time.Hour))

	clk.advance(2 * time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("b")
	assert.True(t, ok)
}

func TestSuppressionStore(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewSuppressionStore(clk.now)

	ok, err := s.Suppressed(ctx, "polymarket:polymarket-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Suppress(ctx, "polymarket:polymarket-1", clk.t.Add(time.Hour)))
	ok, _ = s.Suppressed(ctx, "polymarket:polymarket-1")
	assert.True(t, ok)

	clk.advance(61 * time.Minute)
	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	ok, _ = s.Suppressed(ctx, "polymarket:polymarket-1")
	assert.False(t, ok)
}
