package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

func fail(context.Context) error { return errBoom }
func ok(context.Context) error   { return nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := New("orders", 2, time.Minute)
	ctx := context.Background()

	assert.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := New("llm", 2, time.Minute)
	ctx := context.Background()
	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, ok)
	_ = b.Execute(ctx, fail)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	now := time.Unix(0, 0)
	var transitions []string
	b := New("orders", 1, 10*time.Second,
		WithClock(func() time.Time { return now }),
		WithStateChange(func(_ string, from, to State) { transitions = append(transitions, from.String()+">"+to.String()) }),
	)
	ctx := context.Background()
	_ = b.Execute(ctx, fail)
	assert.Equal(t, StateOpen, b.State())

	now = now.Add(11 * time.Second)
	assert.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, b.State())

	now = now.Add(11 * time.Second)
	assert.NoError(t, b.Execute(ctx, ok))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []string{"closed>open", "open>half-open", "half-open>open", "open>half-open", "half-open>closed"}, transitions)
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	b := New("orders", 1, time.Minute)
	_ = b.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	assert.Equal(t, StateClosed, b.State())
}

func TestNilBreakerPassesThrough(t *testing.T) {
	var b *Breaker
	assert.ErrorIs(t, b.Execute(context.Background(), fail), errBoom)
}
