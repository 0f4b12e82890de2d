package observer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublish_InSubscriptionOrder(t *testing.T) {
	r := New[int]()
	var got []string
	r.Subscribe(func(v int) { got = append(got, "a") })
	r.Subscribe(func(v int) { got = append(got, "b") })

	r.Publish(1)

	assert.Equal(t, []string{"a", "b"}, got)
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	r := New[string]()
	calls := 0
	tok := r.Subscribe(func(string) { calls++ })

	assert.True(t, r.Unsubscribe(tok))
	assert.False(t, r.Unsubscribe(tok))
	r.Publish("x")

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, r.Len())
}

func TestUnsubscribe_FromInsideHandler(t *testing.T) {
	r := New[int]()
	calls := 0
	var tok string
	tok = r.Subscribe(func(int) {
		calls++
		r.Unsubscribe(tok)
	})

	r.Publish(1)
	r.Publish(2)

	assert.Equal(t, 1, calls)
}

func TestSubscribeScoped_ReleasedOnCancel(t *testing.T) {
	r := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	r.SubscribeScoped(ctx, func(int) {})
	assert.Equal(t, 1, r.Len())

	cancel()

	assert.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSubscribeScoped_ReleaseFunc(t *testing.T) {
	r := New[int]()
	release := r.SubscribeScoped(context.Background(), func(int) {})

	release()
	release()

	assert.Equal(t, 0, r.Len())
}
