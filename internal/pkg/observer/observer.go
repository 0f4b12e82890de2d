// Package observer is a small typed subscription registry. Subscribers get an
// opaque token back and release it with Unsubscribe, or tie the subscription
// to a context with SubscribeScoped.
package observer

import (
	"context"
	"sync"

	"github.com/go-hr-sync/internal/pkg/id"
)

type entry[T any] struct {
	token string
	fn    func(T)
}

// Registry dispatches published values to handlers in subscription order.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries []entry[T]
}

func New[T any]() *Registry[T] {
	return &Registry[T]{}
}

func (r *Registry[T]) Subscribe(fn func(T)) string {
	tok := id.New()
	r.mu.Lock()
	r.entries = append(r.entries, entry[T]{token: tok, fn: fn})
	r.mu.Unlock()
	return tok
}

// Unsubscribe removes the handler registered under token. It reports whether
// anything was removed, so a second call is a no-op.
func (r *Registry[T]) Unsubscribe(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.token == token {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

// SubscribeScoped registers fn until ctx is done or the returned release
// func is called, whichever happens first.
func (r *Registry[T]) SubscribeScoped(ctx context.Context, fn func(T)) (release func()) {
	tok := r.Subscribe(fn)
	var once sync.Once
	done := make(chan struct{})
	release = func() {
		once.Do(func() {
			close(done)
			r.Unsubscribe(tok)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			release()
		case <-done:
		}
	}()
	return release
}

// Publish calls every handler synchronously. Handlers run outside the lock
// and may subscribe or unsubscribe.
func (r *Registry[T]) Publish(v T) {
	r.mu.RLock()
	snapshot := make([]func(T), len(r.entries))
	for i, e := range r.entries {
		snapshot[i] = e.fn
	}
	r.mu.RUnlock()
	for _, fn := range snapshot {
		fn(v)
	}
}

func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
