package ledger

import (
	"context"
	"sync"
)

// BindingKey identifies one contract binding by immutable identity.
type BindingKey struct {
	Account string
	Network string
}

// DialFunc establishes the bound client for a key.
type DialFunc func(ctx context.Context, key BindingKey) (Client, error)

type bindingState struct {
	client Client
	err    error
	done   chan struct{}
}

// Binder de-duplicates client initialization per (account, network). Ensure is
// idempotent and safe to call repeatedly and concurrently: exactly one dial
// runs per key at a time, later callers wait for it, and a failed dial resets
// the slot so the next Ensure retries.
type Binder struct {
	mu     sync.Mutex
	dial   DialFunc
	states map[BindingKey]*bindingState
}

// NewBinder constructs a binder using dial to establish clients.
func NewBinder(dial DialFunc) *Binder {
	return &Binder{
		dial:   dial,
		states: make(map[BindingKey]*bindingState),
	}
}

// Ensure returns the bound client for key, dialing it on first use.
func (b *Binder) Ensure(ctx context.Context, key BindingKey) (Client, error) {
	b.mu.Lock()
	state, ok := b.states[key]
	if !ok {
		state = &bindingState{done: make(chan struct{})}
		b.states[key] = state
		b.mu.Unlock()

		client, err := b.dial(ctx, key)
		b.mu.Lock()
		if err != nil {
			delete(b.states, key)
		} else {
			state.client = client
		}
		state.err = err
		b.mu.Unlock()
		close(state.done)
		return state.client, state.err
	}
	b.mu.Unlock()

	select {
	case <-state.done:
		return state.client, state.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops the binding for key so the next Ensure dials again.
func (b *Binder) Invalidate(key BindingKey) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.states, key)
}
