package pipeline

import (
	"context"
	"sync/atomic"
)

// Token is the one-way cancellation signal of a run. Cancelling it cancels
// the context every network call and poll of the run is bound to.
type Token struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// NewToken derives an active token from parent.
func NewToken(parent context.Context) *Token {
	ctx, cancel := context.WithCancel(parent)
	return &Token{ctx: ctx, cancel: cancel}
}

func (t *Token) Context() context.Context {
	return t.ctx
}

// Cancel flips the token. Only the first call has an effect.
func (t *Token) Cancel() {
	if t.cancelled.CompareAndSwap(false, true) {
		t.cancel()
	}
}

// Cancelled reports whether Cancel was called. Expiry of a parent deadline
// does not count as cancellation.
func (t *Token) Cancelled() bool {
	return t.cancelled.Load()
}

// release frees the context once the run has finished.
func (t *Token) release() {
	t.cancel()
}
