package session

import (
	"context"

	"github.com/google/uuid"
)

// Token is the cancellation handle for one Recording phase. Every Start mints
// a new one; a cancelled token is never reused.
type Token struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
}

func newToken(parent context.Context) *Token {
	ctx, cancel := context.WithCancel(parent)
	return &Token{id: uuid.NewString(), ctx: ctx, cancel: cancel}
}

// ID identifies the token in logs.
func (t *Token) ID() string { return t.id }

// Context is the parent context for all work issued under this token.
func (t *Token) Context() context.Context { return t.ctx }

// Cancel aborts all work issued under the token. It is idempotent.
func (t *Token) Cancel() { t.cancel() }

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool { return t.ctx.Err() != nil }
