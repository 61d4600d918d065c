package engine

import "sync"

// Synchronized wraps a Context behind a mutex for the cases where one
// context must be visible to several goroutines. The bare Context is the
// transferable form, owned by exactly one goroutine at a time; Synchronized
// is the explicitly shared form. Do serializes whole operations, which keeps
// each result buffer read inside the same critical section as the call that
// refreshed it.
type Synchronized struct {
	mu  sync.Mutex
	ctx *Context
}

// NewSynchronized takes ownership of ctx. Callers must stop using the bare
// context directly afterwards.
func NewSynchronized(ctx *Context) *Synchronized {
	return &Synchronized{ctx: ctx}
}

// Do runs fn with exclusive use of the wrapped context.
func (s *Synchronized) Do(fn func(*Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.ctx)
}
