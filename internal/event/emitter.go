// Package event provides a small synchronous observer registry.
//
// Handlers are keyed by an event kind and invoked on the emitting goroutine,
// in registration order. There is no ordering guarantee across kinds.
package event

import (
	"sync"
)

// Token identifies a subscription. The zero Token is never issued.
type Token uint64

type subscriber[T any] struct {
	token   Token
	handler func(T)
}

// Emitter fans out payloads of type T to handlers subscribed per kind K.
// The zero value is ready to use.
type Emitter[K comparable, T any] struct {
	mu   sync.Mutex
	next Token
	subs map[K][]subscriber[T]
}

// Subscribe registers handler for kind and returns its token.
func (e *Emitter[K, T]) Subscribe(kind K, handler func(T)) Token {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.subs == nil {
		e.subs = make(map[K][]subscriber[T])
	}
	e.next++
	e.subs[kind] = append(e.subs[kind], subscriber[T]{token: e.next, handler: handler})
	return e.next
}

// Unsubscribe removes the subscription for token.
// Returns false if the token is unknown or already removed.
func (e *Emitter[K, T]) Unsubscribe(token Token) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for kind, subs := range e.subs {
		for i, s := range subs {
			if s.token != token {
				continue
			}
			// Copy so an in-progress Emit keeps iterating its own snapshot.
			rest := make([]subscriber[T], 0, len(subs)-1)
			rest = append(rest, subs[:i]...)
			rest = append(rest, subs[i+1:]...)
			if len(rest) == 0 {
				delete(e.subs, kind)
			} else {
				e.subs[kind] = rest
			}
			return true
		}
	}
	return false
}

// Emit delivers payload to every handler subscribed to kind.
// Handlers run outside the registry lock, so they may subscribe or unsubscribe.
func (e *Emitter[K, T]) Emit(kind K, payload T) {
	e.mu.Lock()
	subs := e.subs[kind]
	e.mu.Unlock()

	for _, s := range subs {
		s.handler(payload)
	}
}

// Count returns the number of handlers subscribed to kind.
func (e *Emitter[K, T]) Count(kind K) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs[kind])
}
