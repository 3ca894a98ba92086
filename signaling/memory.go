/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package signaling

import (
	"encoding/json"
	"fmt"
	"sync"
)

// loopItem is one queued delivery: either an event frame or a drain marker.
type loopItem struct {
	f       frame
	drained chan struct{}
}

// Loopback is an in-process Channel endpoint. Emitting on one endpoint of
// a pair delivers to the other endpoint's handlers, in emit order, on a
// dedicated dispatch goroutine per endpoint. Used by tests and by
// single-process deployments that do not need a gateway.
type Loopback struct {
	mu       sync.Mutex
	peer     *Loopback
	handlers map[string][]Handler
	in       chan loopItem
	done     chan struct{}
	closed   bool
}

// NewLoopbackPair returns two connected endpoints. Closing either side
// stops delivery toward the closed endpoint.
func NewLoopbackPair() (*Loopback, *Loopback) {
	a := newLoopback()
	b := newLoopback()
	a.peer = b
	b.peer = a
	go a.dispatch()
	go b.dispatch()
	return a, b
}

func newLoopback() *Loopback {
	return &Loopback{
		handlers: make(map[string][]Handler),
		in:       make(chan loopItem, 64),
		done:     make(chan struct{}),
	}
}

// Connected reports whether the endpoint can deliver events.
func (l *Loopback) Connected() bool {
	l.mu.Lock()
	closed := l.closed
	peer := l.peer
	l.mu.Unlock()
	return !closed && peer != nil && !peer.isClosed()
}

func (l *Loopback) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Emit delivers one event to the peer endpoint.
func (l *Loopback) Emit(event string, payload interface{}) error {
	l.mu.Lock()
	peer := l.peer
	closed := l.closed
	l.mu.Unlock()

	if closed || peer == nil {
		return fmt.Errorf("loopback channel closed")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return peer.enqueue(loopItem{f: frame{Event: event, Payload: raw}})
}

// enqueue sends outside the mutex so a full queue can never block the
// dispatch goroutine's handler-copy lock.
func (l *Loopback) enqueue(item loopItem) error {
	if l.isClosed() {
		return fmt.Errorf("loopback peer closed")
	}
	select {
	case l.in <- item:
		return nil
	case <-l.done:
		return fmt.Errorf("loopback peer closed")
	}
}

// On registers an event handler.
func (l *Loopback) On(event string, handler Handler) {
	if handler == nil {
		return
	}
	l.mu.Lock()
	l.handlers[event] = append(l.handlers[event], handler)
	l.mu.Unlock()
}

// Off removes a previously registered handler.
func (l *Loopback) Off(event string, handler Handler) {
	if handler == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	handlers := l.handlers[event]
	handlerPtr := fmt.Sprintf("%p", handler)
	for i, h := range handlers {
		if fmt.Sprintf("%p", h) == handlerPtr {
			l.handlers[event] = append(handlers[:i], handlers[i+1:]...)
			break
		}
	}
}

// Close stops delivery to this endpoint. Safe to call more than once.
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.done)
	return nil
}

// Drained returns a channel closed once every frame queued for this
// endpoint before the call has been dispatched. Tests use it to wait for
// delivery without sleeping.
func (l *Loopback) Drained() <-chan struct{} {
	marker := make(chan struct{})
	if err := l.enqueue(loopItem{drained: marker}); err != nil {
		close(marker)
	}
	return marker
}

// dispatch delivers queued items to handlers in order. On close it drains
// whatever was queued first, so every accepted frame is delivered.
func (l *Loopback) dispatch() {
	for {
		select {
		case item := <-l.in:
			l.deliver(item)
		case <-l.done:
			for {
				select {
				case item := <-l.in:
					l.deliver(item)
				default:
					return
				}
			}
		}
	}
}

func (l *Loopback) deliver(item loopItem) {
	if item.drained != nil {
		close(item.drained)
		return
	}

	l.mu.Lock()
	handlers := make([]Handler, len(l.handlers[item.f.Event]))
	copy(handlers, l.handlers[item.f.Event])
	l.mu.Unlock()

	for _, handler := range handlers {
		handler(item.f.Payload)
	}
}
