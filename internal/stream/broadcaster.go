package stream

import (
	"context"
	"sync"
)

// Broadcaster fans out master-bus buffers from one source to N listeners:
// the streamer, the recorder, and any monitoring consumer.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
}

// Listener receives mixed buffers from the broadcaster.
type Listener struct {
	C    chan []float32 // buffered channel of 20ms tick buffers
	done chan struct{}
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		listeners: make(map[*Listener]struct{}),
	}
}

// Subscribe registers a new listener.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan []float32, 150), // ~3 seconds of buffer at 20ms/tick
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	delete(b.listeners, l)
	b.mu.Unlock()
	close(l.done)
}

// Done is closed when the listener is unsubscribed.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Run reads buffers from source and fans out to all listeners.
// Slow listeners get buffers dropped rather than blocking the broadcast.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []float32) {
	for {
		select {
		case <-ctx.Done():
			return
		case buf, ok := <-source:
			if !ok {
				return
			}
			b.mu.RLock()
			for l := range b.listeners {
				select {
				case l.C <- buf:
				default:
					// listener too slow, drop to keep the broadcast moving
				}
			}
			b.mu.RUnlock()
		}
	}
}
