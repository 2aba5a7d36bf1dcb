package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bdobrica/Shoukan/internal/shoukan/conversation"
)

// dispatcher runs chat turns off the sync goroutine. Work for one
// conversation runs in submission order; different conversations run in
// parallel. A worker goroutine exists only while its queue is non-empty.
type dispatcher struct {
	mu     sync.Mutex
	queues map[conversation.Key][]func()
	closed bool
	wg     sync.WaitGroup
}

func newDispatcher() *dispatcher {
	return &dispatcher{queues: make(map[conversation.Key][]func())}
}

// Submit queues fn behind earlier work for key. It reports false once the
// dispatcher is closed.
func (d *dispatcher) Submit(key conversation.Key, fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	q, running := d.queues[key]
	d.queues[key] = append(q, fn)
	if !running {
		d.wg.Add(1)
		go d.drain(key)
	}
	return true
}

func (d *dispatcher) drain(key conversation.Key) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		q := d.queues[key]
		if len(q) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		fn := q[0]
		d.queues[key] = q[1:]
		d.mu.Unlock()

		run(key, fn)
	}
}

func run(key conversation.Key, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch: panic in turn", "conversation", key.String(), "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

// Close refuses new work and waits for queued work to finish, or for ctx to
// end.
func (d *dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
