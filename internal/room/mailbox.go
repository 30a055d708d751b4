package room

import (
	"sync"

	"github.com/gammazero/deque"
	"go.uber.org/zap"
)

// mailbox serializes every operation on a room. Operations are queued in
// arrival order and executed one at a time by a drain goroutine that only
// exists while the queue is non-empty, so an idle room costs no goroutine.
type mailbox struct {
	mu      sync.Mutex
	ops     deque.Deque[func()]
	running bool
	log     *zap.Logger
}

// post queues op without waiting for it to run.
func (m *mailbox) post(op func()) {
	m.mu.Lock()
	m.ops.PushBack(op)
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	go m.drain()
}

// call queues op and blocks until it has run. It must never be used from
// inside another op.
func (m *mailbox) call(op func()) {
	done := make(chan struct{})
	m.post(func() {
		defer close(done)
		op()
	})
	<-done
}

func (m *mailbox) drain() {
	for {
		m.mu.Lock()
		if m.ops.Len() == 0 {
			m.running = false
			m.mu.Unlock()
			return
		}
		op := m.ops.PopFront()
		m.mu.Unlock()

		m.run(op)
	}
}

func (m *mailbox) run(op func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("Room operation panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	op()
}
