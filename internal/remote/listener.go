package remote

import "sync"

// listener runs the callbacks of one subscription in order on its own goroutine.
type listener struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}

	// cbMu is held while a callback runs so close can wait it out.
	cbMu sync.Mutex
}

func newListener() *listener {
	l := &listener{wake: make(chan struct{}, 1)}
	go l.run()
	return l
}

func (l *listener) post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
}

func (l *listener) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *listener) run() {
	for range l.wake {
		for {
			l.mu.Lock()
			if l.closed {
				l.mu.Unlock()
				return
			}
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			l.cbMu.Lock()
			if !l.isClosed() {
				fn()
			}
			l.cbMu.Unlock()
		}
	}
}

// close stops delivery and waits for an in-flight callback to return.
func (l *listener) close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.queue = nil
	l.mu.Unlock()
	l.signal()

	l.cbMu.Lock()
	l.cbMu.Unlock()
}
