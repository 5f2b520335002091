package capture

import (
	"sync"

	slog "github.com/vearne/simplelog"
)

type event struct {
	pkt *Packet
	err error
}

// Queue hands events from the dispatch loop to one consumer goroutine.
// Submit blocks while the buffer is full; accepted events are delivered
// exactly once and in order, including the ones still buffered at Close.
type Queue struct {
	ch      chan event
	done    chan struct{} // closed by Close
	drained chan struct{} // closed once Close happened and no Submit is in flight
	exited  chan struct{}
	onPkt   EventHandler
	onError ErrorHandler

	mu      sync.Mutex
	closed  bool
	senders int
}

// NewQueue starts the consumer goroutine. size 0 makes every Submit a
// rendezvous with the consumer.
func NewQueue(size int, onPkt EventHandler, onError ErrorHandler) *Queue {
	if size < 0 {
		size = 0
	}
	q := &Queue{
		ch:      make(chan event, size),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
		exited:  make(chan struct{}),
		onPkt:   onPkt,
		onError: onError,
	}
	go q.consume()
	return q
}

// Submit hands p to the consumer. It returns false once the queue is closed,
// p is then not delivered and its buffer is released.
func (q *Queue) Submit(p *Packet) bool {
	if q.submit(event{pkt: p}) {
		return true
	}
	p.release()
	return false
}

// SubmitError hands err to the consumer's ErrorHandler.
func (q *Queue) SubmitError(err error) bool {
	return q.submit(event{err: err})
}

func (q *Queue) submit(ev event) (ok bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.senders++
	q.mu.Unlock()

	select {
	case q.ch <- ev:
		ok = true
	case <-q.done:
	}

	q.mu.Lock()
	q.senders--
	if q.closed && q.senders == 0 {
		close(q.drained)
	}
	q.mu.Unlock()
	return ok
}

func (q *Queue) consume() {
	defer close(q.exited)
	for {
		select {
		case ev := <-q.ch:
			q.deliver(ev)
		case <-q.drained:
			for {
				select {
				case ev := <-q.ch:
					q.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) deliver(ev event) {
	if ev.err != nil {
		if q.onError != nil {
			q.onError(ev.err)
		} else {
			slog.Error("[capture] %v", ev.err)
		}
		return
	}
	if q.onPkt != nil {
		q.onPkt(ev.pkt)
	}
	ev.pkt.release()
}

// Close stops accepting events. Buffered events are still delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
	if q.senders == 0 {
		close(q.drained)
	}
}

// Wait blocks until the consumer goroutine has exited after Close.
func (q *Queue) Wait() {
	<-q.exited
}

// Len is the number of events waiting for the consumer.
func (q *Queue) Len() int {
	return len(q.ch)
}
