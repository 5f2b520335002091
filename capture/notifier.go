package capture

import (
	"runtime"
	"sync"
	"time"
)

// Notifier tells a session when its handle may have packets queued. onReady
// runs the dispatch loop and returns the number of packets it drained.
type Notifier interface {
	Arm(onReady func() int) error
	// Disarm cancels the registration. It never waits for an onReady call in
	// progress and may be called more than once.
	Disarm()
}

// DefaultWaitIdle is how long the wait strategy pauses after an empty drain.
const DefaultWaitIdle = 5 * time.Millisecond

// WaitNotifier is the wait-based strategy, used for handles without a pollable
// descriptor. A goroutine pinned to its OS thread blocks in the handle's timed
// read through onReady, much like a wait callback thread.
type WaitNotifier struct {
	Idle time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

// NewWaitNotifier returns a wait strategy notifier.
func NewWaitNotifier() *WaitNotifier {
	return &WaitNotifier{Idle: DefaultWaitIdle}
}

func (n *WaitNotifier) Arm(onReady func() int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stop != nil {
		return nil
	}
	stop := make(chan struct{})
	n.stop = stop
	go n.wait(stop, onReady)
	return nil
}

func (n *WaitNotifier) wait(stop chan struct{}, onReady func() int) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	idle := time.NewTimer(time.Hour)
	idle.Stop()
	defer idle.Stop()
	for {
		select {
		case <-stop:
			return
		default:
		}
		if onReady() > 0 || n.Idle <= 0 {
			continue
		}
		idle.Reset(n.Idle)
		select {
		case <-stop:
			return
		case <-idle.C:
		}
	}
}

func (n *WaitNotifier) Disarm() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stop != nil {
		close(n.stop)
		n.stop = nil
	}
}

// newNotifier picks the strategy for h.
func newNotifier(mode NotifyMode, h Handle) (Notifier, error) {
	switch mode {
	case NotifyWait:
		return NewWaitNotifier(), nil
	case NotifyPoll:
		n, err := NewPollNotifier(h)
		if err != nil {
			return nil, err
		}
		return n, nil
	}
	if n, err := NewPollNotifier(h); err == nil {
		return n, nil
	}
	return NewWaitNotifier(), nil
}
