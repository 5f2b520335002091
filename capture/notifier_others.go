//go:build !linux

package capture

// PollNotifier is unavailable without epoll.
type PollNotifier struct{}

// NewPollNotifier always returns ErrPollUnsupported on this platform.
func NewPollNotifier(h Handle) (*PollNotifier, error) {
	return nil, ErrPollUnsupported
}

func (n *PollNotifier) Arm(onReady func() int) error { return ErrPollUnsupported }

func (n *PollNotifier) Disarm() {}
