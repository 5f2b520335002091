//go:build linux

package capture

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/pkg/errors"
	slog "github.com/vearne/simplelog"
	"golang.org/x/sys/unix"
)

// PollNotifier is the poll-based strategy: the handle's descriptor sits in an
// epoll set next to an eventfd used to cancel the wait.
type PollNotifier struct {
	fd int

	mu     sync.Mutex
	wakeFd int // eventfd of the current registration, -1 when disarmed
}

// NewPollNotifier returns a poll strategy notifier for h, or ErrPollUnsupported
// if h has no descriptor.
func NewPollNotifier(h Handle) (*PollNotifier, error) {
	p, ok := h.(Pollable)
	if !ok || p.Fd() < 0 {
		return nil, ErrPollUnsupported
	}
	return &PollNotifier{fd: p.Fd(), wakeFd: -1}, nil
}

func (n *PollNotifier) Arm(onReady func() int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.wakeFd != -1 {
		return nil
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return errors.Wrap(err, "epoll_create1")
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return errors.Wrap(err, "eventfd")
	}
	for _, fd := range []int{n.fd, wakeFd} {
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err = unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			unix.Close(wakeFd)
			unix.Close(epfd)
			return errors.Wrap(err, "epoll_ctl")
		}
	}
	n.wakeFd = wakeFd
	go n.poll(epfd, wakeFd, onReady)
	return nil
}

// poll owns epfd and wakeFd and closes both on the way out.
func (n *PollNotifier) poll(epfd, wakeFd int, onReady func() int) {
	defer unix.Close(wakeFd)
	defer unix.Close(epfd)

	events := make([]unix.EpollEvent, 2)
	for {
		k, err := unix.EpollWait(epfd, events, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			slog.Error("[capture] epoll_wait: %v", err)
			return
		}
		readable, failed := false, false
		for _, ev := range events[:k] {
			if int(ev.Fd) == wakeFd {
				return
			}
			if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				slog.Debug("[capture] epoll: descriptor %d reported %#x", ev.Fd, ev.Events)
				failed = true
			}
			readable = true
		}
		// an error condition stays reported until the handle surfaces it,
		// back off instead of spinning on it
		if readable && onReady() == 0 && failed {
			time.Sleep(DefaultWaitIdle)
		}
	}
}

func (n *PollNotifier) Disarm() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.wakeFd == -1 {
		return
	}
	var one [8]byte
	binary.LittleEndian.PutUint64(one[:], 1)
	if _, err := unix.Write(n.wakeFd, one[:]); err != nil {
		slog.Error("[capture] eventfd write: %v", err)
	}
	n.wakeFd = -1
}
