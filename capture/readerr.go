package capture

import (
	"io"
	"net"
	"syscall"

	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"
)

// isTimeout reports a read that ended without a packet.
func isTimeout(err error) bool {
	if errors.Is(err, ErrNoPacket) {
		return true
	}
	if enext, ok := err.(pcap.NextError); ok && enext == pcap.NextErrorTimeoutExpired {
		return true
	}
	if eno, ok := err.(syscall.Errno); ok && (eno == syscall.EAGAIN || eno == syscall.EINTR) {
		return true
	}
	if enet, ok := err.(*net.OpError); ok && enet.Timeout() {
		return true
	}
	return false
}

// isFatal reports a read error after which the handle can not produce packets.
func isFatal(err error) bool {
	if err == io.EOF || err == io.ErrClosedPipe || errors.Is(err, net.ErrClosed) {
		return true
	}
	if enext, ok := err.(pcap.NextError); ok && enext == pcap.NextErrorNoMorePackets {
		return true
	}
	var eno syscall.Errno
	if errors.As(err, &eno) {
		switch eno {
		case syscall.EBADF, syscall.ENETDOWN, syscall.ENXIO, syscall.ENODEV:
			return true
		}
	}
	return false
}
