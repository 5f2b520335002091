//go:build linux

package capture

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"
	"unsafe"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/vearne/pcapbridge/util"
	"golang.org/x/sys/unix"
)

const (
	// ETHALL htons(ETH_P_ALL)
	ETHALL uint16 = unix.ETH_P_ALL<<8 | unix.ETH_P_ALL>>8
	// BLOCKSIZE ring buffer block_size
	BLOCKSIZE = 64 << 10
	// BLOCKNR ring buffer block_nr
	BLOCKNR = (2 << 20) / BLOCKSIZE // 2mb / 64kb
	// FRAMESIZE ring buffer frame_size
	FRAMESIZE = BLOCKSIZE
	// FRAMENR ring buffer frame_nr
	FRAMENR = BLOCKNR * BLOCKSIZE / FRAMESIZE
)

var tpacket2hdrlen = tpAlign(int(unsafe.Sizeof(unix.Tpacket2Hdr{})))

// SockRaw is a linux mmaped af_packet socket. Unlike libpcap handles it has a
// descriptor that can be registered with epoll.
type SockRaw struct {
	mu        sync.RWMutex // guards fd against Close
	ring      sync.Mutex   // guards frame
	fd        int
	ifindex   int
	snaplen   int
	timeout   time.Duration
	frame     uint32 // current frame
	buf       []byte // points to the memory space of the ring buffer shared with the kernel.
	loopIndex int32  // outgoing copies seen on this index are skipped

	received, dropped int // TpacketStats resets on every read
}

var _ Handle = (*SockRaw)(nil)
var _ Pollable = (*SockRaw)(nil)
var _ StatProvider = (*SockRaw)(nil)

// OpenSocket returns a promiscuous af_packet socket bound to opts.Interface.
func OpenSocket(opts Options) (Handle, error) {
	opts = opts.withDefaults()
	sock, err := NewSocket(opts.Interface)
	if err != nil {
		return nil, &OpenError{Interface: opts.Interface, Err: err}
	}
	if err = sock.SetPromiscuous(true); err != nil {
		sock.Close()
		return nil, &OpenError{Interface: opts.Interface, Err: err}
	}
	sock.SetSnapLen(opts.Snaplen)
	sock.SetTimeout(opts.ReadTimeout)
	if ifi, err := util.LookupInterface(opts.Interface); err == nil && ifi.Loopback() {
		sock.SetLoopbackIndex(int32(ifi.Index))
	}
	return sock, nil
}

// NewSocket returns new M'maped sock_raw on packet version 2.
func NewSocket(name string) (*SockRaw, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}

	// sock create
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, int(ETHALL))
	if err != nil {
		return nil, err
	}
	sock := &SockRaw{
		fd:        fd,
		ifindex:   ifi.Index,
		snaplen:   FRAMESIZE,
		timeout:   DefaultReadTimeout,
		loopIndex: -1,
	}

	// set packet version
	err = unix.SetsockoptInt(fd, unix.SOL_PACKET, unix.PACKET_VERSION, unix.TPACKET_V2)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt packet_version: %v", err)
	}

	// bind to interface
	addr := &unix.SockaddrLinklayer{
		Protocol: ETHALL,
		Ifindex:  ifi.Index,
	}
	if err = unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, err
	}

	// create shared-memory ring buffer
	tp := &unix.TpacketReq{
		Block_size: BLOCKSIZE,
		Block_nr:   BLOCKNR,
		Frame_size: FRAMESIZE,
		Frame_nr:   FRAMENR,
	}
	err = unix.SetsockoptTpacketReq(sock.fd, unix.SOL_PACKET, unix.PACKET_RX_RING, tp)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt packet_rx_ring: %v", err)
	}
	sock.buf, err = unix.Mmap(
		sock.fd,
		0,
		BLOCKSIZE*BLOCKNR,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED,
	)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socket mmap error: %v", err)
	}
	return sock, nil
}

// Fd returns the socket descriptor, readable when a ring frame is ready.
func (sock *SockRaw) Fd() int {
	sock.mu.RLock()
	defer sock.mu.RUnlock()
	return sock.fd
}

// ReadPacketData returns the next ring frame. It waits at most the configured
// timeout and returns ErrNoPacket if no frame became ready.
func (sock *SockRaw) ReadPacketData() (buf []byte, ci gopacket.CaptureInfo, err error) {
	sock.mu.RLock()
	defer sock.mu.RUnlock()
	if sock.fd == -1 {
		return nil, ci, net.ErrClosed
	}
	sock.ring.Lock()
	defer sock.ring.Unlock()

	polled := false
	for {
		i := int(sock.frame * FRAMESIZE)
		tpHdr := (*unix.Tpacket2Hdr)(unsafe.Pointer(&sock.buf[i]))
		if tpHdr.Status&unix.TP_STATUS_USER == 0 {
			if polled {
				return nil, ci, ErrNoPacket
			}
			fds := []unix.PollFd{{Fd: int32(sock.fd), Events: unix.POLLIN}}
			_, err = unix.Poll(fds, int(sock.timeout/time.Millisecond))
			if err != nil && err != unix.EINTR {
				return nil, ci, err
			}
			if err = sockError(sock.fd, fds[0].Revents); err != nil {
				return nil, ci, err
			}
			polled = true
			continue
		}
		sock.frame = (sock.frame + 1) % FRAMENR
		sockAddr := (*unix.RawSockaddrLinklayer)(unsafe.Pointer(&sock.buf[i+tpacket2hdrlen]))

		// the loopback device shows every packet twice
		if sockAddr.Ifindex == sock.loopIndex && sockAddr.Pkttype == unix.PACKET_OUTGOING {
			tpHdr.Status = unix.TP_STATUS_KERNEL
			continue
		}

		ci.Length = int(tpHdr.Len)
		ci.Timestamp = time.Unix(int64(tpHdr.Sec), int64(tpHdr.Nsec))
		ci.InterfaceIndex = int(sockAddr.Ifindex)
		n := int(tpHdr.Snaplen)
		if n > sock.snaplen {
			n = sock.snaplen
		}
		buf = make([]byte, n)
		ci.CaptureLength = copy(buf, sock.buf[i+int(tpHdr.Mac):])
		tpHdr.Status = unix.TP_STATUS_KERNEL
		return buf, ci, nil
	}
}

// Close closes the underlying socket
func (sock *SockRaw) Close() {
	sock.mu.Lock()
	defer sock.mu.Unlock()
	if sock.fd != -1 {
		unix.Munmap(sock.buf)
		sock.buf = nil
		unix.Close(sock.fd)
		sock.fd = -1
	}
}

// SetSnapLen sets the maximum capture length to the given value.
// for this to take effects on the kernel level a filter should be installed too.
func (sock *SockRaw) SetSnapLen(snap int) {
	sock.ring.Lock()
	defer sock.ring.Unlock()
	if snap <= 0 || snap > FRAMESIZE {
		snap = FRAMESIZE
	}
	sock.snaplen = snap
}

// SnapLen returns the maximum capture length
func (sock *SockRaw) SnapLen() int {
	sock.ring.Lock()
	defer sock.ring.Unlock()
	return sock.snaplen
}

// SetTimeout sets poll wait timeout for the socket.
func (sock *SockRaw) SetTimeout(t time.Duration) {
	sock.ring.Lock()
	defer sock.ring.Unlock()
	sock.timeout = t
}

// CompileBPFFilter compiles expr for ethernet framing.
func (sock *SockRaw) CompileBPFFilter(expr string) ([]pcap.BPFInstruction, error) {
	return pcap.CompileBPFFilter(layers.LinkTypeEthernet, sock.SnapLen(), expr)
}

// SetBPFInstructionFilter attaches a compiled program, an empty program detaches.
func (sock *SockRaw) SetBPFInstructionFilter(insns []pcap.BPFInstruction) error {
	sock.mu.RLock()
	defer sock.mu.RUnlock()
	if sock.fd == -1 {
		return net.ErrClosed
	}
	if len(insns) == 0 {
		err := unix.SetsockoptInt(sock.fd, unix.SOL_SOCKET, unix.SO_DETACH_FILTER, 0)
		if err == unix.ENOENT {
			return nil
		}
		return err
	}
	if len(insns) > int(^uint16(0)) {
		return fmt.Errorf("filters out of range 0-%d", ^uint16(0))
	}
	filter := make([]unix.SockFilter, len(insns))
	for i, ins := range insns {
		filter[i] = unix.SockFilter{Code: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	fprog := &unix.SockFprog{
		Len:    uint16(len(filter)),
		Filter: &filter[0],
	}
	return unix.SetsockoptSockFprog(sock.fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, fprog)
}

// SetPromiscuous sets promiscuous mode to the required value.
// If it is enabled, traffic not destined for the interface will also be captured.
func (sock *SockRaw) SetPromiscuous(b bool) error {
	sock.mu.RLock()
	defer sock.mu.RUnlock()
	mreq := unix.PacketMreq{
		Ifindex: int32(sock.ifindex),
		Type:    unix.PACKET_MR_PROMISC,
	}

	opt := unix.PACKET_ADD_MEMBERSHIP
	if !b {
		opt = unix.PACKET_DROP_MEMBERSHIP
	}

	return unix.SetsockoptPacketMreq(sock.fd, unix.SOL_PACKET, opt, &mreq)
}

// Stats returns cumulative received and dropped counters.
func (sock *SockRaw) Stats() (*pcap.Stats, error) {
	sock.mu.RLock()
	defer sock.mu.RUnlock()
	if sock.fd == -1 {
		return nil, net.ErrClosed
	}
	st, err := unix.GetsockoptTpacketStats(sock.fd, unix.SOL_PACKET, unix.PACKET_STATISTICS)
	if err != nil {
		return nil, err
	}
	sock.ring.Lock()
	defer sock.ring.Unlock()
	sock.received += int(st.Packets)
	sock.dropped += int(st.Drops)
	return &pcap.Stats{PacketsReceived: sock.received, PacketsDropped: sock.dropped}, nil
}

// SetLoopbackIndex necessary to avoid reading packet twice on a loopback device
func (sock *SockRaw) SetLoopbackIndex(i int32) {
	sock.ring.Lock()
	defer sock.ring.Unlock()
	sock.loopIndex = i
}

// WritePacketData transmits a raw frame on the bound interface.
func (sock *SockRaw) WritePacketData(pkt []byte) error {
	sock.mu.RLock()
	defer sock.mu.RUnlock()
	if sock.fd == -1 {
		return net.ErrClosed
	}
	_, err := unix.Write(sock.fd, pkt)
	return err
}

// sockError returns the error pending on fd when poll reported one. A socket
// whose interface went away reads as ENETDOWN instead of an idle socket.
func sockError(fd int, revents int16) error {
	if revents&unix.POLLNVAL != 0 {
		return unix.EBADF
	}
	if revents&(unix.POLLERR|unix.POLLHUP) == 0 {
		return nil
	}
	soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if soerr != 0 {
		return unix.Errno(soerr)
	}
	if revents&unix.POLLHUP != 0 {
		return io.EOF
	}
	return nil
}

func tpAlign(x int) int {
	return int((uint(x) + unix.TPACKET_ALIGNMENT - 1) &^ (unix.TPACKET_ALIGNMENT - 1))
}
