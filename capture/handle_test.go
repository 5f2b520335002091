package capture

import (
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"
)

// fakeHandle replays queued frames and applies a toy "tcp"/"udp" filter on
// the IPv4 protocol byte. It records every call made after Close.
type fakeHandle struct {
	mu        sync.Mutex
	frames    [][]byte
	stamps    []time.Time
	active    string
	compiled  string
	installed int

	readErr    error
	errOnce    bool
	writeErr   error
	compileErr error
	installErr error
	sent       [][]byte

	// when gate is set every read signals entered and then waits on gate
	gate    chan struct{}
	entered chan struct{}
	reading int
	// compiles and installs that ran while a read was in progress
	overlap int

	closed      int
	afterClose  int
	closeInRead bool
	stats       pcap.Stats
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{}
}

func (f *fakeHandle) inject(ts time.Time, frames ...[]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fr := range frames {
		f.frames = append(f.frames, fr)
		f.stamps = append(f.stamps, ts)
	}
}

func (f *fakeHandle) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	f.mu.Lock()
	if f.closed > 0 {
		f.afterClose++
		f.mu.Unlock()
		return nil, gopacket.CaptureInfo{}, errors.New("read on closed handle")
	}
	gate, entered := f.gate, f.entered
	f.reading++
	f.mu.Unlock()

	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.reading--
	if f.readErr != nil {
		err := f.readErr
		if f.errOnce {
			f.readErr = nil
		}
		return nil, gopacket.CaptureInfo{}, err
	}
	for len(f.frames) > 0 {
		data, ts := f.frames[0], f.stamps[0]
		f.frames, f.stamps = f.frames[1:], f.stamps[1:]
		if !f.match(data) {
			continue
		}
		ci := gopacket.CaptureInfo{
			Timestamp:      ts,
			CaptureLength:  len(data),
			Length:         len(data),
			InterfaceIndex: 7,
		}
		return data, ci, nil
	}
	return nil, gopacket.CaptureInfo{}, ErrNoPacket
}

func (f *fakeHandle) match(data []byte) bool {
	var proto byte
	if len(data) > 23 {
		proto = data[23]
	}
	switch f.active {
	case "tcp":
		return proto == 6
	case "udp":
		return proto == 17
	}
	return true
}

func (f *fakeHandle) WritePacketData(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed > 0 {
		f.afterClose++
	}
	if f.writeErr != nil {
		return f.writeErr
	}
	f.sent = append(f.sent, append([]byte(nil), b...))
	return nil
}

func (f *fakeHandle) CompileBPFFilter(expr string) ([]pcap.BPFInstruction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed > 0 {
		f.afterClose++
	}
	if f.reading > 0 {
		f.overlap++
	}
	if f.compileErr != nil {
		return nil, f.compileErr
	}
	switch expr {
	case "tcp", "udp", "":
	default:
		return nil, errors.New("syntax error")
	}
	f.compiled = expr
	// ldb [23]; jeq #proto; ret #262144; ret #0
	proto := uint32(6)
	if expr == "udp" {
		proto = 17
	}
	return []pcap.BPFInstruction{
		{Code: 0x30, K: 23},
		{Code: 0x15, Jt: 0, Jf: 1, K: proto},
		{Code: 0x06, K: 262144},
		{Code: 0x06, K: 0},
	}, nil
}

func (f *fakeHandle) SetBPFInstructionFilter(insns []pcap.BPFInstruction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed > 0 {
		f.afterClose++
	}
	if f.reading > 0 {
		f.overlap++
	}
	if f.installErr != nil {
		return f.installErr
	}
	f.active = f.compiled
	f.installed++
	return nil
}

func (f *fakeHandle) Stats() (*pcap.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.stats
	return &st, nil
}

func (f *fakeHandle) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reading > 0 {
		f.closeInRead = true
	}
	f.closed++
}

func (f *fakeHandle) snapshot() (closed, afterClose int, closeInRead bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed, f.afterClose, f.closeInRead
}

// manualNotifier lets a test decide when the dispatch loop runs. fire keeps
// calling the last armed callback after Disarm, like a notification that
// raced the disarm.
type manualNotifier struct {
	mu      sync.Mutex
	last    func() int
	armed   bool
	arms    int
	disarms int
	armErr  error
}

func (n *manualNotifier) Arm(onReady func() int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.armErr != nil {
		return n.armErr
	}
	n.last, n.armed = onReady, true
	n.arms++
	return nil
}

func (n *manualNotifier) Disarm() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.armed = false
	n.disarms++
}

func (n *manualNotifier) fire() int {
	n.mu.Lock()
	f := n.last
	n.mu.Unlock()
	if f == nil {
		return 0
	}
	return f()
}

func (n *manualNotifier) isArmed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.armed
}

// frame builds an Ethernet/IPv4 frame of size bytes carrying proto.
func frame(size int, proto byte, fill byte) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = fill
	}
	b[12], b[13] = 0x08, 0x00
	b[14] = 0x45
	if size > 23 {
		b[23] = proto
	}
	return b
}
