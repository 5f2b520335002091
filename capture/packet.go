package capture

import (
	"sync"
	"time"
)

// Packet is one captured frame as seen by the consumer. Data is only valid
// inside the EventHandler call, use Clone to keep it.
type Packet struct {
	Data           []byte
	Timestamp      time.Time
	CaptureLength  int
	Length         int
	InterfaceIndex int

	pooled *[]byte
}

// TvSec is the capture time in whole seconds.
func (p *Packet) TvSec() int64 { return p.Timestamp.Unix() }

// TvUsec is the microsecond part of the capture time.
func (p *Packet) TvUsec() int64 { return int64(p.Timestamp.Nanosecond() / 1000) }

// Clone returns a copy that does not share the pooled buffer.
func (p *Packet) Clone() *Packet {
	c := *p
	c.Data = append([]byte(nil), p.Data...)
	c.pooled = nil
	return &c
}

// EventHandler consumes packets on the consumer goroutine.
type EventHandler func(p *Packet)

// ErrorHandler receives errors raised by the dispatch loop, ordered with the packets.
type ErrorHandler func(err error)

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 2048)
		return &b
	},
}

// newPacket copies data into a pooled buffer, at most snaplen bytes.
func newPacket(data []byte, snaplen int) *Packet {
	if snaplen > 0 && len(data) > snaplen {
		data = data[:snaplen]
	}
	bp := bufPool.Get().(*[]byte)
	*bp = append((*bp)[:0], data...)
	return &Packet{Data: *bp, CaptureLength: len(data), pooled: bp}
}

func (p *Packet) release() {
	if p.pooled == nil {
		return
	}
	// keep jumbo buffers out of the pool
	if cap(*p.pooled) <= 64<<10 {
		bufPool.Put(p.pooled)
	}
	p.pooled = nil
	p.Data = nil
}
