package plugin

import (
	"fmt"
	"sync/atomic"

	"github.com/vearne/pcapbridge/capture"
)

// DummyOutput used for benchmarking, only counts what it receives
type DummyOutput struct {
	packets atomic.Int64
	bytes   atomic.Int64
}

// NewDummyOutput constructor for DummyOutput
func NewDummyOutput() *DummyOutput {
	return new(DummyOutput)
}

// PluginWrite writes message to this plugin
func (i *DummyOutput) PluginWrite(p *capture.Packet) (int, error) {
	i.packets.Add(1)
	i.bytes.Add(int64(len(p.Data)))
	return len(p.Data), nil
}

// Counts returns the packets and bytes seen so far.
func (i *DummyOutput) Counts() (packets, bytes int64) {
	return i.packets.Load(), i.bytes.Load()
}

func (i *DummyOutput) String() string {
	packets, bytes := i.Counts()
	return fmt.Sprintf("Dummy Output: %d packets, %d bytes", packets, bytes)
}
