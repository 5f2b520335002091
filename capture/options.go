package capture

import (
	"fmt"
	"time"

	"github.com/buger/goreplay/size"
)

const (
	// DefaultSnaplen is large enough for full frames including offloaded super-frames.
	DefaultSnaplen = 262144
	// DefaultReadTimeout bounds how long a read waits, and with it notification latency.
	DefaultReadTimeout = 250 * time.Millisecond
	// DefaultQueueSize is the hand-off queue depth before the dispatch loop blocks.
	DefaultQueueSize = 1024
)

// NotifyMode selects the readiness notification strategy.
type NotifyMode uint8

const (
	NotifyAuto NotifyMode = iota
	NotifyPoll
	NotifyWait
)

// Set is here so that NotifyMode can implement flag.Var
func (m *NotifyMode) Set(v string) error {
	switch v {
	case "", "auto":
		*m = NotifyAuto
	case "poll":
		*m = NotifyPoll
	case "wait":
		*m = NotifyWait
	default:
		return fmt.Errorf("invalid notify mode %s", v)
	}
	return nil
}

func (m *NotifyMode) String() string {
	switch *m {
	case NotifyPoll:
		return "poll"
	case NotifyWait:
		return "wait"
	}
	return "auto"
}

// Options configure a capture session. Promiscuous mode is always enabled.
type Options struct {
	Interface string `json:"interface"`
	// Filter is the initial filter expression, empty means capture everything.
	Filter string `json:"filter"`

	Engine        EngineType    `json:"engine"`
	Notify        NotifyMode    `json:"notify"`
	Snaplen       int           `json:"snaplen"`
	ReadTimeout   time.Duration `json:"read-timeout"`
	BufferSize    size.Size     `json:"buffer-size"`
	TimestampType string        `json:"timestamp-type"`
	Immediate     bool          `json:"immediate"`
	QueueSize     int           `json:"queue-size"`
}

// withDefaults fills zero fields. A negative QueueSize selects an unbuffered queue.
func (o Options) withDefaults() Options {
	if o.Engine == 0 {
		o.Engine = EnginePcap
	}
	if o.Snaplen <= 0 {
		o.Snaplen = DefaultSnaplen
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	switch {
	case o.QueueSize == 0:
		o.QueueSize = DefaultQueueSize
	case o.QueueSize < 0:
		o.QueueSize = 0
	}
	return o
}
