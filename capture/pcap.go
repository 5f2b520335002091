package capture

import (
	"github.com/google/gopacket/pcap"
	slog "github.com/vearne/simplelog"
)

// pcapHandle adapts *pcap.Handle to Handle.
type pcapHandle struct {
	*pcap.Handle
}

var _ Handle = (*pcapHandle)(nil)
var _ StatProvider = (*pcapHandle)(nil)

// CompileBPFFilter compiles for the handle's link type on a dead handle.
// (*pcap.Handle).CompileBPFFilter would look the device's netmask up first.
func (h *pcapHandle) CompileBPFFilter(expr string) ([]pcap.BPFInstruction, error) {
	return pcap.CompileBPFFilter(h.LinkType(), h.SnapLen(), expr)
}

// OpenPcap returns a live libpcap handle in promiscuous mode.
// Errors carry the libpcap message unmodified inside an *OpenError.
func OpenPcap(opts Options) (Handle, error) {
	opts = opts.withDefaults()
	inactive, err := pcap.NewInactiveHandle(opts.Interface)
	if err != nil {
		return nil, &OpenError{Interface: opts.Interface, Err: err}
	}
	defer inactive.CleanUp()

	if opts.TimestampType != "" && opts.TimestampType != "go" {
		var ts pcap.TimestampSource
		ts, err = pcap.TimestampSourceFromString(opts.TimestampType)
		if err != nil {
			return nil, &OpenError{Interface: opts.Interface, Err: err}
		}
		slog.Debug("[capture] %s: timestamp source %s, supported %v",
			opts.Interface, ts, inactive.SupportedTimestamps())
		if err = inactive.SetTimestampSource(ts); err != nil {
			return nil, &OpenError{Interface: opts.Interface, Err: err}
		}
	}
	if err = inactive.SetPromisc(true); err != nil {
		return nil, &OpenError{Interface: opts.Interface, Err: err}
	}
	if err = inactive.SetSnapLen(opts.Snaplen); err != nil {
		return nil, &OpenError{Interface: opts.Interface, Err: err}
	}
	if opts.BufferSize > 0 {
		if err = inactive.SetBufferSize(int(opts.BufferSize)); err != nil {
			return nil, &OpenError{Interface: opts.Interface, Err: err}
		}
	}
	if err = inactive.SetTimeout(opts.ReadTimeout); err != nil {
		return nil, &OpenError{Interface: opts.Interface, Err: err}
	}
	if opts.Immediate {
		if err = inactive.SetImmediateMode(true); err != nil {
			return nil, &OpenError{Interface: opts.Interface, Err: err}
		}
	}
	handle, err := inactive.Activate()
	if err != nil {
		return nil, &OpenError{Interface: opts.Interface, Err: err}
	}
	slog.Debug("[capture] %s: libpcap %s, link type %s, snaplen %d",
		opts.Interface, pcap.Version(), handle.LinkType(), handle.SnapLen())
	return &pcapHandle{Handle: handle}, nil
}
