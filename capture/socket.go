package capture

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

// Handle is the capture facility a Session drives. *pcap.Handle satisfies it
// through pcapHandle, the AF_PACKET socket through SockRaw.
type Handle interface {
	// ReadPacketData returns at most one packet. When nothing arrives within the
	// read timeout it returns ErrNoPacket or pcap.NextErrorTimeoutExpired.
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	WritePacketData([]byte) error
	Compiler
	Installer
	Close()
}

// Pollable is implemented by handles that expose a descriptor which becomes
// readable when packets are queued.
type Pollable interface {
	Fd() int
}

// StatProvider is implemented by handles that keep kernel capture statistics.
type StatProvider interface {
	Stats() (*pcap.Stats, error)
}

// EngineType selects the capture facility.
type EngineType uint8

// Available engines for capturing traffic
const (
	EnginePcap EngineType = 1 << iota
	EngineRawSocket
)

// Set is here so that EngineType can implement flag.Var
func (eng *EngineType) Set(v string) error {
	switch v {
	case "", "libpcap":
		*eng = EnginePcap
	case "raw_socket":
		*eng = EngineRawSocket
	default:
		return fmt.Errorf("invalid engine %s", v)
	}
	return nil
}

func (eng *EngineType) String() (e string) {
	switch *eng {
	case EnginePcap:
		e = "libpcap"
	case EngineRawSocket:
		e = "raw_socket"
	default:
		e = ""
	}
	return e
}

// OpenHandle opens the handle selected by opts.Engine.
func OpenHandle(opts Options) (Handle, error) {
	switch opts.Engine {
	case EngineRawSocket:
		return OpenSocket(opts)
	default:
		return OpenPcap(opts)
	}
}
