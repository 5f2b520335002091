package plugin

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/vearne/pcapbridge/capture"
)

// StdOutput prints a header line and a hex dump for every packet.
type StdOutput struct {
	w io.Writer
}

// NewStdOutput writes to stdout.
func NewStdOutput() *StdOutput {
	return NewWriterOutput(os.Stdout)
}

// NewWriterOutput writes the same format to w.
func NewWriterOutput(w io.Writer) *StdOutput {
	return &StdOutput{w: w}
}

func (o *StdOutput) Close() error {
	return nil
}

// PluginWrite writes p. It runs on the consumer goroutine, p.Data is not kept.
func (o *StdOutput) PluginWrite(p *capture.Packet) (int, error) {
	n, err := fmt.Fprintf(o.w, "%d.%06d caplen=%d len=%d ifindex=%d\n",
		p.TvSec(), p.TvUsec(), p.CaptureLength, p.Length, p.InterfaceIndex)
	if err != nil {
		return n, err
	}
	nn, err := io.WriteString(o.w, hex.Dump(p.Data))
	n += nn
	if err != nil {
		return n, err
	}
	// make it more readable
	nn, err = o.w.Write([]byte{'\n'})
	return n + nn, err
}

func (o *StdOutput) String() string {
	return "Stdout Output"
}
