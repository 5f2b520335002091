// Package biz is the consumer side of a capture session: it hands every
// packet to the configured output plugins and injects frames back.
package biz

import (
	"io"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/vearne/pcapbridge/capture"
	"github.com/vearne/pcapbridge/util"
	slog "github.com/vearne/simplelog"
)

// Emitter fans packets out to the outputs. Handle and HandleError run on the
// session's consumer goroutine, one call at a time.
type Emitter struct {
	plugins *InOutPlugins
	limiter Limiter

	limited atomic.Int64
	fatal   chan error
}

// NewEmitter creates an Emitter, lim may be nil.
func NewEmitter(plugins *InOutPlugins, lim Limiter) *Emitter {
	return &Emitter{
		plugins: plugins,
		limiter: lim,
		fatal:   make(chan error, 1),
	}
}

// Handle is the capture.EventHandler.
func (e *Emitter) Handle(p *capture.Packet) {
	if e.limiter != nil && !e.limiter.Allow() {
		e.limited.Add(1)
		return
	}
	for _, dst := range e.plugins.Outputs {
		if _, err := dst.PluginWrite(p); err != nil {
			slog.Error("[emitter] %v write:%v", dst, err)
		}
	}
}

// HandleError is the capture.ErrorHandler. A fatal read error is also
// reported on Fatal.
func (e *Emitter) HandleError(err error) {
	var re *capture.ReadError
	if errors.As(err, &re) && re.Fatal {
		slog.Error("[emitter] capture on %s ended: %v", re.Interface, err)
		select {
		case e.fatal <- err:
		default:
		}
		return
	}
	slog.Warn("[emitter] %v", err)
}

// Fatal receives the error that ended the capture, if any.
func (e *Emitter) Fatal() <-chan error {
	return e.fatal
}

// Limited is the number of packets dropped by the limiter.
func (e *Emitter) Limited() int64 {
	return e.limited.Load()
}

// Close closes every plugin that is an io.Closer.
func (e *Emitter) Close() {
	for _, p := range e.plugins.All {
		if cp, ok := p.(io.Closer); ok {
			cp.Close()
		}
	}
	e.plugins.All = nil // avoid Close to make changes again
}

// InjectFrames decodes every hex frame first and sends them in order. A
// decode error sends nothing; a send error stops at the failing frame.
func InjectFrames(s Sender, frames []string) (int, error) {
	decoded := make([][]byte, 0, len(frames))
	for i, f := range frames {
		b, err := util.DecodeHexFrame(f)
		if err != nil {
			return 0, errors.Wrapf(err, "frame %d", i)
		}
		decoded = append(decoded, b)
	}
	for i, b := range decoded {
		if err := s.Send(b); err != nil {
			return i, err
		}
		slog.Debug("[emitter] injected frame %d, %d bytes", i, len(b))
	}
	return len(decoded), nil
}
