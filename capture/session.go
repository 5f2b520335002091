package capture

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	slog "github.com/vearne/simplelog"
	"golang.org/x/time/rate"
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateIdle State = iota
	StateOpen
	// StateStopping means release was requested while a dispatch loop was
	// running; the loop releases the handle on its way out.
	StateStopping
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateStopping:
		return "stopping"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// maxReadErrors consecutive failed reads end a drain.
const maxReadErrors = 8

// SessionOption customizes a Session before Start.
type SessionOption func(*Session)

// WithOpener replaces OpenHandle, mostly for tests.
func WithOpener(open func(Options) (Handle, error)) SessionOption {
	return func(s *Session) { s.open = open }
}

// WithNotifier replaces the strategy chosen from Options.Notify.
func WithNotifier(fn func(Handle) (Notifier, error)) SessionOption {
	return func(s *Session) { s.newNotifier = fn }
}

// WithMetrics records session activity in m.
func WithMetrics(m *Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// WithErrorHandler receives read errors on the consumer goroutine. Without
// one they are logged.
func WithErrorHandler(h ErrorHandler) SessionOption {
	return func(s *Session) { s.onError = h }
}

// Session owns one capture handle. Packets read by the dispatch loop are
// delivered to the EventHandler on a single consumer goroutine, in capture
// order.
type Session struct {
	id      string
	opts    Options
	metrics *Metrics
	onError ErrorHandler

	open        func(Options) (Handle, error)
	newNotifier func(Handle) (Notifier, error)

	// read by the dispatch loop before every read
	state atomic.Int32

	mu          sync.Mutex
	dispatching bool
	// readMu is held around every handle read and every filter swap, capture
	// handles are not safe for concurrent use.
	readMu      sync.Mutex
	handle      Handle
	notifier    Notifier
	program     *Program
	filter      string

	queue    *Queue
	released chan struct{}
	once     sync.Once
	logLimit *rate.Limiter
}

// NewSession returns an Idle session. The consumer goroutine starts right
// away, Close must be called to end it.
func NewSession(opts Options, handler EventHandler, options ...SessionOption) *Session {
	s := &Session{
		id:       uuid.New().String(),
		opts:     opts.withDefaults(),
		open:     OpenHandle,
		released: make(chan struct{}),
		logLimit: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	s.newNotifier = func(h Handle) (Notifier, error) {
		return newNotifier(s.opts.Notify, h)
	}
	for _, o := range options {
		o(s)
	}
	s.queue = NewQueue(s.opts.QueueSize, handler, s.onError)
	return s
}

// Open creates and starts a session. On failure the session is already
// closed and nil is returned.
func Open(opts Options, handler EventHandler, options ...SessionOption) (*Session, error) {
	s := NewSession(opts, handler, options...)
	if err := s.Start(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Start opens the handle, installs the initial filter and arms the
// notifier. It is only valid on an Idle session; any failure leaves the
// session Closed.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != StateIdle {
		return ErrInvalidState
	}

	h, err := s.open(s.opts)
	if err != nil {
		s.finishLocked()
		return err
	}
	if s.opts.Filter != "" {
		p, err := Compile(h, s.opts.Filter)
		if err == nil {
			err = Install(h, p)
		}
		s.metrics.filterUpdate(s.opts.Interface, err)
		if err != nil {
			h.Close()
			s.finishLocked()
			return err
		}
		s.program, s.filter = p, p.Expr
		s.logProgram(p)
	}
	n, err := s.newNotifier(h)
	if err != nil {
		h.Close()
		s.finishLocked()
		return err
	}

	s.handle, s.notifier = h, n
	s.state.Store(int32(StateOpen))
	s.metrics.opened(s.opts.Interface, 1)
	if err = n.Arm(s.dispatch); err != nil {
		s.releaseLocked()
		return err
	}
	slog.Info("[capture] session %s: listening on %s, filter %q",
		s.id, s.opts.Interface, s.filter)
	return nil
}

// SetFilter compiles and installs expr. A compile failure keeps the current
// program and the session open. An install failure closes the session.
// A read in progress finishes before the swap starts.
func (s *Session) SetFilter(expr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != StateOpen {
		return ErrNotOpen
	}

	s.readMu.Lock()
	p, err := Compile(s.handle, expr)
	if err == nil {
		err = Install(s.handle, p)
	}
	s.readMu.Unlock()
	s.metrics.filterUpdate(s.opts.Interface, err)

	if fe, ok := err.(*FilterError); ok && fe.Fatal() {
		slog.Error("[capture] session %s: install filter %q: %v", s.id, expr, err)
		s.stopLocked()
		return err
	}
	if err == nil {
		s.program, s.filter = p, expr
		s.logProgram(p)
	}
	return err
}

// Stop disarms the notifier and releases the handle. If a dispatch loop is
// running the release happens when it returns. Stop never waits and may be
// called any number of times, including from the EventHandler.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Close stops the session and shuts the consumer goroutine down once the
// events already queued are delivered. A packet the dispatch loop is still
// waiting to queue when Close lands is dropped, Close does not wait for
// queue space. It always returns nil.
func (s *Session) Close() error {
	s.Stop()
	s.queue.Close()
	return nil
}

// Send writes one raw frame to the interface. Failures are returned as
// *SendError and leave the session open.
func (s *Session) Send(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != StateOpen {
		return ErrNotOpen
	}
	err := s.handle.WritePacketData(b)
	s.metrics.sent(s.opts.Interface, err)
	if err != nil {
		return &SendError{Err: err}
	}
	return nil
}

func (s *Session) stopLocked() {
	switch s.State() {
	case StateIdle:
		s.finishLocked()
	case StateOpen:
		s.state.Store(int32(StateStopping))
		s.notifier.Disarm()
		if !s.dispatching {
			s.releaseLocked()
		}
	}
}

// releaseLocked closes the handle. It runs once, from Stop or from the
// dispatch loop that observed StateStopping.
func (s *Session) releaseLocked() {
	if s.handle != nil {
		s.notifier.Disarm()
		s.handle.Close()
		s.handle = nil
		s.metrics.opened(s.opts.Interface, -1)
		slog.Info("[capture] session %s: released %s", s.id, s.opts.Interface)
	}
	s.finishLocked()
}

func (s *Session) finishLocked() {
	s.state.Store(int32(StateClosed))
	s.once.Do(func() { close(s.released) })
}

// dispatch drains the handle one packet at a time. It is the notifier's
// onReady and returns the number of packets handed to the queue.
func (s *Session) dispatch() int {
	s.mu.Lock()
	if s.State() != StateOpen || s.dispatching {
		s.mu.Unlock()
		return 0
	}
	s.dispatching = true
	h := s.handle
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.dispatching = false
		if s.State() == StateStopping {
			s.releaseLocked()
		}
		s.mu.Unlock()
	}()

	var n, failed int
	for {
		s.readMu.Lock()
		if s.State() != StateOpen {
			s.readMu.Unlock()
			break
		}
		data, ci, err := h.ReadPacketData()
		s.readMu.Unlock()
		if err != nil {
			if isTimeout(err) {
				break
			}
			fatal := isFatal(err)
			s.metrics.readError(s.opts.Interface, fatal)
			rerr := &ReadError{Interface: s.opts.Interface, Err: err, Fatal: fatal}
			if fatal {
				slog.Error("[capture] session %s: %s is gone: %v", s.id, s.opts.Interface, err)
				s.mu.Lock()
				if s.State() == StateOpen {
					s.state.Store(int32(StateStopping))
				}
				s.mu.Unlock()
				s.queue.SubmitError(rerr)
				break
			}
			if s.logLimit.Allow() {
				slog.Warn("[capture] session %s: read: %v", s.id, err)
			}
			if !s.queue.SubmitError(rerr) {
				break
			}
			failed++
			if failed > maxReadErrors {
				break
			}
			continue
		}
		failed = 0

		p := newPacket(data, s.opts.Snaplen)
		p.Timestamp = ci.Timestamp
		if s.opts.TimestampType == "go" || p.Timestamp.IsZero() {
			p.Timestamp = time.Now()
		}
		p.Length = ci.Length
		if p.Length < p.CaptureLength {
			p.Length = p.CaptureLength
		}
		p.InterfaceIndex = ci.InterfaceIndex
		caplen := p.CaptureLength
		if !s.queue.Submit(p) {
			break
		}
		s.metrics.captured(s.opts.Interface, caplen)
		n++
	}
	return n
}

func (s *Session) logProgram(p *Program) {
	insns, ok := p.Disassemble()
	slog.Debug("[capture] session %s: filter %q, %d instructions, symbolic %v",
		s.id, p.Expr, p.Len(), ok)
	for i, ins := range insns {
		slog.Debug("[capture]   %03d %v", i, ins)
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// ID is a random identifier used in logs.
func (s *Session) ID() string { return s.id }

// Interface is the captured interface name.
func (s *Session) Interface() string { return s.opts.Interface }

// Filter returns the expression currently installed, empty for none.
func (s *Session) Filter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Program returns the installed program, nil when no filter is set.
func (s *Session) Program() *Program {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.program
}

// Done is closed once the handle has been released.
func (s *Session) Done() <-chan struct{} {
	return s.released
}

// Wait blocks until the consumer goroutine exits, which happens after Close.
func (s *Session) Wait() {
	s.queue.Wait()
}

// Stats returns the handle's capture statistics.
func (s *Session) Stats() (*StatsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return nil, ErrNotOpen
	}
	sp, ok := s.handle.(StatProvider)
	if !ok {
		return nil, ErrStatsUnsupported
	}
	st, err := sp.Stats()
	if err != nil {
		return nil, err
	}
	return &StatsSnapshot{
		Received:  st.PacketsReceived,
		Dropped:   st.PacketsDropped,
		IfDropped: st.PacketsIfDropped,
		Queued:    s.queue.Len(),
	}, nil
}

// StatsSnapshot combines kernel counters with the hand-off queue depth.
type StatsSnapshot struct {
	Received  int
	Dropped   int
	IfDropped int
	Queued    int
}
