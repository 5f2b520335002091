package biz

import (
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/vearne/pcapbridge/capture"
	"github.com/vearne/pcapbridge/plugin"
)

type denyAfter struct {
	n int
}

func (d *denyAfter) Allow() bool {
	d.n--
	return d.n >= 0
}

type failingOutput struct {
	closed bool
}

func (f *failingOutput) PluginWrite(p *capture.Packet) (int, error) {
	return 0, errors.New("disk full")
}

func (f *failingOutput) Close() error {
	f.closed = true
	return nil
}

type fakeSender struct {
	sent [][]byte
	fail int
}

func (s *fakeSender) Send(b []byte) error {
	if len(s.sent) == s.fail {
		return &capture.SendError{Err: errors.New("send: Network is down")}
	}
	s.sent = append(s.sent, b)
	return nil
}

func TestEmitterFanOut(t *testing.T) {
	d1, d2 := plugin.NewDummyOutput(), plugin.NewDummyOutput()
	bad := &failingOutput{}
	plugins := new(InOutPlugins)
	plugins.registerPlugin(func() *plugin.DummyOutput { return d1 })
	plugins.registerPlugin(func() *failingOutput { return bad })
	plugins.registerPlugin(func() *plugin.DummyOutput { return d2 })

	e := NewEmitter(plugins, &denyAfter{n: 2})
	for i := 0; i < 3; i++ {
		e.Handle(&capture.Packet{Data: make([]byte, 64)})
	}
	p1, _ := d1.Counts()
	p2, b2 := d2.Counts()
	assert.Equal(t, int64(2), p1)
	assert.Equal(t, int64(2), p2)
	assert.Equal(t, int64(128), b2)
	assert.Equal(t, int64(1), e.Limited())

	e.Close()
	assert.True(t, bad.closed)
	e.Close()
}

func TestEmitterFatalError(t *testing.T) {
	e := NewEmitter(new(InOutPlugins), nil)
	e.HandleError(&capture.ReadError{Interface: "eth0", Err: errors.New("transient")})
	select {
	case <-e.Fatal():
		t.Fatal("non fatal error reported as fatal")
	default:
	}

	e.HandleError(&capture.ReadError{Interface: "eth0", Err: io.EOF, Fatal: true})
	err := <-e.Fatal()
	assert.Equal(t, "EOF", err.Error())
}

func TestInjectFrames(t *testing.T) {
	frames := []string{
		"ffffffffffff001c422e604a0806",
		"ff:ff:ff:ff:ff:ff:00:1c:42:2e:60:4a:08:00:45",
	}
	s := &fakeSender{fail: -1}
	n, err := InjectFrames(s, frames)
	assert.Nil(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 14, len(s.sent[0]))
	assert.Equal(t, 15, len(s.sent[1]))

	s = &fakeSender{fail: 1}
	n, err = InjectFrames(s, frames)
	assert.Equal(t, 1, n)
	var se *capture.SendError
	assert.True(t, errors.As(err, &se))

	s = &fakeSender{fail: -1}
	n, err = InjectFrames(s, []string{frames[0], "nothex"})
	assert.NotNil(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, len(s.sent))
}
