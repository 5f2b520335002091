package config

import (
	"flag"
	"testing"
	"time"

	"github.com/buger/goreplay/size"
	"github.com/stretchr/testify/assert"
	"github.com/vearne/pcapbridge/capture"
)

func TestMultiStringOption(t *testing.T) {
	var frames []string
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&MultiStringOption{Params: &frames}, "inject-hex", "")
	assert.Nil(t, fs.Parse([]string{"-inject-hex", "aa", "-inject-hex", "bb"}))
	assert.Equal(t, []string{"aa", "bb"}, frames)
}

func TestBufferSizeFlag(t *testing.T) {
	var d = map[string]int{
		"42mb":                 42 << 20,
		"4_2":                  42,
		"00":                   0,
		"0":                    0,
		"0_600tb":              384 << 40,
		"0600Tb":               384 << 40,
		"0o12Mb":               10 << 20,
		"0b_10010001111_1kb":   2335 << 10,
		"1024":                 1 << 10,
		"0b111":                7,
		"0x12gB":               18 << 30,
		"0x_67_7a_2f_cc_40_c6": 113774485586118,
		"121562380192901":      121562380192901,
	}
	for k, v := range d {
		var s AppSettings
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		fs.Var(&s.BufferSize, "buffer-size", "")
		err := fs.Parse([]string{"-buffer-size", k})
		if err != nil || s.BufferSize != size.Size(v) {
			t.Errorf("Error parsing %s: %v", k, err)
		}
	}

	var s AppSettings
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&s.BufferSize, "buffer-size", "")
	assert.NotNil(t, fs.Parse([]string{"-buffer-size", "8 mb"}))
	assert.NotNil(t, fs.Parse([]string{"-buffer-size", "-1kb"}))
}

func TestValidate(t *testing.T) {
	s := AppSettings{}
	assert.NotNil(t, s.Validate())

	s.ListIfaces = true
	assert.Nil(t, s.Validate())

	s = AppSettings{Interface: "eth0"}
	assert.Nil(t, s.Validate())
	s.OutputRate = -1
	assert.NotNil(t, s.Validate())
	s.OutputRate = 0
	s.ReadTimeout = -time.Second
	assert.NotNil(t, s.Validate())
}

func TestCaptureOptions(t *testing.T) {
	s := AppSettings{
		Interface:   "eth0",
		Filter:      "tcp port 80",
		Engine:      capture.EngineRawSocket,
		Notify:      capture.NotifyPoll,
		Snaplen:     1514,
		ReadTimeout: 100 * time.Millisecond,
		QueueSize:   16,
		BufferSize:  8 << 20,
	}
	o := s.CaptureOptions()
	assert.Equal(t, "eth0", o.Interface)
	assert.Equal(t, "tcp port 80", o.Filter)
	assert.Equal(t, capture.EngineRawSocket, o.Engine)
	assert.Equal(t, capture.NotifyPoll, o.Notify)
	assert.Equal(t, 1514, o.Snaplen)
	assert.Equal(t, size.Size(8<<20), o.BufferSize)
	assert.Equal(t, 16, o.QueueSize)
}
