// Package config holds the pcapbridge command line settings.
package config

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/vearne/pcapbridge/capture"
	"github.com/buger/goreplay/size"
)

// MultiStringOption allows a flag to be given several times, every value is
// appended to Params.
// e.g. -inject-hex="ffffffffffff..." -inject-hex="0011223344..."
type MultiStringOption struct {
	Params *[]string
}

func (h *MultiStringOption) String() string {
	if h.Params == nil {
		return ""
	}
	return fmt.Sprint(*h.Params)
}

// Set gets called multiple times for each flag with same name
func (h *MultiStringOption) Set(value string) error {
	if h.Params == nil {
		return nil
	}

	*h.Params = append(*h.Params, value)
	return nil
}

// AppSettings is the main configuration, every field maps to a command line flag.
type AppSettings struct {
	ExitAfter time.Duration `json:"exit-after"`

	// ######################## capture #######################
	Interface     string             `json:"interface"`
	Filter        string             `json:"filter"`
	Engine        capture.EngineType `json:"engine"`
	Notify        capture.NotifyMode `json:"notify"`
	Snaplen       int                `json:"snaplen"`
	ReadTimeout   time.Duration      `json:"read-timeout"`
	BufferSize    size.Size          `json:"buffer-size"`
	TimestampType string             `json:"timestamp-type"`
	Immediate     bool               `json:"immediate"`
	QueueSize     int                `json:"queue-size"`
	ListIfaces    bool               `json:"list-interfaces"`

	// ######################## inject ########################
	// hex encoded frames sent once the session is open
	InjectHex []string `json:"inject-hex"`

	// ######################## output ########################
	OutputStdout bool `json:"output-stdout"`
	OutputDummy  bool `json:"output-dummy"`
	// packets per second handed to the outputs, 0 means no limit
	OutputRate int `json:"output-rate"`

	// ######################## other #########################
	MetricsAddr string `json:"metrics-addr"`

	LogFile string `json:"log-file"`
	// MaxSize is the maximum size in megabytes of the log file before it gets rotated.
	LogFileMaxSize int `json:"log-file-max-size"`
	// MaxBackups is the maximum number of old log files to retain.
	LogFileMaxBackups int `json:"log-file-max-backups"`
	// MaxAge is the maximum number of days to retain old log files based on the
	// timestamp encoded in their filename.
	LogFileMaxAge int `json:"log-file-max-age"`
}

// CaptureOptions converts the capture related settings.
func (s *AppSettings) CaptureOptions() capture.Options {
	return capture.Options{
		Interface:     s.Interface,
		Filter:        s.Filter,
		Engine:        s.Engine,
		Notify:        s.Notify,
		Snaplen:       s.Snaplen,
		ReadTimeout:   s.ReadTimeout,
		BufferSize:    s.BufferSize,
		TimestampType: s.TimestampType,
		Immediate:     s.Immediate,
		QueueSize:     s.QueueSize,
	}
}

// Validate checks the settings that flag parsing can not.
func (s *AppSettings) Validate() error {
	if s.ListIfaces {
		return nil
	}
	if s.Interface == "" {
		return errors.New("an interface is required, use -i")
	}
	if s.Snaplen < 0 {
		return errors.Errorf("snaplen must not be negative, got %d", s.Snaplen)
	}
	if s.ReadTimeout < 0 {
		return errors.Errorf("read-timeout must not be negative, got %s", s.ReadTimeout)
	}
	if s.OutputRate < 0 {
		return errors.Errorf("output-rate must not be negative, got %d", s.OutputRate)
	}
	if s.ExitAfter < 0 {
		return errors.Errorf("exit-after must not be negative, got %s", s.ExitAfter)
	}
	return nil
}
