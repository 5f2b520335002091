package biz

import "github.com/vearne/pcapbridge/capture"

// PluginWriter is an interface for output plugins
type PluginWriter interface {
	PluginWrite(p *capture.Packet) (n int, err error)
}

// Limiter decides whether a packet is handed to the outputs.
type Limiter interface {
	Allow() bool
}

// Sender injects raw frames, *capture.Session implements it.
type Sender interface {
	Send(b []byte) error
}
