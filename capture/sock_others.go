//go:build !linux

package capture

import (
	"github.com/pkg/errors"
)

// OpenSocket returns an error, af_packet sockets only exist on linux.
func OpenSocket(opts Options) (Handle, error) {
	return nil, &OpenError{
		Interface: opts.Interface,
		Err:       errors.New("raw_socket engine is only available on linux"),
	}
}
