package util

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// MinFrameLen is an Ethernet header: two addresses and the EtherType.
const MinFrameLen = 14

// DecodeHexFrame decodes a frame written as hex. Whitespace, ':' and '-'
// separators are ignored, as is a leading "0x".
func DecodeHexFrame(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ':', '-':
			return -1
		}
		return r
	}, s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "decode frame")
	}
	if len(b) < MinFrameLen {
		return nil, errors.Errorf("frame too short: %d bytes, need at least %d", len(b), MinFrameLen)
	}
	return b, nil
}
