package wire

import (
	"errors"
	"fmt"

	"github.com/danmuck/lcsf/internal/protocol"
)

// ErrFieldOverflow is returned by Encode when a value does not fit the mode.
var ErrFieldOverflow = errors.New("wire: field exceeds mode width")

// MalformedFrameError reports a structural decode failure.
type MalformedFrameError struct {
	Offset int
	Reason string
	// HeaderParsed is set when ProtocolID and CommandID were read before the
	// failure.
	HeaderParsed bool
	ProtocolID   uint16
	CommandID    uint16
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("wire: malformed frame at offset %d: %s", e.Offset, e.Reason)
}

func (e *MalformedFrameError) Is(target error) bool {
	return target == protocol.ErrMalformedFrame
}

func (e *MalformedFrameError) Kind() protocol.ErrorKind {
	return protocol.KindMalformedFrame
}
