package schema

import (
	"fmt"

	"github.com/danmuck/lcsf/internal/protocol"
)

// ValidationError locates a descriptor mismatch.
type ValidationError struct {
	Kind        protocol.ErrorKind
	ProtocolID  uint16
	CommandID   uint16
	AttributeID uint16
	Reason      string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case protocol.KindUnknownProtocol, protocol.KindUnknownCommand:
		return fmt.Sprintf("schema: protocol=%d command=%d: %s", e.ProtocolID, e.CommandID, e.Reason)
	default:
		return fmt.Sprintf("schema: protocol=%d command=%d attribute=%d: %s", e.ProtocolID, e.CommandID, e.AttributeID, e.Reason)
	}
}

// HasAttribute reports whether AttributeID locates the fault.
func (e *ValidationError) HasAttribute() bool {
	return e.Kind != protocol.KindUnknownProtocol && e.Kind != protocol.KindUnknownCommand
}

// Unwrap exposes the kind sentinel so errors.Is(err, protocol.ErrTypeMismatch)
// and friends match.
func (e *ValidationError) Unwrap() error {
	return e.Kind.Err()
}

// UnknownProtocol builds the error returned when no descriptor exists for a
// protocol id.
func UnknownProtocol(protocolID, commandID uint16) *ValidationError {
	return &ValidationError{
		Kind:       protocol.KindUnknownProtocol,
		ProtocolID: protocolID,
		CommandID:  commandID,
		Reason:     "unknown protocol id",
	}
}
