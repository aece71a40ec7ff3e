package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedFrame            = errors.New("protocol: malformed frame")
	ErrUnknownProtocol           = errors.New("protocol: unknown protocol")
	ErrUnknownCommand            = errors.New("protocol: unknown command")
	ErrMissingAttribute          = errors.New("protocol: missing mandatory attribute")
	ErrTypeMismatch              = errors.New("protocol: attribute type mismatch")
	ErrUnknownAttribute          = errors.New("protocol: unknown attribute")
	ErrProtocolAlreadyRegistered = errors.New("protocol: protocol already registered")
	ErrReservedProtocolID        = errors.New("protocol: reserved protocol id")
	ErrSendTargetUnregistered    = errors.New("protocol: send target not registered")
)

// ErrorKind classifies a failure to turn an inbound frame into a command.
// The numeric values are carried on the wire by the error protocol.
type ErrorKind uint8

const (
	KindMalformedFrame ErrorKind = iota
	KindUnknownProtocol
	KindUnknownCommand
	KindMissingAttribute
	KindTypeMismatch
	KindUnknownAttribute
)

var kindNames = [...]string{
	KindMalformedFrame:   "malformed_frame",
	KindUnknownProtocol:  "unknown_protocol",
	KindUnknownCommand:   "unknown_command",
	KindMissingAttribute: "missing_attribute",
	KindTypeMismatch:     "type_mismatch",
	KindUnknownAttribute: "unknown_attribute",
}

var kindErrors = [...]error{
	KindMalformedFrame:   ErrMalformedFrame,
	KindUnknownProtocol:  ErrUnknownProtocol,
	KindUnknownCommand:   ErrUnknownCommand,
	KindMissingAttribute: ErrMissingAttribute,
	KindTypeMismatch:     ErrTypeMismatch,
	KindUnknownAttribute: ErrUnknownAttribute,
}

// Valid reports whether k is a known kind.
func (k ErrorKind) Valid() bool {
	return int(k) < len(kindNames)
}

func (k ErrorKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// Err returns the sentinel error matching k.
func (k ErrorKind) Err() error {
	if !k.Valid() {
		return fmt.Errorf("protocol: unknown error kind %d", uint8(k))
	}
	return kindErrors[k]
}

// Kinded is implemented by typed errors that carry an ErrorKind.
type Kinded interface {
	Kind() ErrorKind
}

// KindOf walks err's chain and returns the first ErrorKind found.
func KindOf(err error) (ErrorKind, bool) {
	if err == nil {
		return 0, false
	}
	var kinded Kinded
	if errors.As(err, &kinded) {
		return kinded.Kind(), true
	}
	for kind, sentinel := range kindErrors {
		if errors.Is(err, sentinel) {
			return ErrorKind(kind), true
		}
	}
	return 0, false
}
