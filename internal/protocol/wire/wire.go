// Package wire is the LCSF transcoder: raw message trees to and from bytes.
//
// Frame layout (all multi-byte fields little-endian):
//
//	header:    protocol_id | command_id | attribute_count
//	attribute: id | array_flag | length | payload
//
// In ModeSmall ids, counts and lengths are 1 byte wide, in ModeNormal 2 bytes.
// The array flag is always 1 byte. When the flag is set, length is the number
// of nested attributes encoded in the same format instead of a byte count.
package wire

import (
	"fmt"
	"strings"
)

// Mode selects the field width of a frame.
type Mode uint8

const (
	ModeSmall Mode = iota
	ModeNormal
)

const (
	flagData  byte = 0x00
	flagArray byte = 0x01
)

func (m Mode) String() string {
	switch m {
	case ModeSmall:
		return "small"
	case ModeNormal:
		return "normal"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode accepts "small" or "normal" (case insensitive). Empty selects
// ModeNormal.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "small":
		return ModeSmall, nil
	case "normal", "":
		return ModeNormal, nil
	default:
		return 0, fmt.Errorf("wire: unknown mode %q", raw)
	}
}

// FieldWidth is the byte width of id, count and length fields.
func (m Mode) FieldWidth() int {
	if m == ModeSmall {
		return 1
	}
	return 2
}

// MaxField is the largest id, count or length representable in m.
func (m Mode) MaxField() int {
	if m == ModeSmall {
		return 0xFF
	}
	return 0xFFFF
}

// HeaderLen is the size of the message header.
func (m Mode) HeaderLen() int {
	return 3 * m.FieldWidth()
}

// AttributeHeaderLen is the size of one attribute header.
func (m Mode) AttributeHeaderLen() int {
	return 2*m.FieldWidth() + 1
}

// Payload is the content of a RawAttribute: either Data or Children.
type Payload interface {
	isPayload()
}

// Data is a byte payload.
type Data []byte

// Children is an ordered list of nested attributes.
type Children []RawAttribute

func (Data) isPayload()     {}
func (Children) isPayload() {}

// RawAttribute is one node of the wire tree.
type RawAttribute struct {
	ID      uint16
	Payload Payload
}

// NewData returns a byte attribute. A nil slice is stored as empty data, the
// form Decode produces.
func NewData(id uint16, data []byte) RawAttribute {
	if data == nil {
		data = []byte{}
	}
	return RawAttribute{ID: id, Payload: Data(data)}
}

// NewArray returns an attribute carrying children. No children is stored as an
// empty non-nil list, the form Decode produces.
func NewArray(id uint16, children ...RawAttribute) RawAttribute {
	if children == nil {
		children = []RawAttribute{}
	}
	return RawAttribute{ID: id, Payload: Children(children)}
}

// IsArray reports whether the attribute carries children.
func (a RawAttribute) IsArray() bool {
	_, ok := a.Payload.(Children)
	return ok
}

// Data returns the byte payload, nil for array attributes.
func (a RawAttribute) Data() []byte {
	if d, ok := a.Payload.(Data); ok {
		return d
	}
	return nil
}

// Children returns the nested attributes, nil for data attributes.
func (a RawAttribute) Children() []RawAttribute {
	if c, ok := a.Payload.(Children); ok {
		return c
	}
	return nil
}

// RawMessage is the decoded, protocol-agnostic content of one frame.
type RawMessage struct {
	ProtocolID uint16
	CommandID  uint16
	Attributes []RawAttribute
}

// Limits bounds decoder work on untrusted input.
type Limits struct {
	// MaxDepth is the deepest attribute nesting accepted. Top level attributes
	// are depth 1.
	MaxDepth int
}

// DefaultLimits returns the limits used by Decode.
func DefaultLimits() Limits {
	return Limits{MaxDepth: 32}
}
