// Package errproto owns the built-in LCSF error protocol: its descriptor and
// the conversions between error reports and error commands.
package errproto

import (
	"errors"
	"fmt"

	"github.com/danmuck/lcsf/internal/protocol"
	"github.com/danmuck/lcsf/internal/protocol/schema"
)

// CmdError is the only command of the error protocol.
const CmdError uint16 = 0

const (
	AttrErrorKind        uint16 = 0
	AttrOriginProtocolID uint16 = 1
	AttrOriginCommandID  uint16 = 2
	AttrAttributeID      uint16 = 3
)

// ErrInvalidReport is returned by Interpret for error commands whose fields
// cannot form a report.
var ErrInvalidReport = errors.New("errproto: invalid error report")

// Source tells whether a report was generated here or received from the peer.
type Source uint8

const (
	// SourceLocal reports a fault found while processing an inbound frame.
	SourceLocal Source = iota
	// SourceRemote reports an error command sent by the peer.
	SourceRemote
)

func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceRemote:
		return "remote"
	default:
		return fmt.Sprintf("source(%d)", uint8(s))
	}
}

// Report describes one decode failure.
type Report struct {
	Kind             protocol.ErrorKind
	OriginProtocolID uint16
	OriginCommandID  uint16
	AttributeID      uint16
	HasAttribute     bool
	Source           Source
}

func (r Report) String() string {
	if r.HasAttribute {
		return fmt.Sprintf("%s protocol=%d command=%d attribute=%d (%s)", r.Kind, r.OriginProtocolID, r.OriginCommandID, r.AttributeID, r.Source)
	}
	return fmt.Sprintf("%s protocol=%d command=%d (%s)", r.Kind, r.OriginProtocolID, r.OriginCommandID, r.Source)
}

// Descriptor returns a fresh copy of the error protocol descriptor.
func Descriptor() *schema.ProtocolDescriptor {
	return &schema.ProtocolDescriptor{
		ID:   protocol.ErrorProtocolID,
		Name: "error",
		Commands: map[uint16]schema.CommandDescriptor{
			CmdError: {
				ID:   CmdError,
				Name: "error",
				Attributes: []schema.AttributeDescriptor{
					{ID: AttrErrorKind, Name: "error_kind", Type: schema.TypeUint8},
					{ID: AttrOriginProtocolID, Name: "origin_protocol_id", Type: schema.TypeUint16},
					{ID: AttrOriginCommandID, Name: "origin_command_id", Type: schema.TypeUint16},
					{ID: AttrAttributeID, Name: "attribute_id", Type: schema.TypeUint16, Optional: true},
				},
			},
		},
	}
}

// Build returns the error command carrying r. Source is not transmitted.
func Build(r Report) schema.ValidCmd {
	attrs := schema.Group{
		AttrErrorKind:        schema.Uint(r.Kind),
		AttrOriginProtocolID: schema.Uint(r.OriginProtocolID),
		AttrOriginCommandID:  schema.Uint(r.OriginCommandID),
	}
	if r.HasAttribute {
		attrs[AttrAttributeID] = schema.Uint(r.AttributeID)
	}
	return schema.ValidCmd{ProtocolID: protocol.ErrorProtocolID, CommandID: CmdError, Attributes: attrs}
}

// Interpret extracts the report from an error command received from the peer.
func Interpret(cmd schema.ValidCmd) (Report, error) {
	if cmd.ProtocolID != protocol.ErrorProtocolID || cmd.CommandID != CmdError {
		return Report{}, fmt.Errorf("%w: protocol=%d command=%d is not an error command", ErrInvalidReport, cmd.ProtocolID, cmd.CommandID)
	}
	kind, ok := cmd.Attributes.Uint(AttrErrorKind)
	if !ok {
		return Report{}, fmt.Errorf("%w: missing error_kind", ErrInvalidReport)
	}
	if !protocol.ErrorKind(kind).Valid() {
		return Report{}, fmt.Errorf("%w: unknown error_kind %d", ErrInvalidReport, kind)
	}
	pid, ok := cmd.Attributes.Uint(AttrOriginProtocolID)
	if !ok {
		return Report{}, fmt.Errorf("%w: missing origin_protocol_id", ErrInvalidReport)
	}
	cid, ok := cmd.Attributes.Uint(AttrOriginCommandID)
	if !ok {
		return Report{}, fmt.Errorf("%w: missing origin_command_id", ErrInvalidReport)
	}
	r := Report{
		Kind:             protocol.ErrorKind(kind),
		OriginProtocolID: uint16(pid),
		OriginCommandID:  uint16(cid),
		Source:           SourceRemote,
	}
	if aid, ok := cmd.Attributes.Uint(AttrAttributeID); ok {
		r.AttributeID = uint16(aid)
		r.HasAttribute = true
	}
	return r, nil
}

// ReportFor derives a local report from a receive-path error. The origin ids
// are used as given; a schema.ValidationError in the chain overrides them and
// supplies the attribute id. Errors of no known kind report a malformed frame.
func ReportFor(err error, protocolID, commandID uint16) Report {
	r := Report{
		Kind:             protocol.KindMalformedFrame,
		OriginProtocolID: protocolID,
		OriginCommandID:  commandID,
		Source:           SourceLocal,
	}
	if kind, ok := protocol.KindOf(err); ok {
		r.Kind = kind
	}
	var ve *schema.ValidationError
	if errors.As(err, &ve) {
		r.OriginProtocolID = ve.ProtocolID
		r.OriginCommandID = ve.CommandID
		if ve.HasAttribute() {
			r.AttributeID = ve.AttributeID
			r.HasAttribute = true
		}
	}
	return r
}
