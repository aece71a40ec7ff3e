package schema

import (
	"unicode/utf8"

	"github.com/danmuck/lcsf/internal/protocol"
	"github.com/danmuck/lcsf/internal/protocol/wire"
	"github.com/rs/zerolog/log"
)

// Encode builds the raw message for cmd. Attributes are emitted in descriptor
// order. Values that the descriptor cannot express fail here instead of
// producing a frame the peer would reject.
func Encode(cmd ValidCmd, desc *ProtocolDescriptor) (wire.RawMessage, error) {
	log.Debug().
		Uint16("protocol_id", cmd.ProtocolID).
		Uint16("command_id", cmd.CommandID).
		Int("attributes", len(cmd.Attributes)).
		Msg("schema.Encode")
	if desc == nil || desc.ID != cmd.ProtocolID {
		return wire.RawMessage{}, UnknownProtocol(cmd.ProtocolID, cmd.CommandID)
	}
	c := checker{protocolID: cmd.ProtocolID, commandID: cmd.CommandID}
	cmdDesc, ok := desc.Command(cmd.CommandID)
	if !ok {
		return wire.RawMessage{}, c.fail(protocol.KindUnknownCommand, 0, "unknown command id")
	}
	attrs, err := c.rawGroup(cmdDesc.Attributes, cmd.Attributes)
	if err != nil {
		return wire.RawMessage{}, err
	}
	return wire.RawMessage{ProtocolID: cmd.ProtocolID, CommandID: cmd.CommandID, Attributes: attrs}, nil
}

func (c checker) rawGroup(set []AttributeDescriptor, values Group) ([]wire.RawAttribute, error) {
	if len(values) > 0 {
		unknown := make(map[uint16]struct{})
		for id := range values {
			unknown[id] = struct{}{}
		}
		for _, att := range set {
			delete(unknown, att.ID)
		}
		if len(unknown) > 0 {
			return nil, c.fail(protocol.KindUnknownAttribute, lowestID(unknown), "value has no descriptor")
		}
	}

	var out []wire.RawAttribute
	for _, att := range set {
		value, ok := values[att.ID]
		if !ok {
			if att.Optional {
				continue
			}
			return nil, c.fail(protocol.KindMissingAttribute, att.ID, "missing mandatory attribute")
		}
		raw, err := c.rawValue(att, value)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func (c checker) rawValue(att AttributeDescriptor, value Value) (wire.RawAttribute, error) {
	switch att.Type {
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		u, ok := value.(Uint)
		if !ok {
			return wire.RawAttribute{}, c.fail(protocol.KindTypeMismatch, att.ID, "%s attribute holds %T", att.Type, value)
		}
		width := att.Type.Width()
		if width < 8 && uint64(u)>>(8*width) != 0 {
			return wire.RawAttribute{}, c.fail(protocol.KindTypeMismatch, att.ID, "value %d overflows %s", uint64(u), att.Type)
		}
		data := make([]byte, width)
		for i := range data {
			data[i] = byte(uint64(u) >> (8 * i))
		}
		return wire.NewData(att.ID, data), nil
	case TypeBytes:
		b, ok := value.(Bytes)
		if !ok {
			return wire.RawAttribute{}, c.fail(protocol.KindTypeMismatch, att.ID, "bytes attribute holds %T", value)
		}
		return wire.NewData(att.ID, append([]byte(nil), b...)), nil
	case TypeString:
		s, ok := value.(String)
		if !ok {
			return wire.RawAttribute{}, c.fail(protocol.KindTypeMismatch, att.ID, "string attribute holds %T", value)
		}
		if !utf8.ValidString(string(s)) {
			return wire.RawAttribute{}, c.fail(protocol.KindTypeMismatch, att.ID, "string attribute is not valid utf-8")
		}
		return wire.NewData(att.ID, []byte(s)), nil
	case TypeGroup:
		g, ok := value.(Group)
		if !ok {
			return wire.RawAttribute{}, c.fail(protocol.KindTypeMismatch, att.ID, "group attribute holds %T", value)
		}
		children, err := c.rawGroup(att.Children, g)
		if err != nil {
			return wire.RawAttribute{}, err
		}
		return wire.NewArray(att.ID, children...), nil
	case TypeArray:
		arr, ok := value.(Array)
		if !ok {
			return wire.RawAttribute{}, c.fail(protocol.KindTypeMismatch, att.ID, "array attribute holds %T", value)
		}
		var elements []wire.RawAttribute
		for i, element := range arr {
			members, err := c.rawGroup(att.Children, element)
			if err != nil {
				return wire.RawAttribute{}, err
			}
			elements = append(elements, wire.NewArray(uint16(i), members...))
		}
		return wire.NewArray(att.ID, elements...), nil
	default:
		return wire.RawAttribute{}, c.fail(protocol.KindTypeMismatch, att.ID, "descriptor has unknown type %d", uint8(att.Type))
	}
}
