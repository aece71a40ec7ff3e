package schema

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/danmuck/lcsf/internal/protocol"
	"github.com/danmuck/lcsf/internal/protocol/wire"
	"github.com/rs/zerolog/log"
)

// Options tunes validation.
type Options struct {
	// Strict rejects raw attributes that match no descriptor. By default they
	// are ignored so older peers accept newer frames.
	Strict bool
}

// Decode validates msg against desc with default options.
func Decode(msg wire.RawMessage, desc *ProtocolDescriptor) (ValidCmd, error) {
	return DecodeWith(msg, desc, Options{})
}

// DecodeWith validates msg against desc and returns the typed command.
// Recursion follows the descriptor tree, so its depth never exceeds
// desc.Depth() whatever the raw message contains.
func DecodeWith(msg wire.RawMessage, desc *ProtocolDescriptor, opts Options) (ValidCmd, error) {
	log.Debug().
		Uint16("protocol_id", msg.ProtocolID).
		Uint16("command_id", msg.CommandID).
		Int("attributes", len(msg.Attributes)).
		Bool("strict", opts.Strict).
		Msg("schema.Decode")
	if desc == nil || desc.ID != msg.ProtocolID {
		return ValidCmd{}, UnknownProtocol(msg.ProtocolID, msg.CommandID)
	}
	v := checker{protocolID: msg.ProtocolID, commandID: msg.CommandID, strict: opts.Strict}
	cmdDesc, ok := desc.Command(msg.CommandID)
	if !ok {
		return ValidCmd{}, v.fail(protocol.KindUnknownCommand, 0, "unknown command id")
	}
	attrs, err := v.group(cmdDesc.Attributes, msg.Attributes)
	if err != nil {
		log.Debug().Err(err).Msg("schema.Decode rejected")
		return ValidCmd{}, err
	}
	return ValidCmd{ProtocolID: msg.ProtocolID, CommandID: msg.CommandID, Attributes: attrs}, nil
}

// checker carries the command being processed so errors can locate faults.
type checker struct {
	protocolID uint16
	commandID  uint16
	strict     bool
}

func (c checker) fail(kind protocol.ErrorKind, attributeID uint16, format string, args ...any) *ValidationError {
	return &ValidationError{
		Kind:        kind,
		ProtocolID:  c.protocolID,
		CommandID:   c.commandID,
		AttributeID: attributeID,
		Reason:      fmt.Sprintf(format, args...),
	}
}

func (c checker) group(set []AttributeDescriptor, raws []wire.RawAttribute) (Group, error) {
	byID := make(map[uint16]wire.RawAttribute, len(raws))
	for _, raw := range raws {
		if _, dup := byID[raw.ID]; dup {
			return nil, c.fail(protocol.KindTypeMismatch, raw.ID, "duplicate attribute id")
		}
		byID[raw.ID] = raw
	}

	out := make(Group, len(set))
	for _, att := range set {
		raw, ok := byID[att.ID]
		if !ok {
			if att.Optional {
				continue
			}
			return nil, c.fail(protocol.KindMissingAttribute, att.ID, "missing mandatory attribute")
		}
		delete(byID, att.ID)
		value, err := c.value(att, raw)
		if err != nil {
			return nil, err
		}
		out[att.ID] = value
	}

	if c.strict && len(byID) > 0 {
		return nil, c.fail(protocol.KindUnknownAttribute, lowestID(byID), "attribute not declared by descriptor")
	}
	return out, nil
}

func (c checker) value(att AttributeDescriptor, raw wire.RawAttribute) (Value, error) {
	switch att.Type {
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		data, ok := rawData(raw)
		if !ok {
			return nil, c.fail(protocol.KindTypeMismatch, att.ID, "%s attribute carries children", att.Type)
		}
		if len(data) != att.Type.Width() {
			return nil, c.fail(protocol.KindTypeMismatch, att.ID, "%s attribute has %d bytes", att.Type, len(data))
		}
		var v uint64
		for i := len(data) - 1; i >= 0; i-- {
			v = v<<8 | uint64(data[i])
		}
		return Uint(v), nil
	case TypeBytes:
		data, ok := rawData(raw)
		if !ok {
			return nil, c.fail(protocol.KindTypeMismatch, att.ID, "bytes attribute carries children")
		}
		out := make(Bytes, len(data))
		copy(out, data)
		return out, nil
	case TypeString:
		data, ok := rawData(raw)
		if !ok {
			return nil, c.fail(protocol.KindTypeMismatch, att.ID, "string attribute carries children")
		}
		if !utf8.Valid(data) {
			return nil, c.fail(protocol.KindTypeMismatch, att.ID, "string attribute is not valid utf-8")
		}
		return String(data), nil
	case TypeGroup:
		children, ok := raw.Payload.(wire.Children)
		if !ok {
			return nil, c.fail(protocol.KindTypeMismatch, att.ID, "group attribute carries data")
		}
		return c.group(att.Children, children)
	case TypeArray:
		elements, ok := raw.Payload.(wire.Children)
		if !ok {
			return nil, c.fail(protocol.KindTypeMismatch, att.ID, "array attribute carries data")
		}
		out := make(Array, 0, len(elements))
		for i, element := range elements {
			members, ok := element.Payload.(wire.Children)
			if !ok {
				return nil, c.fail(protocol.KindTypeMismatch, att.ID, "array element %d carries data", i)
			}
			g, err := c.group(att.Children, members)
			if err != nil {
				return nil, err
			}
			out = append(out, g)
		}
		return out, nil
	default:
		return nil, c.fail(protocol.KindTypeMismatch, att.ID, "descriptor has unknown type %d", uint8(att.Type))
	}
}

// rawData returns the byte payload; a nil payload counts as empty data.
func rawData(raw wire.RawAttribute) (wire.Data, bool) {
	switch p := raw.Payload.(type) {
	case wire.Data:
		return p, true
	case nil:
		return nil, true
	default:
		return nil, false
	}
}

func lowestID[V any](m map[uint16]V) uint16 {
	ids := make([]uint16, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids[0]
}
