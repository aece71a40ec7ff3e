// Package schema validates raw LCSF messages against protocol descriptors and
// builds raw messages back from validated commands.
package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidDescriptor reports an inconsistent descriptor tree.
var ErrInvalidDescriptor = errors.New("schema: invalid descriptor")

// DataType is the kind of an attribute descriptor.
type DataType uint8

const (
	TypeUint8 DataType = iota + 1
	TypeUint16
	TypeUint32
	TypeUint64
	TypeBytes
	TypeString
	// TypeArray is an ordered list of elements, each a group matching Children.
	TypeArray
	// TypeGroup is a single set of named sub-attributes matching Children.
	TypeGroup
)

var typeNames = map[DataType]string{
	TypeUint8:  "uint8",
	TypeUint16: "uint16",
	TypeUint32: "uint32",
	TypeUint64: "uint64",
	TypeBytes:  "bytes",
	TypeString: "string",
	TypeArray:  "array",
	TypeGroup:  "group",
}

func (t DataType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// ParseDataType maps a type name to a DataType.
func ParseDataType(raw string) (DataType, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown data type %q", ErrInvalidDescriptor, raw)
}

// Width returns the byte width of fixed-width integer types, 0 otherwise.
func (t DataType) Width() int {
	switch t {
	case TypeUint8:
		return 1
	case TypeUint16:
		return 2
	case TypeUint32:
		return 4
	case TypeUint64:
		return 8
	default:
		return 0
	}
}

// Nested reports whether the type carries sub-attributes.
func (t DataType) Nested() bool {
	return t == TypeArray || t == TypeGroup
}

// AttributeDescriptor declares one attribute.
type AttributeDescriptor struct {
	ID       uint16
	Name     string
	Optional bool
	Type     DataType
	Children []AttributeDescriptor
}

// CommandDescriptor declares the direct attributes of a command.
type CommandDescriptor struct {
	ID         uint16
	Name       string
	Attributes []AttributeDescriptor
}

// ProtocolDescriptor declares every command of a protocol.
type ProtocolDescriptor struct {
	ID       uint16
	Name     string
	Commands map[uint16]CommandDescriptor
}

// Command looks up a command descriptor by id.
func (p *ProtocolDescriptor) Command(id uint16) (CommandDescriptor, bool) {
	cmd, ok := p.Commands[id]
	return cmd, ok
}

// CommandByName looks up a command descriptor by name.
func (p *ProtocolDescriptor) CommandByName(name string) (CommandDescriptor, bool) {
	for _, cmd := range p.Commands {
		if cmd.Name == name {
			return cmd, true
		}
	}
	return CommandDescriptor{}, false
}

// CommandIDs returns the command ids in ascending order.
func (p *ProtocolDescriptor) CommandIDs() []uint16 {
	ids := make([]uint16, 0, len(p.Commands))
	for id := range p.Commands {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Validate checks map keys against command ids, sibling id uniqueness and
// that only nested types declare children.
func (p *ProtocolDescriptor) Validate() error {
	if len(p.Commands) == 0 {
		return fmt.Errorf("%w: protocol %d declares no commands", ErrInvalidDescriptor, p.ID)
	}
	for key, cmd := range p.Commands {
		if key != cmd.ID {
			return fmt.Errorf("%w: protocol %d command key %d holds command id %d", ErrInvalidDescriptor, p.ID, key, cmd.ID)
		}
		if err := validateSet(cmd.Attributes); err != nil {
			return fmt.Errorf("protocol %d command %d: %w", p.ID, cmd.ID, err)
		}
	}
	return nil
}

func validateSet(set []AttributeDescriptor) error {
	seen := make(map[uint16]struct{}, len(set))
	for _, att := range set {
		if _, dup := seen[att.ID]; dup {
			return fmt.Errorf("%w: duplicate attribute id %d", ErrInvalidDescriptor, att.ID)
		}
		seen[att.ID] = struct{}{}
		if _, ok := typeNames[att.Type]; !ok {
			return fmt.Errorf("%w: attribute %d has unknown type %d", ErrInvalidDescriptor, att.ID, uint8(att.Type))
		}
		if !att.Type.Nested() {
			if len(att.Children) != 0 {
				return fmt.Errorf("%w: %s attribute %d declares children", ErrInvalidDescriptor, att.Type, att.ID)
			}
			continue
		}
		if len(att.Children) == 0 {
			return fmt.Errorf("%w: %s attribute %d declares no children", ErrInvalidDescriptor, att.Type, att.ID)
		}
		if err := validateSet(att.Children); err != nil {
			return fmt.Errorf("attribute %d: %w", att.ID, err)
		}
	}
	return nil
}

// Depth returns the deepest attribute nesting declared by any command.
func (p *ProtocolDescriptor) Depth() int {
	depth := 0
	for _, cmd := range p.Commands {
		if d := setDepth(cmd.Attributes); d > depth {
			depth = d
		}
	}
	return depth
}

func setDepth(set []AttributeDescriptor) int {
	depth := 0
	for _, att := range set {
		d := 1
		switch att.Type {
		case TypeGroup:
			d += setDepth(att.Children)
		case TypeArray:
			// element wrapper plus its members
			d += 1 + setDepth(att.Children)
		}
		if d > depth {
			depth = d
		}
	}
	return depth
}

// Clone returns a deep copy of p.
func (p *ProtocolDescriptor) Clone() *ProtocolDescriptor {
	out := &ProtocolDescriptor{ID: p.ID, Name: p.Name, Commands: make(map[uint16]CommandDescriptor, len(p.Commands))}
	for id, cmd := range p.Commands {
		out.Commands[id] = CommandDescriptor{ID: cmd.ID, Name: cmd.Name, Attributes: cloneSet(cmd.Attributes)}
	}
	return out
}

func cloneSet(set []AttributeDescriptor) []AttributeDescriptor {
	if set == nil {
		return nil
	}
	out := make([]AttributeDescriptor, len(set))
	for i, att := range set {
		out[i] = att
		out[i].Children = cloneSet(att.Children)
	}
	return out
}
