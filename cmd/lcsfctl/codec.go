package main

import (
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/danmuck/lcsf/internal/protocol/schema"
	"github.com/danmuck/lcsf/internal/protocol/wire"
)

// commandDoc is the named YAML form of a command.
type commandDoc struct {
	Protocol   string         `yaml:"protocol"`
	Command    string         `yaml:"command"`
	Attributes map[string]any `yaml:"attributes,omitempty"`
}

// frameDoc is what decode prints for one frame.
type frameDoc struct {
	ProtocolID uint16         `yaml:"protocol_id"`
	CommandID  uint16         `yaml:"command_id"`
	Protocol   string         `yaml:"protocol,omitempty"`
	Command    string         `yaml:"command,omitempty"`
	Raw        []rawNode      `yaml:"raw"`
	Attributes map[string]any `yaml:"attributes,omitempty"`
	Invalid    string         `yaml:"invalid,omitempty"`
}

type rawNode struct {
	ID       uint16    `yaml:"id"`
	Array    bool      `yaml:"array,omitempty"`
	Data     string    `yaml:"data,omitempty"`
	Children []rawNode `yaml:"children,omitempty"`
}

func rawNodes(attrs []wire.RawAttribute) []rawNode {
	out := make([]rawNode, 0, len(attrs))
	for _, att := range attrs {
		node := rawNode{ID: att.ID}
		if att.IsArray() {
			node.Array = true
			node.Children = rawNodes(att.Children())
		} else {
			node.Data = hex.EncodeToString(att.Data())
		}
		out = append(out, node)
	}
	return out
}

// namedValues renders a validated group with descriptor names as keys.
func namedValues(set []schema.AttributeDescriptor, g schema.Group) map[string]any {
	out := make(map[string]any, len(g))
	for _, att := range set {
		value, ok := g[att.ID]
		if !ok {
			continue
		}
		out[att.Name] = namedValue(att, value)
	}
	return out
}

func namedValue(att schema.AttributeDescriptor, value schema.Value) any {
	switch v := value.(type) {
	case schema.Uint:
		return uint64(v)
	case schema.Bytes:
		return hex.EncodeToString(v)
	case schema.String:
		return string(v)
	case schema.Group:
		return namedValues(att.Children, v)
	case schema.Array:
		elements := make([]map[string]any, 0, len(v))
		for _, element := range v {
			elements = append(elements, namedValues(att.Children, element))
		}
		return elements
	default:
		return nil
	}
}

// groupFromNamed builds a group from YAML values keyed by descriptor names.
func groupFromNamed(set []schema.AttributeDescriptor, in map[string]any) (schema.Group, error) {
	byName := make(map[string]schema.AttributeDescriptor, len(set))
	for _, att := range set {
		byName[att.Name] = att
	}
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(schema.Group, len(in))
	for _, name := range names {
		att, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown attribute %q", name)
		}
		value, err := valueFromNamed(att, in[name])
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[att.ID] = value
	}
	return out, nil
}

func valueFromNamed(att schema.AttributeDescriptor, raw any) (schema.Value, error) {
	switch att.Type {
	case schema.TypeUint8, schema.TypeUint16, schema.TypeUint32, schema.TypeUint64:
		u, err := toUint(raw)
		if err != nil {
			return nil, err
		}
		return schema.Uint(u), nil
	case schema.TypeBytes:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected hex string, got %T", raw)
		}
		b, err := parseHex(s)
		if err != nil {
			return nil, err
		}
		return schema.Bytes(b), nil
	case schema.TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		if !utf8.ValidString(s) {
			return nil, fmt.Errorf("string is not valid utf-8")
		}
		return schema.String(s), nil
	case schema.TypeGroup:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected mapping, got %T", raw)
		}
		return groupFromNamed(att.Children, m)
	case schema.TypeArray:
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("expected sequence, got %T", raw)
		}
		out := make(schema.Array, 0, len(list))
		for i, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("element %d: expected mapping, got %T", i, item)
			}
			g, err := groupFromNamed(att.Children, m)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out = append(out, g)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported type %s", att.Type)
	}
}

func toUint(raw any) (uint64, error) {
	switch v := raw.(type) {
	case int:
		if v < 0 {
			return 0, fmt.Errorf("negative integer %d", v)
		}
		return uint64(v), nil
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("negative integer %d", v)
		}
		return uint64(v), nil
	case uint64:
		return v, nil
	case float64:
		if v < 0 || v != math.Trunc(v) || v > math.MaxUint64 {
			return 0, fmt.Errorf("not an unsigned integer: %v", v)
		}
		return uint64(v), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", raw)
	}
}

// parseHex accepts hex with optional whitespace and a 0x prefix.
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.Join(strings.Fields(s), "")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}
