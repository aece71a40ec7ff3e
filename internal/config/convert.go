package config

import (
	"fmt"

	"github.com/danmuck/lcsf/internal/protocol/core"
	"github.com/danmuck/lcsf/internal/protocol/schema"
	"github.com/danmuck/lcsf/internal/protocol/wire"
)

// CoreConfig applies cfg on top of core.DefaultConfig.
func (cfg StackConfig) CoreConfig() core.Config {
	out := core.DefaultConfig()
	out.Mode = cfg.Mode
	out.GenerateErrors = cfg.GenerateErrors
	out.Strict = cfg.Strict
	out.Limits = wire.Limits{MaxDepth: cfg.MaxDepth}
	return out
}

// Descriptors converts every configured protocol.
func (cfg StackConfig) Descriptors() ([]*schema.ProtocolDescriptor, error) {
	out := make([]*schema.ProtocolDescriptor, 0, len(cfg.Protocols))
	for _, p := range cfg.Protocols {
		desc, err := p.Descriptor()
		if err != nil {
			return nil, err
		}
		out = append(out, desc)
	}
	return out, nil
}

// Descriptor converts p. Structural checks are left to
// schema.ProtocolDescriptor.Validate.
func (p ProtocolConfig) Descriptor() (*schema.ProtocolDescriptor, error) {
	desc := &schema.ProtocolDescriptor{
		ID:       p.ID,
		Name:     p.Name,
		Commands: make(map[uint16]schema.CommandDescriptor, len(p.Commands)),
	}
	for _, c := range p.Commands {
		if _, dup := desc.Commands[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate command id %d", schema.ErrInvalidDescriptor, c.ID)
		}
		attrs, err := attributes(c.Attributes)
		if err != nil {
			return nil, fmt.Errorf("command %q: %w", c.Name, err)
		}
		desc.Commands[c.ID] = schema.CommandDescriptor{ID: c.ID, Name: c.Name, Attributes: attrs}
	}
	return desc, nil
}

func attributes(in []AttributeConfig) ([]schema.AttributeDescriptor, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]schema.AttributeDescriptor, 0, len(in))
	for _, a := range in {
		typ, err := schema.ParseDataType(a.Type)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
		}
		children, err := attributes(a.Children)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
		}
		out = append(out, schema.AttributeDescriptor{
			ID:       a.ID,
			Name:     a.Name,
			Optional: a.Optional,
			Type:     typ,
			Children: children,
		})
	}
	return out, nil
}
