package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/danmuck/lcsf/internal/config"
	"github.com/danmuck/lcsf/internal/protocol/errproto"
	"github.com/danmuck/lcsf/internal/protocol/probe"
	"github.com/danmuck/lcsf/internal/protocol/schema"
	"github.com/danmuck/lcsf/internal/protocol/wire"
)

type options struct {
	configPath string
	mode       string
}

// stack is the resolved configuration plus every protocol the CLI knows.
type stack struct {
	cfg        config.StackConfig
	protocols  map[uint16]*schema.ProtocolDescriptor
	configured []*schema.ProtocolDescriptor
}

func loadStack(opts *options) (*stack, error) {
	cfg := config.DefaultStackConfig()
	if path := strings.TrimSpace(opts.configPath); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if strings.TrimSpace(opts.mode) != "" {
		mode, err := wire.ParseMode(opts.mode)
		if err != nil {
			return nil, err
		}
		cfg.Mode = mode
	}

	configured, err := cfg.Descriptors()
	if err != nil {
		return nil, err
	}
	s := &stack{
		cfg: cfg,
		protocols: map[uint16]*schema.ProtocolDescriptor{
			errproto.Descriptor().ID: errproto.Descriptor(),
			probe.ProtocolID:         probe.Descriptor(),
		},
		configured: configured,
	}
	for _, desc := range configured {
		if builtin, taken := s.protocols[desc.ID]; taken {
			return nil, fmt.Errorf("configured protocol %q (id %d) clashes with built-in protocol %q; pick another id", desc.Name, desc.ID, builtin.Name)
		}
		s.protocols[desc.ID] = desc
	}
	return s, nil
}

// lookup resolves a protocol by name or numeric id.
func (s *stack) lookup(ref string) (*schema.ProtocolDescriptor, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseUint(ref, 10, 16); err == nil {
		if desc, ok := s.protocols[uint16(id)]; ok {
			return desc, nil
		}
	}
	for _, desc := range s.protocols {
		if desc.Name == ref {
			return desc, nil
		}
	}
	return nil, fmt.Errorf("unknown protocol %q", ref)
}

func (s *stack) ids() []uint16 {
	ids := make([]uint16, 0, len(s.protocols))
	for id := range s.protocols {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
