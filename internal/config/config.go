// Package config loads LCSF stack settings and protocol definitions from TOML.
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/lcsf/internal/protocol"
	"github.com/danmuck/lcsf/internal/protocol/wire"
)

// StackConfig is the resolved stack configuration.
type StackConfig struct {
	Mode           wire.Mode
	GenerateErrors bool
	Strict         bool
	MaxDepth       int
	Protocols      []ProtocolConfig
}

// ProtocolConfig declares a protocol descriptor in configuration.
type ProtocolConfig struct {
	ID       uint16          `toml:"id"`
	Name     string          `toml:"name"`
	Commands []CommandConfig `toml:"commands"`
}

type CommandConfig struct {
	ID         uint16            `toml:"id"`
	Name       string            `toml:"name"`
	Attributes []AttributeConfig `toml:"attributes"`
}

type AttributeConfig struct {
	ID       uint16            `toml:"id"`
	Name     string            `toml:"name"`
	Type     string            `toml:"type"`
	Optional bool              `toml:"optional"`
	Children []AttributeConfig `toml:"children"`
}

type fileConfig struct {
	Mode           string           `toml:"mode"`
	GenerateErrors bool             `toml:"generate_errors"`
	Strict         bool             `toml:"strict"`
	MaxDepth       int              `toml:"max_depth"`
	Protocols      []ProtocolConfig `toml:"protocols"`
}

func DefaultStackConfig() StackConfig {
	return StackConfig{
		Mode:           wire.ModeNormal,
		GenerateErrors: true,
		MaxDepth:       wire.DefaultLimits().MaxDepth,
	}
}

// Load reads path. Keys that are not set keep their defaults.
func Load(path string) (StackConfig, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return StackConfig{}, fmt.Errorf("load stack config: %w", err)
	}
	cfg, err := resolve(raw, meta)
	if err != nil {
		return StackConfig{}, fmt.Errorf("stack config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes configuration from TOML text.
func Parse(data string) (StackConfig, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return StackConfig{}, fmt.Errorf("parse stack config: %w", err)
	}
	return resolve(raw, meta)
}

func resolve(raw fileConfig, meta toml.MetaData) (StackConfig, error) {
	cfg := DefaultStackConfig()
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return StackConfig{}, fmt.Errorf("unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("mode") {
		mode, err := wire.ParseMode(raw.Mode)
		if err != nil {
			return StackConfig{}, err
		}
		cfg.Mode = mode
	}
	if meta.IsDefined("generate_errors") {
		cfg.GenerateErrors = raw.GenerateErrors
	}
	if meta.IsDefined("strict") {
		cfg.Strict = raw.Strict
	}
	if meta.IsDefined("max_depth") {
		cfg.MaxDepth = raw.MaxDepth
	}
	cfg.Protocols = raw.Protocols

	if err := Validate(cfg); err != nil {
		return StackConfig{}, err
	}
	return cfg, nil
}

// Validate checks settings and that every protocol converts to a valid
// descriptor.
func Validate(cfg StackConfig) error {
	if cfg.MaxDepth <= 0 {
		return fmt.Errorf("max_depth must be positive, got %d", cfg.MaxDepth)
	}
	seen := make(map[uint16]struct{}, len(cfg.Protocols))
	for i, p := range cfg.Protocols {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("protocol[%d] missing name", i)
		}
		if p.ID == protocol.ErrorProtocolID {
			return fmt.Errorf("protocol[%d] %q: id %d is used by the error protocol: %w", i, p.Name, p.ID, protocol.ErrReservedProtocolID)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("protocol[%d] duplicate id %d", i, p.ID)
		}
		seen[p.ID] = struct{}{}
		desc, err := p.Descriptor()
		if err != nil {
			return fmt.Errorf("protocol[%d] invalid: %w", i, err)
		}
		if err := desc.Validate(); err != nil {
			return fmt.Errorf("protocol[%d] invalid: %w", i, err)
		}
	}
	return nil
}
