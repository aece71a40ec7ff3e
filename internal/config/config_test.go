package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/lcsf/internal/protocol"
	"github.com/danmuck/lcsf/internal/protocol/schema"
	"github.com/danmuck/lcsf/internal/protocol/wire"
	"github.com/danmuck/lcsf/internal/testutil/testlog"
)

func TestLoadStackTemplate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "stack.toml")
	if err := WriteTemplate(path, "stack", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != wire.ModeSmall || !cfg.GenerateErrors || cfg.Strict || cfg.MaxDepth != 16 {
		t.Fatalf("unexpected settings: %+v", cfg)
	}
	descs, err := cfg.Descriptors()
	if err != nil {
		t.Fatalf("descriptors: %v", err)
	}
	if len(descs) != 1 || descs[0].ID != 7 || descs[0].Name != "dimmer" {
		t.Fatalf("unexpected descriptors: %+v", descs)
	}
	set, ok := descs[0].Command(1)
	if !ok || len(set.Attributes) != 3 {
		t.Fatalf("unexpected command: %+v", set)
	}
	rng := set.Attributes[2]
	if rng.Type != schema.TypeGroup || !rng.Optional || len(rng.Children) != 2 || rng.Children[1].Type != schema.TypeUint8 {
		t.Fatalf("unexpected group attribute: %+v", rng)
	}
	if descs[0].Depth() != 2 {
		t.Fatalf("depth = %d, want 2", descs[0].Depth())
	}

	core := cfg.CoreConfig()
	if core.Mode != wire.ModeSmall || core.Limits.MaxDepth != 16 || !core.GenerateErrors {
		t.Fatalf("unexpected core config: %+v", core)
	}
}

func TestDefaultsWhenUnset(t *testing.T) {
	testlog.Start(t)
	cfg, err := Parse(`strict = true`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	def := DefaultStackConfig()
	if cfg.Mode != def.Mode || cfg.GenerateErrors != def.GenerateErrors || cfg.MaxDepth != def.MaxDepth || !cfg.Strict {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	cfg, err = Parse(`generate_errors = false`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.GenerateErrors {
		t.Fatalf("explicit false must override default")
	}
}

func TestInvalidConfigs(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"mode":        `mode = "huge"`,
		"depth":       `max_depth = 0`,
		"unknown key": `colour = "red"`,
		"type": `
[[protocols]]
id = 2
name = "x"
  [[protocols.commands]]
  id = 1
  name = "c"
    [[protocols.commands.attributes]]
    id = 0
    name = "a"
    type = "float"
`,
		"no commands": `
[[protocols]]
id = 2
name = "x"
`,
		"duplicate protocol": `
[[protocols]]
id = 2
name = "x"
  [[protocols.commands]]
  id = 1
[[protocols]]
id = 2
name = "y"
  [[protocols.commands]]
  id = 1
`,
	}
	for name, data := range cases {
		if _, err := Parse(data); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestErrorProtocolIDRejected(t *testing.T) {
	testlog.Start(t)
	_, err := Parse(`
[[protocols]]
id = 0
name = "shadow"
  [[protocols.commands]]
  id = 1
  name = "c"
`)
	if !errors.Is(err, protocol.ErrReservedProtocolID) {
		t.Fatalf("expected ErrReservedProtocolID, got %v", err)
	}
	if !strings.Contains(err.Error(), "error protocol") {
		t.Fatalf("error should name the error protocol: %v", err)
	}
}

func TestWriteTemplateRefusesOverwrite(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "stack.toml")
	if err := os.WriteFile(path, []byte("mode = \"normal\"\n"), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	err := WriteTemplate(path, "minimal", false)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected already exists error, got %v", err)
	}
	if err := WriteTemplate(path, "minimal", true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if _, err := Template("bogus"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
