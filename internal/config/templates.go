package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "stack", "":
		return stackTemplate, nil
	case "minimal":
		return minimalTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const minimalTemplate = `mode = "normal"
generate_errors = true
`

const stackTemplate = `mode = "small"
generate_errors = true
strict = false
max_depth = 16

[[protocols]]
id = 7
name = "dimmer"

  [[protocols.commands]]
  id = 1
  name = "set"

    [[protocols.commands.attributes]]
    id = 0
    name = "level"
    type = "uint16"

    [[protocols.commands.attributes]]
    id = 1
    name = "label"
    type = "string"
    optional = true

    [[protocols.commands.attributes]]
    id = 2
    name = "range"
    type = "group"
    optional = true

      [[protocols.commands.attributes.children]]
      id = 0
      name = "low"
      type = "uint8"

      [[protocols.commands.attributes.children]]
      id = 1
      name = "high"
      type = "uint8"
`
