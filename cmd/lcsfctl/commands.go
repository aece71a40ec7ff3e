package main

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/danmuck/lcsf/internal/config"
	"github.com/danmuck/lcsf/internal/observability"
	"github.com/danmuck/lcsf/internal/protocol/core"
	"github.com/danmuck/lcsf/internal/protocol/errproto"
	"github.com/danmuck/lcsf/internal/protocol/probe"
	"github.com/danmuck/lcsf/internal/protocol/schema"
	"github.com/danmuck/lcsf/internal/protocol/wire"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newDecodeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "decode <hex>...",
		Short: "Decode one frame and print it as YAML",
		Long: `Decode a hex frame into its raw attribute tree. When the protocol is
known the command is also validated and printed with attribute names.
Arguments are joined, so spaced byte groups may be passed unquoted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStack(opts)
			if err != nil {
				return err
			}
			buf, err := parseHex(strings.Join(args, ""))
			if err != nil {
				return err
			}
			doc, err := decodeFrame(s, buf)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), doc)
		},
	}
}

func decodeFrame(s *stack, buf []byte) (frameDoc, error) {
	msg, err := wire.NewDecoder(s.cfg.Mode, wire.Limits{MaxDepth: s.cfg.MaxDepth}).Decode(buf)
	if err != nil {
		return frameDoc{}, err
	}
	doc := frameDoc{
		ProtocolID: msg.ProtocolID,
		CommandID:  msg.CommandID,
		Raw:        rawNodes(msg.Attributes),
	}
	desc, ok := s.protocols[msg.ProtocolID]
	if !ok {
		return doc, nil
	}
	doc.Protocol = desc.Name
	cmdDesc, ok := desc.Command(msg.CommandID)
	if ok {
		doc.Command = cmdDesc.Name
	}
	valid, err := schema.DecodeWith(msg, desc, schema.Options{Strict: s.cfg.Strict})
	if err != nil {
		doc.Invalid = err.Error()
		return doc, nil
	}
	doc.Attributes = namedValues(cmdDesc.Attributes, valid.Attributes)
	return doc, nil
}

func newEncodeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "encode <yaml-file>",
		Short: "Encode named YAML commands into hex frames",
		Long: `Encode every YAML document in the file into one hex frame per line.
Each document names a protocol, a command and its attributes:

  protocol: probe
  command: ping
  attributes:
    seq: 7
    note: hello

Bytes attributes are given as hex strings. Use - to read stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStack(opts)
			if err != nil {
				return err
			}
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runEncode(s, in, cmd.OutOrStdout())
		},
	}
}

func runEncode(s *stack, in io.Reader, out io.Writer) error {
	dec := yaml.NewDecoder(in)
	for n := 1; ; n++ {
		var doc commandDoc
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("document %d: %w", n, err)
		}
		frame, err := encodeDoc(s, doc)
		if err != nil {
			return fmt.Errorf("document %d: %w", n, err)
		}
		if _, err := fmt.Fprintln(out, hex.EncodeToString(frame)); err != nil {
			return err
		}
	}
}

func encodeDoc(s *stack, doc commandDoc) ([]byte, error) {
	desc, err := s.lookup(doc.Protocol)
	if err != nil {
		return nil, err
	}
	cmdDesc, ok := desc.CommandByName(doc.Command)
	if !ok {
		id, perr := strconv.ParseUint(strings.TrimSpace(doc.Command), 10, 16)
		if perr != nil {
			return nil, fmt.Errorf("protocol %s has no command %q", desc.Name, doc.Command)
		}
		if cmdDesc, ok = desc.Command(uint16(id)); !ok {
			return nil, fmt.Errorf("protocol %s has no command %d", desc.Name, id)
		}
	}
	attrs, err := groupFromNamed(cmdDesc.Attributes, doc.Attributes)
	if err != nil {
		return nil, err
	}
	raw, err := schema.Encode(schema.ValidCmd{ProtocolID: desc.ID, CommandID: cmdDesc.ID, Attributes: attrs}, desc)
	if err != nil {
		return nil, err
	}
	return wire.Encode(raw, s.cfg.Mode)
}

func newReplayCmd(opts *options) *cobra.Command {
	var node string
	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Feed hex frames through a stack and print its output",
		Long: `Replay reads one hex frame per line (blank lines and # comments are
skipped) and passes each to a stack with the probe protocol and any
configured protocols registered. Outbound frames are printed prefixed
with "> ", error reports with "! " and rejected frames with "x ".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStack(opts)
			if err != nil {
				return err
			}
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runReplay(s, node, in, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&node, "node", "lcsfctl", "node label for metrics")
	return cmd
}

func runReplay(s *stack, node string, in io.Reader, out io.Writer) error {
	cfg := s.cfg.CoreConfig()
	cfg.Observer = observability.NewStackMetrics(node)
	c := core.New(cfg, core.SenderFunc(func(frame []byte) error {
		_, err := fmt.Fprintf(out, "> %s\n", hex.EncodeToString(frame))
		return err
	}))
	if _, err := probe.Register(c); err != nil {
		return err
	}
	for _, desc := range s.configured {
		name := desc.Name
		err := c.AddProtocol(desc, core.HandlerFunc(func(cmd schema.ValidCmd) *schema.ValidCmd {
			log.Info().Str("protocol", name).Uint16("command_id", cmd.CommandID).Msg("command received")
			return nil
		}))
		if err != nil {
			return err
		}
	}
	c.UpdateErrorHandler(core.ErrorHandlerFunc(func(r errproto.Report) *schema.ValidCmd {
		fmt.Fprintf(out, "! %s\n", r)
		return nil
	}))

	scanner := bufio.NewScanner(in)
	line, frames, rejected := 0, 0, 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		buf, err := parseHex(text)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		frames++
		if err := c.ReceiveBuffer(buf); err != nil {
			rejected++
			fmt.Fprintf(out, "x line %d: %v\n", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "frames=%d rejected=%d\n", frames, rejected)
	return err
}

type protocolDoc struct {
	ID       uint16       `yaml:"id"`
	Name     string       `yaml:"name"`
	Commands []commandDef `yaml:"commands"`
}

type commandDef struct {
	ID         uint16         `yaml:"id"`
	Name       string         `yaml:"name"`
	Attributes []attributeDef `yaml:"attributes,omitempty"`
}

type attributeDef struct {
	ID       uint16         `yaml:"id"`
	Name     string         `yaml:"name"`
	Type     string         `yaml:"type"`
	Optional bool           `yaml:"optional,omitempty"`
	Children []attributeDef `yaml:"children,omitempty"`
}

func newProtocolsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "protocols",
		Short: "List known protocol descriptors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStack(opts)
			if err != nil {
				return err
			}
			docs := make([]protocolDoc, 0, len(s.protocols))
			for _, id := range s.ids() {
				desc := s.protocols[id]
				doc := protocolDoc{ID: desc.ID, Name: desc.Name}
				for _, cid := range desc.CommandIDs() {
					c := desc.Commands[cid]
					doc.Commands = append(doc.Commands, commandDef{ID: c.ID, Name: c.Name, Attributes: attributeDefs(c.Attributes)})
				}
				docs = append(docs, doc)
			}
			return writeYAML(cmd.OutOrStdout(), docs)
		},
	}
}

func attributeDefs(set []schema.AttributeDescriptor) []attributeDef {
	out := make([]attributeDef, 0, len(set))
	for _, att := range set {
		out = append(out, attributeDef{
			ID:       att.ID,
			Name:     att.Name,
			Type:     att.Type.String(),
			Optional: att.Optional,
			Children: attributeDefs(att.Children),
		})
	}
	return out
}

func newInitCmd() *cobra.Command {
	var kind string
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a stack config template",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "lcsf.toml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteTemplate(path, kind, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "stack", "template kind: stack or minimal")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func writeYAML(out io.Writer, v any) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
