// Package core ties the LCSF transcoder, validator and error protocol to a
// protocol registry and a send callback.
//
// All operations run to completion on the calling goroutine. The registry is
// guarded so registration may race with message processing; handlers are
// invoked without locks held and may call back into the Core.
package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/lcsf/internal/protocol"
	"github.com/danmuck/lcsf/internal/protocol/errproto"
	"github.com/danmuck/lcsf/internal/protocol/schema"
	"github.com/danmuck/lcsf/internal/protocol/wire"
	"github.com/rs/zerolog"
)

var (
	ErrNilHandler            = errors.New("core: nil handler")
	ErrProtocolNotRegistered = errors.New("core: protocol not registered")
	ErrIDOutOfRange          = errors.New("core: id exceeds mode range")
	ErrDescriptorTooDeep     = errors.New("core: descriptor nests deeper than decode limit")
)

type entry struct {
	desc    *schema.ProtocolDescriptor
	handler Handler
}

// Core is one LCSF endpoint.
type Core struct {
	mode      wire.Mode
	genErrors bool
	strict    bool
	limits    wire.Limits
	observer  Observer
	log       zerolog.Logger
	sender    Sender

	mu         sync.RWMutex
	protocols  map[uint16]entry
	errHandler ErrorHandler
}

// New returns a Core with the error protocol installed. A nil sender drops
// outbound frames.
func New(cfg Config, sender Sender) *Core {
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.Limits.MaxDepth <= 0 {
		cfg.Limits = wire.DefaultLimits()
	}
	if sender == nil {
		sender = SenderFunc(func([]byte) error { return nil })
	}
	c := &Core{
		mode:      cfg.Mode,
		genErrors: cfg.GenerateErrors,
		strict:    cfg.Strict,
		limits:    cfg.Limits,
		observer:  cfg.Observer,
		log:       cfg.Logger.With().Str("component", "lcsf.core").Str("mode", cfg.Mode.String()).Logger(),
		sender:    sender,
		protocols: make(map[uint16]entry),
	}
	c.protocols[protocol.ErrorProtocolID] = entry{desc: errproto.Descriptor()}
	c.errHandler = ErrorHandlerFunc(c.logReport)
	return c
}

// Mode returns the representation mode used on the wire.
func (c *Core) Mode() wire.Mode {
	return c.mode
}

// AddProtocol registers desc with its handler. The descriptor is copied.
func (c *Core) AddProtocol(desc *schema.ProtocolDescriptor, h Handler) error {
	if desc == nil {
		return fmt.Errorf("%w: nil descriptor", schema.ErrInvalidDescriptor)
	}
	if h == nil {
		return ErrNilHandler
	}
	if desc.ID == protocol.ErrorProtocolID {
		return fmt.Errorf("%w: %d", protocol.ErrReservedProtocolID, desc.ID)
	}
	if err := desc.Validate(); err != nil {
		return err
	}
	if err := c.checkRange(desc); err != nil {
		return err
	}
	if depth := desc.Depth(); depth > c.limits.MaxDepth {
		return fmt.Errorf("%w: protocol %d depth %d, limit %d", ErrDescriptorTooDeep, desc.ID, depth, c.limits.MaxDepth)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.protocols[desc.ID]; exists {
		return fmt.Errorf("%w: %d", protocol.ErrProtocolAlreadyRegistered, desc.ID)
	}
	c.protocols[desc.ID] = entry{desc: desc.Clone(), handler: h}
	c.log.Info().Uint16("protocol_id", desc.ID).Str("name", desc.Name).Msg("protocol registered")
	return nil
}

// RemoveProtocol unregisters id. The error protocol cannot be removed.
func (c *Core) RemoveProtocol(id uint16) error {
	if id == protocol.ErrorProtocolID {
		return fmt.Errorf("%w: %d", protocol.ErrReservedProtocolID, id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.protocols[id]; !ok {
		return fmt.Errorf("%w: %d", ErrProtocolNotRegistered, id)
	}
	delete(c.protocols, id)
	c.log.Info().Uint16("protocol_id", id).Msg("protocol removed")
	return nil
}

// UpdateErrorHandler replaces the error protocol handler. Nil restores the
// default, which only logs.
func (c *Core) UpdateErrorHandler(h ErrorHandler) {
	if h == nil {
		h = ErrorHandlerFunc(c.logReport)
	}
	c.mu.Lock()
	c.errHandler = h
	c.mu.Unlock()
}

// Protocols returns the registered protocol ids in ascending order, the error
// protocol included.
func (c *Core) Protocols() []uint16 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]uint16, 0, len(c.protocols))
	for id := range c.protocols {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Descriptor returns a copy of the descriptor registered for id.
func (c *Core) Descriptor(id uint16) (*schema.ProtocolDescriptor, bool) {
	e, ok := c.lookup(id)
	if !ok {
		return nil, false
	}
	return e.desc.Clone(), true
}

// ReceiveBuffer processes one inbound frame. The returned error is a
// diagnostic for the embedder; with GenerateErrors set the failure has also
// been reported to the error handler and sent to the peer.
func (c *Core) ReceiveBuffer(buf []byte) error {
	c.observer.FrameReceived(len(buf))
	msg, err := c.decoder().Decode(buf)
	if err != nil {
		var mf *wire.MalformedFrameError
		if errors.As(err, &mf) && mf.HeaderParsed {
			return c.reject(err, mf.ProtocolID, mf.CommandID)
		}
		return c.reject(err, 0, 0)
	}

	e, ok := c.lookup(msg.ProtocolID)
	if !ok {
		return c.reject(schema.UnknownProtocol(msg.ProtocolID, msg.CommandID), msg.ProtocolID, msg.CommandID)
	}
	cmd, err := schema.DecodeWith(msg, e.desc, schema.Options{Strict: c.strict})
	if err != nil {
		return c.reject(err, msg.ProtocolID, msg.CommandID)
	}

	c.observer.CommandDispatched(cmd.ProtocolID, cmd.CommandID)
	if cmd.ProtocolID == protocol.ErrorProtocolID {
		report, err := errproto.Interpret(cmd)
		if err != nil {
			c.log.Warn().Err(err).Msg("error command dropped")
			return err
		}
		return c.reply(c.errorHandler().HandleError(report))
	}
	return c.reply(e.handler.Handle(cmd))
}

// ReceiveRaw decodes a frame without protocol handling.
func (c *Core) ReceiveRaw(buf []byte) (wire.RawMessage, error) {
	return c.decoder().Decode(buf)
}

// SendCommand validates, encodes and sends cmd. Failures are returned to the
// caller and never turned into error frames.
func (c *Core) SendCommand(cmd schema.ValidCmd) error {
	e, ok := c.lookup(cmd.ProtocolID)
	if !ok {
		return fmt.Errorf("%w: protocol %d", protocol.ErrSendTargetUnregistered, cmd.ProtocolID)
	}
	raw, err := schema.Encode(cmd, e.desc)
	if err != nil {
		return err
	}
	return c.SendRaw(raw)
}

// SendRaw encodes and sends msg without protocol validation.
func (c *Core) SendRaw(msg wire.RawMessage) error {
	buf, err := wire.Encode(msg, c.mode)
	if err != nil {
		return err
	}
	if err := c.sender.Send(buf); err != nil {
		return fmt.Errorf("core: send: %w", err)
	}
	c.observer.FrameSent(len(buf))
	c.log.Debug().
		Uint16("protocol_id", msg.ProtocolID).
		Uint16("command_id", msg.CommandID).
		Int("bytes", len(buf)).
		Msg("frame sent")
	return nil
}

// reject logs and counts a receive failure and, when enabled, reports it.
// Failures of error protocol frames are never answered with error frames.
func (c *Core) reject(err error, protocolID, commandID uint16) error {
	report := errproto.ReportFor(err, protocolID, commandID)
	c.observer.FrameRejected(report.Kind)
	c.log.Warn().
		Err(err).
		Str("kind", report.Kind.String()).
		Uint16("protocol_id", report.OriginProtocolID).
		Uint16("command_id", report.OriginCommandID).
		Msg("frame rejected")

	if !c.genErrors || c.isErrorFrame(err, report) {
		return err
	}
	c.observer.ErrorGenerated(report.Kind)
	reply := c.errorHandler().HandleError(report)
	if sendErr := c.SendCommand(errproto.Build(report)); sendErr != nil {
		return errors.Join(err, fmt.Errorf("core: send error command: %w", sendErr))
	}
	if replyErr := c.reply(reply); replyErr != nil {
		return errors.Join(err, replyErr)
	}
	return err
}

// isErrorFrame reports whether the rejected frame was itself an error command.
func (c *Core) isErrorFrame(err error, report errproto.Report) bool {
	var mf *wire.MalformedFrameError
	if errors.As(err, &mf) {
		return mf.HeaderParsed && mf.ProtocolID == protocol.ErrorProtocolID
	}
	return report.OriginProtocolID == protocol.ErrorProtocolID
}

func (c *Core) reply(cmd *schema.ValidCmd) error {
	if cmd == nil {
		return nil
	}
	if err := c.SendCommand(*cmd); err != nil {
		return fmt.Errorf("core: send reply: %w", err)
	}
	return nil
}

func (c *Core) lookup(id uint16) (entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.protocols[id]
	return e, ok
}

func (c *Core) errorHandler() ErrorHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errHandler
}

func (c *Core) decoder() *wire.Decoder {
	return wire.NewDecoder(c.mode, c.limits)
}

func (c *Core) logReport(report errproto.Report) *schema.ValidCmd {
	c.log.Info().
		Str("kind", report.Kind.String()).
		Str("source", report.Source.String()).
		Uint16("protocol_id", report.OriginProtocolID).
		Uint16("command_id", report.OriginCommandID).
		Msg("error report")
	return nil
}

// checkRange rejects descriptors whose ids cannot be written in the mode.
func (c *Core) checkRange(desc *schema.ProtocolDescriptor) error {
	limit := uint16(c.mode.MaxField())
	if desc.ID > limit {
		return fmt.Errorf("%w: protocol id %d in %s mode", ErrIDOutOfRange, desc.ID, c.mode)
	}
	for _, id := range desc.CommandIDs() {
		if id > limit {
			return fmt.Errorf("%w: command id %d in %s mode", ErrIDOutOfRange, id, c.mode)
		}
		if err := checkSetRange(desc.Commands[id].Attributes, limit); err != nil {
			return fmt.Errorf("%w in %s mode", err, c.mode)
		}
	}
	return nil
}

func checkSetRange(set []schema.AttributeDescriptor, limit uint16) error {
	for _, att := range set {
		if att.ID > limit {
			return fmt.Errorf("%w: attribute id %d", ErrIDOutOfRange, att.ID)
		}
		if err := checkSetRange(att.Children, limit); err != nil {
			return err
		}
	}
	return nil
}
