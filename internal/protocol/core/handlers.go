package core

import (
	"github.com/danmuck/lcsf/internal/protocol/errproto"
	"github.com/danmuck/lcsf/internal/protocol/schema"
)

// Handler processes validated commands of one protocol. A non-nil return is
// sent back to the peer through SendCommand.
type Handler interface {
	Handle(cmd schema.ValidCmd) *schema.ValidCmd
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(cmd schema.ValidCmd) *schema.ValidCmd

func (f HandlerFunc) Handle(cmd schema.ValidCmd) *schema.ValidCmd {
	return f(cmd)
}

// ErrorHandler receives error reports, both those generated locally about
// rejected inbound frames and those sent by the peer.
type ErrorHandler interface {
	HandleError(report errproto.Report) *schema.ValidCmd
}

// ErrorHandlerFunc adapts a function to ErrorHandler.
type ErrorHandlerFunc func(report errproto.Report) *schema.ValidCmd

func (f ErrorHandlerFunc) HandleError(report errproto.Report) *schema.ValidCmd {
	return f(report)
}

// Sender hands encoded frames to the transport.
type Sender interface {
	Send(frame []byte) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(frame []byte) error

func (f SenderFunc) Send(frame []byte) error {
	return f(frame)
}
