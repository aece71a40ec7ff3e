package core

import (
	"github.com/danmuck/lcsf/internal/protocol"
	"github.com/danmuck/lcsf/internal/protocol/wire"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds construction options for a Core.
type Config struct {
	Mode wire.Mode
	// GenerateErrors reports receive failures to the error handler and sends
	// an error command to the peer.
	GenerateErrors bool
	// Strict rejects attributes the descriptor does not declare.
	Strict   bool
	Limits   wire.Limits
	Observer Observer
	Logger   zerolog.Logger
}

// DefaultConfig returns Normal mode with error generation on and default limits.
func DefaultConfig() Config {
	return Config{
		Mode:           wire.ModeNormal,
		GenerateErrors: true,
		Limits:         wire.DefaultLimits(),
		Observer:       NopObserver{},
		Logger:         log.Logger,
	}
}

// Observer receives counters from the receive and send paths.
type Observer interface {
	FrameReceived(size int)
	FrameRejected(kind protocol.ErrorKind)
	CommandDispatched(protocolID, commandID uint16)
	FrameSent(size int)
	ErrorGenerated(kind protocol.ErrorKind)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) FrameReceived(int)                 {}
func (NopObserver) FrameRejected(protocol.ErrorKind)  {}
func (NopObserver) CommandDispatched(uint16, uint16)  {}
func (NopObserver) FrameSent(int)                     {}
func (NopObserver) ErrorGenerated(protocol.ErrorKind) {}
