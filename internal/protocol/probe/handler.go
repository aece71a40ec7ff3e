package probe

import (
	"sync"

	"github.com/danmuck/lcsf/internal/protocol/core"
	"github.com/danmuck/lcsf/internal/protocol/schema"
	"github.com/rs/zerolog/log"
)

// Handler answers Ping with Pong and Report with ReportAck. Received reports
// are kept for inspection.
type Handler struct {
	mu      sync.Mutex
	reports []Report
}

var _ core.Handler = (*Handler)(nil)

// NewHandler returns a Handler with no stored reports.
func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Handle(cmd schema.ValidCmd) *schema.ValidCmd {
	switch cmd.CommandID {
	case CmdPing:
		echo, err := EchoFrom(cmd)
		if err != nil {
			log.Warn().Err(err).Str("component", "probe").Msg("ping dropped")
			return nil
		}
		log.Debug().Str("component", "probe").Uint32("seq", echo.Seq).Msg("ping")
		pong := echo.Pong()
		return &pong
	case CmdReport:
		report, err := ReportFrom(cmd)
		if err != nil {
			log.Warn().Err(err).Str("component", "probe").Msg("report dropped")
			return nil
		}
		h.mu.Lock()
		h.reports = append(h.reports, report)
		h.mu.Unlock()
		log.Info().
			Str("component", "probe").
			Uint16("device_id", report.Device.ID).
			Int("readings", len(report.Readings)).
			Msg("report received")
		ack := AckCommand(uint16(len(report.Readings)))
		return &ack
	default:
		log.Debug().Str("component", "probe").Uint16("command_id", cmd.CommandID).Msg("no reply")
		return nil
	}
}

// Reports returns a copy of the reports received so far.
func (h *Handler) Reports() []Report {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Report(nil), h.reports...)
}

// Register adds the probe protocol to c with a fresh Handler.
func Register(c *core.Core) (*Handler, error) {
	h := NewHandler()
	if err := c.AddProtocol(Descriptor(), h); err != nil {
		return nil, err
	}
	return h, nil
}
