// Package probe is a small device-telemetry protocol built on the LCSF core.
// It converts between validated commands and Go structs and provides a
// handler that answers pings and acknowledges reports.
package probe

import (
	"errors"
	"fmt"

	"github.com/danmuck/lcsf/internal/protocol/schema"
)

const ProtocolID uint16 = 1

const (
	CmdPing      uint16 = 1
	CmdPong      uint16 = 2
	CmdReport    uint16 = 3
	CmdReportAck uint16 = 4
)

// Attribute ids. Ids are scoped to their sibling set.
const (
	AttrSeq  uint16 = 0
	AttrNote uint16 = 1

	AttrDevice   uint16 = 0
	AttrReadings uint16 = 1

	AttrDeviceID     uint16 = 0
	AttrDeviceSerial uint16 = 1

	AttrChannel uint16 = 0
	AttrValue   uint16 = 1

	AttrCount uint16 = 0
)

// ErrUnexpectedCommand is returned when a command is converted to the wrong
// struct.
var ErrUnexpectedCommand = errors.New("probe: unexpected command")

// Descriptor returns a fresh copy of the probe protocol descriptor.
func Descriptor() *schema.ProtocolDescriptor {
	echo := []schema.AttributeDescriptor{
		{ID: AttrSeq, Name: "seq", Type: schema.TypeUint32},
		{ID: AttrNote, Name: "note", Type: schema.TypeString, Optional: true},
	}
	return &schema.ProtocolDescriptor{
		ID:   ProtocolID,
		Name: "probe",
		Commands: map[uint16]schema.CommandDescriptor{
			CmdPing: {ID: CmdPing, Name: "ping", Attributes: echo},
			CmdPong: {ID: CmdPong, Name: "pong", Attributes: echo},
			CmdReport: {ID: CmdReport, Name: "report", Attributes: []schema.AttributeDescriptor{
				{ID: AttrDevice, Name: "device", Type: schema.TypeGroup, Children: []schema.AttributeDescriptor{
					{ID: AttrDeviceID, Name: "id", Type: schema.TypeUint16},
					{ID: AttrDeviceSerial, Name: "serial", Type: schema.TypeBytes, Optional: true},
				}},
				{ID: AttrReadings, Name: "readings", Type: schema.TypeArray, Children: []schema.AttributeDescriptor{
					{ID: AttrChannel, Name: "channel", Type: schema.TypeUint8},
					{ID: AttrValue, Name: "value", Type: schema.TypeUint64},
				}},
			}},
			CmdReportAck: {ID: CmdReportAck, Name: "report_ack", Attributes: []schema.AttributeDescriptor{
				{ID: AttrCount, Name: "count", Type: schema.TypeUint16},
			}},
		},
	}
}

// Echo is the body of Ping and Pong.
type Echo struct {
	Seq  uint32
	Note string
}

type Device struct {
	ID     uint16
	Serial []byte
}

type Reading struct {
	Channel uint8
	Value   uint64
}

type Report struct {
	Device   Device
	Readings []Reading
}

func (e Echo) command(cmdID uint16) schema.ValidCmd {
	attrs := schema.Group{AttrSeq: schema.Uint(e.Seq)}
	if e.Note != "" {
		attrs[AttrNote] = schema.String(e.Note)
	}
	return schema.ValidCmd{ProtocolID: ProtocolID, CommandID: cmdID, Attributes: attrs}
}

// Ping returns the ping command carrying e.
func (e Echo) Ping() schema.ValidCmd { return e.command(CmdPing) }

// Pong returns the pong command carrying e.
func (e Echo) Pong() schema.ValidCmd { return e.command(CmdPong) }

// Command returns the report command.
func (r Report) Command() schema.ValidCmd {
	device := schema.Group{AttrDeviceID: schema.Uint(r.Device.ID)}
	if len(r.Device.Serial) > 0 {
		device[AttrDeviceSerial] = schema.Bytes(r.Device.Serial)
	}
	readings := make(schema.Array, 0, len(r.Readings))
	for _, rd := range r.Readings {
		readings = append(readings, schema.Group{
			AttrChannel: schema.Uint(rd.Channel),
			AttrValue:   schema.Uint(rd.Value),
		})
	}
	return schema.ValidCmd{
		ProtocolID: ProtocolID,
		CommandID:  CmdReport,
		Attributes: schema.Group{AttrDevice: device, AttrReadings: readings},
	}
}

// AckCommand returns the acknowledgement for count readings.
func AckCommand(count uint16) schema.ValidCmd {
	return schema.ValidCmd{
		ProtocolID: ProtocolID,
		CommandID:  CmdReportAck,
		Attributes: schema.Group{AttrCount: schema.Uint(count)},
	}
}

// EchoFrom converts a ping or pong command.
func EchoFrom(cmd schema.ValidCmd) (Echo, error) {
	if err := expect(cmd, CmdPing, CmdPong); err != nil {
		return Echo{}, err
	}
	seq, ok := cmd.Attributes.Uint(AttrSeq)
	if !ok {
		return Echo{}, fmt.Errorf("%w: seq missing", ErrUnexpectedCommand)
	}
	note, _ := cmd.Attributes.String(AttrNote)
	return Echo{Seq: uint32(seq), Note: note}, nil
}

// ReportFrom converts a report command.
func ReportFrom(cmd schema.ValidCmd) (Report, error) {
	if err := expect(cmd, CmdReport); err != nil {
		return Report{}, err
	}
	device, ok := cmd.Attributes.Group(AttrDevice)
	if !ok {
		return Report{}, fmt.Errorf("%w: device missing", ErrUnexpectedCommand)
	}
	id, _ := device.Uint(AttrDeviceID)
	serial, _ := device.Bytes(AttrDeviceSerial)
	out := Report{Device: Device{ID: uint16(id), Serial: serial}}

	readings, _ := cmd.Attributes.Array(AttrReadings)
	for _, g := range readings {
		channel, _ := g.Uint(AttrChannel)
		value, _ := g.Uint(AttrValue)
		out.Readings = append(out.Readings, Reading{Channel: uint8(channel), Value: value})
	}
	return out, nil
}

// AckFrom returns the count carried by a report_ack command.
func AckFrom(cmd schema.ValidCmd) (uint16, error) {
	if err := expect(cmd, CmdReportAck); err != nil {
		return 0, err
	}
	count, ok := cmd.Attributes.Uint(AttrCount)
	if !ok {
		return 0, fmt.Errorf("%w: count missing", ErrUnexpectedCommand)
	}
	return uint16(count), nil
}

func expect(cmd schema.ValidCmd, ids ...uint16) error {
	if cmd.ProtocolID != ProtocolID {
		return fmt.Errorf("%w: protocol %d", ErrUnexpectedCommand, cmd.ProtocolID)
	}
	for _, id := range ids {
		if cmd.CommandID == id {
			return nil
		}
	}
	return fmt.Errorf("%w: command %d", ErrUnexpectedCommand, cmd.CommandID)
}
