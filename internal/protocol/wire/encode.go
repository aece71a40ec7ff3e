package wire

import (
	"encoding/binary"
	"fmt"
)

// Encode serializes msg in the given mode.
func Encode(msg RawMessage, mode Mode) ([]byte, error) {
	e := encoder{mode: mode, buf: make([]byte, 0, mode.HeaderLen()+8*len(msg.Attributes))}
	if err := e.field("protocol id", int(msg.ProtocolID)); err != nil {
		return nil, err
	}
	if err := e.field("command id", int(msg.CommandID)); err != nil {
		return nil, err
	}
	if err := e.field("attribute count", len(msg.Attributes)); err != nil {
		return nil, err
	}
	for _, att := range msg.Attributes {
		if err := e.attribute(att); err != nil {
			return nil, err
		}
	}
	return e.buf, nil
}

type encoder struct {
	mode Mode
	buf  []byte
}

func (e *encoder) attribute(att RawAttribute) error {
	if err := e.field("attribute id", int(att.ID)); err != nil {
		return err
	}
	switch p := att.Payload.(type) {
	case Children:
		e.buf = append(e.buf, flagArray)
		if err := e.field("attribute count", len(p)); err != nil {
			return err
		}
		for _, child := range p {
			if err := e.attribute(child); err != nil {
				return err
			}
		}
	case Data:
		e.buf = append(e.buf, flagData)
		if err := e.field("attribute length", len(p)); err != nil {
			return err
		}
		e.buf = append(e.buf, p...)
	case nil:
		e.buf = append(e.buf, flagData)
		return e.field("attribute length", 0)
	}
	return nil
}

func (e *encoder) field(name string, v int) error {
	if v < 0 || v > e.mode.MaxField() {
		return fmt.Errorf("%w: %s %d exceeds %d in %s mode", ErrFieldOverflow, name, v, e.mode.MaxField(), e.mode)
	}
	if e.mode == ModeSmall {
		e.buf = append(e.buf, byte(v))
		return nil
	}
	e.buf = binary.LittleEndian.AppendUint16(e.buf, uint16(v))
	return nil
}
