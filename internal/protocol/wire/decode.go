package wire

import "encoding/binary"

// Decoder decodes frames for one mode. A Decoder is not safe for concurrent
// use; DepthReached reflects the last call to Decode.
type Decoder struct {
	mode   Mode
	limits Limits

	buf      []byte
	off      int
	depth    int
	maxDepth int
	head     RawMessage
	parsed   bool
}

func NewDecoder(mode Mode, limits Limits) *Decoder {
	if limits.MaxDepth <= 0 {
		limits.MaxDepth = DefaultLimits().MaxDepth
	}
	return &Decoder{mode: mode, limits: limits}
}

// Decode parses buf into a RawMessage using the default limits.
func Decode(buf []byte, mode Mode) (RawMessage, error) {
	return NewDecoder(mode, DefaultLimits()).Decode(buf)
}

// DepthReached returns the deepest attribute nesting seen by the last Decode.
func (d *Decoder) DepthReached() int {
	return d.maxDepth
}

// Decode parses buf. Only structure is checked: every declared length must be
// backed by bytes, flags must be valid and no bytes may trail the message.
func (d *Decoder) Decode(buf []byte) (RawMessage, error) {
	d.buf = buf
	d.off = 0
	d.depth = 0
	d.maxDepth = 0
	d.parsed = false
	d.head = RawMessage{}

	if len(buf) < d.mode.HeaderLen() {
		return RawMessage{}, d.malformed("short message header")
	}
	protocolID := d.field()
	commandID := d.field()
	count := d.field()
	d.head = RawMessage{ProtocolID: protocolID, CommandID: commandID}
	d.parsed = true

	msg := d.head
	for i := 0; i < int(count); i++ {
		att, err := d.attribute()
		if err != nil {
			return RawMessage{}, err
		}
		msg.Attributes = append(msg.Attributes, att)
	}
	if d.off != len(d.buf) {
		return RawMessage{}, d.malformed("trailing bytes after last attribute")
	}
	return msg, nil
}

// attribute decodes one attribute and its sub-tree. Each call recurses once
// per nested level, never per sibling.
func (d *Decoder) attribute() (RawAttribute, error) {
	d.depth++
	defer func() { d.depth-- }()
	if d.depth > d.maxDepth {
		d.maxDepth = d.depth
	}
	if d.depth > d.limits.MaxDepth {
		return RawAttribute{}, d.malformed("attribute nesting exceeds limit")
	}
	if len(d.buf)-d.off < d.mode.AttributeHeaderLen() {
		return RawAttribute{}, d.malformed("short attribute header")
	}
	id := d.field()
	flag := d.buf[d.off]
	if flag != flagData && flag != flagArray {
		return RawAttribute{}, d.malformed("invalid array flag")
	}
	d.off++
	length := d.field()

	if flag == flagArray {
		children := Children{}
		for i := 0; i < int(length); i++ {
			child, err := d.attribute()
			if err != nil {
				return RawAttribute{}, err
			}
			children = append(children, child)
		}
		return RawAttribute{ID: id, Payload: children}, nil
	}

	if int(length) > len(d.buf)-d.off {
		return RawAttribute{}, d.malformed("attribute length exceeds remaining bytes")
	}
	data := make(Data, length)
	copy(data, d.buf[d.off:d.off+int(length)])
	d.off += int(length)
	return RawAttribute{ID: id, Payload: data}, nil
}

// field reads one id/count/length field. Callers check bounds first.
func (d *Decoder) field() uint16 {
	w := d.mode.FieldWidth()
	var v uint16
	if w == 1 {
		v = uint16(d.buf[d.off])
	} else {
		v = binary.LittleEndian.Uint16(d.buf[d.off : d.off+2])
	}
	d.off += w
	return v
}

func (d *Decoder) malformed(reason string) *MalformedFrameError {
	return &MalformedFrameError{
		Offset:       d.off,
		Reason:       reason,
		HeaderParsed: d.parsed,
		ProtocolID:   d.head.ProtocolID,
		CommandID:    d.head.CommandID,
	}
}
