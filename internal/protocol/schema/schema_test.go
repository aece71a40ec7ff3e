package schema

import (
	"errors"
	"testing"

	"github.com/danmuck/lcsf/internal/protocol"
	"github.com/danmuck/lcsf/internal/protocol/wire"
	"github.com/danmuck/lcsf/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

const (
	cmdSet   uint16 = 1
	cmdBatch uint16 = 2

	attLevel  uint16 = 0
	attLabel  uint16 = 1
	attBlob   uint16 = 2
	attLimits uint16 = 3
	attLow    uint16 = 0
	attHigh   uint16 = 1
	attItems  uint16 = 0
	attKey    uint16 = 0
	attValue  uint16 = 1
)

func testDescriptor() *ProtocolDescriptor {
	return &ProtocolDescriptor{
		ID:   7,
		Name: "dimmer",
		Commands: map[uint16]CommandDescriptor{
			cmdSet: {ID: cmdSet, Name: "set", Attributes: []AttributeDescriptor{
				{ID: attLevel, Name: "level", Type: TypeUint16},
				{ID: attLabel, Name: "label", Type: TypeString, Optional: true},
				{ID: attBlob, Name: "blob", Type: TypeBytes, Optional: true},
				{ID: attLimits, Name: "limits", Type: TypeGroup, Optional: true, Children: []AttributeDescriptor{
					{ID: attLow, Name: "low", Type: TypeUint8},
					{ID: attHigh, Name: "high", Type: TypeUint32},
				}},
			}},
			cmdBatch: {ID: cmdBatch, Name: "batch", Attributes: []AttributeDescriptor{
				{ID: attItems, Name: "items", Type: TypeArray, Children: []AttributeDescriptor{
					{ID: attKey, Name: "key", Type: TypeString},
					{ID: attValue, Name: "value", Type: TypeUint64, Optional: true},
				}},
			}},
		},
	}
}

func validationKind(t *testing.T, err error) *ValidationError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
	}
	return ve
}

func TestDecodeFlatCommand(t *testing.T) {
	testlog.Start(t)
	msg := wire.RawMessage{ProtocolID: 7, CommandID: cmdSet, Attributes: []wire.RawAttribute{
		wire.NewData(attLevel, []byte{0x2C, 0x01}),
		wire.NewData(attLabel, []byte("hall")),
	}}
	cmd, err := Decode(msg, testDescriptor())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	level, ok := cmd.Attributes.Uint(attLevel)
	if !ok || level != 300 {
		t.Fatalf("level = %d (%v), want 300", level, ok)
	}
	label, ok := cmd.Attributes.String(attLabel)
	if !ok || label != "hall" {
		t.Fatalf("label = %q (%v)", label, ok)
	}
	if cmd.Attributes.Has(attBlob) || cmd.Attributes.Has(attLimits) {
		t.Fatalf("absent optional attributes must stay absent: %+v", cmd.Attributes)
	}
}

func TestDecodeEmptyAttributeSetIsNonNil(t *testing.T) {
	testlog.Start(t)
	desc := &ProtocolDescriptor{ID: 3, Commands: map[uint16]CommandDescriptor{
		0: {ID: 0, Name: "noop", Attributes: []AttributeDescriptor{{ID: 0, Type: TypeBytes, Optional: true}}},
	}}
	cmd, err := Decode(wire.RawMessage{ProtocolID: 3}, desc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cmd.Attributes == nil || len(cmd.Attributes) != 0 {
		t.Fatalf("attributes = %#v, want empty non-nil", cmd.Attributes)
	}
}

func TestDecodeUnknownProtocolAndCommand(t *testing.T) {
	testlog.Start(t)
	desc := testDescriptor()

	ve := validationKind(t, func() error {
		_, err := Decode(wire.RawMessage{ProtocolID: 8, CommandID: cmdSet}, desc)
		return err
	}())
	if ve.Kind != protocol.KindUnknownProtocol || ve.ProtocolID != 8 || ve.HasAttribute() {
		t.Fatalf("unexpected error: %+v", ve)
	}

	_, err := Decode(wire.RawMessage{ProtocolID: 7, CommandID: 99}, desc)
	if !errors.Is(err, protocol.ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestDecodeMissingMandatory(t *testing.T) {
	testlog.Start(t)
	msg := wire.RawMessage{ProtocolID: 7, CommandID: cmdSet, Attributes: []wire.RawAttribute{
		wire.NewData(attLabel, []byte("hall")),
	}}
	ve := validationKind(t, func() error { _, err := Decode(msg, testDescriptor()); return err }())
	if ve.Kind != protocol.KindMissingAttribute || ve.AttributeID != attLevel {
		t.Fatalf("unexpected error: %+v", ve)
	}
	if !errors.Is(ve, protocol.ErrMissingAttribute) {
		t.Fatalf("expected errors.Is ErrMissingAttribute")
	}
}

func TestDecodeTypeMismatch(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		attr wire.RawAttribute
		id   uint16
	}{
		{name: "short int", attr: wire.NewData(attLevel, []byte{0x01}), id: attLevel},
		{name: "long int", attr: wire.NewData(attLevel, []byte{0x01, 0x02, 0x03}), id: attLevel},
		{name: "int with children", attr: wire.NewArray(attLevel), id: attLevel},
	}
	for _, tc := range cases {
		msg := wire.RawMessage{ProtocolID: 7, CommandID: cmdSet, Attributes: []wire.RawAttribute{tc.attr}}
		ve := validationKind(t, func() error { _, err := Decode(msg, testDescriptor()); return err }())
		if ve.Kind != protocol.KindTypeMismatch || ve.AttributeID != tc.id {
			t.Fatalf("%s: unexpected error: %+v", tc.name, ve)
		}
	}

	badString := wire.RawMessage{ProtocolID: 7, CommandID: cmdSet, Attributes: []wire.RawAttribute{
		wire.NewData(attLevel, []byte{0, 0}),
		wire.NewData(attLabel, []byte{0xff, 0xfe}),
	}}
	ve := validationKind(t, func() error { _, err := Decode(badString, testDescriptor()); return err }())
	if ve.Kind != protocol.KindTypeMismatch || ve.AttributeID != attLabel {
		t.Fatalf("invalid utf-8: unexpected error: %+v", ve)
	}

	dataGroup := wire.RawMessage{ProtocolID: 7, CommandID: cmdSet, Attributes: []wire.RawAttribute{
		wire.NewData(attLevel, []byte{0, 0}),
		wire.NewData(attLimits, []byte{1}),
	}}
	ve = validationKind(t, func() error { _, err := Decode(dataGroup, testDescriptor()); return err }())
	if ve.Kind != protocol.KindTypeMismatch || ve.AttributeID != attLimits {
		t.Fatalf("group with data: unexpected error: %+v", ve)
	}
}

func TestDecodeDuplicateSiblingRejected(t *testing.T) {
	testlog.Start(t)
	msg := wire.RawMessage{ProtocolID: 7, CommandID: cmdSet, Attributes: []wire.RawAttribute{
		wire.NewData(attLevel, []byte{0, 1}),
		wire.NewData(attLevel, []byte{0, 2}),
	}}
	_, err := Decode(msg, testDescriptor())
	if !errors.Is(err, protocol.ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestDecodeUnknownAttributeStrictVsLenient(t *testing.T) {
	testlog.Start(t)
	msg := wire.RawMessage{ProtocolID: 7, CommandID: cmdSet, Attributes: []wire.RawAttribute{
		wire.NewData(attLevel, []byte{0, 1}),
		wire.NewData(40, []byte{9}),
		wire.NewData(30, []byte{9}),
	}}
	cmd, err := Decode(msg, testDescriptor())
	if err != nil {
		t.Fatalf("lenient decode: %v", err)
	}
	if cmd.Attributes.Has(30) || cmd.Attributes.Has(40) {
		t.Fatalf("unknown ids leaked into command: %+v", cmd.Attributes)
	}

	_, err = DecodeWith(msg, testDescriptor(), Options{Strict: true})
	ve := validationKind(t, err)
	if ve.Kind != protocol.KindUnknownAttribute || ve.AttributeID != 30 {
		t.Fatalf("strict: unexpected error: %+v", ve)
	}
}

func TestDecodeNestedGroupAndArray(t *testing.T) {
	testlog.Start(t)
	set := wire.RawMessage{ProtocolID: 7, CommandID: cmdSet, Attributes: []wire.RawAttribute{
		wire.NewData(attLevel, []byte{5, 0}),
		wire.NewArray(attLimits,
			wire.NewData(attLow, []byte{1}),
			wire.NewData(attHigh, []byte{0, 1, 0, 0}),
		),
	}}
	cmd, err := Decode(set, testDescriptor())
	if err != nil {
		t.Fatalf("decode set: %v", err)
	}
	require.Equal(t, Group{
		attLevel:  Uint(5),
		attLimits: Group{attLow: Uint(1), attHigh: Uint(256)},
	}, cmd.Attributes)

	batch := wire.RawMessage{ProtocolID: 7, CommandID: cmdBatch, Attributes: []wire.RawAttribute{
		wire.NewArray(attItems,
			wire.NewArray(0, wire.NewData(attKey, []byte("a"))),
			wire.NewArray(1, wire.NewData(attKey, []byte("b")), wire.NewData(attValue, []byte{9, 0, 0, 0, 0, 0, 0, 0})),
		),
	}}
	cmd, err = Decode(batch, testDescriptor())
	if err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	items, ok := cmd.Attributes.Array(attItems)
	if !ok || len(items) != 2 {
		t.Fatalf("items = %+v", cmd.Attributes)
	}
	require.Equal(t, Group{attKey: String("a")}, items[0])
	require.Equal(t, Group{attKey: String("b"), attValue: Uint(9)}, items[1])

	nested := wire.RawMessage{ProtocolID: 7, CommandID: cmdSet, Attributes: []wire.RawAttribute{
		wire.NewData(attLevel, []byte{5, 0}),
		wire.NewArray(attLimits, wire.NewData(attLow, []byte{1})),
	}}
	ve := validationKind(t, func() error { _, err := Decode(nested, testDescriptor()); return err }())
	if ve.Kind != protocol.KindMissingAttribute || ve.AttributeID != attHigh {
		t.Fatalf("nested missing: unexpected error: %+v", ve)
	}

	dataElement := wire.RawMessage{ProtocolID: 7, CommandID: cmdBatch, Attributes: []wire.RawAttribute{
		wire.NewArray(attItems, wire.NewData(0, []byte("a"))),
	}}
	ve = validationKind(t, func() error { _, err := Decode(dataElement, testDescriptor()); return err }())
	if ve.Kind != protocol.KindTypeMismatch || ve.AttributeID != attItems {
		t.Fatalf("data element: unexpected error: %+v", ve)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	testlog.Start(t)
	desc := testDescriptor()
	cmds := []ValidCmd{
		{ProtocolID: 7, CommandID: cmdSet, Attributes: Group{
			attLevel:  Uint(0xFFFF),
			attLabel:  String("kitchen"),
			attBlob:   Bytes{0x00, 0x01},
			attLimits: Group{attLow: Uint(0), attHigh: Uint(0xFFFFFFFF)},
		}},
		{ProtocolID: 7, CommandID: cmdSet, Attributes: Group{attLevel: Uint(1), attLabel: String("")}},
		{ProtocolID: 7, CommandID: cmdBatch, Attributes: Group{attItems: Array{
			{attKey: String("x"), attValue: Uint(1 << 63)},
			{attKey: String("y")},
		}}},
		{ProtocolID: 7, CommandID: cmdBatch, Attributes: Group{attItems: Array{}}},
		{ProtocolID: 7, CommandID: cmdSet, Attributes: Group{attLevel: Uint(2), attBlob: Bytes{}}},
		{ProtocolID: 7, CommandID: cmdBatch, Attributes: Group{attItems: Array{{attKey: String("")}}}},
	}
	for _, mode := range []wire.Mode{wire.ModeSmall, wire.ModeNormal} {
		for _, cmd := range cmds {
			raw, err := Encode(cmd, desc)
			if err != nil {
				t.Fatalf("encode %+v: %v", cmd, err)
			}
			buf, err := wire.Encode(raw, mode)
			if err != nil {
				t.Fatalf("wire encode: %v", err)
			}
			back, err := wire.Decode(buf, mode)
			if err != nil {
				t.Fatalf("wire decode: %v", err)
			}
			got, err := Decode(back, desc)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			require.Equal(t, cmd, got, "mode %s", mode)
		}
	}
}

func TestEmptyValuesDecodeToEmptyNonNil(t *testing.T) {
	testlog.Start(t)
	desc := testDescriptor()
	nilForms := []ValidCmd{
		{ProtocolID: 7, CommandID: cmdSet, Attributes: Group{attLevel: Uint(2), attBlob: Bytes(nil)}},
		{ProtocolID: 7, CommandID: cmdBatch, Attributes: Group{attItems: Array(nil)}},
	}
	canonical := []ValidCmd{
		{ProtocolID: 7, CommandID: cmdSet, Attributes: Group{attLevel: Uint(2), attBlob: Bytes{}}},
		{ProtocolID: 7, CommandID: cmdBatch, Attributes: Group{attItems: Array{}}},
	}
	for i, cmd := range nilForms {
		raw, err := Encode(cmd, desc)
		if err != nil {
			t.Fatalf("encode %d: %v", i, err)
		}
		canonicalRaw, err := Encode(canonical[i], desc)
		if err != nil {
			t.Fatalf("encode canonical %d: %v", i, err)
		}
		require.Equal(t, canonicalRaw, raw, "nil and empty values must encode the same")

		buf, err := wire.Encode(raw, wire.ModeSmall)
		if err != nil {
			t.Fatalf("wire encode %d: %v", i, err)
		}
		back, err := wire.Decode(buf, wire.ModeSmall)
		if err != nil {
			t.Fatalf("wire decode %d: %v", i, err)
		}
		got, err := Decode(back, desc)
		if err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
		require.Equal(t, canonical[i], got)
	}

	blob, ok := Group{attBlob: Bytes{}}.Bytes(attBlob)
	if !ok || blob == nil {
		t.Fatalf("empty bytes accessor = %#v %v", blob, ok)
	}
}

func TestEncodeDescriptorOrder(t *testing.T) {
	testlog.Start(t)
	cmd := ValidCmd{ProtocolID: 7, CommandID: cmdSet, Attributes: Group{
		attLimits: Group{attHigh: Uint(2), attLow: Uint(1)},
		attLabel:  String("z"),
		attLevel:  Uint(300),
	}}
	raw, err := Encode(cmd, testDescriptor())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	require.Equal(t, []wire.RawAttribute{
		wire.NewData(attLevel, []byte{0x2C, 0x01}),
		wire.NewData(attLabel, []byte("z")),
		wire.NewArray(attLimits, wire.NewData(attLow, []byte{1}), wire.NewData(attHigh, []byte{2, 0, 0, 0})),
	}, raw.Attributes)
}

func TestEncodeRejectsInvalidCommands(t *testing.T) {
	testlog.Start(t)
	desc := testDescriptor()
	cases := []struct {
		name string
		cmd  ValidCmd
		kind protocol.ErrorKind
		id   uint16
	}{
		{
			name: "missing mandatory",
			cmd:  ValidCmd{ProtocolID: 7, CommandID: cmdSet, Attributes: Group{attLabel: String("a")}},
			kind: protocol.KindMissingAttribute,
			id:   attLevel,
		},
		{
			name: "overflow",
			cmd:  ValidCmd{ProtocolID: 7, CommandID: cmdSet, Attributes: Group{attLevel: Uint(0x10000)}},
			kind: protocol.KindTypeMismatch,
			id:   attLevel,
		},
		{
			name: "wrong variant",
			cmd:  ValidCmd{ProtocolID: 7, CommandID: cmdSet, Attributes: Group{attLevel: String("1")}},
			kind: protocol.KindTypeMismatch,
			id:   attLevel,
		},
		{
			name: "invalid utf-8",
			cmd:  ValidCmd{ProtocolID: 7, CommandID: cmdSet, Attributes: Group{attLevel: Uint(1), attLabel: String("\xff")}},
			kind: protocol.KindTypeMismatch,
			id:   attLabel,
		},
		{
			name: "undeclared id",
			cmd:  ValidCmd{ProtocolID: 7, CommandID: cmdSet, Attributes: Group{attLevel: Uint(1), 12: Uint(1)}},
			kind: protocol.KindUnknownAttribute,
			id:   12,
		},
		{
			name: "nested overflow",
			cmd: ValidCmd{ProtocolID: 7, CommandID: cmdSet, Attributes: Group{
				attLevel:  Uint(1),
				attLimits: Group{attLow: Uint(256), attHigh: Uint(1)},
			}},
			kind: protocol.KindTypeMismatch,
			id:   attLow,
		},
	}
	for _, tc := range cases {
		_, err := Encode(tc.cmd, desc)
		ve := validationKind(t, err)
		if ve.Kind != tc.kind || ve.AttributeID != tc.id {
			t.Fatalf("%s: unexpected error: %+v", tc.name, ve)
		}
	}

	_, err := Encode(ValidCmd{ProtocolID: 7, CommandID: 50}, desc)
	if !errors.Is(err, protocol.ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
	_, err = Encode(ValidCmd{ProtocolID: 9, CommandID: cmdSet}, desc)
	if !errors.Is(err, protocol.ErrUnknownProtocol) {
		t.Fatalf("expected ErrUnknownProtocol, got %v", err)
	}
}

func TestDescriptorValidate(t *testing.T) {
	testlog.Start(t)
	if err := testDescriptor().Validate(); err != nil {
		t.Fatalf("valid descriptor rejected: %v", err)
	}

	bad := []*ProtocolDescriptor{
		{ID: 1},
		{ID: 1, Commands: map[uint16]CommandDescriptor{1: {ID: 2}}},
		{ID: 1, Commands: map[uint16]CommandDescriptor{1: {ID: 1, Attributes: []AttributeDescriptor{
			{ID: 0, Type: TypeUint8}, {ID: 0, Type: TypeUint16},
		}}}},
		{ID: 1, Commands: map[uint16]CommandDescriptor{1: {ID: 1, Attributes: []AttributeDescriptor{
			{ID: 0, Type: TypeUint8, Children: []AttributeDescriptor{{ID: 1, Type: TypeUint8}}},
		}}}},
		{ID: 1, Commands: map[uint16]CommandDescriptor{1: {ID: 1, Attributes: []AttributeDescriptor{
			{ID: 0, Type: TypeGroup},
		}}}},
		{ID: 1, Commands: map[uint16]CommandDescriptor{1: {ID: 1, Attributes: []AttributeDescriptor{
			{ID: 0, Type: DataType(42)},
		}}}},
	}
	for i, desc := range bad {
		if err := desc.Validate(); !errors.Is(err, ErrInvalidDescriptor) {
			t.Fatalf("case %d: expected ErrInvalidDescriptor, got %v", i, err)
		}
	}
}

func TestDescriptorDepthAndClone(t *testing.T) {
	testlog.Start(t)
	desc := testDescriptor()
	if got := desc.Depth(); got != 3 {
		t.Fatalf("depth = %d, want 3", got)
	}

	clone := desc.Clone()
	require.Equal(t, desc, clone)
	clone.Commands[cmdSet].Attributes[3].Children[0].Name = "changed"
	if desc.Commands[cmdSet].Attributes[3].Children[0].Name != "low" {
		t.Fatalf("clone shares attribute storage with original")
	}
	if ids := desc.CommandIDs(); len(ids) != 2 || ids[0] != cmdSet || ids[1] != cmdBatch {
		t.Fatalf("command ids = %v", ids)
	}
	if cmd, ok := desc.CommandByName("batch"); !ok || cmd.ID != cmdBatch {
		t.Fatalf("command by name = %+v %v", cmd, ok)
	}
}

func TestParseDataType(t *testing.T) {
	testlog.Start(t)
	got, err := ParseDataType(" Uint32 ")
	if err != nil || got != TypeUint32 {
		t.Fatalf("parse uint32 = %v %v", got, err)
	}
	if _, err := ParseDataType("float"); !errors.Is(err, ErrInvalidDescriptor) {
		t.Fatalf("expected ErrInvalidDescriptor, got %v", err)
	}
}
