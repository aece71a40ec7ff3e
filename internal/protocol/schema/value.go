package schema

// Value is a validated attribute value: Uint, Bytes, String, Array or Group.
type Value interface {
	isValue()
}

// Uint holds any fixed-width unsigned integer attribute.
type Uint uint64

// Bytes holds a byte string attribute.
type Bytes []byte

// String holds a UTF-8 string attribute.
type String string

// Group maps sub-attribute ids to values. It is both the attribute set of a
// command and the value of a group attribute.
type Group map[uint16]Value

// Array is an ordered list of element groups.
type Array []Group

func (Uint) isValue()   {}
func (Bytes) isValue()  {}
func (String) isValue() {}
func (Group) isValue()  {}
func (Array) isValue()  {}

// ValidCmd is a command checked against its protocol descriptor.
type ValidCmd struct {
	ProtocolID uint16
	CommandID  uint16
	Attributes Group
}

// Has reports whether id is present.
func (g Group) Has(id uint16) bool {
	_, ok := g[id]
	return ok
}

// Uint returns the integer value of id.
func (g Group) Uint(id uint16) (uint64, bool) {
	v, ok := g[id].(Uint)
	return uint64(v), ok
}

// Bytes returns the byte string value of id.
func (g Group) Bytes(id uint16) ([]byte, bool) {
	v, ok := g[id].(Bytes)
	return []byte(v), ok
}

// String returns the string value of id.
func (g Group) String(id uint16) (string, bool) {
	v, ok := g[id].(String)
	return string(v), ok
}

// Group returns the group value of id.
func (g Group) Group(id uint16) (Group, bool) {
	v, ok := g[id].(Group)
	return v, ok
}

// Array returns the array value of id.
func (g Group) Array(id uint16) (Array, bool) {
	v, ok := g[id].(Array)
	return v, ok
}
