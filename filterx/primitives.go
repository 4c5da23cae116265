package filterx

import (
	"bytes"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/OverOrion/axosyslog/logmsg"
)

type Null struct {
	Base
}

func (*Null) Type() *Type { return TypeNull }
func (*Null) Truthy() bool { return false }
func (*Null) Repr(buf *bytes.Buffer) bool {
	buf.WriteString("null")
	return true
}
func (*Null) Marshal(buf *bytes.Buffer) (logmsg.ValueType, bool) {
	return logmsg.TypeNull, true
}

type Boolean struct {
	Base
	Value bool
}

func (*Boolean) Type() *Type { return TypeBoolean }
func (b *Boolean) Truthy() bool { return b.Value }
func (b *Boolean) Repr(buf *bytes.Buffer) bool {
	buf.WriteString(strconv.FormatBool(b.Value))
	return true
}
func (b *Boolean) Marshal(buf *bytes.Buffer) (logmsg.ValueType, bool) {
	b.Repr(buf)
	return logmsg.TypeBoolean, true
}

var (
	null  = Freeze(&Null{}).(*Null)
	True  = Freeze(&Boolean{Value: true}).(*Boolean)
	False = Freeze(&Boolean{Value: false}).(*Boolean)
)

// NewNull returns the null singleton.
func NewNull() Object {
	return null
}

// NewBoolean returns one of the boolean singletons.
func NewBoolean(v bool) Object {
	if v {
		return True
	}
	return False
}

type Integer struct {
	Base
	Value int64
}

func NewInteger(v int64) *Integer {
	return &Integer{Value: v}
}

func (*Integer) Type() *Type { return TypeInteger }
func (i *Integer) Truthy() bool { return i.Value != 0 }
func (i *Integer) Repr(buf *bytes.Buffer) bool {
	buf.WriteString(strconv.FormatInt(i.Value, 10))
	return true
}
func (i *Integer) Marshal(buf *bytes.Buffer) (logmsg.ValueType, bool) {
	i.Repr(buf)
	return logmsg.TypeInteger, true
}

type Double struct {
	Base
	Value float64
}

func NewDouble(v float64) *Double {
	return &Double{Value: v}
}

func (*Double) Type() *Type { return TypeDouble }
func (d *Double) Truthy() bool { return d.Value != 0 }
func (d *Double) Repr(buf *bytes.Buffer) bool {
	buf.WriteString(strconv.FormatFloat(d.Value, 'g', -1, 64))
	return true
}
func (d *Double) Marshal(buf *bytes.Buffer) (logmsg.ValueType, bool) {
	d.Repr(buf)
	return logmsg.TypeDouble, true
}

type String struct {
	Base
	Value string
}

func NewString(v string) *String {
	return &String{Value: v}
}

func (*String) Type() *Type { return TypeString }
func (s *String) Truthy() bool { return len(s.Value) > 0 }
func (s *String) Repr(buf *bytes.Buffer) bool {
	buf.WriteString(s.Value)
	return true
}
func (s *String) Marshal(buf *bytes.Buffer) (logmsg.ValueType, bool) {
	buf.WriteString(s.Value)
	return logmsg.TypeString, true
}

type Bytes struct {
	Base
	Value []byte
}

func NewBytes(v []byte) *Bytes {
	return &Bytes{Value: v}
}

func (*Bytes) Type() *Type { return TypeBytes }
func (b *Bytes) Truthy() bool { return len(b.Value) > 0 }
func (b *Bytes) Repr(buf *bytes.Buffer) bool {
	buf.WriteString(hex.EncodeToString(b.Value))
	return true
}
func (b *Bytes) Marshal(buf *bytes.Buffer) (logmsg.ValueType, bool) {
	buf.Write(b.Value)
	return logmsg.TypeBytes, true
}

type Datetime struct {
	Base
	Value time.Time
}

func NewDatetime(t time.Time) *Datetime {
	return &Datetime{Value: t}
}

func (*Datetime) Type() *Type { return TypeDatetime }
func (*Datetime) Truthy() bool { return true }
func (d *Datetime) Repr(buf *bytes.Buffer) bool {
	buf.WriteString(d.Value.UTC().Format(time.RFC3339Nano))
	return true
}
func (d *Datetime) Marshal(buf *bytes.Buffer) (logmsg.ValueType, bool) {
	d.Repr(buf)
	return logmsg.TypeDatetime, true
}

// MessageValue is a value fetched from a message, kept in its stored
// form until somebody needs it typed.
type MessageValue struct {
	Base
	Raw       string
	ValueType logmsg.ValueType
}

func NewMessageValue(raw string, t logmsg.ValueType) *MessageValue {
	return &MessageValue{Raw: raw, ValueType: t}
}

func (*MessageValue) Type() *Type { return TypeMessageValue }

func (m *MessageValue) Truthy() bool {
	switch m.ValueType {
	case logmsg.TypeNull:
		return false
	case logmsg.TypeBoolean:
		b, _ := strconv.ParseBool(m.Raw)
		return b
	case logmsg.TypeInteger:
		n, _ := strconv.ParseInt(m.Raw, 10, 64)
		return n != 0
	case logmsg.TypeDouble:
		f, _ := strconv.ParseFloat(m.Raw, 64)
		return f != 0
	case logmsg.TypeList:
		return m.Raw != "[]" && m.Raw != ""
	case logmsg.TypeJSON:
		return m.Raw != "{}" && m.Raw != "" && m.Raw != "null"
	}
	return len(m.Raw) > 0
}

func (m *MessageValue) Repr(buf *bytes.Buffer) bool {
	if m.ValueType == logmsg.TypeNull {
		buf.WriteString("null")
		return true
	}
	buf.WriteString(m.Raw)
	return true
}

func (m *MessageValue) Marshal(buf *bytes.Buffer) (logmsg.ValueType, bool) {
	buf.WriteString(m.Raw)
	return m.ValueType, true
}

// Unmarshal converts the stored form into a typed object.  The caller
// owns the result.
func (m *MessageValue) Unmarshal() (Object, error) {
	return FromValue(logmsg.Value{Type: m.ValueType, Raw: m.Raw})
}
