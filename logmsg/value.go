package logmsg

import (
	"fmt"
	"strconv"
	"time"
)

// ValueType tags the raw text stored for a name-value pair.
type ValueType int

const (
	TypeString ValueType = iota
	TypeInteger
	TypeDouble
	TypeBoolean
	TypeNull
	TypeBytes
	TypeJSON
	TypeList
	TypeDatetime
)

var typeNames = [...]string{
	TypeString:   "string",
	TypeInteger:  "int",
	TypeDouble:   "double",
	TypeBoolean:  "boolean",
	TypeNull:     "null",
	TypeBytes:    "bytes",
	TypeJSON:     "json",
	TypeList:     "list",
	TypeDatetime: "datetime",
}

func (t ValueType) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("ValueType(%d)", int(t))
	}
	return typeNames[t]
}

// ParseValueType is the inverse of String.
func ParseValueType(s string) (ValueType, error) {
	for i, n := range typeNames {
		if n == s {
			return ValueType(i), nil
		}
	}
	return TypeString, fmt.Errorf("unknown value type %q", s)
}

// Value is a typed value as stored in an NVTable.
//
// Raw always holds the textual form.  For TypeDatetime that is
// RFC3339Nano; for TypeJSON and TypeList it is the JSON encoding.
type Value struct {
	Type ValueType
	Raw  string
}

// Interface converts the value to a plain Go value (what
// encoding/json would produce).
func (v Value) Interface() interface{} {
	switch v.Type {
	case TypeInteger:
		if n, err := strconv.ParseInt(v.Raw, 10, 64); err == nil {
			return n
		}
	case TypeDouble:
		if f, err := strconv.ParseFloat(v.Raw, 64); err == nil {
			return f
		}
	case TypeBoolean:
		if b, err := strconv.ParseBool(v.Raw); err == nil {
			return b
		}
	case TypeNull:
		return nil
	case TypeJSON, TypeList:
		if x, err := decodeJSON([]byte(v.Raw)); err == nil {
			return x
		}
	case TypeDatetime:
		if t, err := time.Parse(time.RFC3339Nano, v.Raw); err == nil {
			return t
		}
	}
	return v.Raw
}
