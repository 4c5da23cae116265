package logmsg

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

func decodeJSON(bs []byte) (interface{}, error) {
	d := json.NewDecoder(bytes.NewReader(bs))
	d.UseNumber()
	var x interface{}
	if err := d.Decode(&x); err != nil {
		return nil, err
	}
	return x, nil
}

// ValueFromInterface maps a decoded JSON value to a typed Value.
func ValueFromInterface(x interface{}) (Value, error) {
	switch vv := x.(type) {
	case nil:
		return Value{Type: TypeNull}, nil
	case string:
		return Value{Type: TypeString, Raw: vv}, nil
	case bool:
		return Value{Type: TypeBoolean, Raw: strconv.FormatBool(vv)}, nil
	case json.Number:
		if _, err := vv.Int64(); err == nil {
			return Value{Type: TypeInteger, Raw: vv.String()}, nil
		}
		return Value{Type: TypeDouble, Raw: vv.String()}, nil
	case float64:
		if vv == float64(int64(vv)) {
			return Value{Type: TypeInteger, Raw: strconv.FormatInt(int64(vv), 10)}, nil
		}
		return Value{Type: TypeDouble, Raw: strconv.FormatFloat(vv, 'g', -1, 64)}, nil
	case int:
		return Value{Type: TypeInteger, Raw: strconv.Itoa(vv)}, nil
	case int64:
		return Value{Type: TypeInteger, Raw: strconv.FormatInt(vv, 10)}, nil
	case time.Time:
		return Value{Type: TypeDatetime, Raw: vv.UTC().Format(time.RFC3339Nano)}, nil
	case []interface{}:
		js, err := json.Marshal(vv)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: TypeList, Raw: string(js)}, nil
	default:
		js, err := json.Marshal(vv)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: TypeJSON, Raw: string(js)}, nil
	}
}

// FromJSON makes a message from one line of input.
//
// A JSON object becomes one value per top-level property.  Anything
// else (including text that isn't JSON) becomes the MESSAGE value.
func FromJSON(line []byte) *LogMessage {
	m := New()
	line = bytes.TrimSpace(line)
	x, err := decodeJSON(line)
	obj, is := x.(map[string]interface{})
	if err != nil || !is {
		m.SetValue(MessageKey, string(line), TypeString)
		return m
	}
	for k, v := range obj {
		val, err := ValueFromInterface(v)
		if err != nil {
			continue
		}
		m.SetValue(k, val.Raw, val.Type)
	}
	return m
}

// Map renders the payload as plain Go values.
func (m *LogMessage) Map() map[string]interface{} {
	acc := make(map[string]interface{}, m.Payload.Len())
	for _, name := range m.Payload.Names() {
		v, _ := m.Payload.Get(name)
		acc[name] = v.Interface()
	}
	return acc
}

// MarshalJSON renders the payload as a JSON object.
func (m *LogMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Map())
}

// Labels returns the values whose names start with the prefix,
// with the prefix removed.
func (m *LogMessage) Labels(prefix string) map[string]string {
	acc := make(map[string]string)
	for _, name := range m.Payload.Names() {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		v, _ := m.Payload.Get(name)
		acc[strings.TrimPrefix(name, prefix)] = v.Raw
	}
	return acc
}
