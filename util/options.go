/* Copyright 2018 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Canonicalize is ... hey, look over there!
//
// It round-trips x through JSON, so structs become maps and numbers
// become float64s.
func Canonicalize(x interface{}) (interface{}, error) {
	js, err := json.Marshal(&x)
	if err != nil {
		return nil, err
	}
	var y interface{}
	if err = json.Unmarshal(js, &y); err != nil {
		return nil, err
	}
	return y, nil
}

// DecodeOptions fills the struct pointed to by dst from a generic
// options map (as parsed from a configuration).  Unknown keys are an
// error.
func DecodeOptions(opts map[string]interface{}, dst interface{}) error {
	if len(opts) == 0 {
		return nil
	}
	js, err := json.Marshal(opts)
	if err != nil {
		return err
	}
	d := json.NewDecoder(bytes.NewReader(js))
	d.DisallowUnknownFields()
	if err := d.Decode(dst); err != nil {
		return fmt.Errorf("bad options: %w", err)
	}
	return nil
}

// Duration is a time.Duration that reads "1m30s" as well as a
// number of seconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(bs []byte) error {
	var x interface{}
	if err := json.Unmarshal(bs, &x); err != nil {
		return err
	}
	switch vv := x.(type) {
	case float64:
		*d = Duration(vv * float64(time.Second))
	case string:
		dur, err := time.ParseDuration(vv)
		if err != nil {
			return err
		}
		*d = Duration(dur)
	default:
		return fmt.Errorf("bad duration %s", bs)
	}
	return nil
}

// Or returns d, or def when d is zero.
func (d Duration) Or(def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return time.Duration(d)
}
