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

package testutil

import (
	"encoding/json"
	"fmt"
	"reflect"
	"testing"

	"github.com/OverOrion/axosyslog/util"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// JS renders its argument as JSON or as a string indicating an error.
func JS(x interface{}) string {
	bs, err := json.Marshal(&x)
	if err != nil {
		return fmt.Sprintf("%#v", x)
	}
	return string(bs)
}

// Dwimjs, when given a string or bytes, parses that data as JSON.
// When given anything else, just returns what's given.
//
// See https://en.wikipedia.org/wiki/DWIM.
func Dwimjs(x interface{}) interface{} {
	switch vv := x.(type) {
	case []byte:
		return Dwimjs(string(vv))
	case string:
		var v interface{}
		if err := json.Unmarshal([]byte(vv), &v); err != nil {
			return vv
		}
		return v
	default:
		return x
	}
}

// JSONEqual reports whether two JSON texts (or already parsed values)
// are the same modulo formatting and key order.
func JSONEqual(x, y interface{}) bool {
	return reflect.DeepEqual(Dwimjs(x), Dwimjs(y))
}

// ObserveLogs installs an observing process logger with debug and
// trace output enabled for the duration of the test.
func ObserveLogs(t testing.TB) *observer.ObservedLogs {
	core, logs := observer.New(zapcore.DebugLevel)
	prevTrace, prevDebug := util.TraceEnabled(), util.DebugEnabled()
	util.SetLogger(zap.New(core))
	util.SetTrace(true)
	util.SetDebug(true)
	t.Cleanup(func() {
		util.SetLogger(nil)
		util.SetTrace(prevTrace)
		util.SetDebug(prevDebug)
	})
	return logs
}
