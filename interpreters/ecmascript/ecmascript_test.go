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

package ecmascript

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/OverOrion/axosyslog/filterx"
	"github.com/OverOrion/axosyslog/logmsg"
	"github.com/OverOrion/axosyslog/util/testutil"
)

// run compiles code and executes it against msg.  The message is
// synced afterwards.
func run(t testing.TB, i *Interpreter, code string, msg **logmsg.LogMessage) filterx.EvalResult {
	e, err := i.Compile(context.Background(), code)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Unref()

	var c filterx.EvalContext
	c.Init(filterx.NewThread(0), nil)
	defer c.Deinit()

	res := filterx.Exec(&c, e, *msg)
	filterx.SyncMessage(&c, msg)
	return res
}

func TestSimple(t *testing.T) {
	msg := logmsg.New()
	defer func() { msg.Unref() }()

	code := `_.set("$likes", "chips"); return true;`
	if res := run(t, NewInterpreter(), code, &msg); res != filterx.Success {
		t.Fatalf("got %s", res)
	}
	s, _, have := msg.GetValue("likes")
	if !have {
		t.Fatalf("nothing liked in %s", testutil.JS(msg))
	}
	if s != "chips" {
		t.Fatalf("didn't want \"%s\"", s)
	}
}

func TestGet(t *testing.T) {
	msg := logmsg.New()
	defer func() { msg.Unref() }()
	msg.SetValue("HOST", "web01", logmsg.TypeString)
	msg.SetValue("count", "3", logmsg.TypeInteger)

	code := `return _.get("$HOST") == "web01" && _.get("$count") + 1 == 4 && _.get("$missing") === null;`
	if res := run(t, NewInterpreter(), code, &msg); res != filterx.Success {
		t.Fatalf("got %s", res)
	}
}

func TestFalsy(t *testing.T) {
	for _, code := range []string{`return 0;`, `return "";`, `return;`, `return false;`} {
		msg := logmsg.New()
		if res := run(t, NewInterpreter(), code, &msg); res != filterx.Failure {
			t.Fatalf("%s: got %s", code, res)
		}
		msg.Unref()
	}
}

func TestTimeout(t *testing.T) {
	logs := testutil.ObserveLogs(t)

	code := `for (;;) { _.sleep(10); }`

	i := NewInterpreter()
	i.Test = true
	i.Timeout = 50 * time.Millisecond

	msg := logmsg.New()
	defer msg.Unref()

	if res := run(t, i, code, &msg); res != filterx.Failure {
		t.Fatalf("got %s", res)
	}
	entries := logs.FilterMessage("FILTERX ERROR").All()
	if len(entries) != 1 {
		t.Fatalf("got %d error logs", len(entries))
	}
	if s := entries[0].ContextMap()["error"]; !strings.HasSuffix(s.(string), InterruptedMessage) {
		t.Fatalf("surprised by \"%s\"", s)
	}
}

func TestError(t *testing.T) {
	code := `likes + tacos; return true;`

	msg := logmsg.New()
	defer msg.Unref()

	if res := run(t, NewInterpreter(), code, &msg); res != filterx.Failure {
		t.Fatalf("didn't protest: %s", res)
	}
}

func TestScriptError(t *testing.T) {
	logs := testutil.ObserveLogs(t)

	msg := logmsg.New()
	defer msg.Unref()

	if res := run(t, NewInterpreter(), `_.error("bad input"); return true;`, &msg); res != filterx.Failure {
		t.Fatalf("got %s", res)
	}
	entries := logs.FilterMessage("FILTERX ERROR").All()
	if len(entries) != 1 {
		t.Fatalf("got %d error logs", len(entries))
	}
	if s := entries[0].ContextMap()["error"]; s != "bad input: raised by script" {
		t.Fatalf("surprised by \"%s\"", s)
	}
}

func TestDropAndDone(t *testing.T) {
	msg := logmsg.New()
	defer msg.Unref()

	if res := run(t, NewInterpreter(), `_.drop(); return true;`, &msg); res != filterx.Drop {
		t.Fatalf("got %s", res)
	}
	if res := run(t, NewInterpreter(), `_.done(); return true;`, &msg); res != filterx.Success {
		t.Fatalf("got %s", res)
	}
}

func TestCronNextGood(t *testing.T) {
	i := NewInterpreter()
	i.Extended = true

	msg := logmsg.New()
	defer func() { msg.Unref() }()

	code := `_.set("$next", _.cronNext("* 0 * * *")); return true;`
	if res := run(t, i, code, &msg); res != filterx.Success {
		t.Fatalf("got %s", res)
	}
	s, _, _ := msg.GetValue("next")
	if _, err := time.Parse(time.RFC3339Nano, s); err != nil {
		t.Fatal(err)
	}
}

func TestCronNextBad(t *testing.T) {
	i := NewInterpreter()
	i.Extended = true

	msg := logmsg.New()
	defer msg.Unref()

	if res := run(t, i, `return _.cronNext("bad");`, &msg); res != filterx.Failure {
		t.Fatalf("didn't protest: %s", res)
	}
}

func TestNotExtended(t *testing.T) {
	msg := logmsg.New()
	defer msg.Unref()

	if res := run(t, NewInterpreter(), `return _.gensym();`, &msg); res != filterx.Failure {
		t.Fatalf("gensym available: %s", res)
	}
}

func TestFloatingVariables(t *testing.T) {
	msg := logmsg.New()
	defer func() { msg.Unref() }()

	code := `_.set("n", 2); _.set("$copy", _.get("n") * 10); return _.vars.n === 2;`
	if res := run(t, NewInterpreter(), code, &msg); res != filterx.Success {
		t.Fatalf("got %s", res)
	}
	if _, _, have := msg.GetValue("n"); have {
		t.Fatal("floating variable written to the message")
	}
	s, typ, _ := msg.GetValue("copy")
	if s != "20" || typ != logmsg.TypeInteger {
		t.Fatalf("copy is %q (%s)", s, typ)
	}
}

func TestSetObject(t *testing.T) {
	msg := logmsg.New()
	defer func() { msg.Unref() }()

	code := `_.set("$doc", {a: {b: 1}, tags: ["x", "y"]}); return true;`
	if res := run(t, NewInterpreter(), code, &msg); res != filterx.Success {
		t.Fatalf("got %s", res)
	}
	s, typ, _ := msg.GetValue("doc")
	if typ != logmsg.TypeJSON {
		t.Fatalf("doc is a %s", typ)
	}
	if !testutil.JSONEqual(s, `{"a":{"b":1},"tags":["x","y"]}`) {
		t.Fatalf("doc is %s", s)
	}
}

func TestUnset(t *testing.T) {
	msg := logmsg.NewWithText("hello")
	defer func() { msg.Unref() }()

	if res := run(t, NewInterpreter(), `return _.unset("$MESSAGE");`, &msg); res != filterx.Success {
		t.Fatalf("got %s", res)
	}
	if _, _, have := msg.GetValue(logmsg.MessageKey); have {
		t.Fatal("MESSAGE survived")
	}
}

func BenchmarkEval(b *testing.B) {
	i := NewInterpreter()
	e, err := i.Compile(context.Background(), `return _.get("$MESSAGE").length > 3;`)
	if err != nil {
		b.Fatal(err)
	}
	defer e.Unref()

	msg := logmsg.NewWithText("hello")
	defer msg.Unref()

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		var c filterx.EvalContext
		c.Init(nil, nil)
		if res := filterx.Exec(&c, e, msg); res != filterx.Success {
			b.Fatal(res)
		}
		c.Deinit()
	}
}
