package file

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/OverOrion/axosyslog/logmsg"
	"github.com/OverOrion/axosyslog/logpipe"
	"github.com/OverOrion/axosyslog/logthrdest"
	"github.com/OverOrion/axosyslog/util/testutil"
)

func deliver(t *testing.T, opts map[string]interface{}, msgs ...*logmsg.LogMessage) {
	factory, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	d := logthrdest.NewDriver("file", logthrdest.Options{BatchLines: 2}, factory)
	if !d.Init(nil) {
		t.Fatal("init failed")
	}
	for _, msg := range msgs {
		d.Queue(msg, &logpipe.PathOptions{})
	}
	d.Deinit()
}

func TestJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "messages.log")

	a := logmsg.NewWithText("one")
	b := logmsg.NewWithText("two")
	b.SetValue("pid", "7", logmsg.TypeInteger)
	deliver(t, map[string]interface{}{"path": path}, a, b, logmsg.NewWithText("three"))

	bs, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(bs)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), bs)
	}
	if !testutil.JSONEqual(lines[1], `{"MESSAGE":"two","pid":7}`) {
		t.Fatal(lines[1])
	}
}

func TestTemplateToStdout(t *testing.T) {
	var out bytes.Buffer
	defer func(w io.Writer) { Stdout = w }(Stdout)
	Stdout = &out

	msg := logmsg.NewWithText("hello")
	msg.SetValue("HOST", "web1", logmsg.TypeString)
	deliver(t, map[string]interface{}{"path": "-", "template": "$HOST: $MESSAGE"}, msg)

	if got := out.String(); got != "web1: hello\n" {
		t.Fatalf("got %q", got)
	}
}

func TestAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.log")
	opts := map[string]interface{}{"path": path, "template": "$MESSAGE", "sync": true}
	deliver(t, opts, logmsg.NewWithText("a"))
	deliver(t, opts, logmsg.NewWithText("b"))

	bs, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(bs) != "a\nb\n" {
		t.Fatalf("got %q", bs)
	}
}

func TestBadOptions(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("no path accepted")
	}
	if _, err := New(map[string]interface{}{"path": "x", "colour": "red"}); err == nil {
		t.Fatal("unknown option accepted")
	}
}
