package sio

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/OverOrion/axosyslog/logmsg"

	"github.com/gorilla/websocket"
)

func collect(t *testing.T, ch <-chan *logmsg.LogMessage) []map[string]interface{} {
	var acc []map[string]interface{}
	to := time.After(5 * time.Second)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return acc
			}
			acc = append(acc, msg.Map())
			msg.Unref()
		case <-to:
			t.Fatal("timeout")
		}
	}
}

func TestStandard(t *testing.T) {
	if got, want := Standard().Types(), []string{"mqtt", "stdio", "websocket"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v", got)
	}
	if _, err := Standard().Find("carrier-pigeon"); err == nil {
		t.Fatal("found a pigeon")
	}
}

func TestStdio(t *testing.T) {
	in := `{"PROGRAM":"sshd","pid":42}

# a comment
plain text
quit
{"after":"quit"}
`
	s := NewStdio(strings.NewReader(in))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := collect(t, s.Messages())
	want := []map[string]interface{}{
		{"PROGRAM": "sshd", "pid": int64(42)},
		{"MESSAGE": "plain text"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v", got)
	}
}

func TestStdioRaw(t *testing.T) {
	s := NewStdio(strings.NewReader("# not a comment\n{\"json\":true}"))
	s.Raw = true
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := collect(t, s.Messages())
	want := []map[string]interface{}{
		{"MESSAGE": "# not a comment"},
		{"MESSAGE": `{"json":true}`},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v", got)
	}
}

func TestStdioStop(t *testing.T) {
	s := NewStdio(strings.NewReader("one\ntwo\n"))
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	// Whatever was read before the cancellation may or may not
	// arrive, but the channel must be closed.
	collect(t, s.Messages())
}

func TestStdioOptions(t *testing.T) {
	src, err := NewStdioFromOptions(map[string]interface{}{"raw": true})
	if err != nil {
		t.Fatal(err)
	}
	if !src.(*Stdio).Raw {
		t.Fatal("not raw")
	}
	if _, err = NewStdioFromOptions(map[string]interface{}{"cooked": true}); err == nil {
		t.Fatal("accepted unknown option")
	}
}

func TestShellExpand(t *testing.T) {
	got, err := ShellExpand(`{"n":<<echo 42>>}`)
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"n":42}` {
		t.Fatalf("got %q", got)
	}
	if _, err = ShellExpand(`<<exit 1>>`); err == nil {
		t.Fatal("expected an error")
	}
}

func TestParseTopic(t *testing.T) {
	tests := []struct {
		in    string
		topic string
		qos   byte
	}{
		{"logs", "logs", 0},
		{"logs/#:1", "logs/#", 1},
		{" logs/+/sshd:2 ", "logs/+/sshd", 2},
		{"weird:topic", "weird:topic", 0},
		{"logs:7", "logs:7", 0},
	}
	for _, tt := range tests {
		topic, qos := parseTopic(tt.in)
		if topic != tt.topic || qos != tt.qos {
			t.Errorf("%q: got %q %d", tt.in, topic, qos)
		}
	}
}

type mqttMessage struct {
	topic   string
	payload []byte
}

func (m *mqttMessage) Duplicate() bool   { return false }
func (m *mqttMessage) Qos() byte         { return 0 }
func (m *mqttMessage) Retained() bool    { return false }
func (m *mqttMessage) Topic() string     { return m.topic }
func (m *mqttMessage) MessageID() uint16 { return 1 }
func (m *mqttMessage) Payload() []byte   { return m.payload }
func (m *mqttMessage) Ack()              {}

func TestMQTTHandle(t *testing.T) {
	s, err := NewMQTTSourceWithOptions(MQTTOptions{
		Broker:      "tcp://localhost:1883",
		Topics:      []string{"logs/#:1"},
		InjectTopic: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		s.handle(&mqttMessage{topic: "logs/web1", payload: []byte(`{"HOST":"web1"}`)})
		s.handle(&mqttMessage{topic: "logs/web2", payload: []byte(`kernel panic`)})
		s.Stop(context.Background())
	}()

	got := collect(t, s.Messages())
	want := []map[string]interface{}{
		{"HOST": "web1", TopicKey: "logs/web1"},
		{"MESSAGE": "kernel panic", TopicKey: "logs/web2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v", got)
	}

	// After Stop, messages are ignored.
	s.handle(&mqttMessage{topic: "logs/late", payload: []byte("late")})
}

func TestMQTTOptions(t *testing.T) {
	if _, err := NewMQTTSource(map[string]interface{}{"topics": []interface{}{"x"}}); err == nil {
		t.Fatal("accepted no broker")
	}
	if _, err := NewMQTTSource(map[string]interface{}{"broker": "tcp://localhost:1883"}); err == nil {
		t.Fatal("accepted no topics")
	}
	if _, err := NewMQTTSource(map[string]interface{}{
		"broker": "tcp://localhost:1883",
		"topics": []interface{}{"x"},
		"cafile": "/no/such/file.pem",
	}); err == nil {
		t.Fatal("accepted a missing CA file")
	}
}

func TestWebSocket(t *testing.T) {
	s, err := NewWebSocketSourceWithOptions(WebSocketOptions{
		Listen:  "127.0.0.1:0",
		Path:    "/logs",
		Headers: map[string]string{"X-Tenant": "TENANT"},
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err = s.Start(ctx); err != nil {
		t.Fatal(err)
	}

	h := http.Header{}
	h.Set("X-Tenant", "acme")
	c, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr().String()+"/logs", h)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err = c.WriteMessage(websocket.TextMessage, []byte(`{"PROGRAM":"sshd"}`)); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-s.Messages():
		want := map[string]interface{}{"PROGRAM": "sshd", "TENANT": "acme"}
		if got := msg.Map(); !reflect.DeepEqual(got, want) {
			t.Fatalf("got %#v", got)
		}
		msg.Unref()
	case <-time.After(5 * time.Second):
		t.Fatal("timeout")
	}

	if err = s.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := collect(t, s.Messages()); len(got) != 0 {
		t.Fatalf("got %#v", got)
	}
}

func TestWebSocketBadHeader(t *testing.T) {
	_, err := NewWebSocketSourceWithOptions(WebSocketOptions{
		Listen:  "127.0.0.1:0",
		Headers: map[string]string{"Bad Header": "X"},
	})
	if err == nil {
		t.Fatal("accepted a bad header name")
	}
}

func TestMerge(t *testing.T) {
	a := make(chan *logmsg.LogMessage)
	b := make(chan *logmsg.LogMessage)
	out := Merge(context.Background(), a, b)

	go func() {
		a <- logmsg.NewWithText("a")
		close(a)
	}()
	go func() {
		b <- logmsg.NewWithText("b")
		close(b)
	}()

	got := collect(t, out)
	if len(got) != 2 {
		t.Fatalf("got %#v", got)
	}
}
