package bolt

import (
	"path/filepath"
	"testing"

	"github.com/OverOrion/axosyslog/logmsg"
	"github.com/OverOrion/axosyslog/logpipe"
	"github.com/OverOrion/axosyslog/logthrdest"
)

func TestImpl(t *testing.T) {
	// Just confirm that this code compiles.
	var _ logthrdest.Worker = &Worker{}
}

func TestBasics(t *testing.T) {
	s := NewStorage(Options{
		Filename: filepath.Join(t.TempDir(), "archive.db"),
	})

	factory := func(int) (logthrdest.Worker, error) {
		return NewWorker(s), nil
	}
	d := logthrdest.NewDriver("archive", logthrdest.Options{Workers: 2, BatchLines: 10}, factory)
	if !d.Init(nil) {
		t.Fatal("init failed")
	}

	var ids []string
	for _, text := range []string{"a", "b", "c"} {
		msg := logmsg.NewWithText(text)
		msg.SetTag("archived")
		ids = append(ids, msg.RcptID.String())
		d.Queue(msg, &logpipe.PathOptions{})
	}
	d.Deinit()

	if err := s.Open(); err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			t.Fatal(err)
		}
	}()

	n, err := s.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("stored %d records", n)
	}

	r, err := s.Get(ids[1])
	if err != nil {
		t.Fatal(err)
	}
	if r == nil {
		t.Fatal("record missing")
	}
	if r.Values["MESSAGE"] != "b" {
		t.Fatalf("got %#v", r.Values)
	}
	if len(r.Tags) != 1 || r.Tags[0] != "archived" {
		t.Fatalf("got tags %#v", r.Tags)
	}

	if r, err = s.Get("nope"); err != nil || r != nil {
		t.Fatal(r, err)
	}
}

func TestSharedOpen(t *testing.T) {
	s := NewStorage(Options{
		Filename: filepath.Join(t.TempDir(), "archive.db"),
		Bucket:   "logs",
	})
	for i := 0; i < 2; i++ {
		if err := s.Open(); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if s.db == nil {
		t.Fatal("closed while still in use")
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if s.db != nil {
		t.Fatal("still open")
	}
}

func TestOptions(t *testing.T) {
	if _, err := New(map[string]interface{}{}); err == nil {
		t.Fatal("no filename accepted")
	}
	if _, err := New(map[string]interface{}{"filename": "x.db", "timeout": "2s"}); err != nil {
		t.Fatal(err)
	}
}
