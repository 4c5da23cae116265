// Package file is a destination that appends one line per message to
// a file or to stdout.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/OverOrion/axosyslog/filterx"
	"github.com/OverOrion/axosyslog/logmsg"
	"github.com/OverOrion/axosyslog/logthrdest"
	"github.com/OverOrion/axosyslog/util"

	"go.uber.org/zap"
)

// Options configure the destination.
type Options struct {
	// Path is the file to append to.  "-" is stdout.
	Path string `json:"path"`

	// Template renders each line.  Empty means the message as a
	// JSON object.
	Template string `json:"template,omitempty"`

	// Sync calls fsync after an expedited flush.
	Sync bool `json:"sync,omitempty"`
}

// Stdout is where a "-" path writes.
var Stdout io.Writer = os.Stdout

// New makes the destination's worker factory.
func New(opts map[string]interface{}) (logthrdest.WorkerFactory, error) {
	var o Options
	if err := util.DecodeOptions(opts, &o); err != nil {
		return nil, err
	}
	if o.Path == "" {
		return nil, errors.New("file destination needs a path")
	}
	var tmpl *filterx.Template
	if o.Template != "" {
		tmpl = filterx.NewTemplate(o.Template)
	}
	return func(index int) (logthrdest.Worker, error) {
		return &Worker{Options: o, tmpl: tmpl, index: index}, nil
	}, nil
}

type Worker struct {
	Options
	tmpl  *filterx.Template
	index int

	f   *os.File
	w   io.Writer
	buf bytes.Buffer
}

func (w *Worker) Init() error { return nil }

func (w *Worker) Deinit() {}

func (w *Worker) Connect(ctx context.Context) error {
	if w.Path == "-" {
		w.w = Stdout
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(w.Path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	w.f, w.w = f, f
	return nil
}

func (w *Worker) Disconnect() {
	w.buf.Reset()
	if w.f != nil {
		if err := w.f.Close(); err != nil {
			util.Error("Error closing file destination", zap.String("path", w.Path), zap.Error(err))
		}
		w.f = nil
	}
	w.w = nil
}

func (w *Worker) Insert(msg *logmsg.LogMessage) logthrdest.Result {
	if w.tmpl != nil {
		w.buf.WriteString(w.tmpl.Format(msg))
	} else {
		js, err := json.Marshal(msg)
		if err != nil {
			util.Error("Can't render message as JSON", logmsg.EvtTagMsgReference(msg), zap.Error(err))
			return logthrdest.Drop
		}
		w.buf.Write(js)
	}
	w.buf.WriteByte('\n')
	return logthrdest.Queued
}

func (w *Worker) Flush(mode logthrdest.FlushMode) logthrdest.Result {
	if w.buf.Len() == 0 {
		return logthrdest.Success
	}
	if w.w == nil {
		return logthrdest.NotConnected
	}
	if _, err := w.w.Write(w.buf.Bytes()); err != nil {
		util.Error("Error writing file destination", zap.String("path", w.Path), zap.Error(err))
		return logthrdest.Error
	}
	w.buf.Reset()
	if w.Sync && mode == logthrdest.FlushExpedite && w.f != nil {
		if err := w.f.Sync(); err != nil {
			return logthrdest.Error
		}
	}
	return logthrdest.Success
}
