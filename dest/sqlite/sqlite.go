// Package sqlite is a destination that inserts messages into an
// SQLite table, one transaction per batch.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/OverOrion/axosyslog/filterx"
	"github.com/OverOrion/axosyslog/logmsg"
	"github.com/OverOrion/axosyslog/logthrdest"
	"github.com/OverOrion/axosyslog/util"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var DefaultTable = "messages"

// Options configure the destination.
type Options struct {
	// Filename is the database file.
	Filename string `json:"filename"`

	Table string `json:"table,omitempty"`

	// Columns are extra TEXT columns filled from templates.
	Columns map[string]string `json:"columns,omitempty"`

	// BusyTimeout is how long to wait for a locked database.
	BusyTimeout util.Duration `json:"busy_timeout,omitempty"`
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// fixed are the columns every table has.
var fixed = []string{"rcptid", "stamp", "received", "message", "payload"}

type column struct {
	name string
	tmpl *filterx.Template
}

// New makes the destination's worker factory.
func New(opts map[string]interface{}) (logthrdest.WorkerFactory, error) {
	var o Options
	if err := util.DecodeOptions(opts, &o); err != nil {
		return nil, err
	}
	if o.Filename == "" {
		return nil, errors.New("sqlite destination needs a filename")
	}
	if o.Table == "" {
		o.Table = DefaultTable
	}
	if !identifier.MatchString(o.Table) {
		return nil, fmt.Errorf("bad table name %q", o.Table)
	}

	names := make([]string, 0, len(o.Columns))
	for name := range o.Columns {
		if !identifier.MatchString(name) {
			return nil, fmt.Errorf("bad column name %q", name)
		}
		for _, f := range fixed {
			if strings.EqualFold(name, f) {
				return nil, fmt.Errorf("column %q is reserved", name)
			}
		}
		names = append(names, name)
	}
	sort.Strings(names)
	cols := make([]column, 0, len(names))
	for _, name := range names {
		cols = append(cols, column{name: name, tmpl: filterx.NewTemplate(o.Columns[name])})
	}

	return func(index int) (logthrdest.Worker, error) {
		return &Worker{Options: o, cols: cols}, nil
	}, nil
}

// Worker owns a connection to the database.
type Worker struct {
	Options
	cols []column

	db   *sql.DB
	rows [][]interface{}
}

func (w *Worker) dsn() string {
	ms := w.BusyTimeout.Or(5*time.Second) / time.Millisecond
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", w.Filename, ms)
}

func (w *Worker) columns() []string {
	acc := append([]string{}, fixed...)
	for _, c := range w.cols {
		acc = append(acc, c.name)
	}
	return acc
}

func (w *Worker) createTable() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (rcptid TEXT PRIMARY KEY, stamp TEXT, received TEXT, message TEXT, payload TEXT", w.Table)
	for _, c := range w.cols {
		fmt.Fprintf(&b, ", %s TEXT", c.name)
	}
	b.WriteString(")")
	return b.String()
}

func (w *Worker) insertStmt() string {
	cols := w.columns()
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)", w.Table, strings.Join(cols, ", "), marks)
}

func (w *Worker) Init() error { return nil }

func (w *Worker) Deinit() {}

func (w *Worker) Connect(ctx context.Context) error {
	db, err := sql.Open("sqlite", w.dsn())
	if err != nil {
		return err
	}
	if err = db.PingContext(ctx); err == nil {
		_, err = db.ExecContext(ctx, w.createTable())
	}
	if err != nil {
		db.Close()
		return err
	}
	w.db = db
	return nil
}

func (w *Worker) Disconnect() {
	w.rows = nil
	if w.db == nil {
		return
	}
	if err := w.db.Close(); err != nil {
		util.Error("Error closing sqlite destination", zap.String("filename", w.Filename), zap.Error(err))
	}
	w.db = nil
}

func (w *Worker) Insert(msg *logmsg.LogMessage) logthrdest.Result {
	payload, err := json.Marshal(msg)
	if err != nil {
		util.Error("Can't render message as JSON", logmsg.EvtTagMsgReference(msg), zap.Error(err))
		return logthrdest.Drop
	}
	text, _, _ := msg.GetValue(logmsg.MessageKey)
	row := []interface{}{
		msg.RcptID.String(),
		msg.Stamp.Format(time.RFC3339Nano),
		msg.Received.Format(time.RFC3339Nano),
		text,
		string(payload),
	}
	for _, c := range w.cols {
		row = append(row, c.tmpl.Format(msg))
	}
	w.rows = append(w.rows, row)
	return logthrdest.Queued
}

func (w *Worker) Flush(mode logthrdest.FlushMode) logthrdest.Result {
	if len(w.rows) == 0 {
		return logthrdest.Success
	}
	if w.db == nil {
		return logthrdest.NotConnected
	}
	if err := w.write(); err != nil {
		util.Error("Error inserting into sqlite destination",
			zap.String("filename", w.Filename),
			zap.String("table", w.Table),
			zap.Int("batch_size", len(w.rows)),
			zap.Error(err))
		return logthrdest.Error
	}
	w.rows = w.rows[:0]
	return logthrdest.Success
}

func (w *Worker) write() error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(w.insertStmt())
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, row := range w.rows {
		if _, err := stmt.Exec(row...); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
