// Package bolt is a destination that archives messages in a BoltDB
// file, keyed by receipt id.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/OverOrion/axosyslog/logmsg"
	"github.com/OverOrion/axosyslog/logthrdest"
	"github.com/OverOrion/axosyslog/util"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var DefaultBucket = "messages"

type Options struct {
	Filename string `json:"filename"`
	Bucket   string `json:"bucket,omitempty"`

	// Timeout bounds the wait for the file lock.
	Timeout util.Duration `json:"timeout,omitempty"`
}

// Record is what's stored for a message.
type Record struct {
	Stamp    time.Time              `json:"stamp"`
	Received time.Time              `json:"received"`
	Tags     []string               `json:"tags,omitempty"`
	Values   map[string]interface{} `json:"values"`
}

// Storage is a BoltDB file shared by the workers of a destination.
type Storage struct {
	Options

	sync.Mutex
	users int
	db    *bolt.DB
}

func NewStorage(o Options) *Storage {
	if o.Bucket == "" {
		o.Bucket = DefaultBucket
	}
	return &Storage{Options: o}
}

// Open opens the file for one more user.
func (s *Storage) Open() error {
	s.Lock()
	defer s.Unlock()
	if s.users == 0 {
		opts := &bolt.Options{
			Timeout: s.Timeout.Or(time.Second),
		}
		db, err := bolt.Open(s.Filename, 0644, opts)
		if err != nil {
			return err
		}
		err = db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists([]byte(s.Bucket))
			return err
		})
		if err != nil {
			db.Close()
			return err
		}
		s.db = db
	}
	s.users++
	return nil
}

// Close closes the file once the last user is gone.
func (s *Storage) Close() error {
	s.Lock()
	defer s.Unlock()
	if s.users == 0 {
		return nil
	}
	if s.users--; s.users > 0 {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Write stores the records in one transaction.
func (s *Storage) Write(vals map[string][]byte) error {
	if len(vals) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(s.Bucket))
		if b == nil {
			return errors.New("bucket " + s.Bucket + " is gone")
		}
		for id, bs := range vals {
			if err := b.Put([]byte(id), bs); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns the record stored for a receipt id.
func (s *Storage) Get(id string) (*Record, error) {
	var r *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		bs := tx.Bucket([]byte(s.Bucket)).Get([]byte(id))
		if bs == nil {
			return nil
		}
		r = &Record{}
		return json.Unmarshal(bs, r)
	})
	return r, err
}

// Count returns the number of stored records.
func (s *Storage) Count() (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(s.Bucket)).Stats().KeyN
		return nil
	})
	return n, err
}

// New makes the destination's worker factory.
func New(opts map[string]interface{}) (logthrdest.WorkerFactory, error) {
	var o Options
	if err := util.DecodeOptions(opts, &o); err != nil {
		return nil, err
	}
	if o.Filename == "" {
		return nil, errors.New("bolt destination needs a filename")
	}
	s := NewStorage(o)
	return func(index int) (logthrdest.Worker, error) {
		return NewWorker(s), nil
	}, nil
}

// Worker collects a batch of records and writes them in one
// transaction.
type Worker struct {
	s       *Storage
	pending map[string][]byte
}

func NewWorker(s *Storage) *Worker {
	return &Worker{s: s}
}

func (w *Worker) Init() error {
	return w.s.Open()
}

func (w *Worker) Deinit() {
	if err := w.s.Close(); err != nil {
		util.Error("Error closing bolt destination", zap.String("filename", w.s.Filename), zap.Error(err))
	}
}

func (w *Worker) Connect(ctx context.Context) error {
	w.pending = make(map[string][]byte, 32)
	return nil
}

func (w *Worker) Disconnect() {
	w.pending = nil
}

func (w *Worker) Insert(msg *logmsg.LogMessage) logthrdest.Result {
	r := Record{
		Stamp:    msg.Stamp,
		Received: msg.Received,
		Tags:     msg.Tags(),
		Values:   msg.Map(),
	}
	js, err := json.Marshal(&r)
	if err != nil {
		util.Error("Can't render message as JSON", logmsg.EvtTagMsgReference(msg), zap.Error(err))
		return logthrdest.Drop
	}
	w.pending[msg.RcptID.String()] = js
	return logthrdest.Queued
}

func (w *Worker) Flush(mode logthrdest.FlushMode) logthrdest.Result {
	if err := w.s.Write(w.pending); err != nil {
		util.Error("Error writing bolt destination", zap.String("filename", w.s.Filename), zap.Error(err))
		return logthrdest.Error
	}
	w.pending = make(map[string][]byte, 32)
	return logthrdest.Success
}
