package logthrdest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OverOrion/axosyslog/filterx"
	"github.com/OverOrion/axosyslog/logmsg"
	"github.com/OverOrion/axosyslog/logpipe"
	"github.com/OverOrion/axosyslog/util"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

var (
	DefaultQueueSize    = 1000
	DefaultRetriesMax   = 3
	DefaultBatchTimeout = time.Second

	// ErrDropped is reported when a worker gives up on a batch.
	ErrDropped = errors.New("batch dropped by worker")
)

// Options configure a Driver.
type Options struct {
	// Workers is the number of worker goroutines.  At least one.
	Workers int

	// BatchLines is how many messages are collected before a
	// flush.  Zero or one flushes every message.
	BatchLines int

	// BatchTimeout is how long a partial batch may wait.
	BatchTimeout time.Duration

	// RetriesMax is the number of delivery attempts for a batch
	// before it's dropped.
	RetriesMax int

	// QueueSize bounds each worker's input queue.  A full queue
	// blocks Queue.
	QueueSize int

	// Backoff makes the retry backoff.  Nil means an exponential
	// backoff with the library's defaults.
	Backoff func() backoff.BackOff
}

// Stats are a driver's counters.
type Stats struct {
	Queued  uint64
	Written uint64
	Dropped uint64
	Retried uint64
}

// Driver is the pipe in front of a destination.  It syncs each
// message's FilterX scope into the message, hands the message to one
// of its workers and forwards it.
//
// A message handed to a worker carries one pending acknowledgement,
// released once the message has been delivered or dropped.
type Driver struct {
	logpipe.PipeBase
	Name string
	Options

	factory WorkerFactory
	workers []*workerThread
	rr      atomic.Uint64
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	queued, written, dropped, retried atomic.Uint64
}

func NewDriver(name string, opts Options, factory WorkerFactory) *Driver {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.RetriesMax <= 0 {
		opts.RetriesMax = DefaultRetriesMax
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = DefaultBatchTimeout
	}
	return &Driver{Name: name, Options: opts, factory: factory}
}

func (d *Driver) tags() []zap.Field {
	return []zap.Field{zap.String("driver", d.Name), d.LocationTag()}
}

// Init starts the workers.
func (d *Driver) Init(cfg logpipe.GlobalConfig) bool {
	d.PipeBase.Init(cfg)
	if d.Name == "" && cfg != nil {
		d.Name = cfg.RuleName("destination", d.Location())
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())
	for i := 0; i < d.Workers; i++ {
		w, err := d.factory(i)
		if err == nil {
			err = w.Init()
		}
		if err != nil {
			util.Error("Error initializing destination worker",
				append(d.tags(), zap.Int("worker", i), zap.Error(err))...)
			d.Deinit()
			return false
		}
		t := &workerThread{
			d:     d,
			index: i,
			w:     w,
			q:     make(chan item, d.QueueSize),
		}
		d.workers = append(d.workers, t)
		d.wg.Add(1)
		go t.run()
	}
	return true
}

// Deinit stops the workers after they have delivered (or given up
// on) what was queued.
func (d *Driver) Deinit() bool {
	for _, t := range d.workers {
		close(t.q)
	}
	d.wg.Wait()
	for _, t := range d.workers {
		t.w.Deinit()
	}
	d.workers = nil
	if d.cancel != nil {
		d.cancel()
	}
	return true
}

func (d *Driver) Queue(msg *logmsg.LogMessage, po *logpipe.PathOptions) {
	if len(d.workers) == 0 {
		d.Forward(msg, po)
		return
	}

	filterx.SyncMessage(po.FilterXContext, &msg)
	msg.WriteProtect()
	if po.AckNeeded {
		msg.AddAck()
	}

	t := d.workers[d.rr.Add(1)%uint64(len(d.workers))]
	d.queued.Add(1)
	util.Trace("Message queued to destination worker",
		append(d.tags(), zap.Int("worker", t.index), logmsg.EvtTagMsgReference(msg))...)
	t.q <- item{msg: msg.Ref(), ack: po.AckNeeded}

	d.Forward(msg, po)
}

func (d *Driver) Clone() logpipe.Pipe {
	c := NewDriver(d.Name, d.Options, d.factory)
	c.SetLocation(d.Location())
	return c
}

func (d *Driver) Free() {}

func (d *Driver) Stats() Stats {
	return Stats{
		Queued:  d.queued.Load(),
		Written: d.written.Load(),
		Dropped: d.dropped.Load(),
		Retried: d.retried.Load(),
	}
}

func (d *Driver) newBackOff() backoff.BackOff {
	if d.Backoff != nil {
		return d.Backoff()
	}
	return backoff.NewExponentialBackOff()
}

type item struct {
	msg *logmsg.LogMessage
	ack bool
}

type workerThread struct {
	d         *Driver
	index     int
	w         Worker
	q         chan item
	batch     []item
	connected bool
}

func (t *workerThread) tags() []zap.Field {
	return append(t.d.tags(), zap.Int("worker", t.index))
}

func (t *workerThread) run() {
	defer t.d.wg.Done()

	timer := time.NewTimer(t.d.BatchTimeout)
	timer.Stop()
	armed := false

	for {
		select {
		case it, ok := <-t.q:
			if !ok {
				if len(t.batch) > 0 {
					t.flush(FlushExpedite)
				}
				t.disconnect()
				return
			}
			t.insert(it)
			switch {
			case len(t.batch) == 0 && armed:
				timer.Stop()
				armed = false
			case len(t.batch) > 0 && !armed:
				timer.Reset(t.d.BatchTimeout)
				armed = true
			}
		case <-timer.C:
			armed = false
			if len(t.batch) > 0 {
				t.flush(FlushNormal)
			}
		}
	}
}

func (t *workerThread) connect() error {
	if t.connected {
		return nil
	}
	if err := t.w.Connect(t.d.ctx); err != nil {
		return err
	}
	util.Debug("Destination worker connected", t.tags()...)
	t.connected = true
	return nil
}

func (t *workerThread) disconnect() {
	if !t.connected {
		return
	}
	t.w.Disconnect()
	t.connected = false
}

func (t *workerThread) insert(it item) {
	t.batch = append(t.batch, it)
	if err := t.connect(); err != nil {
		util.Debug("Destination worker failed to connect",
			append(t.tags(), zap.Error(err))...)
		t.retry(NotConnected)
		return
	}

	switch r := t.w.Insert(it.msg); r {
	case Queued:
		if len(t.batch) >= t.d.BatchLines {
			t.flush(FlushNormal)
		}
	case Success:
		t.complete(false)
	case Drop:
		t.dropLast()
	default:
		t.retry(r)
	}
}

// dropLast gives up on the message just inserted.
func (t *workerThread) dropLast() {
	it := t.batch[len(t.batch)-1]
	t.batch = t.batch[:len(t.batch)-1]
	util.Debug("Destination worker dropped message",
		append(t.tags(), logmsg.EvtTagMsgReference(it.msg))...)
	t.d.dropped.Add(1)
	if it.ack {
		it.msg.Ack(logmsg.AckProcessed)
	}
	it.msg.Unref()
}

func (t *workerThread) flush(mode FlushMode) {
	if err := t.connect(); err != nil {
		t.retry(NotConnected)
		return
	}
	switch r := t.w.Flush(mode); r {
	case Success, Queued:
		t.complete(false)
	case Drop:
		t.complete(true)
	default:
		t.retry(r)
	}
}

// retry reconnects and sends the whole batch again until it is
// delivered or the attempts run out.
func (t *workerThread) retry(first Result) {
	util.Debug("Destination worker delivery failed, retrying",
		append(t.tags(), zap.Stringer("result", first), zap.Int("batch_size", len(t.batch)))...)

	attempt := func() (Result, error) {
		t.disconnect()
		if err := t.connect(); err != nil {
			return NotConnected, err
		}
		for _, it := range t.batch {
			switch r := t.w.Insert(it.msg); r {
			case Queued, Success:
			case Drop:
				return r, backoff.Permanent(ErrDropped)
			default:
				return r, fmt.Errorf("insert: %s", r)
			}
		}
		switch r := t.w.Flush(FlushExpedite); r {
		case Success, Queued:
			return r, nil
		case Drop:
			return r, backoff.Permanent(ErrDropped)
		default:
			return r, fmt.Errorf("flush: %s", r)
		}
	}

	_, err := backoff.Retry(t.d.ctx, attempt,
		backoff.WithBackOff(t.d.newBackOff()),
		backoff.WithMaxTries(uint(t.d.RetriesMax)),
		backoff.WithNotify(func(err error, next time.Duration) {
			t.d.retried.Add(1)
			util.Debug("Destination worker retrying",
				append(t.tags(), zap.Error(err), zap.Duration("backoff", next))...)
		}))
	if err != nil {
		util.Error("Multiple failures while sending message(s) to destination, message(s) dropped",
			append(t.tags(), zap.Error(err), zap.Int("batch_size", len(t.batch)))...)
		t.disconnect()
		t.complete(true)
		return
	}
	t.complete(false)
}

// complete acknowledges and releases the batch.
func (t *workerThread) complete(dropped bool) {
	n := uint64(len(t.batch))
	if dropped {
		t.d.dropped.Add(n)
	} else {
		t.d.written.Add(n)
	}
	for _, it := range t.batch {
		if it.ack {
			it.msg.Ack(logmsg.AckProcessed)
		}
		it.msg.Unref()
	}
	t.batch = t.batch[:0]
}
