// Package loki is a destination that pushes messages to Grafana Loki
// over gRPC.
//
// Messages are grouped into streams by their rendered label set.  A
// flush sends every stream of the batch in one PushRequest.
package loki

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/OverOrion/axosyslog/filterx"
	"github.com/OverOrion/axosyslog/logmsg"
	"github.com/OverOrion/axosyslog/logthrdest"
	"github.com/OverOrion/axosyslog/util"

	"github.com/jhump/protoreflect/dynamic"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var (
	DefaultConnectTimeout = 10 * time.Second
	DefaultTimeout        = 10 * time.Second
	DefaultTemplate       = "$MESSAGE"
	DefaultLabels         = map[string]string{"app": "$PROGRAM"}
)

// Options configure the destination.
type Options struct {
	// URL is the gRPC target, for example "localhost:9096".
	URL string `json:"url"`

	// Labels map label names to templates.
	Labels map[string]string `json:"labels,omitempty"`

	// Template renders the log line.
	Template string `json:"template,omitempty"`

	// Timestamp selects the entry time: "current" (default),
	// "received" or "msg".
	Timestamp string `json:"timestamp,omitempty"`

	TenantID string `json:"tenant_id,omitempty"`

	KeepaliveTime    util.Duration `json:"keepalive_time,omitempty"`
	KeepaliveTimeout util.Duration `json:"keepalive_timeout,omitempty"`

	// ConnectTimeout bounds the wait for the channel to be ready.
	ConnectTimeout util.Duration `json:"connect_timeout,omitempty"`

	// Timeout bounds a push.
	Timeout util.Duration `json:"timeout,omitempty"`
}

type label struct {
	name string
	tmpl *filterx.Template
}

type destination struct {
	Options
	labels []label
	line   *filterx.Template
	stamp  func(*logmsg.LogMessage) time.Time
	descs  *Descriptors
}

// New makes the destination's worker factory.
func New(opts map[string]interface{}) (logthrdest.WorkerFactory, error) {
	var o Options
	if err := util.DecodeOptions(opts, &o); err != nil {
		return nil, err
	}
	d, err := newDestination(o)
	if err != nil {
		return nil, err
	}
	return func(index int) (logthrdest.Worker, error) {
		return &Worker{d: d, index: index}, nil
	}, nil
}

func newDestination(o Options) (*destination, error) {
	if o.URL == "" {
		return nil, errors.New("loki destination needs a url")
	}
	descs, err := PushDescriptors()
	if err != nil {
		return nil, err
	}
	if o.Template == "" {
		o.Template = DefaultTemplate
	}
	d := &destination{Options: o, descs: descs}
	d.line = filterx.NewTemplate(o.Template)

	labels := o.Labels
	if len(labels) == 0 {
		labels = DefaultLabels
	}
	for name, src := range labels {
		d.labels = append(d.labels, label{name: name, tmpl: filterx.NewTemplate(src)})
	}
	sort.Slice(d.labels, func(i, j int) bool {
		return d.labels[i].name < d.labels[j].name
	})

	switch o.Timestamp {
	case "", "current":
		d.stamp = func(*logmsg.LogMessage) time.Time { return time.Now() }
	case "received":
		d.stamp = func(m *logmsg.LogMessage) time.Time { return m.Received }
	case "msg":
		d.stamp = func(m *logmsg.LogMessage) time.Time { return m.Stamp }
	default:
		return nil, fmt.Errorf("bad timestamp %q (want current, received or msg)", o.Timestamp)
	}
	return d, nil
}

// FormatLabels renders msg's label set the way Loki writes it.
func (d *destination) FormatLabels(msg *logmsg.LogMessage) string {
	var b strings.Builder
	b.WriteByte('{')
	n := 0
	for _, l := range d.labels {
		v := l.tmpl.Format(msg)
		if v == "" {
			continue
		}
		if n > 0 {
			b.WriteString(", ")
		}
		b.WriteString(l.name)
		b.WriteByte('=')
		b.WriteString(strconv.Quote(v))
		n++
	}
	b.WriteByte('}')
	return b.String()
}

// Worker holds a gRPC channel to Loki and the batch being built.
type Worker struct {
	d     *destination
	index int
	conn  *grpc.ClientConn

	streams map[string]*dynamic.Message
	order   []string
	size    int
}

func (w *Worker) tags() []zap.Field {
	return []zap.Field{zap.String("url", w.d.URL), zap.Int("worker", w.index)}
}

func (w *Worker) Init() error {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if w.d.KeepaliveTime > 0 {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                time.Duration(w.d.KeepaliveTime),
			Timeout:             time.Duration(w.d.KeepaliveTimeout),
			PermitWithoutStream: true,
		}))
	}
	conn, err := grpc.NewClient(w.d.URL, opts...)
	if err != nil {
		return fmt.Errorf("error creating Loki gRPC channel: %w", err)
	}
	w.conn = conn
	w.reset()
	return nil
}

func (w *Worker) Deinit() {
	if w.conn == nil {
		return
	}
	if err := w.conn.Close(); err != nil {
		util.Debug("Error closing Loki gRPC channel", append(w.tags(), zap.Error(err))...)
	}
	w.conn = nil
}

// Connect waits for the channel to become ready.
func (w *Worker) Connect(ctx context.Context) error {
	util.Debug("Connecting to Loki", w.tags()...)

	ctx, cancel := context.WithTimeout(ctx, w.d.ConnectTimeout.Or(DefaultConnectTimeout))
	defer cancel()

	w.conn.Connect()
	for {
		s := w.conn.GetState()
		if s == connectivity.Ready {
			return nil
		}
		if !w.conn.WaitForStateChange(ctx, s) {
			return fmt.Errorf("loki at %s not ready: %s", w.d.URL, s)
		}
	}
}

// Disconnect forgets the batch.  The channel reconnects by itself.
func (w *Worker) Disconnect() {
	w.reset()
}

func (w *Worker) reset() {
	w.streams = make(map[string]*dynamic.Message)
	w.order = w.order[:0]
	w.size = 0
}

func (w *Worker) Insert(msg *logmsg.LogMessage) logthrdest.Result {
	labels := w.d.FormatLabels(msg)
	s, have := w.streams[labels]
	if !have {
		s = dynamic.NewMessage(w.d.descs.Stream)
		s.SetFieldByName("labels", labels)
		w.streams[labels] = s
		w.order = append(w.order, labels)
	}

	t := w.d.stamp(msg)
	ts := dynamic.NewMessage(w.d.descs.Entry.FindFieldByName("timestamp").GetMessageType())
	ts.SetFieldByName("seconds", t.Unix())
	ts.SetFieldByName("nanos", int32(t.Nanosecond()))

	e := dynamic.NewMessage(w.d.descs.Entry)
	e.SetFieldByName("timestamp", ts)
	e.SetFieldByName("line", w.d.line.Format(msg))
	s.AddRepeatedFieldByName("entries", e)
	w.size++

	util.Trace("Message added to Loki batch",
		append(w.tags(), zap.String("labels", labels), logmsg.EvtTagMsgReference(msg))...)
	return logthrdest.Queued
}

func (w *Worker) Flush(mode logthrdest.FlushMode) logthrdest.Result {
	if w.size == 0 {
		return logthrdest.Success
	}

	req := dynamic.NewMessage(w.d.descs.PushRequest)
	for _, labels := range w.order {
		req.AddRepeatedFieldByName("streams", w.streams[labels])
	}
	resp := dynamic.NewMessage(w.d.descs.PushResponse)

	ctx, cancel := context.WithTimeout(context.Background(), w.d.Timeout.Or(DefaultTimeout))
	defer cancel()
	if w.d.TenantID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "X-Scope-OrgID", w.d.TenantID)
	}

	if err := w.conn.Invoke(ctx, PushMethod, req, resp); err != nil {
		r := ResultFor(err)
		util.Error("Error sending Loki batch",
			append(w.tags(), zap.Int("batch_size", w.size), zap.Stringer("result", r), zap.Error(err))...)
		if r == logthrdest.Drop {
			w.reset()
		}
		return r
	}

	util.Debug("Loki batch delivered", append(w.tags(), zap.Int("batch_size", w.size))...)
	w.reset()
	return logthrdest.Success
}

// ResultFor maps a push failure to what the driver should do about
// it.
func ResultFor(err error) logthrdest.Result {
	switch status.Code(err) {
	case codes.OK:
		return logthrdest.Success
	case codes.Unavailable, codes.Canceled, codes.DeadlineExceeded, codes.Aborted:
		return logthrdest.NotConnected
	case codes.ResourceExhausted, codes.OutOfRange, codes.DataLoss:
		return logthrdest.Error
	default:
		return logthrdest.Drop
	}
}
