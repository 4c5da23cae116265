// Package logthrdest runs destinations on worker goroutines that
// batch messages and retry failed deliveries.
package logthrdest

import (
	"context"

	"github.com/OverOrion/axosyslog/logmsg"
)

// Result is the outcome of an Insert or a Flush.
type Result int

const (
	// Success means everything inserted so far has been delivered.
	Success Result = iota

	// Queued means the message was added to the current batch.
	Queued

	// Drop means the message (or batch) can never be delivered.
	Drop

	// Error is a failure that may go away after reconnecting.
	Error

	// Retry asks for the batch to be sent again.
	Retry

	// NotConnected means the worker lost its connection.
	NotConnected
)

var resultNames = [...]string{"success", "queued", "drop", "error", "retry", "not-connected"}

func (r Result) String() string {
	if r < 0 || int(r) >= len(resultNames) {
		return "unknown"
	}
	return resultNames[r]
}

// FlushMode says how hard a Flush should try.
type FlushMode int

const (
	FlushNormal FlushMode = iota

	// FlushExpedite is used when retrying and at shutdown.
	FlushExpedite
)

// Worker delivers messages to one destination connection.  All calls
// to a Worker come from one goroutine.
//
// Init and Deinit bracket the worker's life.  Connect must give up
// after a bounded wait rather than block.  Disconnect also discards
// the batch being built; the driver inserts the messages again when
// it retries.
type Worker interface {
	Init() error
	Deinit()
	Connect(ctx context.Context) error
	Disconnect()
	Insert(msg *logmsg.LogMessage) Result
	Flush(mode FlushMode) Result
}

// WorkerFactory makes the worker with the given index.
type WorkerFactory func(index int) (Worker, error)
