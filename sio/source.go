/* Copyright 2019 Comcast Cable Communications Management, LLC
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

// Package sio provides the sources that feed messages into a
// pipeline.
package sio

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/OverOrion/axosyslog/logmsg"
)

// Source produces messages.
//
// For example, an implementation could read JSON lines from stdin or
// subscribe to an MQTT broker.
type Source interface {
	// Start begins producing messages.
	Start(context.Context) error

	// Messages returns the channel that Start feeds.  The channel
	// is closed when the source has no more messages: after Stop,
	// or when its input ends.
	//
	// Each message received carries one reference, which the
	// receiver owns.
	Messages() <-chan *logmsg.LogMessage

	// Stop shuts down the source.
	Stop(context.Context) error
}

// Factory makes a source from the options given in the
// configuration.
type Factory func(opts map[string]interface{}) (Source, error)

// Map maps source types to factories.
type Map map[string]Factory

// Find returns the factory for the given type.
func (m Map) Find(typ string) (Factory, error) {
	if f, have := m[typ]; have {
		return f, nil
	}
	return nil, fmt.Errorf("unknown source type %q", typ)
}

// Types lists the known types.
func (m Map) Types() []string {
	acc := make([]string, 0, len(m))
	for t := range m {
		acc = append(acc, t)
	}
	sort.Strings(acc)
	return acc
}

// Standard returns the built-in sources.
func Standard() Map {
	return Map{
		"stdio":     NewStdioFromOptions,
		"mqtt":      NewMQTTSource,
		"websocket": NewWebSocketSource,
	}
}

// Merge forwards the messages of all the given channels to the
// returned one, which is closed once they are all closed.
func Merge(ctx context.Context, ins ...<-chan *logmsg.LogMessage) <-chan *logmsg.LogMessage {
	out := make(chan *logmsg.LogMessage)
	var wg sync.WaitGroup
	for _, in := range ins {
		wg.Add(1)
		go func(in <-chan *logmsg.LogMessage) {
			defer wg.Done()
			for msg := range in {
				select {
				case <-ctx.Done():
					msg.Unref()
				case out <- msg:
				}
			}
		}(in)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// emit hands msg to out unless ctx is done first, in which case the
// message is released.
func emit(ctx context.Context, out chan<- *logmsg.LogMessage, msg *logmsg.LogMessage) bool {
	select {
	case <-ctx.Done():
		msg.Unref()
		return false
	case out <- msg:
		return true
	}
}
