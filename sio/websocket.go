/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
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

package sio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/OverOrion/axosyslog/logmsg"
	"github.com/OverOrion/axosyslog/util"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/net/http/httpguts"
	"golang.org/x/net/netutil"
)

var DefaultMaxConns = 64

// WebSocketOptions configure a WebSocketSource.
type WebSocketOptions struct {
	// Listen is the address (host:port) of the HTTP service.
	Listen string `json:"listen"`

	// Path is where clients connect, "/" by default.
	Path string `json:"path,omitempty"`

	// MaxConns limits simultaneous connections.
	MaxConns int `json:"max_conns,omitempty"`

	// Headers maps request headers to the values that get them
	// in every message of the connection.
	Headers map[string]string `json:"headers,omitempty"`
}

// WebSocketSource is an HTTP service that accepts WebSocket
// connections.  Each text or binary frame is one message, decoded
// like a Stdio line.
type WebSocketSource struct {
	WebSocketOptions

	upgrader websocket.Upgrader
	srv      *http.Server
	ln       net.Listener
	out      chan *logmsg.LogMessage
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	sync.Mutex
	stopped bool
	conns   map[*websocket.Conn]struct{}
}

// NewWebSocketSource makes a WebSocketSource from configuration
// options.
func NewWebSocketSource(opts map[string]interface{}) (Source, error) {
	var o WebSocketOptions
	if err := util.DecodeOptions(opts, &o); err != nil {
		return nil, err
	}
	return NewWebSocketSourceWithOptions(o)
}

func NewWebSocketSourceWithOptions(o WebSocketOptions) (*WebSocketSource, error) {
	if o.Listen == "" {
		return nil, errors.New("websocket source needs a listen address")
	}
	if o.Path == "" {
		o.Path = "/"
	}
	if o.MaxConns <= 0 {
		o.MaxConns = DefaultMaxConns
	}
	for h := range o.Headers {
		if !httpguts.ValidHeaderFieldName(h) {
			return nil, fmt.Errorf("invalid header name %q", h)
		}
	}
	s := &WebSocketSource{
		WebSocketOptions: o,
		out:              make(chan *logmsg.LogMessage),
		conns:            make(map[*websocket.Conn]struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

func (s *WebSocketSource) Messages() <-chan *logmsg.LogMessage {
	return s.out
}

// Addr is the address the service listens on once started.
func (s *WebSocketSource) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start creates the HTTP service and starts processing it.
func (s *WebSocketSource) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Listen)
	if err != nil {
		return err
	}
	s.ln = netutil.LimitListener(ln, s.MaxConns)

	mux := http.NewServeMux()
	mux.HandleFunc(s.Path, s.serve)
	s.srv = &http.Server{Handler: mux}

	go func() {
		if err := s.srv.Serve(s.ln); err != nil && err != http.ErrServerClosed {
			util.Error("WebSocket service failed", zap.String("listen", s.Listen), zap.Error(err))
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop(context.Background())
		case <-s.ctx.Done():
		}
	}()

	util.Debug("WebSocket source listening", zap.Stringer("addr", s.ln.Addr()), zap.String("path", s.Path))
	return nil
}

// Stop closes the service and every connection.
func (s *WebSocketSource) Stop(ctx context.Context) error {
	s.Lock()
	if s.stopped {
		s.Unlock()
		return nil
	}
	s.stopped = true
	for c := range s.conns {
		c.Close()
	}
	s.Unlock()

	s.cancel()
	var err error
	if s.srv != nil {
		err = s.srv.Shutdown(ctx)
	}
	s.wg.Wait()
	close(s.out)
	return err
}

func (s *WebSocketSource) serve(w http.ResponseWriter, r *http.Request) {
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}

	s.Lock()
	if s.stopped {
		s.Unlock()
		c.Close()
		return
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	s.Unlock()

	defer func() {
		s.Lock()
		delete(s.conns, c)
		s.Unlock()
		c.Close()
		s.wg.Done()
	}()

	values := make(map[string]string, len(s.Headers))
	for h, name := range s.Headers {
		if v := r.Header.Get(h); v != "" {
			values[name] = v
		}
	}

	peer := c.RemoteAddr().String()
	util.Debug("WebSocket connection", zap.String("peer", peer))

	for {
		_, bs, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && s.ctx.Err() == nil {
				util.Debug("WebSocket read failed", zap.String("peer", peer), zap.Error(err))
			}
			return
		}
		if len(bs) == 0 {
			continue
		}
		msg := logmsg.FromJSON(bs)
		for name, v := range values {
			msg.SetValue(name, v, logmsg.TypeString)
		}
		if !emit(s.ctx, s.out, msg) {
			return
		}
	}
}
