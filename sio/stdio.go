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

package sio

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/OverOrion/axosyslog/logmsg"
	"github.com/OverOrion/axosyslog/util"

	"go.uber.org/zap"
)

// Stdio is a fairly simple Source that reads one message per line.
//
// A line holding a JSON object becomes one value per property.  Any
// other line becomes the MESSAGE value.  Blank lines are skipped, and
// so are lines starting with '#' unless Raw is set.  A line "quit"
// ends the input.
type Stdio struct {
	// In is the input, os.Stdin by default.
	In io.Reader

	// Raw takes every line as message text without looking for
	// JSON.
	Raw bool

	// ShellExpand enables input to include inline shell commands
	// delimited by '<<' and '>>'.  Use at your own risk, of
	// course!
	ShellExpand bool

	out    chan *logmsg.LogMessage
	cancel context.CancelFunc
}

// StdioOptions are the configuration options of a stdio source.
type StdioOptions struct {
	Raw         bool `json:"raw,omitempty"`
	ShellExpand bool `json:"shell_expand,omitempty"`
}

// NewStdio creates a new Stdio reading from in.
func NewStdio(in io.Reader) *Stdio {
	if in == nil {
		in = os.Stdin
	}
	return &Stdio{
		In:  in,
		out: make(chan *logmsg.LogMessage),
	}
}

// NewStdioFromOptions makes a Stdio reading os.Stdin.
func NewStdioFromOptions(opts map[string]interface{}) (Source, error) {
	var o StdioOptions
	if err := util.DecodeOptions(opts, &o); err != nil {
		return nil, err
	}
	s := NewStdio(nil)
	s.Raw = o.Raw
	s.ShellExpand = o.ShellExpand
	return s, nil
}

func (s *Stdio) Messages() <-chan *logmsg.LogMessage {
	return s.out
}

// Start starts reading.
func (s *Stdio) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.read(ctx)
	return nil
}

// Stop stops forwarding lines.  A read that is blocked on the input
// isn't interrupted; the channel is closed once it returns.
func (s *Stdio) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *Stdio) read(ctx context.Context) {
	defer close(s.out)

	in := bufio.NewReader(s.In)
	for {
		if ctx.Err() != nil {
			return
		}
		line, err := in.ReadString('\n')
		if err != nil && err != io.EOF {
			util.Error("stdin error", zap.Error(err))
			return
		}
		eof := err == io.EOF

		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "quit":
			return
		case trimmed == "":
		case strings.HasPrefix(trimmed, "#") && !s.Raw:
		default:
			if s.ShellExpand {
				if line, err = ShellExpand(line); err != nil {
					util.Error("stdin shell expansion failed", zap.Error(err))
					break
				}
			}
			var msg *logmsg.LogMessage
			if s.Raw {
				msg = logmsg.NewWithText(strings.TrimRight(line, "\r\n"))
			} else {
				msg = logmsg.FromJSON([]byte(line))
			}
			if !emit(ctx, s.out, msg) {
				return
			}
		}

		if eof {
			util.Debug("stdio input done")
			return
		}
	}
}

var shell = regexp.MustCompile(`<<(.*?)>>`)

// ShellExpand expands shell commands delimited by '<<' and '>>'.
func ShellExpand(msg string) (string, error) {
	literals := shell.Split(msg, -1)
	ss := shell.FindAllStringSubmatch(msg, -1)
	acc := literals[0]
	for i, s := range ss {
		sh := s[1]
		cmd := exec.Command("bash", "-c", sh)
		var out bytes.Buffer
		cmd.Stdout = &out
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("shell error %s on %s", err, sh)
		}
		acc += strings.TrimRight(out.String(), "\n")
		acc += literals[i+1]
	}
	return acc, nil
}
