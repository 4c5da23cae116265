/* Copyright 2018 Comcast Cable Communications Management, LLC
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

// Package config reads the YAML (or JSON) document that describes a
// pipeline: where messages come from, which rules they go through
// and where they end up.
//
//	workers: 4
//	rules:
//	  - name: sshd-only
//	    source: |
//	      $PROGRAM == "sshd"
//	      $.meta.seen = true
//	destinations:
//	  - type: file
//	    options: {path: /var/log/sshd.json}
package config

import (
	"fmt"
	"sync"

	"github.com/OverOrion/axosyslog/filterx"
	"github.com/OverOrion/axosyslog/util"
)

// DefaultInterpreter compiles rules that don't name one.
var DefaultInterpreter = "native"

// Config is a parsed configuration.
type Config struct {
	Workers      int           `json:"workers,omitempty"`
	Log          Log           `json:"log,omitempty"`
	Sources      []Source      `json:"sources,omitempty"`
	Rules        []Rule        `json:"rules"`
	Destinations []Destination `json:"destinations,omitempty"`

	// Filename is where the configuration was read from, if
	// anywhere.
	Filename string `json:"-"`

	sync.Mutex
	anon map[string]int
}

type Log struct {
	Debug bool `json:"debug,omitempty"`
	Trace bool `json:"trace,omitempty"`
}

type Source struct {
	Name    string                 `json:"name,omitempty"`
	Type    string                 `json:"type"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// Rule is a FilterX block.
type Rule struct {
	Name        string `json:"name,omitempty"`
	Interpreter string `json:"interpreter,omitempty"`

	// Doc is Markdown documentation for the rule.
	Doc string `json:"doc,omitempty"`

	// Source is usually a string, but interpreters may accept
	// other things.
	Source interface{} `json:"source"`
}

// Destination describes a threaded destination.
type Destination struct {
	Name    string                 `json:"name,omitempty"`
	Type    string                 `json:"type"`
	Options map[string]interface{} `json:"options,omitempty"`

	Workers      int           `json:"workers,omitempty"`
	BatchLines   int           `json:"batch_lines,omitempty"`
	BatchTimeout util.Duration `json:"batch_timeout,omitempty"`
	RetriesMax   int           `json:"retries_max,omitempty"`
	QueueSize    int           `json:"queue_size,omitempty"`
}

// RuleName makes a name for an unnamed rule.  Names are "#anon-"
// followed by the kind and a per-kind counter.
func (c *Config) RuleName(kind string, loc filterx.Location) string {
	c.Lock()
	defer c.Unlock()
	if c.anon == nil {
		c.anon = make(map[string]int)
	}
	n := c.anon[kind]
	c.anon[kind]++
	return fmt.Sprintf("#anon-%s%d", kind, n)
}

// Location names a part of this configuration.
func (c *Config) Location(what string) filterx.Location {
	file := c.Filename
	if file == "" {
		file = "config"
	}
	return filterx.Location{File: file, Text: what}
}

// InterpreterOf returns the name of the rule's interpreter.
func (r *Rule) InterpreterOf() string {
	if r.Interpreter == "" {
		return DefaultInterpreter
	}
	return r.Interpreter
}
