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

// Package tools has utilities for working with configurations
// outside of a running pipeline: checking them and documenting them.
package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/OverOrion/axosyslog/config"
	"github.com/OverOrion/axosyslog/dest"
	"github.com/OverOrion/axosyslog/interpreters"
)

// ConfigAnalysis is what Analyze found out about a configuration.
type ConfigAnalysis struct {
	Errors []string

	Rules        int
	Sources      int
	Destinations int

	// Undocumented lists the rules without a doc.
	Undocumented []string

	Interpreters     []string
	DestinationTypes []string
}

// Analyze compiles every rule and makes every destination's workers
// factory, noting what fails.  Nothing is started.
func Analyze(ctx context.Context, c *config.Config, is interpreters.Map, ds dest.Map) (*ConfigAnalysis, error) {
	a := ConfigAnalysis{
		Rules:        len(c.Rules),
		Sources:      len(c.Sources),
		Destinations: len(c.Destinations),
		Errors:       make([]string, 0, 8),
	}

	interps, types := make(map[string]bool), make(map[string]bool)
	var undocumented []string

	for i := range c.Rules {
		r := &c.Rules[i]
		label := RuleLabel(i, r)
		interps[r.InterpreterOf()] = true
		if r.Doc == "" {
			undocumented = append(undocumented, label)
		}

		interp, err := is.Find(r.InterpreterOf())
		if err != nil {
			a.Errors = append(a.Errors, fmt.Sprintf("rule %s: %s", label, err))
			continue
		}
		e, err := interp.Compile(ctx, r.Source)
		if err != nil {
			a.Errors = append(a.Errors, fmt.Sprintf("rule %s: %s", label, err))
			continue
		}
		e.Unref()
	}

	for i, d := range c.Destinations {
		types[d.Type] = true
		label := d.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		f, err := ds.Find(d.Type)
		if err == nil {
			_, err = f(d.Options)
		}
		if err != nil {
			a.Errors = append(a.Errors, fmt.Sprintf("destination %s: %s", label, err))
		}
	}

	a.Undocumented = undocumented
	a.Interpreters = keysToStringSlice(interps)
	a.DestinationTypes = keysToStringSlice(types)

	return &a, nil
}

// RuleLabel is the rule's name, or its position for an unnamed rule.
func RuleLabel(i int, r *config.Rule) string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("#%d", i)
}

// keysToStringSlice returns the map's keys sorted.
func keysToStringSlice(m map[string]bool) []string {
	list := make([]string, 0, len(m))
	for key := range m {
		list = append(list, key)
	}
	sort.Strings(list)
	return list
}
