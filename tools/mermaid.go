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

package tools

import (
	"fmt"
	"io"
	"strings"

	"github.com/OverOrion/axosyslog/config"
)

type MermaidOpts struct {
	// ShowInterpreters adds the interpreter to each rule's label.
	ShowInterpreters bool `json:"showInterpreters"`

	// RuleFill is the fill color for rule nodes.
	RuleFill string `json:"ruleFill,omitempty"`

	// DestinationFill is the fill color for destination nodes.
	DestinationFill string `json:"destinationFill,omitempty"`
}

// Mermaid makes a Mermaid (https://mermaidjs.github.io/) flowchart
// of the path messages take through a configuration: from the
// sources through every rule to each destination.
func Mermaid(c *config.Config, w io.Writer, opts *MermaidOpts) error {
	if opts == nil {
		opts = &MermaidOpts{
			ShowInterpreters: true,
			RuleFill:         "#bcf2db",
			DestinationFill:  "#2d93ad",
		}
	}

	fmt.Fprintf(w, "graph LR\n")

	num := 0
	node := func(open, close, label, fill string) string {
		num++
		nid := fmt.Sprintf("n%d", num)
		label = strings.Replace(label, `"`, `'`, -1)
		fmt.Fprintf(w, "  %s%s\"%s\"%s\n", nid, open, label, close)
		if fill != "" {
			fmt.Fprintf(w, "  style %s fill:%s\n", nid, fill)
		}
		return nid
	}

	var from []string
	for i, s := range c.Sources {
		label := s.Name
		if label == "" {
			label = fmt.Sprintf("%s #%d", s.Type, i)
		}
		from = append(from, node("([", "])", label, ""))
	}
	if len(from) == 0 {
		from = append(from, node("([", "])", "input", ""))
	}

	for i := range c.Rules {
		r := &c.Rules[i]
		label := RuleLabel(i, r)
		if opts.ShowInterpreters {
			label += "<br/><i>" + r.InterpreterOf() + "</i>"
		}
		nid := node("[", "]", label, opts.RuleFill)
		for _, f := range from {
			fmt.Fprintf(w, "  %s --> %s\n", f, nid)
		}
		from = []string{nid}
	}

	for i, d := range c.Destinations {
		label := d.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		nid := node("[(", ")]", label+"<br/>"+d.Type, opts.DestinationFill)
		for _, f := range from {
			fmt.Fprintf(w, "  %s --> %s\n", f, nid)
		}
	}

	fmt.Fprintf(w, "\n")
	return nil
}
