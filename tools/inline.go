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
	"os"
	"path/filepath"
	"regexp"

	"github.com/OverOrion/axosyslog/config"
	"github.com/OverOrion/axosyslog/util"

	"go.uber.org/zap"
)

var inline = regexp.MustCompile(`(?s)(.*?)(%inline *\("([^"]*)"\))`)

// Inline replaces '%inline("NAME")' with f(NAME).
func Inline(bs []byte, f func(string) ([]byte, error)) ([]byte, error) {
	i := 0
	acc := make([]byte, 0, len(bs))
	for {
		part := inline.FindSubmatch(bs[i:])
		if part == nil {
			acc = append(acc, bs[i:]...)
			break
		}
		i += len(part[0])
		acc = append(acc, part[1]...)
		replacement, err := f(string(part[3]))
		if err != nil {
			return nil, err
		}
		util.Debug("inlining", zap.ByteString("name", part[3]), zap.Int("bytes", len(replacement)))
		acc = append(acc, replacement...)
	}

	return acc, nil
}

// InlineRules expands '%inline("NAME")' in the string sources of the
// configuration's rules.  Names are relative to the directory of the
// configuration file.
func InlineRules(c *config.Config) error {
	dir := "."
	if c.Filename != "" {
		dir = filepath.Dir(c.Filename)
	}
	read := func(name string) ([]byte, error) {
		if !filepath.IsAbs(name) {
			name = filepath.Join(dir, name)
		}
		return os.ReadFile(name)
	}

	for i := range c.Rules {
		r := &c.Rules[i]
		src, is := r.Source.(string)
		if !is {
			continue
		}
		bs, err := Inline([]byte(src), read)
		if err != nil {
			return fmt.Errorf("rule %s: %w", RuleLabel(i, r), err)
		}
		r.Source = string(bs)
	}
	return nil
}
