// Package dest collects the destinations a configuration can name.
package dest

import (
	"fmt"
	"sort"

	"github.com/OverOrion/axosyslog/dest/bolt"
	"github.com/OverOrion/axosyslog/dest/file"
	"github.com/OverOrion/axosyslog/dest/loki"
	"github.com/OverOrion/axosyslog/dest/sqlite"
	"github.com/OverOrion/axosyslog/logthrdest"
)

// Factory makes the worker factory of a destination from the options
// given in the configuration.
type Factory func(opts map[string]interface{}) (logthrdest.WorkerFactory, error)

// Map maps destination types to factories.
type Map map[string]Factory

// Find returns the factory for the given type.
func (m Map) Find(typ string) (Factory, error) {
	if f, have := m[typ]; have {
		return f, nil
	}
	return nil, fmt.Errorf("unknown destination type %q", typ)
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

// Standard returns the built-in destinations.
func Standard() Map {
	return Map{
		"file":   file.New,
		"bolt":   bolt.New,
		"sqlite": sqlite.New,
		"loki":   loki.New,
	}
}
