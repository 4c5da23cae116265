package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/jsccast/yaml"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schema []byte

// RelativePath is where the configuration lives below an XDG config
// directory.
var RelativePath = filepath.Join("axosyslog", "fx.yaml")

// ErrNoConfig is returned by Find when no configuration file exists.
var ErrNoConfig = errors.New("no configuration file found")

// Duplicate occurs when two parts of a configuration have the same
// name.
type Duplicate struct {
	Kind string
	Name string
}

func (e *Duplicate) Error() string {
	return e.Kind + ` "` + e.Name + `" defined more than once`
}

// DefaultPath is the configuration in the user's XDG config home.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, RelativePath)
}

// Find looks for the configuration in the XDG config directories.
func Find() (string, error) {
	path, err := xdg.SearchConfigFile(RelativePath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoConfig, err)
	}
	return path, nil
}

// Load reads and parses a configuration file.  An empty filename
// means Find.
func Load(filename string) (*Config, error) {
	if filename == "" {
		var err error
		if filename, err = Find(); err != nil {
			return nil, err
		}
	}
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	c, err := Parse(bs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	c.Filename = filename
	return c, nil
}

// Parse parses a YAML (or JSON) configuration and checks it against
// the configuration schema.
func Parse(bs []byte) (*Config, error) {
	var x interface{}
	if err := yaml.Unmarshal(bs, &x); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if x == nil {
		return nil, errors.New("empty configuration")
	}
	js, err := json.Marshal(&x)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize configuration: %w", err)
	}
	if err := Validate(js); err != nil {
		return nil, err
	}

	var c Config
	if err := json.Unmarshal(js, &c); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := c.checkNames(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks a JSON rendering of a configuration against the
// schema.
func Validate(js []byte) error {
	const errPrefix = "configuration validation failed"

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewBytesLoader(js),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", errPrefix, err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return formatNumberedErrors(errPrefix, msgs)
}

// formatNumberedErrors formats a list of messages as a single error
// with a numbered list.
func formatNumberedErrors(prefix string, msgs []string) error {
	if len(msgs) == 0 {
		return nil
	}
	if len(msgs) == 1 {
		return fmt.Errorf("%s: %s", prefix, msgs[0])
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s with %d errors:\n", prefix, len(msgs))
	for i, msg := range msgs {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, msg)
	}
	return errors.New(strings.TrimSuffix(b.String(), "\n"))
}

func (c *Config) checkNames() error {
	seen := make(map[string]bool)
	check := func(kind, name string) error {
		if name == "" {
			return nil
		}
		if seen[kind+"/"+name] {
			return &Duplicate{Kind: kind, Name: name}
		}
		seen[kind+"/"+name] = true
		return nil
	}
	for _, s := range c.Sources {
		if err := check("source", s.Name); err != nil {
			return err
		}
	}
	for _, r := range c.Rules {
		if err := check("rule", r.Name); err != nil {
			return err
		}
	}
	for _, d := range c.Destinations {
		if err := check("destination", d.Name); err != nil {
			return err
		}
	}
	return nil
}
