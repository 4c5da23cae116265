package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/OverOrion/axosyslog/filterx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const example = `
workers: 2
log:
  debug: true
sources:
  - type: stdio
rules:
  - name: sshd
    doc: Only *sshd* messages.
    source: |
      $PROGRAM == "sshd"
  - interpreter: cel
    source: msg.MESSAGE.startsWith("Accepted")
destinations:
  - name: archive
    type: sqlite
    batch_lines: 100
    batch_timeout: 250ms
    options:
      filename: /var/lib/fx/logs.db
  - type: file
    batch_timeout: 2
    options:
      path: "-"
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(example))
	require.NoError(t, err)

	assert.Equal(t, 2, c.Workers)
	assert.True(t, c.Log.Debug)
	require.Len(t, c.Sources, 1)
	assert.Equal(t, "stdio", c.Sources[0].Type)

	require.Len(t, c.Rules, 2)
	assert.Equal(t, "sshd", c.Rules[0].Name)
	assert.Equal(t, "native", c.Rules[0].InterpreterOf())
	assert.Equal(t, "$PROGRAM == \"sshd\"\n", c.Rules[0].Source)
	assert.Equal(t, "cel", c.Rules[1].InterpreterOf())

	require.Len(t, c.Destinations, 2)
	d := c.Destinations[0]
	assert.Equal(t, "sqlite", d.Type)
	assert.Equal(t, 100, d.BatchLines)
	assert.Equal(t, 250*time.Millisecond, time.Duration(d.BatchTimeout))
	assert.Equal(t, "/var/lib/fx/logs.db", d.Options["filename"])
	assert.Equal(t, 2*time.Second, time.Duration(c.Destinations[1].BatchTimeout))
}

func TestParseJSON(t *testing.T) {
	c, err := Parse([]byte(`{"rules": [{"source": "true"}]}`))
	require.NoError(t, err)
	assert.Len(t, c.Rules, 1)
}

func TestSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"no rules", `workers: 1`},
		{"unknown property", "rules: []\ncolour: red"},
		{"bad workers", "workers: 0\nrules: []"},
		{"rule without source", "rules: [{name: x}]"},
		{"bad source type", "rules: []\nsources: [{type: carrier-pigeon}]"},
		{"bad duration", "rules: []\ndestinations: [{type: file, batch_timeout: soon}]"},
		{"bad name", "rules: [{name: 'a b', source: 'true'}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "configuration validation failed")
		})
	}
}

func TestNumberedErrors(t *testing.T) {
	_, err := Parse([]byte("workers: 0\ncolour: red"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "with 3 errors:\n  1. ")
}

func TestDuplicates(t *testing.T) {
	_, err := Parse([]byte(`
rules:
  - {name: a, source: "true"}
  - {name: a, source: "false"}
`))
	var dup *Duplicate
	require.True(t, errors.As(err, &dup), "%v", err)
	assert.Equal(t, "rule", dup.Kind)
	assert.Equal(t, "a", dup.Name)

	// Different kinds may share names.
	_, err = Parse([]byte(`
rules: [{name: a, source: "true"}]
destinations: [{name: a, type: file}]
`))
	assert.NoError(t, err)
}

func TestEmpty(t *testing.T) {
	_, err := Parse([]byte(""))
	assert.Error(t, err)
}

func TestRuleName(t *testing.T) {
	var c Config
	assert.Equal(t, "#anon-filter0", c.RuleName("filter", filterx.Location{}))
	assert.Equal(t, "#anon-filter1", c.RuleName("filter", filterx.Location{}))
	assert.Equal(t, "#anon-destination0", c.RuleName("destination", filterx.Location{}))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "fx.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(example), 0644))

	c, err := Load(filename)
	require.NoError(t, err)
	assert.Equal(t, filename, c.Filename)
	assert.Equal(t, filterx.Location{File: filename, Text: "archive"}, c.Location("archive"))

	require.NoError(t, os.WriteFile(filename, []byte("workers: many"), 0644))
	_, err = Load(filename)
	require.Error(t, err)
	assert.Contains(t, err.Error(), filename)
}

func TestDefaultPath(t *testing.T) {
	assert.True(t, strings.HasSuffix(DefaultPath(), RelativePath), DefaultPath())
	assert.True(t, filepath.IsAbs(DefaultPath()))
}
