package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, src string) string {
	filename := filepath.Join(t.TempDir(), "fx.yaml")
	if err := os.WriteFile(filename, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
	return filename
}

func TestCommands(t *testing.T) {
	filename := writeConfig(t, `
rules:
  - name: sshd
    doc: Only sshd.
    source: $PROGRAM == "sshd"
destinations:
  - {type: file, options: {path: "-"}}
`)

	tests := []struct {
		cmd  string
		in   string
		want string
	}{
		{"check", "", `"Rules": 1`},
		{"doc", "", `<span id="sshd" class="ruleName">sshd</span>`},
		{"eval", `{"PROGRAM":"sshd"}`, `{"matched":true,"forwarded":true,"message":{"PROGRAM":"sshd"}}`},
		{"graph", "", "graph LR\n"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			var out bytes.Buffer
			err := run(context.Background(), tt.cmd, []string{"-f", filename}, strings.NewReader(tt.in), &out)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Fatalf("got %s", out.String())
			}
		})
	}
}

func TestCheckProblems(t *testing.T) {
	filename := writeConfig(t, `rules: [{interpreter: cobol, source: "x"}]`)
	var out bytes.Buffer
	err := run(context.Background(), "check", []string{"-f", filename}, nil, &out)
	if err == nil || err.Error() != "1 problems found" {
		t.Fatal(err)
	}
}

func TestUnknownCommand(t *testing.T) {
	if err := run(context.Background(), "frobnicate", nil, nil, &bytes.Buffer{}); err == nil {
		t.Fatal("expected an error")
	}
}
