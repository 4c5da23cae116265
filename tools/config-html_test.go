package tools

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/OverOrion/axosyslog/config"
	"github.com/OverOrion/axosyslog/dest"
	"github.com/OverOrion/axosyslog/interpreters"
)

const exampleConfig = `
rules:
  - name: sshd
    doc: Keeps *sshd* messages.
    source: $PROGRAM == "sshd" && $MESSAGE != "<none>"
  - interpreter: cel
    source: msg.MESSAGE.startsWith("Accepted")
destinations:
  - name: out
    type: file
    options: {path: "-"}
`

func parse(t *testing.T, src string) *config.Config {
	c, err := config.Parse([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestRenderConfigHTML(t *testing.T) {
	var out bytes.Buffer
	if err := RenderConfigHTML(parse(t, exampleConfig), &out); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	for _, want := range []string{
		`<span id="sshd" class="ruleName">sshd</span>`,
		`<p>Keeps <em>sshd</em> messages.</p>`,
		`$PROGRAM == &#34;sshd&#34; &amp;&amp; $MESSAGE != &#34;&lt;none&gt;&#34;`,
		`<span class="interpreter">cel</span>`,
		`<span id="#1" class="ruleName">#1</span>`,
		`<code>{&#34;path&#34;:&#34;-&#34;}</code>`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %s in\n%s", want, got)
		}
	}
}

func TestReadAndRenderConfigPage(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "fx.yaml")
	if err := os.WriteFile(filename, []byte(exampleConfig), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := ReadAndRenderConfigPage(filename, []string{"fx.css"}, &out); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	if !strings.Contains(got, `<link href="fx.css" rel="stylesheet">`) {
		t.Fatal(got)
	}
	if !strings.Contains(got, "<h1>"+filename+"</h1>") {
		t.Fatal(got)
	}

	if err := ReadAndRenderConfigPage(filepath.Join(t.TempDir(), "none.yaml"), nil, &out); err == nil {
		t.Fatal("rendered a missing file")
	}
}

func TestAnalyze(t *testing.T) {
	ctx := context.Background()

	a, err := Analyze(ctx, parse(t, exampleConfig), interpreters.Standard(), dest.Standard())
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Errors) != 0 {
		t.Fatal(a.Errors)
	}
	if a.Rules != 2 || a.Destinations != 1 || a.Sources != 0 {
		t.Fatalf("%#v", a)
	}
	if !reflect.DeepEqual(a.Undocumented, []string{"#1"}) {
		t.Fatal(a.Undocumented)
	}
	if !reflect.DeepEqual(a.Interpreters, []string{"cel", "native"}) {
		t.Fatal(a.Interpreters)
	}
	if !reflect.DeepEqual(a.DestinationTypes, []string{"file"}) {
		t.Fatal(a.DestinationTypes)
	}

	a, err = Analyze(ctx, parse(t, `
rules:
  - {name: broken, source: "$A = "}
  - {interpreter: cobol, source: "MOVE 1 TO A"}
destinations:
  - {type: kafka}
  - {name: nopath, type: file}
`), interpreters.Standard(), dest.Standard())
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Errors) != 4 {
		t.Fatal(a.Errors)
	}
	for i, prefix := range []string{"rule broken: ", "rule #1: ", "destination #0: ", "destination nopath: "} {
		if !strings.HasPrefix(a.Errors[i], prefix) {
			t.Errorf("%d: %s", i, a.Errors[i])
		}
	}
}
