package tools

import (
	"encoding/json"
	"fmt"
	"html"
	"io"

	"github.com/OverOrion/axosyslog/config"

	md "github.com/russross/blackfriday/v2"
)

// RenderConfigHTML writes an HTML fragment documenting the rules and
// destinations of a configuration.  Rule docs are Markdown.
func RenderConfigHTML(c *config.Config, out io.Writer) error {
	f := func(format string, args ...interface{}) {
		fmt.Fprintf(out, format+"\n", args...)
	}

	f(`<div class="rules"><table>`)
	for i := range c.Rules {
		r := &c.Rules[i]
		label := RuleLabel(i, r)
		f(`<tr class="rule"><td><span id="%s" class="ruleName">%s</span></td><td>`,
			html.EscapeString(label), html.EscapeString(label))
		f(`<div>interpreter: <span class="interpreter">%s</span></div>`, html.EscapeString(r.InterpreterOf()))
		if r.Doc != "" {
			f(`<div class="ruleDoc doc">%s</div>`, md.Run([]byte(r.Doc)))
		}
		src, err := sourceText(r.Source)
		if err != nil {
			return err
		}
		f(`<div class="code"><pre>%s</pre></div>`, html.EscapeString(src))
		f(`</td></tr>`)
	}
	f(`</table></div>`)

	if len(c.Destinations) == 0 {
		return nil
	}

	f(`<div class="destinations"><table>`)
	for i, d := range c.Destinations {
		label := d.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		opts, err := json.Marshal(d.Options)
		if err != nil {
			return err
		}
		f(`<tr class="destination"><td><span class="destinationName">%s</span></td><td>%s</td><td><code>%s</code></td></tr>`,
			html.EscapeString(label), html.EscapeString(d.Type), html.EscapeString(string(opts)))
	}
	f(`</table></div>`)

	return nil
}

func sourceText(src interface{}) (string, error) {
	if s, is := src.(string); is {
		return s, nil
	}
	js, err := json.MarshalIndent(src, "", "  ")
	if err != nil {
		return "", err
	}
	return string(js), nil
}

// RenderConfigPage writes a complete HTML page.
func RenderConfigPage(c *config.Config, out io.Writer, cssFiles []string) error {
	if cssFiles == nil {
		cssFiles = []string{"/static/config-html.css"}
	}

	title := c.Filename
	if title == "" {
		title = "configuration"
	}
	title = html.EscapeString(title)

	fmt.Fprintf(out, `<!DOCTYPE html>
<meta charset="utf-8">
<html>
  <head>
  <title>%s</title>
`, title)

	for _, cssFile := range cssFiles {
		fmt.Fprintf(out, "  <link href=\"%s\" rel=\"stylesheet\">\n", cssFile)
	}

	fmt.Fprintf(out, `
  </head>
  <body>
    <h1>%s</h1>
`, title)

	if err := RenderConfigHTML(c, out); err != nil {
		return err
	}

	fmt.Fprintf(out, `
  </body>
</html>
`)

	return nil
}

// ReadAndRenderConfigPage loads a configuration and renders it.
func ReadAndRenderConfigPage(filename string, cssFiles []string, out io.Writer) error {
	c, err := config.Load(filename)
	if err != nil {
		return err
	}
	return RenderConfigPage(c, out, cssFiles)
}
