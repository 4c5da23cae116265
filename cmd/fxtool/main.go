// Package main is a command-line tool for working with pipeline
// configurations.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/OverOrion/axosyslog/config"
	"github.com/OverOrion/axosyslog/dest"
	"github.com/OverOrion/axosyslog/interpreters"
	"github.com/OverOrion/axosyslog/tools"
	"github.com/OverOrion/axosyslog/util"
)

func Usage() {
	fmt.Fprintf(os.Stderr, `Usage: fxtool COMMAND [-f CONFIG] ...

  check   Compile every rule and check every destination
  doc     Render the configuration as HTML [-css FILE,...]
  eval    Run JSON lines from stdin through the rules
  graph   Render the message flow as a Mermaid flowchart

Without -f, the configuration is looked up in the XDG config
directories.
`)
}

func main() {
	if len(os.Args) < 2 {
		Usage()
		os.Exit(1)
	}
	if err := run(context.Background(), os.Args[1], os.Args[2:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	var (
		filename = fs.String("f", "", "Configuration file")
		css      = fs.String("css", "", "Comma-separated CSS files (doc)")
		debug    = fs.Bool("debug", false, "Debug logging")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *debug {
		if err := util.InitLogger(true, false); err != nil {
			return err
		}
	}

	switch cmd {
	case "check", "doc", "eval", "graph":
	case "help", "-h", "--help":
		Usage()
		return nil
	default:
		Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}

	c, err := config.Load(*filename)
	if err != nil {
		return err
	}
	if err = tools.InlineRules(c); err != nil {
		return err
	}

	switch cmd {
	case "check":
		a, err := tools.Analyze(ctx, c, interpreters.Standard(), dest.Standard())
		if err != nil {
			return err
		}
		js, err := json.MarshalIndent(a, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", js)
		if len(a.Errors) != 0 {
			return fmt.Errorf("%d problems found", len(a.Errors))
		}
		return nil

	case "doc":
		var cssFiles []string
		if *css != "" {
			cssFiles = strings.Split(*css, ",")
		}
		return tools.RenderConfigPage(c, out, cssFiles)

	case "eval":
		return tools.Eval(ctx, c, interpreters.Standard(), in, out)

	default:
		return tools.Mermaid(c, out, nil)
	}
}
