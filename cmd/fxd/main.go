// Package main is the pipeline daemon: it reads a configuration,
// starts its sources and runs every message through its rules to its
// destinations until interrupted or until the input ends.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/OverOrion/axosyslog/config"
	"github.com/OverOrion/axosyslog/dest"
	"github.com/OverOrion/axosyslog/interpreters"
	"github.com/OverOrion/axosyslog/logmsg"
	"github.com/OverOrion/axosyslog/pipeline"
	"github.com/OverOrion/axosyslog/sio"
	"github.com/OverOrion/axosyslog/tools"
	"github.com/OverOrion/axosyslog/util"

	"go.uber.org/zap"
)

func main() {
	var (
		filename = flag.String("f", "", "Configuration file (default: search the XDG config directories)")
		debug    = flag.Bool("debug", false, "Debug logging")
		trace    = flag.Bool("trace", false, "Trace message processing (implies -debug)")
	)
	flag.Parse()

	if err := util.InitLogger(*debug || *trace, *trace); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*filename)
	if err != nil {
		util.Error("Error loading configuration", zap.Error(err))
		os.Exit(1)
	}
	if cfg.Log.Debug || cfg.Log.Trace {
		if err := util.InitLogger(true, *trace || cfg.Log.Trace); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, os.Stdin); err != nil {
		util.Error("fxd failed", zap.Error(err))
		os.Exit(1)
	}
}

// run builds the pipeline and feeds it until the sources are done or
// ctx is.  stdin is the input of stdio sources.
func run(ctx context.Context, cfg *config.Config, stdin io.Reader) error {
	if err := tools.InlineRules(cfg); err != nil {
		return err
	}

	p, err := pipeline.Build(ctx, cfg, interpreters.Standard(), dest.Standard())
	if err != nil {
		return err
	}
	defer func() {
		p.Free()
		s := p.Stats()
		util.Info("Pipeline done",
			zap.Uint64("processed", s.Processed),
			zap.Uint64("forwarded", s.Forwarded),
			zap.Uint64("dropped", s.Dropped))
		for name, s := range p.DestinationStats() {
			util.Info("Destination done",
				zap.String("destination", name),
				zap.Uint64("written", s.Written),
				zap.Uint64("dropped", s.Dropped),
				zap.Uint64("retried", s.Retried))
		}
	}()

	sources, err := startSources(ctx, cfg.Sources, stdin)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range sources {
			if err := s.Stop(context.Background()); err != nil {
				util.Warn("Error stopping source", zap.Error(err))
			}
		}
	}()

	ins := make([]<-chan *logmsg.LogMessage, len(sources))
	for i, s := range sources {
		ins[i] = s.Messages()
	}

	util.Info("fxd running", zap.String("config", cfg.Filename), zap.Int("sources", len(sources)))

	if err := p.Run(ctx, sio.Merge(ctx, ins...)); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func startSources(ctx context.Context, specs []config.Source, stdin io.Reader) ([]sio.Source, error) {
	if len(specs) == 0 {
		specs = []config.Source{{Type: "stdio"}}
	}

	m := sio.Standard()
	var acc []sio.Source
	stop := func() {
		for _, s := range acc {
			s.Stop(context.Background())
		}
	}

	for i, spec := range specs {
		f, err := m.Find(spec.Type)
		if err != nil {
			stop()
			return nil, err
		}
		s, err := f(spec.Options)
		if err != nil {
			stop()
			return nil, fmt.Errorf("source %d (%s): %w", i, spec.Type, err)
		}
		if std, is := s.(*sio.Stdio); is {
			std.In = stdin
		}
		if err = s.Start(ctx); err != nil {
			stop()
			return nil, fmt.Errorf("source %d (%s): %w", i, spec.Type, err)
		}
		acc = append(acc, s)
	}
	return acc, nil
}
