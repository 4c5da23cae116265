package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OverOrion/axosyslog/config"
	"github.com/OverOrion/axosyslog/dest"
	"github.com/OverOrion/axosyslog/interpreters"
	"github.com/OverOrion/axosyslog/interpreters/native"
	"github.com/OverOrion/axosyslog/logpipe"
	"github.com/OverOrion/axosyslog/logthrdest"
	"github.com/OverOrion/axosyslog/util"

	"go.uber.org/zap"
)

// ErrInit is returned by Build when a pipe refused to initialize.
var ErrInit = errors.New("pipeline initialization failed")

// Build compiles a configuration into an initialized pipeline: one
// FilterX stage per rule, in order, followed by the destinations.
// Several destinations share a multiplexer, so each of them sees
// every message that made it through the rules.
func Build(ctx context.Context, cfg *config.Config, is interpreters.Map, ds dest.Map) (*Pipeline, error) {
	pipes, err := BuildRules(ctx, cfg, is)
	if err != nil {
		return nil, err
	}
	free := func() {
		for _, p := range pipes {
			p.Free()
		}
	}

	var drivers []*logthrdest.Driver
	for i := range cfg.Destinations {
		d, err := makeDriver(cfg, &cfg.Destinations[i], ds)
		if err != nil {
			free()
			for _, d := range drivers {
				d.Free()
			}
			return nil, fmt.Errorf("destination %d: %w", i, err)
		}
		drivers = append(drivers, d)
	}

	switch len(drivers) {
	case 0:
	case 1:
		pipes = append(pipes, drivers[0])
	default:
		branches := make([]logpipe.Pipe, len(drivers))
		for i, d := range drivers {
			branches[i] = d
		}
		m := logpipe.NewMultiplexer(branches...)
		m.SetLocation(cfg.Location("destinations"))
		pipes = append(pipes, m)
	}

	name := cfg.Filename
	if name == "" {
		name = "fx"
	}
	p := New(name, cfg.Workers, pipes...)
	p.drivers = drivers
	if !p.Init(cfg) {
		p.Free()
		return nil, ErrInit
	}

	util.Debug("Pipeline built",
		zap.String("pipeline", p.Name),
		zap.Int("rules", len(cfg.Rules)),
		zap.Int("destinations", len(drivers)),
		zap.Int("workers", p.Workers))

	return p, nil
}

// BuildRules compiles the configuration's rules into FilterX stages,
// in order and unlinked.
func BuildRules(ctx context.Context, cfg *config.Config, is interpreters.Map) ([]logpipe.Pipe, error) {
	var pipes []logpipe.Pipe
	for i := range cfg.Rules {
		stage, err := compileRule(ctx, cfg, &cfg.Rules[i], is)
		if err != nil {
			for _, p := range pipes {
				p.Free()
			}
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		pipes = append(pipes, stage)
	}
	return pipes, nil
}

func compileRule(ctx context.Context, cfg *config.Config, r *config.Rule, m interpreters.Map) (*FilterXPipe, error) {
	i, err := m.Find(r.InterpreterOf())
	if err != nil {
		return nil, err
	}

	src := r.Source
	if s, is := src.(string); is {
		if _, is := i.(*native.Interpreter); is && cfg.Filename != "" {
			// Locations should name the configuration file.
			src = map[string]interface{}{
				"file": cfg.Filename,
				"code": s,
			}
		}
	}

	block, err := i.Compile(ctx, src)
	if err != nil {
		if r.Name != "" {
			return nil, fmt.Errorf("%s: %w", r.Name, err)
		}
		return nil, err
	}

	stage := NewFilterXPipe(block)
	stage.Name = r.Name
	return stage, nil
}

func makeDriver(cfg *config.Config, d *config.Destination, ds dest.Map) (*logthrdest.Driver, error) {
	f, err := ds.Find(d.Type)
	if err != nil {
		return nil, err
	}
	wf, err := f(d.Options)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Type, err)
	}

	opts := logthrdest.Options{
		Workers:      d.Workers,
		BatchLines:   d.BatchLines,
		BatchTimeout: time.Duration(d.BatchTimeout),
		RetriesMax:   d.RetriesMax,
		QueueSize:    d.QueueSize,
	}
	drv := logthrdest.NewDriver(d.Name, opts, wf)

	what := d.Name
	if what == "" {
		what = d.Type
	}
	drv.SetLocation(cfg.Location(what))
	return drv, nil
}

// DestinationStats returns the counters of each destination driver by
// name.
func (p *Pipeline) DestinationStats() map[string]logthrdest.Stats {
	acc := make(map[string]logthrdest.Stats, len(p.drivers))
	for _, d := range p.drivers {
		acc[d.Name] = d.Stats()
	}
	return acc
}
