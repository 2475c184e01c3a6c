package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ardnew/usbf/internal/config"
	"github.com/ardnew/usbf/internal/scenario"
	"github.com/ardnew/usbf/internal/trace"
	"github.com/ardnew/usbf/pkg/prof"
)

// RunCmd runs one scenario.
type RunCmd struct {
	File   string `arg:"" optional:"" type:"existingfile" help:"Configuration file (JSON, YAML or TOML); the built-in enumeration runs without one"`
	Trace  string `help:"Write the session trace to this file" type:"path"`
	Format string `help:"Trace format" enum:"json,yaml,cbor" default:"json"`
	Events bool   `help:"Print the simulated bus log"`
	Quiet  bool   `short:"q" help:"Print only the summary line"`

	Profile prof.Options `embed:"" prefix:"profile."`
}

// Run is called by kong when the run command is executed.
func (r *RunCmd) Run(ctx context.Context, out io.Writer, logger *slog.Logger) (err error) {
	if r.Profile.Enabled() {
		p, perr := prof.Start(r.Profile)
		if perr != nil {
			return perr
		}
		defer func() { err = errors.Join(err, p.Stop()) }()
	}

	f := config.Default()
	if r.File != "" {
		if f, err = config.Load(r.File); err != nil {
			return err
		}
	}
	logger.Debug("running scenario", "file", r.File, "scenario", f.Scenario.Name,
		"steps", len(f.Scenario.Steps), "high_speed", f.Controller.HighSpeed)

	s, err := scenario.New(f)
	if err != nil {
		return err
	}
	runErr := s.Run(ctx, f.Scenario.Steps)
	closeErr := s.Close()

	rep := reporter{w: out}
	if !r.Quiet {
		rep.steps(s.Trace)
		rep.endpoints(s.Trace)
	}
	if r.Events {
		rep.events(s.Trace)
	}
	rep.summary(s.Trace)

	if r.Trace != "" {
		if err := writeTrace(r.Trace, s.Trace, r.Format); err != nil {
			return err
		}
		logger.Info("trace written", "file", r.Trace, "format", r.Format)
	}
	return errors.Join(runErr, closeErr)
}

func writeTrace(path string, tr *trace.Trace, format string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	if err := trace.Encode(file, tr, format); err != nil {
		return fmt.Errorf("trace %s: %w", path, err)
	}
	return nil
}
