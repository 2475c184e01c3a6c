// Package scenario runs configuration scenarios against a simulated
// controller with the loopback gadget bound.
package scenario

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ardnew/usbf/gadget"
	"github.com/ardnew/usbf/internal/config"
	"github.com/ardnew/usbf/internal/trace"
	"github.com/ardnew/usbf/pkg"
	"github.com/ardnew/usbf/sim"
	"github.com/ardnew/usbf/udc"
)

var (
	// ErrMismatch is returned when a step's result differs from its
	// expectation.
	ErrMismatch = errors.New("unexpected result")

	// ErrFailed is returned by Run when at least one step failed.
	ErrFailed = errors.New("scenario failed")
)

// Session is a bound controller on a simulated bus.
type Session struct {
	Sim        *sim.Sim
	Controller *udc.Controller
	Gadget     *gadget.Gadget
	Trace      *trace.Trace

	name string
}

// New builds the simulator, the controller and the gadget described by f
// and binds them.
func New(f *config.File) (*Session, error) {
	s := sim.New(sim.Options{
		HighSpeed:    f.Controller.HighSpeed,
		EP0MaxPacket: f.Controller.EP0MaxPacket,
	})

	cfg := f.Controller.UDC()
	cfg.IRQ = s
	c, err := udc.New(s, cfg)
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}
	s.Attach(c.HandleInterrupts)

	g, err := gadget.New(f.Gadget.Config())
	if err != nil {
		return nil, fmt.Errorf("gadget: %w", err)
	}
	if err := c.Bind(g); err != nil {
		return nil, err
	}
	return &Session{
		Sim:        s,
		Controller: c,
		Gadget:     g,
		Trace:      trace.New(f.Scenario.Name),
		name:       f.Scenario.Name,
	}, nil
}

// Close unbinds the gadget and completes the trace.
func (s *Session) Close() error {
	s.Trace.Finish(s.Sim, s.Controller)
	return s.Controller.Unregister()
}

// Run executes steps in order. A failed step is recorded and the next
// one runs. Run stops early when ctx is done.
func (s *Session) Run(ctx context.Context, steps []config.Step) error {
	pkg.LogInfo(pkg.ComponentScenario, "start", "scenario", s.name, "steps", len(steps))
	for i := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		st := &steps[i]
		reply, err := s.Step(st)
		s.Trace.AddStep(st.String(), reply, err)
		if err != nil {
			pkg.LogWarn(pkg.ComponentScenario, "step failed", "index", i+1, "op", st.String(), "error", err)
		} else {
			pkg.LogDebug(pkg.ComponentScenario, "step", "index", i+1, "op", st.String(), "reply", len(reply))
		}
	}
	if n := s.Trace.Failed(); n > 0 {
		return fmt.Errorf("%s: %d of %d steps: %w", s.name, n, len(steps), ErrFailed)
	}
	pkg.LogInfo(pkg.ComponentScenario, "done", "scenario", s.name)
	return nil
}

// Step executes one step and returns the data the host received.
func (s *Session) Step(st *config.Step) ([]byte, error) {
	h := s.Sim
	switch st.Op {
	case config.OpVBus:
		return nil, h.VBus(st.On)
	case config.OpReset:
		return nil, h.BusReset()
	case config.OpSpeed:
		return nil, h.SpeedChange(st.On)
	case config.OpSuspend:
		return nil, h.Suspend()
	case config.OpResume:
		return nil, h.Resume()
	case config.OpPoll:
		return nil, s.Controller.Poll()
	case config.OpControl:
		return s.control(st)
	case config.OpOut:
		data, err := st.Payload()
		if err != nil {
			return nil, err
		}
		return nil, h.Out(st.EP, data)
	case config.OpIn:
		var got []byte
		for _, p := range h.TakeIN(st.EP) {
			got = append(got, p...)
		}
		return got, expect(st, got)
	default:
		return nil, fmt.Errorf("op %q: %w", st.Op, pkg.ErrInvalidParameter)
	}
}

func (s *Session) control(st *config.Step) ([]byte, error) {
	data, err := st.Payload()
	if err != nil {
		return nil, err
	}
	reply, err := s.Sim.Control(st.Setup(), data)
	switch {
	case st.Stall && errors.Is(err, pkg.ErrStall):
		return reply, nil
	case st.Stall && err == nil:
		return reply, fmt.Errorf("completed, want stall: %w", ErrMismatch)
	case err != nil:
		return reply, err
	}
	return reply, expect(st, reply)
}

func expect(st *config.Step, got []byte) error {
	want, ok, err := st.Expected()
	if err != nil || !ok {
		return err
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("got [% X], want [% X]: %w", got, want, ErrMismatch)
	}
	return nil
}
