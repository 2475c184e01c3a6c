package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ardnew/usbf/gadget"
	"github.com/ardnew/usbf/internal/config"
	"github.com/ardnew/usbf/pkg"
	"github.com/ardnew/usbf/regs"
	"github.com/ardnew/usbf/regs/mmio"
	"github.com/ardnew/usbf/udc"
)

// AttachCmd drives a real controller through its physical register
// window. Interrupts are serviced by polling until the command is
// interrupted.
type AttachCmd struct {
	Base     string        `arg:"" help:"Physical base address of the register window, page aligned (e.g. 0x1e050000)"`
	Config   string        `short:"c" type:"existingfile" help:"Configuration file for the controller and gadget"`
	Interval time.Duration `help:"Interrupt polling interval" default:"1ms"`
}

// Run is called by kong when the attach command is executed.
func (a *AttachCmd) Run(ctx context.Context, logger *slog.Logger) error {
	base, err := strconv.ParseUint(a.Base, 0, 64)
	if err != nil {
		return fmt.Errorf("base %q: %w", a.Base, pkg.ErrInvalidParameter)
	}
	f := config.Default()
	if a.Config != "" {
		if f, err = config.Load(a.Config); err != nil {
			return err
		}
	}

	bus, err := mmio.Open(int64(base), regs.WindowSize)
	if err != nil {
		return err
	}
	defer bus.Close()

	c, err := bind(bus, f)
	if err != nil {
		return err
	}
	logger.Info("attached", "base", fmt.Sprintf("0x%X", base), "interval", a.Interval)
	return errors.Join(serve(ctx, c, a.Interval), c.Unregister())
}

// bind builds the controller on bus and binds the gadget to it.
func bind(bus regs.Bus, f *config.File) (*udc.Controller, error) {
	c, err := udc.New(bus, f.Controller.UDC())
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}
	g, err := gadget.New(f.Gadget.Config())
	if err != nil {
		return nil, fmt.Errorf("gadget: %w", err)
	}
	if err := c.Bind(g); err != nil {
		return nil, err
	}
	return c, nil
}

// serve services interrupts and polled endpoints every interval until
// ctx is done. Handler errors are logged; the loop keeps running.
func serve(ctx context.Context, c *udc.Controller, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval %s: %w", interval, pkg.ErrInvalidParameter)
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		if err := c.HandleInterrupts(); err != nil {
			pkg.LogWarn(pkg.ComponentDispatch, "interrupt service failed", "error", err)
		}
		if err := c.Poll(); err != nil {
			pkg.LogWarn(pkg.ComponentDispatch, "poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			pkg.LogInfo(pkg.ComponentController, "detached", "state", c.State())
			return nil
		case <-tick.C:
		}
	}
}
