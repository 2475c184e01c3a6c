package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ardnew/usbf/internal/config"
	"github.com/ardnew/usbf/pkg/usbid"
)

// ConfigCmd groups configuration subcommands.
type ConfigCmd struct {
	Init  ConfigInit  `cmd:"" help:"Generate a configuration template"`
	Check ConfigCheck `cmd:"" help:"Validate a configuration file"`
}

// ConfigInit writes the default configuration as a starting point.
type ConfigInit struct {
	Format string `help:"Output format" enum:"json,yaml,toml" default:"yaml"`
	Output string `short:"o" help:"Destination file, - for stdout (defaults to scenario.<format>)"`
	Force  bool   `help:"Overwrite if the file already exists"`
}

// Run is called by kong when config init is executed.
func (c *ConfigInit) Run(out io.Writer) error {
	format := config.NormalizeFormat(c.Format)
	if format == "" {
		return fmt.Errorf("unsupported format: %s", c.Format)
	}
	data, err := config.Template(format)
	if err != nil {
		return err
	}
	if c.Output == "-" {
		_, err := out.Write(data)
		return err
	}

	dest := c.Output
	if dest == "" {
		dest = "scenario." + format
	}
	if !c.Force {
		if _, err := os.Stat(dest); err == nil {
			return errors.New("destination exists; use --force to overwrite")
		}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s\n", dest)
	return nil
}

// ConfigCheck loads and validates a file.
type ConfigCheck struct {
	File string `arg:"" type:"existingfile" help:"Configuration file to validate"`
	IDs  string `name:"ids" help:"usb.ids database used to name the gadget (searched in the usual places by default)" type:"path"`
}

// Run is called by kong when config check is executed.
func (c *ConfigCheck) Run(out io.Writer) error {
	f, err := config.Load(c.File)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: scenario %q, %d steps, %d endpoints\n",
		c.File, f.Scenario.Name, len(f.Scenario.Steps), f.Controller.Endpoints)

	var paths []string
	if c.IDs != "" {
		paths = append(paths, c.IDs)
	}
	g := &f.Gadget
	if db, err := usbid.Load(paths...); err == nil {
		fmt.Fprintf(out, "gadget %s\n", db.Describe(g.VendorID, g.ProductID))
	} else {
		fmt.Fprintf(out, "gadget %04x:%04x\n", g.VendorID, g.ProductID)
	}
	return nil
}
