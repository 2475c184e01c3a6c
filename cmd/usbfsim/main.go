// Command usbfsim runs scenarios against a simulated USBF device
// controller with the loopback gadget bound, and reports what the host
// saw.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"

	"github.com/ardnew/usbf/pkg"
)

var version = "dev"

// CLI is the command line of usbfsim.
type CLI struct {
	Log     LogFlags         `embed:"" prefix:"log."`
	Version kong.VersionFlag `help:"Print the version and exit"`

	Run    RunCmd    `cmd:"" default:"withargs" help:"Run a scenario against the simulated controller"`
	Config ConfigCmd `cmd:"" help:"Manage scenario configuration files"`
	Attach AttachCmd `cmd:"" help:"Drive a real controller through /dev/mem (Linux)"`
}

// LogFlags configures logging.
type LogFlags struct {
	Level string `help:"Log level" enum:"trace,debug,info,warn,error" default:"warn" env:"USBFSIM_LOG_LEVEL"`
	File  string `help:"Also write logs to this file, rotated" type:"path" env:"USBFSIM_LOG_FILE"`
	JSON  bool   `help:"Write JSON log records" env:"USBFSIM_LOG_JSON"`
}

func (l *LogFlags) options() pkg.LogOptions {
	return pkg.LogOptions{Level: l.Level, File: l.File, JSON: l.JSON}
}

func newParser(cli *CLI, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("usbfsim"),
		kong.Description("USBF device controller simulator"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	}, options...)
	return kong.New(cli, options...)
}

// presetPaths lists the flag preset files looked up in the working
// directory and the user configuration directory.
func presetPaths(exts ...string) []string {
	dirs := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(dir, "usbfsim"))
	}
	var paths []string
	for _, dir := range dirs {
		for _, ext := range exts {
			paths = append(paths, filepath.Join(dir, "usbfsim"+ext))
		}
	}
	return paths
}

func main() {
	var cli CLI
	parser, err := newParser(&cli,
		// Flags and environment override preset files.
		kong.Configuration(kong.JSON, presetPaths(".json")...),
		kong.Configuration(kongyaml.Loader, presetPaths(".yaml", ".yml")...),
		kong.Configuration(kongtoml.Loader, presetPaths(".toml")...),
	)
	if err != nil {
		panic(err)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	logger, closers := pkg.SetupLogger(cli.Log.options())

	sig, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx.Bind(logger)
	ctx.BindTo(sig, (*context.Context)(nil))
	ctx.BindTo(os.Stdout, (*io.Writer)(nil))

	err = ctx.Run()
	stop()
	for _, c := range closers {
		_ = c.Close()
	}
	ctx.FatalIfErrorf(err)
}
