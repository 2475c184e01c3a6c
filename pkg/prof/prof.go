// Package prof captures pprof profiles of a simulator run.
//
// A Session covers one run: CPU samples stream to a file from Start until
// Stop, and the snapshot profiles named in Options are written by Stop.
//
//	s, err := prof.Start(prof.Options{CPU: "cpu.prof", Heap: "heap.prof"})
//	if err != nil {
//	    return err
//	}
//	defer s.Stop()
//
// Inspect the files with go tool pprof.
package prof

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"

	"github.com/ardnew/usbf/pkg"
)

// ErrCPUProfileActive is returned by Start while another session samples
// the CPU.
var ErrCPUProfileActive = errors.New("cpu profile already active")

// Options names the profile files of a session. Empty names are skipped.
type Options struct {
	CPU       string `help:"Write a CPU profile to this file" type:"path"`
	Heap      string `help:"Write a heap profile to this file when the run ends" type:"path"`
	Goroutine string `help:"Write a goroutine profile to this file when the run ends" type:"path"`
}

// Enabled reports whether any profile is requested.
func (o Options) Enabled() bool {
	return o.CPU != "" || o.Heap != "" || o.Goroutine != ""
}

// Session is an active profiling session.
type Session struct {
	opts    Options
	cpuFile *os.File
	once    sync.Once
	err     error
}

var (
	cpuMu     sync.Mutex
	cpuActive bool
)

// Start begins a session. With no CPU file it only records the snapshot
// names for Stop.
func Start(opts Options) (*Session, error) {
	s := &Session{opts: opts}
	if opts.CPU == "" {
		return s, nil
	}

	cpuMu.Lock()
	defer cpuMu.Unlock()
	if cpuActive {
		return nil, ErrCPUProfileActive
	}
	f, err := os.Create(opts.CPU)
	if err != nil {
		return nil, err
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("cpu profile: %w", err)
	}
	cpuActive = true
	s.cpuFile = f
	pkg.LogDebug(pkg.ComponentScenario, "cpu profile started", "path", opts.CPU)
	return s, nil
}

// Stop ends CPU sampling and writes the snapshot profiles. Later calls
// return the first result.
func (s *Session) Stop() error {
	s.once.Do(func() {
		var errs []error
		if s.cpuFile != nil {
			cpuMu.Lock()
			pprof.StopCPUProfile()
			cpuActive = false
			cpuMu.Unlock()
			errs = append(errs, s.cpuFile.Close())
		}
		if s.opts.Heap != "" {
			runtime.GC()
			errs = append(errs, write("heap", s.opts.Heap))
		}
		if s.opts.Goroutine != "" {
			errs = append(errs, write("goroutine", s.opts.Goroutine))
		}
		s.err = errors.Join(errs...)
	})
	return s.err
}

func write(name, path string) (err error) {
	p := pprof.Lookup(name)
	if p == nil {
		return fmt.Errorf("profile %s: %w", name, pkg.ErrNotSupported)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	pkg.LogDebug(pkg.ComponentScenario, "profile written", "profile", name, "path", path)
	return p.WriteTo(f, 0)
}
