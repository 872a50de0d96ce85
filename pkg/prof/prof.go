//go:build profile

package prof

import (
	"errors"
	"flag"
	"net/http"
	_ "net/http/pprof" // Register HTTP handlers at /debug/pprof/
	"os"
	"runtime"
	"runtime/pprof"
	"sync"

	"github.com/ardnew/usbfan/pkg"
)

// ErrActive is returned by Start while an earlier profile is running.
var ErrActive = errors.New("profiling already active")

var (
	mu     sync.Mutex
	active bool
)

// Enabled reports whether the binary was built with profiling.
const Enabled = true

// Register adds the profiling flags to fs.
func (o *Options) Register(fs *flag.FlagSet) {
	fs.StringVar(&o.CPU, "cpuprofile", "", "Write a CPU profile to `file`")
	fs.StringVar(&o.Heap, "memprofile", "", "Write a heap profile to `file` on exit")
	fs.StringVar(&o.Block, "blockprofile", "", "Write a blocking profile to `file` on exit")
	fs.StringVar(&o.Mutex, "mutexprofile", "", "Write a mutex contention profile to `file` on exit")
	fs.StringVar(&o.HTTP, "pprof-addr", "", "Serve /debug/pprof/ on `address`")
}

// Start begins the profiles o names. The returned function stops CPU
// profiling and writes the snapshot profiles; call it once, on exit.
func Start(o Options) (func() error, error) {
	mu.Lock()
	defer mu.Unlock()
	if active {
		return nil, ErrActive
	}

	var cpu *os.File
	if o.CPU != "" {
		f, err := os.Create(o.CPU)
		if err != nil {
			return nil, err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, err
		}
		cpu = f
	}
	if o.Block != "" {
		runtime.SetBlockProfileRate(1)
	}
	if o.Mutex != "" {
		runtime.SetMutexProfileFraction(1)
	}
	if o.HTTP != "" {
		go func() {
			pkg.LogInfo(pkg.ComponentProf, "pprof listening", "addr", o.HTTP)
			if err := http.ListenAndServe(o.HTTP, nil); err != nil {
				pkg.LogWarn(pkg.ComponentProf, "pprof server stopped", "error", err)
			}
		}()
	}
	active = true

	return func() error {
		mu.Lock()
		defer mu.Unlock()
		if !active {
			return nil
		}
		active = false

		var errs []error
		if cpu != nil {
			pprof.StopCPUProfile()
			errs = append(errs, cpu.Close())
		}
		if o.Heap != "" {
			runtime.GC()
		}
		errs = append(errs,
			write("heap", o.Heap),
			write("block", o.Block),
			write("mutex", o.Mutex))
		if o.Block != "" {
			runtime.SetBlockProfileRate(0)
		}
		if o.Mutex != "" {
			runtime.SetMutexProfileFraction(0)
		}
		return errors.Join(errs...)
	}, nil
}

// write saves the named snapshot profile to path. An empty path writes
// nothing.
func write(name, path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	werr := pprof.Lookup(name).WriteTo(f, 0)
	return errors.Join(werr, f.Close())
}
