// Package prof adds opt-in pprof profiling to the usbfan commands.
//
// Profiling is compiled in only with the "profile" build tag:
//
//	go build -tags profile ./cmd/usbfand
//	usbfand -cpuprofile cpu.prof -memprofile heap.prof -pprof-addr localhost:6060
//
// Without the tag, [Options.Register] adds no flags and [Start] returns a
// stop function that does nothing, so callers need no build tags of their
// own.
package prof

// Options names the profiles to collect. Empty fields are skipped.
type Options struct {
	CPU   string // streamed while running
	Heap  string // written by the stop function
	Block string // written by the stop function
	Mutex string // written by the stop function
	HTTP  string // listen address for /debug/pprof/
}
