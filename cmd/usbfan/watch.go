package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ardnew/usbfan/host"
	"github.com/ardnew/usbfan/host/hal"
	"github.com/ardnew/usbfan/pkg"
)

func runWatch(ctx context.Context, o *options, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	interval := fs.Duration("interval", o.cfg.Host.Watch.Interval, "Time between polls")
	window := fs.Int("window", o.cfg.Host.Watch.Window, "Number of polls averaged")
	count := fs.Int("count", 0, "Stop after this many polls per device; 0 runs until interrupted")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *interval <= 0 || *window < 1 || *count < 0 {
		return fmt.Errorf("%w: watch -interval %v -window %d -count %d", pkg.ErrInvalidParameter, *interval, *window, *count)
	}

	b, err := openBackend(ctx, o)
	if err != nil {
		return err
	}
	defer b.Close()

	var notifier hal.Notifier
	switch t := b.transport.(type) {
	case nil:
	case hal.Notifier:
		notifier = t
	}
	if b.usb != nil {
		if err := b.usb.WatchHotplug(ctx); err != nil {
			pkg.LogWarn(pkg.ComponentCLI, "hotplug unavailable, polling only", "error", err)
			notifier = nil
		}
	}

	ts, err := b.targets(o)
	if err != nil {
		return err
	}
	defer closeTargets(ts)

	out := &lineWriter{w: w}
	var wg sync.WaitGroup
	for _, t := range ts {
		name := t.label
		if t.session != nil {
			name = t.session.Serial()
			t.session.SetOnEvent(func(e host.Event) {
				out.printf("%s %s %s\n", e.Time.Format(time.TimeOnly), e.Serial, e.Kind)
			})
		}
		m := host.NewMonitor(t.fan, *window)
		if notifier != nil {
			m.SetNotifier(notifier)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			watch(ctx, m, name, *interval, *count, out)
		}()
	}
	wg.Wait()
	return nil
}

// watch runs m until ctx is done or count samples were printed.
func watch(ctx context.Context, m *host.Monitor, name string, interval time.Duration, count int, out *lineWriter) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	n := 0
	err := m.Run(ctx, interval, func(s host.Sample) {
		if count > 0 && n >= count {
			return
		}
		out.printf("%s\n", formatSample(name, s))
		n++
		if count > 0 && n >= count {
			cancel()
		}
	})
	if err != nil {
		pkg.LogError(pkg.ComponentCLI, "watch stopped", "device", name, "error", err)
	}
}

func formatSample(name string, s host.Sample) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s", s.Time.Format(time.TimeOnly), name)
	if s.Err != nil {
		fmt.Fprintf(&sb, " unavailable: %v", s.Err)
		return sb.String()
	}
	for ch := range s.RPM {
		fmt.Fprintf(&sb, " fan%d %5d rpm (avg %7.1f)", ch, s.RPM[ch], s.Average[ch])
	}
	return sb.String()
}

// lineWriter serializes lines from concurrent monitors.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lineWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format, args...)
}
