// Package pkg provides shared utilities for the usbfan firmware and host
// packages.
//
// It contains:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors for the register protocol and the host session
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with a component attribute:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentSession, "device replugged", "serial", sn)
//
// # Errors
//
// Errors are sentinel values compared with [errors.Is]. The distinction
// that matters most to callers is between a device that is temporarily
// gone and one that is broken:
//
//	if errors.Is(err, pkg.ErrDeviceAbsent) {
//	    // try again at the next poll
//	}
package pkg
