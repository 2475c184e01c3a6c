// Package pkg provides shared utilities for the usbf controller engine.
//
// This package contains common functionality used by the register layer,
// the controller core, the simulator and the command-line tools:
//
//   - Structured logging via Go's standard [log/slog] package, with an
//     optional rotated log file
//   - Sentinel error values and the [RequestStatus] recorded on requests
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with controller context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentEP0, "set address", "address", 7)
//
// Per-register and per-packet output is logged at [LevelTrace].
//
// # Errors
//
// Failures are reported as wrapped sentinel values:
//
//	if errors.Is(err, pkg.ErrTimeout) {
//	    // buffer clear never acknowledged; reset the controller
//	}
package pkg
