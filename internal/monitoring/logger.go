// Package monitoring holds the diagnostic logger shared by the pipeline packages.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger so tests can mute or capture pipeline output.
var Logf func(format string, v ...interface{}) = log.Printf

// Debugf receives chatty per-sample and retry messages. It is a no-op until
// SetDebugLogger installs a destination.
var Debugf func(format string, v ...interface{}) = nop

func nop(string, ...interface{}) {}

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = nop
		return
	}
	Logf = f
}

// SetDebugLogger replaces the debug logger. Passing nil mutes it.
func SetDebugLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Debugf = nop
		return
	}
	Debugf = f
}
