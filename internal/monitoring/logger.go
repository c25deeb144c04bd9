// Package monitoring carries the pipeline's diagnostic logger. Analysis
// stages log through the package-level Logf so batch runs, the CLI, and
// tests can redirect or mute diagnostics without plumbing a logger through
// every component.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf
// and may be replaced with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger, which mutes stage diagnostics entirely.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Stage returns a logger that prefixes every line with the stage name, for
// components that emit several diagnostics per run.
func Stage(name string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf("["+name+"] "+format, v...)
	}
}
