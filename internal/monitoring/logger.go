// Package monitoring holds the swappable diagnostic logger used on hot paths
// such as the control tick.
package monitoring

import (
	"log"
	"sync/atomic"
)

type logFunc func(format string, v ...interface{})

var current atomic.Pointer[logFunc]

func init() {
	SetLogger(log.Printf)
}

// Logf writes a diagnostic line through the current logger. It defaults to
// log.Printf.
func Logf(format string, v ...interface{}) {
	(*current.Load())(format, v...)
}

// SetLogger replaces the package logger. Passing nil mutes it.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	lf := logFunc(f)
	current.Store(&lf)
}

// Mute silences Logf until the returned function is called. Intended for
// tests.
func Mute() (restore func()) {
	prev := current.Load()
	SetLogger(nil)
	return func() { current.Store(prev) }
}
