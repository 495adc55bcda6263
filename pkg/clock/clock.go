// Package clock lets timer-driven code (reconnect backoff) run against a
// fake time source in tests.
package clock

import "time"

// Clock abstracts the time operations used by the stream.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f in its own goroutine (real) or during Advance
	// (fake) once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop prevents the call. It reports false if the call already
	// fired or was stopped.
	Stop() bool
}

// Real returns the wall clock.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
