package speedtest

import "errors"

var (
	// ErrMethodExhausted reports that a measurement method ran but
	// produced no successful download sample, so the next method in the
	// chain should be tried.
	ErrMethodExhausted = errors.New("no successful download sample")

	// ErrAllMethodsFailed is the terminal failure: every configured
	// method was tried and none produced a usable measurement.
	ErrAllMethodsFailed = errors.New("all measurement methods failed")

	// ErrNoServers reports that no probe server is available to measure
	// against.
	ErrNoServers = errors.New("no probe servers available")
)
