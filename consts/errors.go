// Package consts holds sentinel errors and other small constants shared
// across the mailing-set core packages.
package consts

import "errors"

var (
	// ErrCycle is returned by universe construction when a list's member
	// references form a cycle.
	ErrCycle = errors.New("cyclic list reference")

	// ErrCoreInternal marks a failure that should surface to the SMTP
	// layer as a transient 451, not a permanent 550.
	ErrCoreInternal = errors.New("internal error")

	// ErrRelayHandoff is returned by the relay dispatcher when it cannot
	// accept a message for delivery synchronously.
	ErrRelayHandoff = errors.New("relay handoff refused")
)
