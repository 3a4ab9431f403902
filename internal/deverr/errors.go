// Package deverr collects the internal error taxonomy shared by every
// component of the scanner and aggregator (spec §7). Call sites wrap one of
// these sentinels with fmt.Errorf("...: %w", ...) so callers can still
// errors.Is against the kind while getting a human message.
package deverr

import "errors"

var (
	// ErrParse covers JSON/integer decode failures on the wire.
	ErrParse = errors.New("parse error")

	// ErrMissingField is reported when a mountable device is missing a
	// required UEvent attribute during graph construction.
	ErrMissingField = errors.New("missing field")

	// ErrPoolNotFound is a reducer referential-integrity failure: an
	// operation named a pool guid absent from State.
	ErrPoolNotFound = errors.New("pool not found")

	// ErrZfsNotFound is a reducer referential-integrity failure: an
	// operation named a dataset absent from its pool.
	ErrZfsNotFound = errors.New("dataset not found")

	// ErrGraphCycle is returned when a Parent edge would close a cycle.
	ErrGraphCycle = errors.New("graph cycle")

	// ErrUnmountableRecord is returned when a Host or VolumeGroup leaf
	// was about to be emitted as a mountable device record.
	ErrUnmountableRecord = errors.New("unmountable record")
)
