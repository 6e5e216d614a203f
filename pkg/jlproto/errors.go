// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jlproto

import (
	"errors"
	"fmt"
)

var (
	// ErrShortFrame means more bytes are needed before a decision can be made.
	// It is never a fault.
	ErrShortFrame = errors.New("need more data")

	// ErrBadMagic means the buffer does not start with AA 55. The caller
	// drops exactly one byte and retries.
	ErrBadMagic = errors.New("magic mismatch")

	// ErrCRCMismatch is wrapped by *CRCError.
	ErrCRCMismatch = errors.New("CRC mismatch")

	// ErrBufferOverflow means the reassembler discarded its whole buffer
	// after exceeding the retained size limit.
	ErrBufferOverflow = errors.New("receive buffer overflow")

	// ErrEmptyPayload is returned when decoding a payload with no command byte.
	ErrEmptyPayload = errors.New("empty payload")
)

// CRCError reports a frame whose trailer did not match its contents.
type CRCError struct {
	Expected   uint16 // trailer value on the wire
	Calculated uint16
	FrameLen   int
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("CRC mismatch: frame carries 0x%04X, calculated 0x%04X (%d bytes discarded)",
		e.Expected, e.Calculated, e.FrameLen)
}

// Unwrap lets errors.Is match ErrCRCMismatch.
func (e *CRCError) Unwrap() error {
	return ErrCRCMismatch
}

// MalformedCommandError reports a payload whose body is too short for its command.
type MalformedCommandError struct {
	Command CommandID
	Got     int
	Want    int
}

func (e *MalformedCommandError) Error() string {
	return fmt.Sprintf("malformed %s: payload is %d bytes, need %d", e.Command, e.Got, e.Want)
}
