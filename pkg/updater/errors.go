// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package updater

import (
	"errors"
	"fmt"
)

// ErrShortRead is wrapped by *FirmwareReadError when the image ends before
// the requested range does.
var ErrShortRead = errors.New("requested range extends past end of firmware")

// ErrRequestTooLarge is wrapped by *FirmwareReadError when a READ asks for
// more bytes than fit in a single reply frame.
var ErrRequestTooLarge = errors.New("requested length does not fit in a reply frame")

// TransportError is a fatal failure of the serial link
type TransportError struct {
	Op  string // read, write, flush, set_baud
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// FirmwareReadError is a fatal failure serving a READ request
type FirmwareReadError struct {
	Offset uint32
	Length uint32
	Err    error
}

func (e *FirmwareReadError) Error() string {
	return fmt.Sprintf("firmware read at offset %d length %d: %v", e.Offset, e.Length, e.Err)
}

func (e *FirmwareReadError) Unwrap() error {
	return e.Err
}

// DeviceFailureError is returned when the device ends the run with a nonzero
// error code and the updater is configured to stop on it.
type DeviceFailureError struct {
	Code uint8
}

func (e *DeviceFailureError) Error() string {
	return fmt.Sprintf("device reported update failure: error code 0x%02X", e.Code)
}
