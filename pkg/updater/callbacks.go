// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package updater

import (
	"time"

	"github.com/Thermoquad/jlupdate/pkg/jlproto"
)

// Progress describes the transfer after a served READ request.
type Progress struct {
	// Offset and Length of the request just served
	Offset uint32
	Length uint32

	// Requests served so far
	Requests int

	// BytesSent since the last START, TotalBytesSent over the run
	BytesSent      uint64
	TotalBytesSent uint64

	ElapsedTime time.Duration
}

// ProgressCallback is called after every served READ request.
// Implementations should return quickly; the device is waiting.
type ProgressCallback func(Progress)

// Fault kinds passed to Recorder.Fault
const (
	FaultCRC       = "crc"
	FaultResync    = "resync"
	FaultOverflow  = "overflow"
	FaultMalformed = "malformed"
	FaultUnknown   = "unknown_command"
	FaultDevice    = "device_error"
)

// Recorder receives counters from a run. internal/metrics provides a
// Prometheus implementation.
type Recorder interface {
	FrameReceived(cmd jlproto.CommandID)
	FrameSent(cmd jlproto.CommandID, size int)
	Fault(kind string)
	FirmwareServed(n int)
	BaudRateChanged(baud int)
}

type nopRecorder struct{}

func (nopRecorder) FrameReceived(jlproto.CommandID)  {}
func (nopRecorder) FrameSent(jlproto.CommandID, int) {}
func (nopRecorder) Fault(string)                     {}
func (nopRecorder) FirmwareServed(int)               {}
func (nopRecorder) BaudRateChanged(int)              {}
