// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jlproto

import (
	"fmt"
	"time"
)

// Statistics tracks reassembler throughput and recoverable faults
type Statistics struct {
	StartTime time.Time

	// Counters
	Frames          uint64
	BytesReceived   uint64
	CRCErrors       uint64
	MagicMismatches uint64 // one per byte shed during resync
	OversizeHeaders uint64
	Overflows       uint64
	BytesDiscarded  uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // faults/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{StartTime: time.Now()}
}

// Faults returns the number of recoverable framing and integrity faults
func (s *Statistics) Faults() uint64 {
	return s.CRCErrors + s.MagicMismatches + s.OversizeHeaders + s.Overflows
}

// CalculateRates calculates frame and fault rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.Frames) / elapsed
		s.ErrorRate = float64(s.Faults()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Bytes Received:  %8d\n", s.BytesReceived)
	result += fmt.Sprintf("Frames:          %8d\n", s.Frames)

	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d\n", s.CRCErrors)
	}
	if s.MagicMismatches > 0 {
		result += fmt.Sprintf("Resync Bytes:    %8d\n", s.MagicMismatches)
	}
	if s.OversizeHeaders > 0 {
		result += fmt.Sprintf("Oversize Hdrs:   %8d\n", s.OversizeHeaders)
	}
	if s.Overflows > 0 {
		result += fmt.Sprintf("Overflows:       %8d\n", s.Overflows)
	}
	if s.BytesDiscarded > 0 {
		result += fmt.Sprintf("Bytes Discarded: %8d\n", s.BytesDiscarded)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = Statistics{StartTime: time.Now()}
}
