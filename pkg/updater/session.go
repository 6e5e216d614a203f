// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package updater

import "time"

// State is the position of a run in the transfer state machine
type State int

// Session states
const (
	StateAwaitingReady State = iota
	StateRunning
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingReady:
		return "awaiting_ready"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further frames will be dispatched
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Session is the mutable state of one update run. The caller creates it,
// passes it to Updater.Run and reads the outcome afterwards; it must not be
// shared between concurrent runs.
type Session struct {
	State    State
	BaudRate int

	// BytesSent counts firmware bytes served since the last START
	BytesSent uint64

	// TotalBytesSent counts every firmware byte served in this run
	TotalBytesSent uint64

	Requests        int
	ProtocolFaults  int
	DeviceErrors    int
	LastDeviceError uint8

	StartedAt  time.Time
	FinishedAt time.Time
}

// NewSession creates a session for a transport currently running at baudRate
func NewSession(baudRate int) *Session {
	return &Session{
		State:     StateAwaitingReady,
		BaudRate:  baudRate,
		StartedAt: time.Now(),
	}
}

// Elapsed returns the run time so far, or the total once finished
func (s *Session) Elapsed() time.Duration {
	if !s.FinishedAt.IsZero() {
		return s.FinishedAt.Sub(s.StartedAt)
	}
	return time.Since(s.StartedAt)
}

func (s *Session) finish(state State) {
	s.State = state
	s.FinishedAt = time.Now()
}
