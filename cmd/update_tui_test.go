// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/jlupdate/pkg/jlproto"
	"github.com/Thermoquad/jlupdate/pkg/updater"
)

func stepModel(t *testing.T, m updateModel, msg tea.Msg) (updateModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	um, ok := next.(updateModel)
	require.True(t, ok)
	return um, cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func keyQ() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
}

func TestUpdateModel_Progress(t *testing.T) {
	m := newUpdateModel("/dev/ttyUSB0 @ 9600", "fw.ufw", 1000, 9600, func() {})

	m, _ = stepModel(t, m, progressMsg{Offset: 0, Length: 256, Requests: 1, TotalBytesSent: 256})
	assert.Equal(t, int64(256), m.highWater)
	assert.InDelta(t, 0.256, m.percent(), 1e-9)

	// A re-requested range does not move the bar back
	m, _ = stepModel(t, m, progressMsg{Offset: 0, Length: 128, Requests: 2, TotalBytesSent: 384})
	assert.Equal(t, int64(256), m.highWater)
	assert.Equal(t, 2, m.requests)
	assert.Equal(t, uint64(384), m.served)

	// Requests past the end are clamped to the image size
	m, _ = stepModel(t, m, progressMsg{Offset: 900, Length: 256, Requests: 3})
	assert.Equal(t, int64(1000), m.highWater)
	assert.InDelta(t, 1.0, m.percent(), 1e-9)
}

func TestUpdateModel_BaudAndFaults(t *testing.T) {
	m := newUpdateModel("port", "fw.ufw", 64, 9600, func() {})

	m, _ = stepModel(t, m, baudMsg(1000000))
	assert.Equal(t, 1000000, m.baud)
	require.Len(t, m.events, 1)
	assert.Contains(t, m.events[0].message, "1000000")

	m, _ = stepModel(t, m, faultMsg(updater.FaultCRC))
	m, _ = stepModel(t, m, faultMsg(updater.FaultCRC))
	m, _ = stepModel(t, m, faultMsg(updater.FaultDevice))
	assert.Equal(t, 2, m.faults[updater.FaultCRC])
	assert.Equal(t, 1, m.faults[updater.FaultDevice])
	require.Len(t, m.events, 2)
	assert.True(t, m.events[1].isError)

	view := m.View()
	assert.Contains(t, view, "crc=2")
	assert.Contains(t, view, "device_error=1")
	assert.Contains(t, view, "1000000")
}

func TestUpdateModel_EventsCapped(t *testing.T) {
	m := newUpdateModel("port", "fw.ufw", 64, 9600, func() {})

	for i := 0; i < m.maxEvents+5; i++ {
		m, _ = stepModel(t, m, logLineMsg("line"))
	}
	assert.Len(t, m.events, m.maxEvents)
}

func TestUpdateModel_QuitAbortsFirst(t *testing.T) {
	cancelled := 0
	m := newUpdateModel("port", "fw.ufw", 64, 9600, func() { cancelled++ })

	m, cmd := stepModel(t, m, keyQ())
	assert.Equal(t, 1, cancelled)
	assert.True(t, m.aborting)
	assert.False(t, isQuit(cmd), "first q waits for the run to stop")
	assert.Contains(t, m.View(), "force quit")

	_, cmd = stepModel(t, m, keyQ())
	assert.True(t, isQuit(cmd))
	assert.Equal(t, 1, cancelled)
}

func TestUpdateModel_RunDone(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		m := newUpdateModel("port", "fw.ufw", 64, 9600, func() {})
		m, cmd := stepModel(t, m, runDoneMsg{})
		assert.True(t, isQuit(cmd))
		assert.True(t, m.done)
		assert.InDelta(t, 1.0, m.percent(), 1e-9)
		assert.NotContains(t, m.View(), "Waiting for device")
	})

	t.Run("failure", func(t *testing.T) {
		m := newUpdateModel("port", "fw.ufw", 64, 9600, func() {})
		m, cmd := stepModel(t, m, runDoneMsg{err: errors.New("device failure")})
		assert.True(t, isQuit(cmd))
		assert.EqualError(t, m.err, "device failure")
		assert.Zero(t, m.percent())
		assert.Contains(t, m.View(), "device failure")
	})
}

func TestUpdateModel_WindowResize(t *testing.T) {
	m := newUpdateModel("port", "fw.ufw", 64, 9600, func() {})

	m, _ = stepModel(t, m, tea.WindowSizeMsg{Width: 30, Height: 20})
	assert.Equal(t, 26, m.bar.Width)

	m, _ = stepModel(t, m, tea.WindowSizeMsg{Width: 200, Height: 20})
	assert.Equal(t, 60, m.bar.Width)
}

// fakeRecorder counts calls it receives
type fakeRecorder struct {
	received, sent, faults, served, bauds int
}

func (r *fakeRecorder) FrameReceived(jlproto.CommandID)  { r.received++ }
func (r *fakeRecorder) FrameSent(jlproto.CommandID, int) { r.sent++ }
func (r *fakeRecorder) Fault(string)                     { r.faults++ }
func (r *fakeRecorder) FirmwareServed(int)               { r.served++ }
func (r *fakeRecorder) BaudRateChanged(int)              { r.bauds++ }

func TestTUIRecorder(t *testing.T) {
	var msgs []tea.Msg
	next := &fakeRecorder{}
	r := &tuiRecorder{send: func(m tea.Msg) { msgs = append(msgs, m) }, next: next}

	r.FrameReceived(jlproto.CmdRead)
	r.FrameSent(jlproto.CmdRead, 64)
	r.FirmwareServed(58)
	r.Fault(updater.FaultResync)
	r.BaudRateChanged(1000000)

	assert.Equal(t, []tea.Msg{faultMsg(updater.FaultResync), baudMsg(1000000)}, msgs)
	assert.Equal(t, fakeRecorder{received: 1, sent: 1, faults: 1, served: 1, bauds: 1}, *next)

	// No downstream recorder
	r = &tuiRecorder{send: func(tea.Msg) {}}
	assert.NotPanics(t, func() {
		r.FrameReceived(jlproto.CmdEnd)
		r.Fault(updater.FaultCRC)
	})
}

func TestProgramWriter(t *testing.T) {
	var msgs []tea.Msg
	w := programWriter{send: func(m tea.Msg) { msgs = append(msgs, m) }}

	n, err := w.Write([]byte("INFO\tupdater\tbaud rate changed\n"))
	require.NoError(t, err)
	assert.Equal(t, 31, n)
	assert.Equal(t, []tea.Msg{logLineMsg("INFO\tupdater\tbaud rate changed")}, msgs)
}
