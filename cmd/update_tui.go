// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/jlupdate/internal/config"
	"github.com/Thermoquad/jlupdate/internal/logging"
	"github.com/Thermoquad/jlupdate/pkg/jlproto"
	"github.com/Thermoquad/jlupdate/pkg/updater"
)

// Messages sent from the updater goroutine into the TUI
type (
	progressMsg updater.Progress
	baudMsg     int
	faultMsg    string
	logLineMsg  string
	runDoneMsg  struct{ err error }
	uiTickMsg   time.Time
)

type eventEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// updateModel is the bubbletea model for a running update
type updateModel struct {
	connInfo string
	firmware string
	size     int64

	bar       progress.Model
	highWater int64
	baud      int
	requests  int
	served    uint64
	faults    map[string]int

	events    []eventEntry
	maxEvents int

	startTime time.Time
	elapsed   time.Duration
	aborting  bool
	done      bool
	err       error

	// cancel aborts the updater run
	cancel context.CancelFunc
}

func newUpdateModel(connInfo, firmware string, size int64, baud int, cancel context.CancelFunc) updateModel {
	return updateModel{
		connInfo:  connInfo,
		firmware:  firmware,
		size:      size,
		bar:       progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		baud:      baud,
		faults:    make(map[string]int),
		events:    make([]eventEntry, 0),
		maxEvents: 8,
		startTime: time.Now(),
		cancel:    cancel,
	}
}

func (m updateModel) Init() tea.Cmd {
	return uiTickCmd()
}

func uiTickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return uiTickMsg(t)
	})
}

func (m updateModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.done || m.aborting {
				return m, tea.Quit
			}
			// Wait for the run to unwind so the port is left in a known state
			m.aborting = true
			m.cancel()
			m.addEvent("Aborting...", true)
		}

	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-4, 60)

	case uiTickMsg:
		if m.done {
			return m, nil
		}
		m.elapsed = time.Since(m.startTime)
		return m, uiTickCmd()

	case progressMsg:
		end := int64(msg.Offset) + int64(msg.Length)
		if end > m.size {
			end = m.size
		}
		if end > m.highWater {
			m.highWater = end
		}
		m.requests = msg.Requests
		m.served = msg.TotalBytesSent

	case baudMsg:
		m.baud = int(msg)
		m.addEvent(fmt.Sprintf("Baud rate changed to %d", m.baud), false)

	case faultMsg:
		m.faults[string(msg)]++
		if string(msg) == updater.FaultDevice {
			m.addEvent("Device reported a failed END", true)
		}

	case logLineMsg:
		m.addEvent(string(msg), false)

	case runDoneMsg:
		m.done = true
		m.err = msg.err
		m.elapsed = time.Since(m.startTime)
		if msg.err != nil {
			m.addEvent(msg.err.Error(), true)
		} else {
			m.highWater = m.size
			m.addEvent("END: success", false)
		}
		return m, tea.Quit
	}

	return m, nil
}

func (m *updateModel) addEvent(message string, isError bool) {
	m.events = append(m.events, eventEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
	}
}

// percent is the share of the image served so far
func (m updateModel) percent() float64 {
	if m.size == 0 {
		if m.done && m.err == nil {
			return 1
		}
		return 0
	}
	return float64(m.highWater) / float64(m.size)
}

func (m updateModel) View() string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("jlupdate - Firmware Update"))
	s.WriteString("\n\n")

	field := func(label string, value any) {
		fmt.Fprintf(&s, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-12s", label+":")), valueStyle.Render(fmt.Sprint(value)))
	}
	field("Connection", m.connInfo)
	field("Firmware", fmt.Sprintf("%s (%d bytes)", m.firmware, m.size))
	field("Baud", m.baud)
	field("Requests", m.requests)
	field("Served", fmt.Sprintf("%d bytes", m.served))
	field("Elapsed", m.elapsed.Round(time.Second))
	s.WriteString("\n")
	s.WriteString(m.bar.ViewAs(m.percent()))
	s.WriteString("\n")

	if len(m.faults) > 0 {
		var parts []string
		for _, kind := range []string{
			updater.FaultCRC, updater.FaultResync, updater.FaultOverflow,
			updater.FaultMalformed, updater.FaultUnknown, updater.FaultDevice,
		} {
			if n := m.faults[kind]; n > 0 {
				parts = append(parts, fmt.Sprintf("%s=%d", kind, n))
			}
		}
		s.WriteString(warningStyle.Render("Faults: " + strings.Join(parts, " ")))
		s.WriteString("\n")
	}

	if len(m.events) > 0 {
		var log strings.Builder
		for i, e := range m.events {
			if i > 0 {
				log.WriteString("\n")
			}
			line := fmt.Sprintf("[%s] %s", e.timestamp.Format("15:04:05.000"), e.message)
			if e.isError {
				line = errorStyle.Render(line)
			}
			log.WriteString(line)
		}
		s.WriteString(boxStyle.Render(log.String()))
		s.WriteString("\n")
	}

	switch {
	case m.done:
	case m.aborting:
		s.WriteString(labelStyle.Render("Aborting, press q again to force quit"))
		s.WriteString("\n")
	default:
		s.WriteString(labelStyle.Render("Waiting for device requests... (q to abort)"))
		s.WriteString("\n")
	}

	return s.String()
}

// tuiRecorder forwards the events the TUI displays and passes every call on
// to next when set
type tuiRecorder struct {
	send func(tea.Msg)
	next updater.Recorder
}

func (r *tuiRecorder) FrameReceived(cmd jlproto.CommandID) {
	if r.next != nil {
		r.next.FrameReceived(cmd)
	}
}

func (r *tuiRecorder) FrameSent(cmd jlproto.CommandID, size int) {
	if r.next != nil {
		r.next.FrameSent(cmd, size)
	}
}

func (r *tuiRecorder) Fault(kind string) {
	r.send(faultMsg(kind))
	if r.next != nil {
		r.next.Fault(kind)
	}
}

func (r *tuiRecorder) FirmwareServed(n int) {
	if r.next != nil {
		r.next.FirmwareServed(n)
	}
}

func (r *tuiRecorder) BaudRateChanged(baud int) {
	r.send(baudMsg(baud))
	if r.next != nil {
		r.next.BaudRateChanged(baud)
	}
}

// programWriter turns each log entry into an event line in the TUI
type programWriter struct {
	send func(tea.Msg)
}

func (w programWriter) Write(p []byte) (int, error) {
	w.send(logLineMsg(strings.TrimRight(string(p), "\n")))
	return len(p), nil
}

// runUpdateTUI runs the updater in a goroutine and renders its progress.
// It returns once the run has finished.
func runUpdateTUI(
	ctx context.Context,
	cfg *config.Config,
	transport *SerialTransport,
	fw *updater.FileFirmware,
	opts []updater.Option,
	recorder updater.Recorder,
	session *updater.Session,
) (*updater.Updater, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newUpdateModel(transport.String(), fw.Name(), fw.Size(), session.BaudRate, cancel)
	p := tea.NewProgram(m)

	// Log entries go to the event pane instead of stderr while the TUI owns
	// the terminal
	tuiLogger, err := logging.NewLogger(cfg.Logging, programWriter{send: p.Send})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	defer tuiLogger.Sync()

	opts = append(opts,
		updater.WithLogger(tuiLogger.Named("updater")),
		updater.WithRecorder(&tuiRecorder{send: p.Send, next: recorder}),
		updater.WithProgressCallback(func(pr updater.Progress) {
			p.Send(progressMsg(pr))
		}),
	)
	u := updater.New(transport, fw, opts...)

	runErr := make(chan error, 1)
	go func() {
		err := u.Run(ctx, session)
		runErr <- err
		p.Send(runDoneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-runErr
		return u, fmt.Errorf("TUI error: %w", err)
	}

	// A forced quit leaves the run going; stop it before reporting
	cancel()
	return u, <-runErr
}
