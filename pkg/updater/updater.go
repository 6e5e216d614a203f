// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package updater drives a firmware update against the UART bootloader.
//
// The device leads: after the host announces READY, the bootloader sends
// START (the host answers with the upgrade baud rate and switches to it),
// then a series of READ requests served from the firmware image, and finally
// END with a result code. The Updater is purely reactive; lost or corrupted
// frames are re-requested by the device, never resent by the host.
package updater

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/jlupdate/pkg/jlproto"
	"go.uber.org/zap"
)

// Transport is the serial link to the device. The updater never opens or
// closes it.
type Transport interface {
	// Read returns whatever arrived within the transport's read timeout;
	// (0, nil) means nothing arrived.
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)

	// Flush blocks until written bytes have left the transmitter
	Flush() error

	SetBaudRate(baud int) error
}

// Updater runs the transfer state machine for one device.
//
// An Updater is not safe for concurrent use; the Session, the receive
// buffer and the firmware source are owned by the goroutine calling Run.
type Updater struct {
	transport   Transport
	firmware    Firmware
	config      Config
	log         *zap.Logger
	reassembler *jlproto.Reassembler
	readBuf     []byte
	sleep       func(time.Duration)
}

// New creates an Updater serving firmware over transport.
//
// Example:
//
//	fw, _ := updater.OpenFirmware("update.ufw")
//	u := updater.New(port, fw, updater.WithLogger(logger))
//	err := u.Run(ctx, updater.NewSession(9600))
func New(transport Transport, firmware Firmware, opts ...Option) *Updater {
	if transport == nil {
		panic("transport cannot be nil")
	}
	if firmware == nil {
		panic("firmware cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	r := jlproto.NewReassembler()
	r.SetMaxBuffered(cfg.MaxBuffered)
	r.SetMaxPayload(cfg.MaxPayload)

	return &Updater{
		transport:   transport,
		firmware:    firmware,
		config:      cfg,
		log:         cfg.Logger,
		reassembler: r,
		readBuf:     make([]byte, cfg.ReadSize),
		sleep:       time.Sleep,
	}
}

// Stats returns the receive-side framing statistics
func (u *Updater) Stats() *jlproto.Statistics {
	return u.reassembler.Stats()
}

// Run announces READY and processes device requests until the session
// reaches a terminal state, a fatal I/O error occurs, or ctx is done.
//
// Recoverable faults (bad framing, CRC mismatches, unknown commands) are
// logged and counted but never returned. The core imposes no deadline of its
// own; pass a ctx with a timeout to bound the run.
func (u *Updater) Run(ctx context.Context, s *Session) error {
	if s.State == StateAwaitingReady {
		if err := u.Begin(s); err != nil {
			return err
		}
	}

	for !s.State.Terminal() {
		if err := ctx.Err(); err != nil {
			u.log.Warn("update aborted",
				zap.Error(err),
				zap.Uint64("total_bytes_sent", s.TotalBytesSent),
				zap.Int("requests", s.Requests),
			)
			return fmt.Errorf("update aborted: %w", err)
		}
		if err := u.Poll(s); err != nil {
			return err
		}
	}

	if s.State == StateFailed {
		return &DeviceFailureError{Code: s.LastDeviceError}
	}

	u.log.Info("update complete",
		zap.Int("requests", s.Requests),
		zap.Uint64("total_bytes_sent", s.TotalBytesSent),
		zap.Duration("elapsed", s.Elapsed()),
	)
	return nil
}

// Begin sends READY to the device and moves the session to running
func (u *Updater) Begin(s *Session) error {
	if s.State != StateAwaitingReady {
		return fmt.Errorf("begin: session already %s", s.State)
	}

	u.log.Info("sending READY", zap.Int("baud", s.BaudRate))
	if err := u.send(jlproto.CmdReady, jlproto.ReadyPayload()); err != nil {
		return err
	}

	s.State = StateRunning
	return nil
}

// Poll performs one bounded read from the transport, feeds it to the
// reassembler and dispatches up to FramesPerFeed payloads.
//
// The reassembler is fed even when nothing arrived, so buffered garbage keeps
// draining one byte per poll while the line is quiet.
func (u *Updater) Poll(s *Session) error {
	n, err := u.transport.Read(u.readBuf)
	if err != nil {
		return &TransportError{Op: "read", Err: err}
	}

	chunk := u.readBuf[:n]
	if n == 0 && u.reassembler.Buffered() == 0 {
		return nil
	}

	stats := u.reassembler.Stats()
	for dispatched := 0; dispatched < u.config.FramesPerFeed; dispatched++ {
		resyncBefore := stats.MagicMismatches + stats.OversizeHeaders

		payload, err := u.reassembler.Feed(chunk)
		chunk = nil

		if stats.MagicMismatches+stats.OversizeHeaders > resyncBefore {
			u.config.Recorder.Fault(FaultResync)
		}
		if err != nil {
			u.frameFault(err)
			return nil
		}
		if payload == nil {
			return nil
		}

		if err := u.Handle(s, payload); err != nil {
			return err
		}
		if s.State.Terminal() {
			return nil
		}
	}
	return nil
}

// Handle dispatches one frame payload. Frames arriving after the session
// reached a terminal state are ignored.
func (u *Updater) Handle(s *Session, payload []byte) error {
	if s.State.Terminal() {
		return nil
	}
	if s.State != StateRunning {
		return fmt.Errorf("handle: session is %s, call Begin first", s.State)
	}

	cmd, err := jlproto.DecodeCommand(payload)
	if err != nil {
		s.ProtocolFaults++
		u.config.Recorder.Fault(FaultMalformed)
		u.log.Warn("malformed command ignored",
			zap.Error(err),
			zap.String("payload", fmt.Sprintf("%X", payload)),
		)
		return nil
	}

	u.config.Recorder.FrameReceived(cmd.ID())

	switch c := cmd.(type) {
	case jlproto.ReadyCommand:
		u.log.Debug("READY from device ignored")

	case jlproto.StartCommand:
		return u.handleStart(s)

	case jlproto.ReadCommand:
		return u.handleRead(s, c)

	case jlproto.EndCommand:
		u.handleEnd(s, c)

	case jlproto.UpdateLenCommand:
		u.log.Info("UPDATE_LEN", zap.String("body", fmt.Sprintf("%X", c.Body)))

	case jlproto.AliveCommand:
		u.log.Debug("ALIVE", zap.String("body", fmt.Sprintf("%X", c.Body)))

	case jlproto.UnknownCommand:
		s.ProtocolFaults++
		u.config.Recorder.Fault(FaultUnknown)
		u.log.Warn("unknown command ignored",
			zap.Uint8("cmd", uint8(c.Code)),
			zap.Int("len", len(payload)),
		)
	}

	return nil
}

// handleStart authorizes the upgrade baud rate. The reply must physically
// leave the wire at the old rate before the transport switches, hence
// write, flush, settle, then reconfigure.
func (u *Updater) handleStart(s *Session) error {
	baud := u.config.UpgradeBaudRate
	u.log.Info("START", zap.Uint32("upgrade_baud", baud))

	if err := u.send(jlproto.CmdStart, jlproto.StartReplyPayload(baud)); err != nil {
		return err
	}
	if err := u.transport.Flush(); err != nil {
		return &TransportError{Op: "flush", Err: err}
	}

	u.sleep(u.config.SettleDelay)

	if err := u.transport.SetBaudRate(int(baud)); err != nil {
		return &TransportError{Op: "set_baud", Err: err}
	}

	s.BaudRate = int(baud)
	s.BytesSent = 0
	u.config.Recorder.BaudRateChanged(int(baud))
	u.log.Info("baud rate changed", zap.Int("baud", s.BaudRate))
	return nil
}

// handleRead serves a firmware range. Any failure to produce the full range
// is fatal for the run.
func (u *Updater) handleRead(s *Session, c jlproto.ReadCommand) error {
	u.log.Debug("READ", zap.Uint32("offset", c.Offset), zap.Uint32("length", c.Length))

	if c.Length > jlproto.MaxPayloadSize-jlproto.ReadHeaderSize {
		return &FirmwareReadError{Offset: c.Offset, Length: c.Length, Err: ErrRequestTooLarge}
	}

	data, err := u.firmware.ReadAt(c.Offset, c.Length)
	if err != nil {
		return &FirmwareReadError{Offset: c.Offset, Length: c.Length, Err: err}
	}

	if err := u.send(jlproto.CmdRead, c.ReplyPayload(data)); err != nil {
		return err
	}

	s.Requests++
	s.BytesSent += uint64(c.Length)
	s.TotalBytesSent += uint64(c.Length)
	u.config.Recorder.FirmwareServed(len(data))

	if u.config.ProgressCallback != nil {
		u.config.ProgressCallback(Progress{
			Offset:         c.Offset,
			Length:         c.Length,
			Requests:       s.Requests,
			BytesSent:      s.BytesSent,
			TotalBytesSent: s.TotalBytesSent,
			ElapsedTime:    s.Elapsed(),
		})
	}
	return nil
}

func (u *Updater) handleEnd(s *Session, c jlproto.EndCommand) {
	if c.ErrorCode == jlproto.EndSuccess {
		s.finish(StateSucceeded)
		u.log.Info("END: success")
		return
	}

	s.DeviceErrors++
	s.LastDeviceError = c.ErrorCode
	u.config.Recorder.Fault(FaultDevice)

	if u.config.StopOnDeviceFailure {
		s.finish(StateFailed)
		u.log.Error("END: device reported failure", zap.Uint8("errcode", c.ErrorCode))
		return
	}
	u.log.Warn("END: device reported failure, waiting for device",
		zap.Uint8("errcode", c.ErrorCode),
	)
}

// send encodes and writes one frame
func (u *Updater) send(cmd jlproto.CommandID, payload []byte) error {
	frame := jlproto.Encode(payload)
	if _, err := u.transport.Write(frame); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	u.config.Recorder.FrameSent(cmd, len(frame))
	u.log.Debug("frame sent", zap.Stringer("cmd", cmd), zap.Int("size", len(frame)))
	return nil
}

// frameFault records a recoverable receive-side fault
func (u *Updater) frameFault(err error) {
	switch {
	case errors.Is(err, jlproto.ErrCRCMismatch):
		u.config.Recorder.Fault(FaultCRC)
		u.log.Warn("frame dropped", zap.Error(err))
	case errors.Is(err, jlproto.ErrBufferOverflow):
		u.config.Recorder.Fault(FaultOverflow)
		u.log.Warn("receive buffer discarded", zap.Error(err))
	default:
		u.log.Warn("receive fault", zap.Error(err))
	}
}
