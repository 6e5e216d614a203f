// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jlproto

import "encoding/binary"

// CommandID is the first payload byte of every frame
type CommandID uint8

// Command values
const (
	CmdStart     CommandID = 0x01
	CmdRead      CommandID = 0x02
	CmdEnd       CommandID = 0x03
	CmdUpdateLen CommandID = 0x04
	CmdAlive     CommandID = 0x05
	CmdReady     CommandID = 0x06
)

// Command is a decoded payload. The set of implementations is closed: a type
// switch over the types below is exhaustive, with UnknownCommand covering
// command bytes this package does not recognize.
type Command interface {
	ID() CommandID
	command()
}

// StartCommand is sent by the device when it is ready to receive firmware.
// Any body bytes are ignored.
type StartCommand struct{}

// ReadCommand requests Length firmware bytes starting at Offset
type ReadCommand struct {
	Offset uint32
	Length uint32
}

// EndCommand reports the final result; ErrorCode 0 is success
type EndCommand struct {
	ErrorCode uint8
}

// UpdateLenCommand is acknowledged only
type UpdateLenCommand struct {
	Body []byte
}

// AliveCommand is the device keep-alive, acknowledged only
type AliveCommand struct {
	Body []byte
}

// ReadyCommand is normally host to device; a device echo is ignored
type ReadyCommand struct{}

// UnknownCommand carries an unrecognized command byte
type UnknownCommand struct {
	Code CommandID
	Body []byte
}

func (StartCommand) ID() CommandID     { return CmdStart }
func (ReadCommand) ID() CommandID      { return CmdRead }
func (EndCommand) ID() CommandID       { return CmdEnd }
func (UpdateLenCommand) ID() CommandID { return CmdUpdateLen }
func (AliveCommand) ID() CommandID     { return CmdAlive }
func (ReadyCommand) ID() CommandID     { return CmdReady }
func (u UnknownCommand) ID() CommandID { return u.Code }

func (StartCommand) command()     {}
func (ReadCommand) command()      {}
func (EndCommand) command()       {}
func (UpdateLenCommand) command() {}
func (AliveCommand) command()     {}
func (ReadyCommand) command()     {}
func (UnknownCommand) command()   {}

// DecodeCommand interprets a frame payload.
// Returns ErrEmptyPayload for a zero-length payload and
// *MalformedCommandError when a READ or END body is truncated.
func DecodeCommand(payload []byte) (Command, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}

	id := CommandID(payload[cmdIndex])
	body := payload[cmdIndex+1:]

	switch id {
	case CmdStart:
		return StartCommand{}, nil

	case CmdRead:
		if len(payload) < ReadHeaderSize {
			return nil, &MalformedCommandError{Command: id, Got: len(payload), Want: ReadHeaderSize}
		}
		return ReadCommand{
			Offset: binary.LittleEndian.Uint32(body[0:4]),
			Length: binary.LittleEndian.Uint32(body[4:8]),
		}, nil

	case CmdEnd:
		if len(payload) < EndPayloadSize {
			return nil, &MalformedCommandError{Command: id, Got: len(payload), Want: EndPayloadSize}
		}
		return EndCommand{ErrorCode: body[0]}, nil

	case CmdUpdateLen:
		return UpdateLenCommand{Body: body}, nil

	case CmdAlive:
		return AliveCommand{Body: body}, nil

	case CmdReady:
		return ReadyCommand{}, nil

	default:
		return UnknownCommand{Code: id, Body: body}, nil
	}
}

// ReadyPayload builds the READY payload the host sends before the main loop
func ReadyPayload() []byte {
	return []byte{byte(CmdReady)}
}

// StartReplyPayload builds the host's START reply authorizing baudRate
func StartReplyPayload(baudRate uint32) []byte {
	payload := make([]byte, 1, 5)
	payload[0] = byte(CmdStart)
	return binary.LittleEndian.AppendUint32(payload, baudRate)
}

// Header returns the 9-byte READ prefix: command, offset, length
func (c ReadCommand) Header() []byte {
	header := make([]byte, 1, ReadHeaderSize)
	header[0] = byte(CmdRead)
	header = binary.LittleEndian.AppendUint32(header, c.Offset)
	return binary.LittleEndian.AppendUint32(header, c.Length)
}

// ReplyPayload echoes the request header followed by the firmware bytes
func (c ReadCommand) ReplyPayload(data []byte) []byte {
	payload := make([]byte, 0, ReadHeaderSize+len(data))
	payload = append(payload, c.Header()...)
	return append(payload, data...)
}

// EndPayload builds an END payload (device side; used by tests and tooling)
func EndPayload(code uint8) []byte {
	return []byte{byte(CmdEnd), code}
}

// ReadRequestPayload builds a READ request (device side)
func ReadRequestPayload(offset, length uint32) []byte {
	return ReadCommand{Offset: offset, Length: length}.Header()
}
