// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jlproto

import (
	"encoding/binary"
	"fmt"
)

// Encode wraps a payload into a wire frame: magic, length, payload, CRC.
// Panics if the payload does not fit the 16-bit length field; that is a
// programming error, not a runtime condition.
func Encode(payload []byte) []byte {
	if len(payload) > MaxPayloadSize {
		panic(fmt.Sprintf("jlproto: payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize))
	}

	frame := make([]byte, HeaderSize, FrameOverhead+len(payload))
	frame[0] = Magic0
	frame[1] = Magic1
	binary.LittleEndian.PutUint16(frame[2:4], uint16(len(payload)))
	frame = append(frame, payload...)

	// CRC covers header and payload, never the trailer itself
	return binary.LittleEndian.AppendUint16(frame, Checksum(frame))
}

// ParseHeader decides whether a frame starts at offset 0 of buf.
// It returns the total frame length (header + payload + trailer) on success,
// ErrShortFrame when fewer than HeaderSize bytes are available, and
// ErrBadMagic when the first two bytes are not the start marker.
func ParseHeader(buf []byte) (int, error) {
	if len(buf) < HeaderSize {
		return 0, ErrShortFrame
	}
	if buf[0] != Magic0 || buf[1] != Magic1 {
		return 0, ErrBadMagic
	}
	length := int(binary.LittleEndian.Uint16(buf[2:4]))
	return HeaderSize + length + TrailerSize, nil
}

// Unframe verifies the frame of totalLen bytes at the start of buf.
//
// On success it returns the payload (a subslice of buf) and the bytes after
// the frame. When fewer than totalLen bytes are present it returns
// ErrShortFrame and rest is buf unchanged. On a CRC mismatch the whole
// candidate frame is sacrificed: rest starts strictly after totalLen and the
// error is a *CRCError.
func Unframe(buf []byte, totalLen int) (payload, rest []byte, err error) {
	if len(buf) < totalLen {
		return nil, buf, ErrShortFrame
	}

	body := buf[:totalLen-TrailerSize]
	expected := binary.LittleEndian.Uint16(buf[totalLen-TrailerSize : totalLen])
	calculated := Checksum(body)
	if expected != calculated {
		return nil, buf[totalLen:], &CRCError{
			Expected:   expected,
			Calculated: calculated,
			FrameLen:   totalLen,
		}
	}

	return body[HeaderSize:], buf[totalLen:], nil
}

// Decode parses a single complete frame and returns its payload.
// Trailing bytes after the frame are ignored.
func Decode(frame []byte) ([]byte, error) {
	totalLen, err := ParseHeader(frame)
	if err != nil {
		return nil, err
	}
	payload, _, err := Unframe(frame, totalLen)
	if err != nil {
		return nil, err
	}
	return payload, nil
}
