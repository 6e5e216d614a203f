// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jlproto

import (
	"fmt"
	"strings"
	"time"
)

// String returns the protocol name for a command
func (c CommandID) String() string {
	switch c {
	case CmdStart:
		return "START"
	case CmdRead:
		return "READ"
	case CmdEnd:
		return "END"
	case CmdUpdateLen:
		return "UPDATE_LEN"
	case CmdAlive:
		return "ALIVE"
	case CmdReady:
		return "READY"
	default:
		return "UNKNOWN"
	}
}

// FormatPayload formats a raw frame payload into a human-readable string,
// prefixed with the given timestamp
func FormatPayload(ts time.Time, payload []byte) string {
	timestamp := ts.Format("15:04:05.000")
	if len(payload) == 0 {
		return fmt.Sprintf("[%s] EMPTY len=0\n", timestamp)
	}

	id := CommandID(payload[cmdIndex])
	result := fmt.Sprintf("[%s] %s (0x%02X) len=%d\n", timestamp, id, uint8(id), len(payload))

	cmd, err := DecodeCommand(payload)
	if err != nil {
		return result + fmt.Sprintf("  Malformed: %v\n", err) + FormatHex(payload)
	}
	return result + FormatCommand(cmd)
}

// FormatCommand returns the indented detail lines for a decoded command
func FormatCommand(cmd Command) string {
	switch c := cmd.(type) {
	case StartCommand, ReadyCommand:
		return "  (no payload)\n"

	case ReadCommand:
		return fmt.Sprintf("  Offset: %d (0x%08X), Length: %d\n", c.Offset, c.Offset, c.Length)

	case EndCommand:
		if c.ErrorCode == EndSuccess {
			return "  Result: SUCCESS\n"
		}
		return fmt.Sprintf("  Result: FAILED, Error: 0x%02X\n", c.ErrorCode)

	case UpdateLenCommand:
		return FormatHex(c.Body)

	case AliveCommand:
		return FormatHex(c.Body)

	case UnknownCommand:
		return fmt.Sprintf("  Unrecognized command 0x%02X\n", uint8(c.Code)) + FormatHex(c.Body)
	}

	return ""
}

// FormatHex renders bytes as a 16-per-line hex dump
func FormatHex(data []byte) string {
	if len(data) == 0 {
		return "  (no payload)\n"
	}

	var sb strings.Builder
	sb.WriteString("  Payload: ")
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			sb.WriteString("\n           ")
		}
		fmt.Fprintf(&sb, "%02X ", b)
	}
	sb.WriteString("\n")
	return sb.String()
}
