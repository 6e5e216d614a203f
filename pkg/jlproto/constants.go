// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package jlproto implements the framing protocol spoken by the resident UART
// update bootloader.
//
// Every frame on the wire is laid out as:
//
//	AA 55 <length:u16 LE> <payload> <crc:u16 LE>
//
// where length counts the payload only and the CRC is CRC-16/XMODEM computed
// over magic, length and payload. The first payload byte is the command.
//
// The package provides frame encoding, a resynchronizing stream reassembler,
// command decoding and human-readable formatting.
package jlproto

// Frame start marker
const (
	Magic0 = 0xAA
	Magic1 = 0x55
)

// Frame size limits
const (
	HeaderSize     = 4 // magic + length
	TrailerSize    = 2 // crc
	FrameOverhead  = HeaderSize + TrailerSize
	MaxPayloadSize = 0xFFFF
	MaxFrameSize   = FrameOverhead + MaxPayloadSize
)

// Command layout
const (
	cmdIndex = 0

	// READ carries offset and length after the command byte
	ReadHeaderSize = 1 + 4 + 4

	// END carries a single error code after the command byte
	EndPayloadSize = 2
)

// DefaultUpgradeBaudRate is the rate the host authorizes in its START reply.
const DefaultUpgradeBaudRate = 1000000

// EndSuccess is the END error code reported by a device that finished
// programming without error.
const EndSuccess = 0x00
