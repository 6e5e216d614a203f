// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jlproto

import "github.com/sigurn/crc16"

// CRC-16/XMODEM: poly 0x1021, init 0x0000, no reflection, no final xor
var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// Checksum computes the CRC-16/XMODEM checksum for the given data
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}
