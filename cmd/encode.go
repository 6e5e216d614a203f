// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/jlupdate/pkg/jlproto"
)

var (
	encodeOffset  uint32
	encodeLength  uint32
	encodeVerbose bool
)

var encodeCmd = &cobra.Command{
	Use:   "encode <command> [hex body]",
	Short: "Print a wire frame for a command",
	Long: `Build a frame and print it as hex, for bench testing and test vectors.

<command> is a name (start, read, end, update_len, alive, ready) or a numeric
code (e.g. 6 or 0x06). The optional body is hex; spaces are ignored.

For read without a body, --offset and --length build the request header.

Examples:
  jlupdate encode ready                 # aa5501000642f2
  jlupdate encode start 40420f00        # START reply for 1000000 baud
  jlupdate encode read --offset 1024 --length 16
  jlupdate encode end 00`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runEncode,
}

var decodeCmd = &cobra.Command{
	Use:   "decode <hex frame>",
	Short: "Verify and describe a wire frame",
	Long: `Parse a hex-encoded frame, check magic, length and CRC, and print the
decoded command.`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(decodeCmd)
	encodeCmd.Flags().Uint32Var(&encodeOffset, "offset", 0, "READ offset (read without body)")
	encodeCmd.Flags().Uint32Var(&encodeLength, "length", 0, "READ length (read without body)")
	encodeCmd.Flags().BoolVarP(&encodeVerbose, "verbose", "v", false, "Also print the decoded payload")
}

func runEncode(cmd *cobra.Command, args []string) error {
	id, err := parseCommandID(args[0])
	if err != nil {
		return err
	}

	var body []byte
	if len(args) == 2 {
		body, err = parseHex(args[1])
		if err != nil {
			return fmt.Errorf("body: %w", err)
		}
	} else if id == jlproto.CmdRead {
		body = jlproto.ReadRequestPayload(encodeOffset, encodeLength)[1:]
	}

	payload := append([]byte{byte(id)}, body...)
	if len(payload) > jlproto.MaxPayloadSize {
		return fmt.Errorf("payload of %d bytes exceeds %d", len(payload), jlproto.MaxPayloadSize)
	}

	fmt.Println(hex.EncodeToString(jlproto.Encode(payload)))
	if encodeVerbose {
		fmt.Print(jlproto.FormatPayload(time.Now(), payload))
	}
	return nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	frame, err := parseHex(args[0])
	if err != nil {
		return err
	}

	payload, crc, trailing, err := decodeFrame(frame)
	if err != nil {
		return err
	}

	printField("Length", len(payload))
	printField("CRC", fmt.Sprintf("0x%04X", crc))
	if trailing > 0 {
		printField("Trailing", fmt.Sprintf("%d bytes ignored", trailing))
	}
	fmt.Print(jlproto.FormatPayload(time.Now(), payload))
	return nil
}

// decodeFrame verifies the frame at the start of data and returns its
// payload, its CRC and the number of bytes that follow it
func decodeFrame(data []byte) (payload []byte, crc uint16, trailing int, err error) {
	totalLen, err := jlproto.ParseHeader(data)
	if err != nil {
		return nil, 0, 0, err
	}
	payload, rest, err := jlproto.Unframe(data, totalLen)
	if err != nil {
		return nil, 0, 0, err
	}
	return payload, jlproto.Checksum(data[:totalLen-jlproto.TrailerSize]), len(rest), nil
}

// parseCommandID accepts a command name or a numeric code
func parseCommandID(s string) (jlproto.CommandID, error) {
	for id := jlproto.CmdStart; id <= jlproto.CmdReady; id++ {
		if strings.EqualFold(s, id.String()) {
			return id, nil
		}
	}

	code, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown command %q", s)
	}
	return jlproto.CommandID(code), nil
}

// parseHex decodes hex with optional spaces, colons and 0x prefix
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "", "\t", "").Replace(s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return data, nil
}
