// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/jlupdate/pkg/jlproto"
)

var packetTestTimeout int

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid bootloader frame",
	Long: `Wait for a valid frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any frame
with correct magic, length and CRC, typically the bootloader's ALIVE or START.
Invalid bytes are skipped.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	addConnectionFlags(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection(cfg.Serial.Baud)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	printTitle("jlupdate - Frame Test")
	printField("Connection", connInfo)
	printField("Timeout", fmt.Sprintf("%d seconds", packetTestTimeout))
	fmt.Printf("Waiting for valid frame...\n\n")

	payloadChan := make(chan []byte, 1)
	errChan := make(chan error, 1)

	go func() {
		r := jlproto.NewReassembler()
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			for chunk := buf[:n]; ; chunk = nil {
				before := r.Buffered()
				payload, _ := r.Feed(chunk)
				if payload != nil {
					if skipped := r.Stats().BytesDiscarded; skipped > 0 {
						fmt.Printf("(skipped %d invalid bytes before sync)\n", skipped)
					}
					payloadChan <- payload
					return
				}
				if (chunk == nil && r.Buffered() == before) || r.Buffered() == 0 {
					break
				}
			}
		}
	}()

	select {
	case payload := <-payloadChan:
		fmt.Println(successStyle.Render("SUCCESS: Received valid frame"))
		fmt.Print(jlproto.FormatPayload(time.Now(), payload))
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(packetTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}

	return nil
}
