// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/jlupdate/pkg/jlproto"
)

var statsInterval int

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display frames on the link in human-readable format",
	Long: `Continuously decode and display bootloader frames as they arrive.

Useful with a tap on the device's TX line or a WebSocket serial bridge to
watch an update run by another host. Each frame is shown with timestamp,
command and decoded fields; CRC failures are reported inline, and a
statistics summary is printed every --stats-interval seconds.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	addConnectionFlags(rawLogCmd)
	rawLogCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics interval in seconds (0 disables)")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	conn, connInfo, err := OpenConnection(cfg.Serial.Baud)
	if err != nil {
		return err
	}
	defer conn.Close()

	printTitle("jlupdate - Raw Frame Log")
	printField("Connection", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Reads block on WebSocket connections, so they run in their own goroutine
	chunks := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				readErr <- err
				return
			}
			if n == 0 {
				continue
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case chunks <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	var tick <-chan time.Time
	if statsInterval > 0 {
		ticker := time.NewTicker(time.Duration(statsInterval) * time.Second)
		defer ticker.Stop()
		tick = ticker.C
	}

	r := jlproto.NewReassembler()
	for {
		select {
		case data := <-chunks:
			drainFrames(r, data)

		case err := <-readErr:
			if errors.Is(err, ErrConnectionClosed) {
				logger.Info("connection closed")
				return nil
			}
			logger.Error("read failed", zap.Error(err))
			return fmt.Errorf("read: %w", err)

		case <-tick:
			printStatistics(r.Stats())

		case <-ctx.Done():
			fmt.Println()
			printStatistics(r.Stats())
			return nil
		}
	}
}

// drainFrames feeds data and keeps pulling until the buffer holds no
// complete frame
func drainFrames(r *jlproto.Reassembler, data []byte) {
	for chunk := data; ; chunk = nil {
		before := r.Buffered()
		payload, err := r.Feed(chunk)

		switch {
		case err != nil:
			printFrameError(err)
		case payload != nil:
			fmt.Print(jlproto.FormatPayload(time.Now(), payload))
		case chunk == nil && r.Buffered() == before:
			// Waiting for the rest of a frame
			return
		}

		if r.Buffered() == 0 {
			return
		}
	}
}

func printFrameError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] %s %v\n\n", timestamp, errorStyle.Render("FRAME ERROR:"), err)
}

func printStatistics(stats *jlproto.Statistics) {
	stats.CalculateRates()
	fmt.Println()
	fmt.Print(stats.String())
	fmt.Println()
}
