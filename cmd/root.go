// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/jlupdate/internal/config"
	"github.com/Thermoquad/jlupdate/internal/logging"
)

var (
	// Global flags
	configPath string
	logLevel   string
	logFormat  string
	logFile    string

	// Monitor connection flags (raw_log, packet_test)
	portName      string
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "jlupdate",
	Short: "UART bootloader firmware updater",
	Long: `jlupdate - Serve a firmware image to a device bootloader over a serial link.

The bootloader drives the transfer: the host announces READY, answers START
with the upgrade baud rate, serves every READ request from the firmware file
and waits for END with the device's result code.

Frames on the wire are AA 55 <len:u16> <payload> <crc16:u16>, little-endian,
with CRC-16/XMODEM over everything before the checksum.

Settings come from defaults, an optional jlupdate.yaml, JLUPDATE_* environment
variables and flags, in increasing order of precedence.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./jlupdate.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file, rotated")
}

// addConnectionFlags registers the serial/WebSocket flags used by the
// passive monitoring commands
func addConnectionFlags(c *cobra.Command) {
	c.Flags().StringVarP(&portName, "port", "p", "", "Serial port device")
	c.Flags().IntP("baud", "b", 9600, "Baud rate (serial only)")
	c.Flags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	c.Flags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	c.Flags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// loadConfig merges the config file, environment and the command's flags
func loadConfig(c *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath, c.Flags())
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from cfg
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return logger, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
