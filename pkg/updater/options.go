// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package updater

import (
	"time"

	"github.com/Thermoquad/jlupdate/pkg/jlproto"
	"go.uber.org/zap"
)

// Config holds the updater configuration.
type Config struct {
	// Logger receives structured protocol events (default: no-op)
	Logger *zap.Logger

	// Recorder receives counters for metrics export (default: no-op)
	Recorder Recorder

	// ProgressCallback is called after every served READ (optional)
	ProgressCallback ProgressCallback

	// UpgradeBaudRate is authorized in the START reply
	UpgradeBaudRate uint32

	// SettleDelay is waited after flushing the START reply and before
	// switching the transport to UpgradeBaudRate, so the device receives
	// the reply at the old rate
	SettleDelay time.Duration

	// ReadSize is the maximum number of bytes taken from the transport per poll
	ReadSize int

	// FramesPerFeed caps how many payloads are dispatched per poll.
	// 1 reproduces the pacing the bootloader firmware was written against;
	// larger values are only safe if the device never has more than one
	// request outstanding.
	FramesPerFeed int

	// StopOnDeviceFailure ends the run when END carries a nonzero code.
	// When false the failure is logged and the run continues so the device
	// can retry.
	StopOnDeviceFailure bool

	// MaxBuffered bounds the reassembler's unconsumed bytes
	MaxBuffered int

	// MaxPayload rejects frame headers declaring longer payloads
	MaxPayload int
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Logger:          zap.NewNop(),
		Recorder:        nopRecorder{},
		UpgradeBaudRate: jlproto.DefaultUpgradeBaudRate,
		SettleDelay:     20 * time.Millisecond,
		ReadSize:        64,
		FramesPerFeed:   1,
		MaxBuffered:     jlproto.DefaultMaxBuffered,
		MaxPayload:      jlproto.MaxPayloadSize,
	}
}

// Option is a functional option for configuring the Updater.
type Option func(*Config)

// WithLogger sets the logger for protocol events.
//
// Example:
//
//	u := updater.New(port, fw, updater.WithLogger(logger.Named("updater")))
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithRecorder sets a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Config) {
		if r != nil {
			c.Recorder = r
		}
	}
}

// WithProgressCallback sets a callback to track served firmware bytes.
//
// Example:
//
//	u := updater.New(port, fw,
//	    updater.WithProgressCallback(func(p updater.Progress) {
//	        fmt.Printf("served %d bytes\n", p.TotalBytesSent)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithUpgradeBaudRate sets the rate authorized in the START reply.
func WithUpgradeBaudRate(baud uint32) Option {
	return func(c *Config) {
		if baud > 0 {
			c.UpgradeBaudRate = baud
		}
	}
}

// WithSettleDelay sets the wait between flushing the START reply and
// changing the baud rate.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.SettleDelay = d
		}
	}
}

// WithReadSize sets the maximum bytes read from the transport per poll.
func WithReadSize(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.ReadSize = n
		}
	}
}

// WithFramesPerFeed sets how many payloads may be dispatched per poll.
func WithFramesPerFeed(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.FramesPerFeed = n
		}
	}
}

// WithStopOnDeviceFailure makes a nonzero END code terminate the run.
func WithStopOnDeviceFailure(stop bool) Option {
	return func(c *Config) {
		c.StopOnDeviceFailure = stop
	}
}

// WithMaxBuffered bounds the receive buffer.
func WithMaxBuffered(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxBuffered = n
		}
	}
}

// WithMaxPayload rejects frame headers declaring a payload longer than n.
func WithMaxPayload(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxPayload = n
		}
	}
}
