// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/jlupdate/internal/config"
	"github.com/Thermoquad/jlupdate/internal/metrics"
	"github.com/Thermoquad/jlupdate/pkg/updater"
)

var _ updater.Transport = (*SerialTransport)(nil)

var updateCmd = &cobra.Command{
	Use:   "update <port> <firmware>",
	Short: "Serve a firmware image to the device bootloader",
	Long: `Open the serial port, announce READY and serve the device's requests until
it reports END.

The device answers READY with START; jlupdate replies with the upgrade baud
rate, drains the reply at the current rate, waits --settle-delay and then
switches the port. Every READ request is answered from the firmware file.
END 0 completes the update. A nonzero END code is logged and the tool keeps
waiting, unless --stop-on-device-failure is set.

Exit status is 0 on success and 1 on any fatal error (port, firmware file,
device failure with --stop-on-device-failure, timeout or interrupt).`,
	Args: cobra.ExactArgs(2),
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
	f := updateCmd.Flags()
	f.IntP("baud", "b", 9600, "Initial baud rate")
	f.Uint32("upgrade-baud", 1000000, "Baud rate authorized in the START reply")
	f.Duration("read-timeout", 5*time.Millisecond, "Serial read timeout per poll")
	f.Duration("settle-delay", 20*time.Millisecond, "Wait between draining the START reply and switching baud rate")
	f.Duration("timeout", 0, "Abort the update after this long (0 = wait forever)")
	f.Bool("stop-on-device-failure", false, "Stop when the device reports END with a nonzero code")
	f.Int("frames-per-feed", 1, "Frames dispatched per serial read")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address during the update (e.g. :9100)")
	f.Bool("tui", true, "Use terminal UI (false for plain output with a progress bar)")
	f.Bool("no-progress", false, "Disable the progress bar (plain output only)")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	portArg, firmwarePath := args[0], args[1]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if noProgress, _ := cmd.Flags().GetBool("no-progress"); noProgress {
		cfg.Update.Progress = false
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	fw, err := updater.OpenFirmware(firmwarePath)
	if err != nil {
		return err
	}
	defer fw.Close()
	if fw.Size() == 0 {
		logger.Warn("firmware file is empty", zap.String("path", fw.Name()))
	}

	transport, err := OpenSerialTransport(portArg, cfg.Serial.Baud, cfg.Serial.ReadTimeout)
	if err != nil {
		return err
	}
	defer transport.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Update.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Update.Timeout)
		defer cancel()
	}

	opts := []updater.Option{
		updater.WithLogger(logger.Named("updater")),
		updater.WithUpgradeBaudRate(cfg.Update.UpgradeBaud),
		updater.WithSettleDelay(cfg.Update.SettleDelay),
		updater.WithReadSize(cfg.Update.ReadSize),
		updater.WithFramesPerFeed(cfg.Update.FramesPerFeed),
		updater.WithStopOnDeviceFailure(cfg.Update.StopOnDeviceFailure),
		updater.WithMaxBuffered(cfg.Update.MaxBuffered),
	}

	var recorder updater.Recorder
	if cfg.Metrics.Addr != "" {
		reg := metrics.NewRegistry()
		m := metrics.NewUpdateMetrics(reg)
		m.BaudRateChanged(cfg.Serial.Baud)
		recorder = m
		opts = append(opts, updater.WithRecorder(m))

		srv := startMetricsServer(cfg.Metrics, reg, logger)
		defer srv.Close()
	}

	session := updater.NewSession(cfg.Serial.Baud)

	if cfg.Update.TUI {
		u, runErr := runUpdateTUI(ctx, cfg, transport, fw, opts, recorder, session)
		if u == nil {
			return runErr
		}
		printSummary(session, u)
		return finishUpdate(runErr)
	}

	printTitle("jlupdate - Firmware Update")
	printField("Connection", transport)
	printField("Firmware", fmt.Sprintf("%s (%d bytes)", fw.Name(), fw.Size()))
	printField("Upgrade", fmt.Sprintf("%d baud", cfg.Update.UpgradeBaud))
	if cfg.Metrics.Addr != "" {
		printField("Metrics", cfg.Metrics.Addr+cfg.Metrics.Path)
	}
	fmt.Println("Waiting for device... (Ctrl+C to abort)")
	fmt.Println()

	var bar *progressbar.ProgressBar
	if cfg.Update.Progress {
		bar = newProgressBar(fw.Size())
		opts = append(opts, updater.WithProgressCallback(progressTracker(bar, fw.Size())))
	}

	u := updater.New(transport, fw, opts...)
	runErr := u.Run(ctx, session)
	if bar != nil {
		if runErr == nil {
			bar.Finish()
		}
		fmt.Fprintln(os.Stderr)
	}

	printSummary(session, u)
	return finishUpdate(runErr)
}

func finishUpdate(runErr error) error {
	if runErr != nil {
		fmt.Println(errorStyle.Render("UPDATE FAILED"))
		return runErr
	}
	fmt.Println(successStyle.Render("UPDATE COMPLETE"))
	return nil
}

// progressTracker advances bar to the highest firmware offset served so far.
// The device may re-request ranges, so the total served can exceed the image
// size.
func progressTracker(bar *progressbar.ProgressBar, size int64) updater.ProgressCallback {
	var highWater int64
	return func(p updater.Progress) {
		end := int64(p.Offset) + int64(p.Length)
		if end > size {
			end = size
		}
		if end > highWater {
			highWater = end
			bar.Set64(highWater)
		}
	}
}

func newProgressBar(size int64) *progressbar.ProgressBar {
	return progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Serving"),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
}

func printSummary(s *updater.Session, u *updater.Updater) {
	stats := u.Stats()
	stats.CalculateRates()

	printField("Result", s.State)
	printField("Baud", s.BaudRate)
	printField("Requests", s.Requests)
	printField("Served", fmt.Sprintf("%d bytes", s.TotalBytesSent))
	printField("Elapsed", s.Elapsed().Round(time.Millisecond))
	if faults := stats.Faults(); faults > 0 || s.ProtocolFaults > 0 {
		fmt.Println(warningStyle.Render(fmt.Sprintf(
			"Faults: %d framing/CRC, %d protocol, %d bytes discarded",
			faults, s.ProtocolFaults, stats.BytesDiscarded,
		)))
	}
	if s.DeviceErrors > 0 {
		fmt.Println(warningStyle.Render(fmt.Sprintf(
			"Device reported %d failure(s), last error code 0x%02X",
			s.DeviceErrors, s.LastDeviceError,
		)))
	}
}

// startMetricsServer serves reg on cfg.Addr until the returned server is
// closed
func startMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, metrics.Handler(reg))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	log.Info("metrics server listening", zap.String("addr", cfg.Addr), zap.String("path", cfg.Path))
	return srv
}
