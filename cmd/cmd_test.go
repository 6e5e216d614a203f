// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"os"
	"testing"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/jlupdate/pkg/jlproto"
	"github.com/Thermoquad/jlupdate/pkg/updater"
)

func TestParseCommandID(t *testing.T) {
	tests := []struct {
		in      string
		want    jlproto.CommandID
		wantErr bool
	}{
		{in: "start", want: jlproto.CmdStart},
		{in: "READ", want: jlproto.CmdRead},
		{in: "End", want: jlproto.CmdEnd},
		{in: "update_len", want: jlproto.CmdUpdateLen},
		{in: "alive", want: jlproto.CmdAlive},
		{in: "ready", want: jlproto.CmdReady},
		{in: "6", want: jlproto.CmdReady},
		{in: "0x7f", want: jlproto.CommandID(0x7F)},
		{in: "256", wantErr: true},
		{in: "flash", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseCommandID(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseHex(t *testing.T) {
	got, err := parseHex("0xAA 55:01 00")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0x55, 0x01, 0x00}, got)

	_, err = parseHex("abc")
	assert.Error(t, err)

	_, err = parseHex("zz")
	assert.Error(t, err)
}

func TestDecodeFrame(t *testing.T) {
	ready, err := parseHex("aa5501000642f2")
	require.NoError(t, err)

	payload, crc, trailing, err := decodeFrame(ready)
	require.NoError(t, err)
	assert.Equal(t, []byte{byte(jlproto.CmdReady)}, payload)
	assert.Equal(t, uint16(0xF242), crc)
	assert.Zero(t, trailing)

	// Bytes after the frame do not change the reported CRC
	payload, crc, trailing, err = decodeFrame(append(ready, 0xDE, 0xAD))
	require.NoError(t, err)
	assert.Equal(t, []byte{byte(jlproto.CmdReady)}, payload)
	assert.Equal(t, uint16(0xF242), crc)
	assert.Equal(t, 2, trailing)

	_, _, _, err = decodeFrame(ready[:5])
	assert.ErrorIs(t, err, jlproto.ErrShortFrame)

	corrupt := append([]byte(nil), ready...)
	corrupt[len(corrupt)-1] ^= 0xFF
	_, _, _, err = decodeFrame(corrupt)
	assert.ErrorIs(t, err, jlproto.ErrCRCMismatch)
}

func TestDrainFrames(t *testing.T) {
	r := jlproto.NewReassembler()

	var stream []byte
	stream = append(stream, 0x00, 0x11) // garbage
	stream = append(stream, jlproto.Encode(jlproto.ReadRequestPayload(0, 16))...)
	stream = append(stream, jlproto.Encode(jlproto.EndPayload(0))...)
	partial := jlproto.Encode([]byte{byte(jlproto.CmdAlive), 1, 2, 3})
	stream = append(stream, partial[:5]...)

	drainFrames(r, stream)

	stats := r.Stats()
	assert.Equal(t, uint64(2), stats.Frames, "every complete frame is pulled in one drain")
	assert.Equal(t, uint64(2), stats.MagicMismatches)
	assert.Equal(t, 5, r.Buffered(), "partial frame stays buffered")

	drainFrames(r, partial[5:])
	assert.Equal(t, uint64(3), stats.Frames)
	assert.Zero(t, r.Buffered())
}

func TestDrainFrames_CRCError(t *testing.T) {
	r := jlproto.NewReassembler()

	bad := jlproto.Encode(jlproto.EndPayload(0))
	bad[len(bad)-1] ^= 0xFF
	stream := append(bad, jlproto.Encode(jlproto.ReadyPayload())...)

	drainFrames(r, stream)

	assert.Equal(t, uint64(1), r.Stats().CRCErrors)
	assert.Equal(t, uint64(1), r.Stats().Frames)
	assert.Zero(t, r.Buffered())
}

func TestProgressTracker(t *testing.T) {
	bar := progressbar.DefaultBytesSilent(1000)
	track := progressTracker(bar, 1000)

	track(updater.Progress{Offset: 0, Length: 400})
	assert.InDelta(t, 0.4, bar.State().CurrentPercent, 0.001)

	// Re-requested ranges do not move the bar backwards
	track(updater.Progress{Offset: 0, Length: 100})
	assert.InDelta(t, 0.4, bar.State().CurrentPercent, 0.001)

	// Requests past the end are clamped to the image size
	track(updater.Progress{Offset: 900, Length: 200})
	assert.InDelta(t, 1.0, bar.State().CurrentPercent, 0.001)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"update", "raw_log", "packet_test", "encode", "decode"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestUpdateFlagsBindToConfig(t *testing.T) {
	require.NoError(t, updateCmd.ParseFlags([]string{"--baud", "115200", "--upgrade-baud", "460800", "--frames-per-feed", "2"}))
	t.Setenv("JLUPDATE_CONFIG", "")
	chdir(t, t.TempDir())

	cfg, err := loadConfig(updateCmd)
	require.NoError(t, err)
	assert.Equal(t, 115200, cfg.Serial.Baud)
	assert.Equal(t, uint32(460800), cfg.Update.UpgradeBaud)
	assert.Equal(t, 2, cfg.Update.FramesPerFeed)
}

func TestMonitorBaudFromConfig(t *testing.T) {
	t.Setenv("JLUPDATE_CONFIG", "")
	t.Setenv("JLUPDATE_SERIAL_BAUD", "57600")
	chdir(t, t.TempDir())

	for _, c := range []*cobra.Command{rawLogCmd, packetTestCmd} {
		t.Run(c.Name(), func(t *testing.T) {
			cfg, err := loadConfig(c)
			require.NoError(t, err)
			assert.Equal(t, 57600, cfg.Serial.Baud)
		})
	}

	// An explicit flag still wins over the environment
	require.NoError(t, rawLogCmd.ParseFlags([]string{"--baud", "230400"}))
	t.Cleanup(func() {
		f := rawLogCmd.Flags().Lookup("baud")
		f.Value.Set(f.DefValue)
		f.Changed = false
	})
	cfg, err := loadConfig(rawLogCmd)
	require.NoError(t, err)
	assert.Equal(t, 230400, cfg.Serial.Baud)
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24)
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
