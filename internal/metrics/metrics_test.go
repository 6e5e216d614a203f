// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/jlupdate/pkg/jlproto"
	"github.com/Thermoquad/jlupdate/pkg/updater"
)

var _ updater.Recorder = (*UpdateMetrics)(nil)

func TestUpdateMetrics_Counts(t *testing.T) {
	reg := NewRegistry()
	m := NewUpdateMetrics(reg)

	m.FrameReceived(jlproto.CmdStart)
	m.FrameReceived(jlproto.CmdRead)
	m.FrameReceived(jlproto.CmdRead)
	m.FrameReceived(jlproto.CommandID(0x7F))
	m.FrameReceived(jlproto.CommandID(0x80))

	m.FrameSent(jlproto.CmdReady, 7)
	m.FrameSent(jlproto.CmdRead, 31)

	m.Fault(updater.FaultCRC)
	m.Fault(updater.FaultCRC)
	m.Fault(updater.FaultResync)

	m.FirmwareServed(16)
	m.FirmwareServed(512)
	m.BaudRateChanged(1000000)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesReceived.WithLabelValues("start")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesReceived.WithLabelValues("read")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesReceived.WithLabelValues("unknown")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.FramesSent), "one series per sent command")

	assert.Equal(t, 38.0, testutil.ToFloat64(m.WireBytesSent))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Faults.WithLabelValues("crc")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Faults.WithLabelValues("resync")))
	assert.Equal(t, 528.0, testutil.ToFloat64(m.FirmwareBytes))
	assert.Equal(t, 1000000.0, testutil.ToFloat64(m.BaudRate))
}

func TestHandler_Exposition(t *testing.T) {
	reg := NewRegistry()
	m := NewUpdateMetrics(reg)
	m.FirmwareServed(64)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "jlupdate_firmware_bytes_served_total 64")
	assert.Contains(t, string(body), "go_goroutines")
}
