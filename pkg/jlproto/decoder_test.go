// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jlproto

import (
	"bytes"
	"errors"
	"testing"
)

// feedAll feeds data in one call and then drains with Feed(nil) until the
// reassembler stops producing payloads, returning every payload and error seen.
func feedAll(r *Reassembler, data []byte) ([][]byte, []error) {
	var payloads [][]byte
	var errs []error

	payload, err := r.Feed(data)
	for i := 0; ; i++ {
		if err != nil {
			errs = append(errs, err)
		}
		if payload != nil {
			payloads = append(payloads, payload)
		}
		if r.Buffered() == 0 || i > len(data)+1 {
			break
		}
		before := r.Buffered()
		payload, err = r.Feed(nil)
		if payload == nil && err == nil && r.Buffered() == before {
			break // waiting for more data
		}
	}
	return payloads, errs
}

func TestReassembler_EmptyFeed(t *testing.T) {
	r := NewReassembler()
	payload, err := r.Feed(nil)
	if payload != nil || err != nil {
		t.Errorf("empty feed: expected (nil, nil), got (%X, %v)", payload, err)
	}
}

func TestReassembler_SingleFrame(t *testing.T) {
	r := NewReassembler()
	want := ReadRequestPayload(0, 256)

	got, err := r.Feed(Encode(want))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("payload mismatch: expected %X, got %X", want, got)
	}
	if r.Buffered() != 0 {
		t.Errorf("expected empty buffer, %d bytes left", r.Buffered())
	}
	if r.Stats().Frames != 1 {
		t.Errorf("expected 1 frame counted, got %d", r.Stats().Frames)
	}
}

func TestReassembler_PartialFrame(t *testing.T) {
	want := ReadRequestPayload(0x1000, 512)
	frame := Encode(want)

	for split := 0; split < len(frame); split++ {
		r := NewReassembler()

		got, err := r.Feed(frame[:split])
		if got != nil || err != nil {
			t.Fatalf("split %d: prefix produced (%X, %v)", split, got, err)
		}
		if r.Buffered() != split {
			t.Fatalf("split %d: expected %d buffered bytes, got %d", split, split, r.Buffered())
		}

		got, err = r.Feed(frame[split:])
		if err != nil {
			t.Fatalf("split %d: unexpected error: %v", split, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("split %d: payload mismatch", split)
		}
	}
}

func TestReassembler_ByteAtATime(t *testing.T) {
	r := NewReassembler()
	want := patternBytes(40)
	frame := Encode(want)

	var got []byte
	for i, b := range frame {
		payload, err := r.Feed([]byte{b})
		if err != nil {
			t.Fatalf("byte %d: unexpected error: %v", i, err)
		}
		if payload != nil {
			if i != len(frame)-1 {
				t.Fatalf("payload produced early at byte %d", i)
			}
			got = payload
		}
	}
	if !bytes.Equal(got, want) {
		t.Errorf("payload mismatch: expected %X, got %X", want, got)
	}
}

func TestReassembler_ResyncOneByteAtATime(t *testing.T) {
	garbage := []byte{0x00, 0x55, 0x13, 0xFF, 0x42, 0x55, 0x01}
	want := EndPayload(0)
	data := append(append([]byte{}, garbage...), Encode(want)...)

	r := NewReassembler()
	payload, err := r.Feed(data)
	for i := 0; i < len(garbage); i++ {
		if payload != nil || err != nil {
			t.Fatalf("feed %d: expected nothing while shedding garbage, got (%X, %v)", i, payload, err)
		}
		if r.Buffered() != len(data)-(i+1) {
			t.Fatalf("feed %d: expected exactly one byte shed, %d buffered", i, r.Buffered())
		}
		payload, err = r.Feed(nil)
	}

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(payload, want) {
		t.Errorf("payload mismatch after resync: expected %X, got %X", want, payload)
	}
	if r.Stats().MagicMismatches != uint64(len(garbage)) {
		t.Errorf("expected %d magic mismatches, got %d", len(garbage), r.Stats().MagicMismatches)
	}
}

func TestReassembler_NoiseBeforeFrameKeepsFrame(t *testing.T) {
	// A stray 0xAA directly in front of the real start marker
	want := ReadyPayload()
	data := append([]byte{0xAA}, Encode(want)...)

	r := NewReassembler()
	payloads, errs := feedAll(r, data)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(payloads) != 1 || !bytes.Equal(payloads[0], want) {
		t.Errorf("expected exactly one READY payload, got %X", payloads)
	}
}

func TestReassembler_CRCMismatchDiscardsExactlyOneFrame(t *testing.T) {
	bad := Encode(ReadRequestPayload(0, 32))
	bad[len(bad)-1] ^= 0x01
	good := Encode(EndPayload(0))

	r := NewReassembler()
	payload, err := r.Feed(append(append([]byte{}, bad...), good...))
	if payload != nil {
		t.Fatalf("corrupted frame produced a payload: %X", payload)
	}
	if !errors.Is(err, ErrCRCMismatch) {
		t.Fatalf("expected CRC mismatch, got %v", err)
	}
	if r.Buffered() != len(good) {
		t.Fatalf("expected %d bytes left after discarding the bad frame, got %d", len(good), r.Buffered())
	}
	if r.Stats().BytesDiscarded != uint64(len(bad)) {
		t.Errorf("expected %d bytes discarded, got %d", len(bad), r.Stats().BytesDiscarded)
	}

	payload, err = r.Feed(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(payload, EndPayload(0)) {
		t.Errorf("expected the following frame intact, got %X", payload)
	}
	if r.Stats().CRCErrors != 1 {
		t.Errorf("expected 1 CRC error, got %d", r.Stats().CRCErrors)
	}
}

// One payload per Feed is the pacing the bootloader expects: a second
// complete frame in the same chunk stays buffered until the next call.
func TestReassembler_OnePayloadPerFeed(t *testing.T) {
	first := ReadRequestPayload(0, 16)
	second := ReadRequestPayload(16, 16)
	secondFrame := Encode(second)

	r := NewReassembler()
	payload, err := r.Feed(append(Encode(first), secondFrame...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(payload, first) {
		t.Fatalf("expected first payload, got %X", payload)
	}
	if r.Buffered() != len(secondFrame) {
		t.Fatalf("second frame should remain buffered: expected %d bytes, got %d", len(secondFrame), r.Buffered())
	}

	payload, err = r.Feed(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(payload, second) {
		t.Errorf("expected second payload on the next feed, got %X", payload)
	}
}

func TestReassembler_PayloadIsCopied(t *testing.T) {
	r := NewReassembler()
	first, _ := r.Feed(Encode([]byte{0x05, 0x11, 0x22}))
	_, _ = r.Feed(Encode([]byte{0x05, 0x33, 0x44}))

	if !bytes.Equal(first, []byte{0x05, 0x11, 0x22}) {
		t.Errorf("earlier payload was overwritten: %X", first)
	}
}

func TestReassembler_Overflow(t *testing.T) {
	r := NewReassembler()
	r.SetMaxBuffered(MaxFrameSize)

	garbage := bytes.Repeat([]byte{0x00}, MaxFrameSize+1)
	payload, err := r.Feed(garbage)
	if payload != nil {
		t.Fatal("overflow produced a payload")
	}
	if !errors.Is(err, ErrBufferOverflow) {
		t.Fatalf("expected ErrBufferOverflow, got %v", err)
	}
	if r.Buffered() != 0 {
		t.Errorf("expected buffer discarded, %d bytes left", r.Buffered())
	}
	if r.Stats().Overflows != 1 {
		t.Errorf("expected 1 overflow, got %d", r.Stats().Overflows)
	}

	// Recovers for the next frame
	payload, err = r.Feed(Encode(ReadyPayload()))
	if err != nil || !bytes.Equal(payload, ReadyPayload()) {
		t.Errorf("expected READY after overflow, got (%X, %v)", payload, err)
	}
}

func TestReassembler_OversizeHeaderResyncs(t *testing.T) {
	r := NewReassembler()
	r.SetMaxPayload(16)

	want := EndPayload(0)
	data := append([]byte{0xAA, 0x55, 0xFF, 0x00}, Encode(want)...)

	payloads, errs := feedAll(r, data)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(payloads) != 1 || !bytes.Equal(payloads[0], want) {
		t.Fatalf("expected the END payload, got %X", payloads)
	}
	if r.Stats().OversizeHeaders != 1 {
		t.Errorf("expected 1 oversize header, got %d", r.Stats().OversizeHeaders)
	}
	if r.Stats().MagicMismatches != 3 {
		t.Errorf("expected 3 resync bytes after the oversize header, got %d", r.Stats().MagicMismatches)
	}
}

func TestReassembler_Reset(t *testing.T) {
	r := NewReassembler()
	frame := Encode(ReadyPayload())
	_, _ = r.Feed(frame[:3])
	r.Reset()
	if r.Buffered() != 0 {
		t.Errorf("expected empty buffer after Reset, got %d", r.Buffered())
	}
}

func TestStatistics_String(t *testing.T) {
	s := NewStatistics()
	s.Frames = 10
	s.CRCErrors = 2
	out := s.String()
	if !bytes.Contains([]byte(out), []byte("CRC Errors:")) {
		t.Errorf("expected CRC line in summary: %q", out)
	}
	if s.Faults() != 2 {
		t.Errorf("expected 2 faults, got %d", s.Faults())
	}
	s.Reset()
	if s.Frames != 0 || s.StartTime.IsZero() {
		t.Error("Reset should zero counters and restart the clock")
	}
}
