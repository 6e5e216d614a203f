// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jlproto

import "errors"

// DefaultMaxBuffered is the default retained size of the reassembler buffer.
// Two maximum frames, so a full frame can sit behind a partial one.
const DefaultMaxBuffered = 2 * MaxFrameSize

// Reassembler extracts verified frame payloads from an arbitrarily chunked
// byte stream, resynchronizing past garbage one byte at a time.
type Reassembler struct {
	buf         []byte
	maxBuffered int
	maxPayload  int
	stats       *Statistics
}

// NewReassembler creates a reassembler with the default limits
func NewReassembler() *Reassembler {
	return &Reassembler{
		buf:         make([]byte, 0, 1024),
		maxBuffered: DefaultMaxBuffered,
		maxPayload:  MaxPayloadSize,
		stats:       NewStatistics(),
	}
}

// SetMaxBuffered bounds the number of unconsumed bytes kept between feeds.
// Values smaller than one maximum frame are raised to MaxFrameSize.
func (r *Reassembler) SetMaxBuffered(n int) {
	if n < MaxFrameSize {
		n = MaxFrameSize
	}
	r.maxBuffered = n
}

// SetMaxPayload rejects headers declaring a longer payload. Such headers are
// treated like a magic mismatch: one byte is dropped and parsing resumes.
func (r *Reassembler) SetMaxPayload(n int) {
	if n <= 0 || n > MaxPayloadSize {
		n = MaxPayloadSize
	}
	r.maxPayload = n
}

// Reset discards all buffered bytes
func (r *Reassembler) Reset() {
	r.buf = r.buf[:0]
}

// Buffered returns the number of unconsumed bytes
func (r *Reassembler) Buffered() int {
	return len(r.buf)
}

// Stats returns the live statistics counters
func (r *Reassembler) Stats() *Statistics {
	return r.stats
}

// Feed appends p to the buffer and makes exactly one extraction attempt.
//
// It returns a payload when a complete frame with a valid CRC sits at the
// head of the buffer, or nil when more data is needed or a byte was shed to
// resynchronize. A non-nil error is always a recoverable fault (*CRCError or
// ErrBufferOverflow); the caller counts it and keeps feeding.
//
// At most one payload is produced per call even when more complete frames are
// buffered. Call Feed(nil) to pull the next one.
func (r *Reassembler) Feed(p []byte) ([]byte, error) {
	r.stats.BytesReceived += uint64(len(p))
	r.buf = append(r.buf, p...)

	if len(r.buf) > r.maxBuffered {
		r.stats.Overflows++
		r.discard(len(r.buf))
		return nil, ErrBufferOverflow
	}

	if len(r.buf) == 0 {
		return nil, nil
	}

	totalLen, err := ParseHeader(r.buf)
	switch {
	case errors.Is(err, ErrShortFrame):
		return nil, nil
	case errors.Is(err, ErrBadMagic):
		r.stats.MagicMismatches++
		r.discard(1)
		return nil, nil
	}

	if totalLen-FrameOverhead > r.maxPayload {
		r.stats.OversizeHeaders++
		r.discard(1)
		return nil, nil
	}

	payload, rest, err := Unframe(r.buf, totalLen)
	if err != nil {
		if errors.Is(err, ErrShortFrame) {
			return nil, nil
		}
		r.stats.CRCErrors++
		r.discard(len(r.buf) - len(rest))
		return nil, err
	}

	// Copy out before the buffer is compacted
	out := make([]byte, len(payload))
	copy(out, payload)

	r.stats.Frames++
	r.consume(totalLen)
	return out, nil
}

// discard drops n bytes from the head and counts them as garbage
func (r *Reassembler) discard(n int) {
	r.stats.BytesDiscarded += uint64(n)
	r.consume(n)
}

// consume drops n bytes from the head, compacting in place
func (r *Reassembler) consume(n int) {
	remaining := copy(r.buf, r.buf[n:])
	r.buf = r.buf[:remaining]
}
