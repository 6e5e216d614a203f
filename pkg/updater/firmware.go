// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package updater

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Firmware serves byte ranges of the image being programmed.
// ReadAt must fail unless the whole range is available.
type Firmware interface {
	ReadAt(offset, length uint32) ([]byte, error)
}

// ImageFirmware serves an image from any io.ReaderAt of known size
type ImageFirmware struct {
	r    io.ReaderAt
	size int64
}

// NewFirmware wraps an io.ReaderAt holding size bytes of firmware
func NewFirmware(r io.ReaderAt, size int64) *ImageFirmware {
	return &ImageFirmware{r: r, size: size}
}

// Size returns the image length in bytes
func (f *ImageFirmware) Size() int64 {
	return f.size
}

// ReadAt returns exactly length bytes starting at offset
func (f *ImageFirmware) ReadAt(offset, length uint32) ([]byte, error) {
	if int64(offset)+int64(length) > f.size {
		return nil, ErrShortRead
	}

	buf := make([]byte, length)
	n, err := f.r.ReadAt(buf, int64(offset))
	if n == len(buf) {
		// io.ReaderAt may report io.EOF alongside a full read at the end
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, ErrShortRead
	}
	return nil, err
}

// FileFirmware is an ImageFirmware backed by an open file
type FileFirmware struct {
	*ImageFirmware
	file *os.File
}

// OpenFirmware opens the image at path for serving
func OpenFirmware(path string) (*FileFirmware, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open firmware %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat firmware %s: %w", path, err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("firmware %s is a directory", path)
	}

	return &FileFirmware{
		ImageFirmware: NewFirmware(file, info.Size()),
		file:          file,
	}, nil
}

// Name returns the path the firmware was opened from
func (f *FileFirmware) Name() string {
	return f.file.Name()
}

// Close closes the underlying file
func (f *FileFirmware) Close() error {
	return f.file.Close()
}
