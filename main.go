// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// jlupdate - UART bootloader firmware updater
//
// Serves a firmware image to a device's resident bootloader over a serial
// link, answering its START, READ and END requests.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/jlupdate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
