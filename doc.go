// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package glk19264 controls a Matrix Orbital GLK19264 graphic LCD module.
//
// The GLK19264 is a 192x64 monochrome display with an optional 7-key keypad,
// driven by a command protocol where every frame starts with a 0xFE escape
// byte. The module speaks I²C as well as RS-232; this package accepts either
// a periph.io i2c.Bus or any io.Writer backed transport.
//
// The display is drawn through an in-memory 1 bit per pixel surface. Drawing
// operations only mutate the surface; a background flusher transmits the
// whole bitmap at a configurable refresh rate, so bursts of small updates
// collapse into one bus transfer per interval.
//
// The keypad is polled. ReadKeypad starts a poller that drains the module's
// scan code queue and delivers KeyEvent values over a channel.
//
// # Datasheet
//
// https://www.matrixorbital.com/index.php?route=download/download/get&did=164
package glk19264
