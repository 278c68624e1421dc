// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package glk19264

import (
	"errors"
	"io"
	"time"
)

// Key identifies one of the keypad buttons.
type Key uint8

const (
	KeyEsc Key = iota + 1
	KeyUp
	KeyRight
	KeyLeft
	KeyEnter
	KeyBackspace
	KeyDown
)

func (k Key) String() string {
	switch k {
	case KeyEsc:
		return "Esc"
	case KeyUp:
		return "Up"
	case KeyRight:
		return "Right"
	case KeyLeft:
		return "Left"
	case KeyEnter:
		return "Enter"
	case KeyBackspace:
		return "Backspace"
	case KeyDown:
		return "Down"
	}
	return "Unknown"
}

// KeyEvent is one key transition. The module reports a key as a single shot
// code, not as separate press and release transitions, so every reported
// code is delivered as a press event immediately followed by its release.
type KeyEvent struct {
	Key     Key
	Pressed bool
}

// keymap translates the low 7 bits of a poll reply into a Key. Codes outside
// the table are dropped with a diagnostic.
var keymap = map[byte]Key{
	0x41: KeyEsc,
	0x42: KeyUp,
	0x43: KeyRight,
	0x44: KeyLeft,
	0x45: KeyEnter,
	0x47: KeyBackspace,
	0x48: KeyDown,
}

// continuationBit flags that more scan codes are queued behind this one.
const continuationBit byte = 0x80

// ReadKeypad starts polling the module's keypad and returns the channel key
// events are delivered on. Subsequent calls return the same channel. The
// poller runs until Halt, which also closes the channel.
//
// Polling happens at the configured interval and backs off up to
// KeypadPollMax while no keys come in.
func (d *Dev) ReadKeypad() (<-chan KeyEvent, error) {
	d.kpMu.Lock()
	defer d.kpMu.Unlock()
	if d.chKeypad != nil {
		return d.chKeypad, nil
	}
	if d.c == nil {
		if _, ok := d.w.(io.Reader); !ok {
			return nil, errors.New("glk19264: transport does not implement io.Reader")
		}
	}
	d.chKeypad = make(chan KeyEvent, 16)
	d.kpStop = make(chan struct{})
	d.kpDone = make(chan struct{})
	go d.pollLoop(d.chKeypad, d.kpStop, d.kpDone)
	return d.chKeypad, nil
}

func (d *Dev) pollLoop(ch chan KeyEvent, stop chan struct{}, done chan struct{}) {
	defer close(done)
	defer close(ch)
	interval := d.keypadInterval
	t := time.NewTimer(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}
		n := d.pollKeypad(ch, stop)
		// Back off while the keypad is idle, snap back on activity.
		if n > 0 {
			interval = d.keypadInterval
		} else if interval < d.keypadMax {
			interval *= 2
			if interval > d.keypadMax {
				interval = d.keypadMax
			}
		}
		t.Reset(interval)
	}
}

// pollKeypad drains the module's queue of pending scan codes for one tick.
// The bus lock is only held per individual poll command, so a long keypad
// burst cannot starve the flush path. Returns the number of events emitted.
func (d *Dev) pollKeypad(ch chan<- KeyEvent, stop <-chan struct{}) int {
	emitted := 0
	for {
		v, err := d.readParam(cmdPollKeyPress)
		if err != nil {
			// A failed poll silently ends the tick; the next one starts
			// fresh.
			d.logf("glk19264: keypad poll: %v", err)
			return emitted
		}
		if v == 0 {
			// Queue drained.
			return emitted
		}
		if key, ok := keymap[v&^continuationBit]; ok {
			if !d.emit(ch, stop, KeyEvent{Key: key, Pressed: true}) {
				return emitted
			}
			if !d.emit(ch, stop, KeyEvent{Key: key, Pressed: false}) {
				return emitted
			}
			emitted += 2
		} else {
			d.logf("glk19264: unknown scan code %#02x", v&^continuationBit)
		}
		if v&continuationBit == 0 {
			// Last queued code for this tick.
			return emitted
		}
	}
}

func (d *Dev) emit(ch chan<- KeyEvent, stop <-chan struct{}, ev KeyEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-stop:
		return false
	}
}

func (d *Dev) stopKeypad() {
	d.kpMu.Lock()
	defer d.kpMu.Unlock()
	if d.kpStop == nil {
		return
	}
	close(d.kpStop)
	<-d.kpDone
	d.kpStop = nil
	d.chKeypad = nil
}
