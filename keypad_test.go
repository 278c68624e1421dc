// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package glk19264

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func collectEvents(ch chan KeyEvent) []KeyEvent {
	var evs []KeyEvent
	for {
		select {
		case ev := <-ch:
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func TestPollSingleCode(t *testing.T) {
	f := newFakeBus(0x23, 0x41) // Esc, no continuation bit
	d := newTestDev(t, f, &testOpts)

	ch := make(chan KeyEvent, 16)
	n := d.pollKeypad(ch, nil)
	if n != 2 {
		t.Fatalf("pollKeypad() = %d events, want 2", n)
	}
	want := []KeyEvent{
		{Key: KeyEsc, Pressed: true},
		{Key: KeyEsc, Pressed: false},
	}
	if diff := cmp.Diff(collectEvents(ch), want); diff != "" {
		t.Errorf("events difference (-got +want):\n%s", diff)
	}
	// Without the continuation bit the loop stops after one poll command.
	if got := f.sent(); len(got) != 1 {
		t.Errorf("sent %d poll frames, want 1", len(got))
	}
}

func TestPollBurst(t *testing.T) {
	// 0xC3 is Right with the continuation bit set: the decoder must read
	// again and pick up Down before stopping.
	f := newFakeBus(0x23, 0xC3, 0x48)
	d := newTestDev(t, f, &testOpts)

	ch := make(chan KeyEvent, 16)
	if n := d.pollKeypad(ch, nil); n != 4 {
		t.Fatalf("pollKeypad() = %d events, want 4", n)
	}
	want := []KeyEvent{
		{Key: KeyRight, Pressed: true},
		{Key: KeyRight, Pressed: false},
		{Key: KeyDown, Pressed: true},
		{Key: KeyDown, Pressed: false},
	}
	if diff := cmp.Diff(collectEvents(ch), want); diff != "" {
		t.Errorf("events difference (-got +want):\n%s", diff)
	}
	if got := f.sent(); len(got) != 2 {
		t.Errorf("sent %d poll frames, want 2", len(got))
	}
}

func TestPollZeroReplyEndsTick(t *testing.T) {
	f := newFakeBus(0x23, 0x00)
	d := newTestDev(t, f, &testOpts)

	ch := make(chan KeyEvent, 16)
	if n := d.pollKeypad(ch, nil); n != 0 {
		t.Fatalf("pollKeypad() = %d events, want 0", n)
	}
	if got := f.sent(); len(got) != 1 {
		t.Errorf("sent %d poll frames, want 1", len(got))
	}
}

func TestPollUnmappedCode(t *testing.T) {
	var diags int
	f := newFakeBus(0x23, 0x50)
	d := newTestDev(t, f, &testOpts)
	d.logf = func(string, ...any) { diags++ }

	ch := make(chan KeyEvent, 16)
	if n := d.pollKeypad(ch, nil); n != 0 {
		t.Fatalf("pollKeypad() = %d events, want 0", n)
	}
	if diags != 1 {
		t.Errorf("got %d diagnostics, want 1", diags)
	}
}

func TestPollUnmappedCodeContinues(t *testing.T) {
	// An unmapped code with the continuation bit set drops the code but
	// keeps draining the queue.
	var diags int
	f := newFakeBus(0x23, 0xD0, 0x41)
	d := newTestDev(t, f, &testOpts)
	d.logf = func(string, ...any) { diags++ }

	ch := make(chan KeyEvent, 16)
	if n := d.pollKeypad(ch, nil); n != 2 {
		t.Fatalf("pollKeypad() = %d events, want 2", n)
	}
	want := []KeyEvent{
		{Key: KeyEsc, Pressed: true},
		{Key: KeyEsc, Pressed: false},
	}
	if diff := cmp.Diff(collectEvents(ch), want); diff != "" {
		t.Errorf("events difference (-got +want):\n%s", diff)
	}
	if diags != 1 {
		t.Errorf("got %d diagnostics, want 1", diags)
	}
}

func TestPollBusErrorAbortsTick(t *testing.T) {
	// An exhausted reply queue reads as a bus error; the tick ends silently.
	f := newFakeBus(0x23)
	d := newTestDev(t, f, &testOpts)

	ch := make(chan KeyEvent, 16)
	if n := d.pollKeypad(ch, nil); n != 0 {
		t.Fatalf("pollKeypad() = %d events, want 0", n)
	}
}

func TestPressAlwaysPrecedesRelease(t *testing.T) {
	f := newFakeBus(0x23, 0xC1, 0xC2, 0x45)
	d := newTestDev(t, f, &testOpts)

	ch := make(chan KeyEvent, 16)
	d.pollKeypad(ch, nil)
	evs := collectEvents(ch)
	if len(evs)%2 != 0 {
		t.Fatalf("odd number of events: %d", len(evs))
	}
	for i := 0; i < len(evs); i += 2 {
		if !evs[i].Pressed || evs[i+1].Pressed || evs[i].Key != evs[i+1].Key {
			t.Fatalf("events %d/%d are not a press/release pair: %+v %+v", i, i+1, evs[i], evs[i+1])
		}
	}
}

func TestKeyString(t *testing.T) {
	keys := []Key{KeyEsc, KeyUp, KeyRight, KeyLeft, KeyEnter, KeyBackspace, KeyDown}
	seen := map[string]bool{}
	for _, k := range keys {
		s := k.String()
		if s == "Unknown" || seen[s] {
			t.Errorf("Key(%d).String() = %q", k, s)
		}
		seen[s] = true
	}
	if Key(0).String() != "Unknown" {
		t.Error("zero Key is not Unknown")
	}
}

func TestReadKeypad(t *testing.T) {
	f := newFakeBus(0x23, 0x41)
	d, err := NewWriter(f, &Opts{
		W: 16, H: 8, RefreshRate: 5,
		KeypadPollInterval: 2 * time.Millisecond,
		KeypadPollMax:      10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewWriter() = %v", err)
	}

	ch, err := d.ReadKeypad()
	if err != nil {
		t.Fatalf("ReadKeypad() = %v", err)
	}
	// Calling again returns the same channel.
	if ch2, err := d.ReadKeypad(); err != nil || ch2 != ch {
		t.Fatalf("second ReadKeypad() = (%v, %v)", ch2, err)
	}

	want := []KeyEvent{
		{Key: KeyEsc, Pressed: true},
		{Key: KeyEsc, Pressed: false},
	}
	for i, w := range want {
		select {
		case ev := <-ch:
			if ev != w {
				t.Fatalf("event %d = %+v, want %+v", i, ev, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	if err := d.Halt(); err != nil {
		t.Fatalf("Halt() = %v", err)
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("unexpected event after Halt()")
		}
	case <-time.After(2 * time.Second):
		t.Error("channel not closed after Halt()")
	}
}

func TestReadKeypadRequiresReader(t *testing.T) {
	// io.Writer without io.Reader cannot poll.
	f := newFakeBus(0x23)
	d := newTestDev(t, f, &testOpts)
	d.w = writerOnly{f}
	if _, err := d.ReadKeypad(); err == nil {
		t.Error("ReadKeypad() = nil, want error")
	}
}

type writerOnly struct {
	w *fakeBus
}

func (w writerOnly) Write(p []byte) (int, error) {
	return w.w.Write(p)
}
