// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package screenview

import (
	"bytes"
	"image"
	"strings"
	"testing"

	"github.com/promwad/glk19264/image1bit"
)

func TestDraw(t *testing.T) {
	var out bytes.Buffer
	d := New(&Opts{W: 8, H: 2, Out: &out})
	if got, want := d.Bounds(), image.Rect(0, 0, 8, 2); got != want {
		t.Fatalf("Bounds() = %v, want %v", got, want)
	}

	src := image1bit.NewHorizontalMSB(d.Bounds())
	src.SetBit(0, 0, image1bit.On)
	if err := d.Draw(d.Bounds(), src, image.Point{}); err != nil {
		t.Fatalf("Draw() = %v", err)
	}
	s := out.String()
	if s == "" {
		t.Fatal("Draw() wrote nothing")
	}
	if got := strings.Count(s, "\n"); got != 2 {
		t.Errorf("rendered %d rows, want 2", got)
	}

	// The second frame rewinds the cursor instead of scrolling.
	out.Reset()
	if err := d.Draw(d.Bounds(), src, image.Point{}); err != nil {
		t.Fatalf("Draw() = %v", err)
	}
	if !strings.HasPrefix(out.String(), "\033[2A") {
		t.Error("second frame does not move the cursor back up")
	}
}

func TestHalt(t *testing.T) {
	var out bytes.Buffer
	d := New(&Opts{W: 4, H: 1, Out: &out})
	if err := d.Halt(); err != nil {
		t.Fatalf("Halt() = %v", err)
	}
	if !strings.HasSuffix(out.String(), "\033[0m") {
		t.Error("Halt() did not reset terminal attributes")
	}
}
