// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package screenview implements a display.Drawer that mirrors a monochrome
// framebuffer to the terminal (stdout) using ANSI color codes.
//
// Useful to develop screen layouts while the LCD module is not wired up.
package screenview

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/display"

	"github.com/promwad/glk19264/image1bit"
)

// Opts represents the options available for this display.
type Opts struct {
	W       int
	H       int
	Palette *ansi256.Palette
	// Out is the stream the rendering goes to. nil means a colorable stdout.
	Out io.Writer

	_ struct{}
}

// Dev is a monochrome LCD emulator that outputs to the console.
type Dev struct {
	w       io.Writer
	palette ansi256.Palette

	img   *image1bit.HorizontalMSB
	buf   bytes.Buffer
	drawn bool
}

// New returns a Dev that displays at the console.
//
// Permits to do local testing of display output.
func New(opts *Opts) *Dev {
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := opts.Out
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	return &Dev{
		w:       w,
		palette: *p,
		img:     image1bit.NewHorizontalMSB(image.Rect(0, 0, opts.W, opts.H)),
	}
}

func (d *Dev) String() string {
	return "ScreenView"
}

// Halt implements conn.Resource.
//
// It resets the terminal attributes so following output is not corrupted.
func (d *Dev) Halt() error {
	_, err := d.w.Write([]byte("\n\033[0m"))
	return err
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model {
	return image1bit.BitModel
}

// Bounds implements display.Drawer.
func (d *Dev) Bounds() image.Rectangle {
	return d.img.Bounds()
}

// Draw implements display.Drawer.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	r = r.Intersect(d.Bounds())
	if r.Empty() {
		return nil
	}
	draw.Draw(d.img, r, src, sp, draw.Src)
	return d.refresh()
}

var (
	white = color.NRGBA{255, 255, 255, 255}
	black = color.NRGBA{0, 0, 0, 255}
)

func (d *Dev) refresh() error {
	// This code is designed to minimize the amount of memory allocated per
	// call. After the first frame the cursor is moved back up so successive
	// frames overwrite each other in place.
	d.buf.Reset()
	b := d.img.Bounds()
	if d.drawn {
		fmt.Fprintf(&d.buf, "\033[%dA", b.Dy())
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		_, _ = d.buf.WriteString("\r")
		for x := b.Min.X; x < b.Max.X; x++ {
			c := black
			if d.img.BitAt(x, y) == image1bit.On {
				c = white
			}
			_, _ = io.WriteString(&d.buf, d.palette.Block(c))
		}
		_, _ = d.buf.WriteString("\033[0m\n")
	}
	d.drawn = true
	_, err := d.buf.WriteTo(d.w)
	return err
}

var _ display.Drawer = &Dev{}
var _ fmt.Stringer = &Dev{}
