// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package image1bit provides black and white images packed 8 horizontal
// pixels per byte.
//
// The GLK19264 surface uses horizontal packing with the leftmost pixel of
// each byte in the most significant bit, matching generic row-major raster
// order. This package provides the Bit color type and the HorizontalMSB
// image implementation.
package image1bit

import (
	"image"
	"image/color"
)

// Bit implements a 1 bit color.
type Bit bool

// RGBA returns either all white or all black.
func (b Bit) RGBA() (uint32, uint32, uint32, uint32) {
	if b {
		return 65535, 65535, 65535, 65535
	}
	return 0, 0, 0, 65535
}

func (b Bit) String() string {
	if b {
		return "On"
	}
	return "Off"
}

// Possible bitness.
const (
	On  Bit = true
	Off Bit = false
)

// BitModel is the color model for the 1 bit color.
var BitModel = color.ModelFunc(convert)

func convert(c color.Color) color.Color {
	return convertBit(c)
}

func convertBit(c color.Color) Bit {
	if b, ok := c.(Bit); ok {
		return b
	}
	return Bit(color.GrayModel.Convert(c).(color.Gray).Y >= 0x80)
}

// HorizontalMSB is a 1 bit image with pixels packed 8 per byte, row-major,
// leftmost pixel in the most significant bit of each byte.
type HorizontalMSB struct {
	// Pix holds the image's pixels as horizontally packed bits.
	Pix []byte
	// Stride is the Pix stride (in bytes) between vertically adjacent pixels.
	Stride int
	// Rect is the image's bounds.
	Rect image.Rectangle
}

// NewHorizontalMSB returns an initialized HorizontalMSB instance.
func NewHorizontalMSB(r image.Rectangle) *HorizontalMSB {
	w, h := r.Dx(), r.Dy()
	if w < 0 || h < 0 {
		return &HorizontalMSB{Rect: r}
	}
	stride := (w + 7) / 8
	return &HorizontalMSB{Pix: make([]byte, stride*h), Stride: stride, Rect: r}
}

// ColorModel implements image.Image.
func (i *HorizontalMSB) ColorModel() color.Model {
	return BitModel
}

// Bounds implements image.Image.
func (i *HorizontalMSB) Bounds() image.Rectangle {
	return i.Rect
}

// At implements image.Image.
func (i *HorizontalMSB) At(x, y int) color.Color {
	return i.BitAt(x, y)
}

// BitAt is the optimized version of At().
func (i *HorizontalMSB) BitAt(x, y int) Bit {
	if !(image.Point{X: x, Y: y}.In(i.Rect)) {
		return Off
	}
	offset, mask := i.pixOffset(x, y)
	return Bit(i.Pix[offset]&mask != 0)
}

// Set implements draw.Image.
func (i *HorizontalMSB) Set(x, y int, c color.Color) {
	i.SetBit(x, y, convertBit(c))
}

// SetBit is the optimized version of Set().
func (i *HorizontalMSB) SetBit(x, y int, b Bit) {
	if !(image.Point{X: x, Y: y}.In(i.Rect)) {
		return
	}
	offset, mask := i.pixOffset(x, y)
	if b {
		i.Pix[offset] |= mask
	} else {
		i.Pix[offset] &^= mask
	}
}

// DrawHLine draws a horizontal line from (x1, y) up to but excluding (x2, y).
func (i *HorizontalMSB) DrawHLine(x1, x2, y int, b Bit) {
	for x := x1; x < x2; x++ {
		i.SetBit(x, y, b)
	}
}

// DrawVLine draws a vertical line from (x, y1) up to but excluding (x, y2).
func (i *HorizontalMSB) DrawVLine(y1, y2, x int, b Bit) {
	for y := y1; y < y2; y++ {
		i.SetBit(x, y, b)
	}
}

func (i *HorizontalMSB) pixOffset(x, y int) (int, byte) {
	return (y-i.Rect.Min.Y)*i.Stride + (x-i.Rect.Min.X)/8, 0x80 >> uint((x-i.Rect.Min.X)&7)
}

var _ image.Image = &HorizontalMSB{}
