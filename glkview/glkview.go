// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package glkview provides a monochrome display driver implementing an HTTP
// request handler. Client requests get an initial snapshot of the pixel
// surface and are updated further on every change.
//
// The primary use case is developing GLK19264 screen layouts on a host
// machine. Devices with network connectivity can also use this driver to
// expose a copy of their local display via a web interface.
//
// The protocol used is "MJPEG" (https://en.wikipedia.org/wiki/Motion_JPEG)
// with PNG parts, which suits computer-drawn 1-bit graphics far better than
// JPEG. A single still snapshot can be requested with "?once=1".
package glkview

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"net/http"
	"sync"

	"periph.io/x/conn/v3/display"

	"github.com/promwad/glk19264/image1bit"
)

// Opts for glkview devices.
type Opts struct {
	// Width and height of the pixel surface being mirrored.
	W, H int
	// Scale is the integer upscaling factor applied before encoding. The
	// 192x64 panel is tiny on a modern screen; 0 means 4.
	Scale int
}

// Display mirrors a 1 bit pixel surface to HTTP clients.
type Display struct {
	scale int

	mu       sync.Mutex
	img      *image1bit.HorizontalMSB
	clients  map[*client]struct{}
	snapshot []byte
}

// New creates a new glkview device instance.
func New(opts *Opts) *Display {
	scale := opts.Scale
	if scale <= 0 {
		scale = 4
	}
	return &Display{
		scale:   scale,
		img:     image1bit.NewHorizontalMSB(image.Rect(0, 0, opts.W, opts.H)),
		clients: map[*client]struct{}{},
	}
}

// String returns the name of the device.
func (d *Display) String() string {
	return "GLKView"
}

// Halt implements conn.Resource and terminates all running client requests
// asynchronously.
func (d *Display) Halt() error {
	d.mu.Lock()
	d.terminateClientsLocked()
	d.mu.Unlock()
	return nil
}

// ColorModel implements display.Drawer.
func (d *Display) ColorModel() color.Model {
	return image1bit.BitModel
}

// Bounds implements display.Drawer.
func (d *Display) Bounds() image.Rectangle {
	return d.img.Bounds()
}

// Draw implements display.Drawer.
func (d *Display) Draw(dstRect image.Rectangle, src image.Image, srcPts image.Point) error {
	d.mu.Lock()
	draw.Draw(d.img, dstRect, src, srcPts, draw.Src)
	d.surfaceChangedLocked()
	d.mu.Unlock()
	return nil
}

func (d *Display) surfaceChangedLocked() {
	d.snapshot = nil
	for c := range d.clients {
		select {
		case c.refresh <- struct{}{}:
		default:
		}
	}
}

func (d *Display) terminateClientsLocked() {
	for c := range d.clients {
		select {
		case c.terminate <- struct{}{}:
		default:
		}
	}
}

// encodeLocked renders the surface, upscaled, into a PNG.
func (d *Display) encodeLocked() ([]byte, error) {
	b := d.img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx()*d.scale, b.Dy()*d.scale))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if d.img.BitAt(x, y) != image1bit.On {
				continue
			}
			for dy := 0; dy < d.scale; dy++ {
				row := ((y-b.Min.Y)*d.scale+dy)*out.Stride + (x-b.Min.X)*d.scale
				for dx := 0; dx < d.scale; dx++ {
					out.Pix[row+dx] = 0xFF
				}
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// grabSnapshot returns the encoded current frame, reusing the cached
// encoding when the surface has not changed since.
func (d *Display) grabSnapshot() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.snapshot == nil {
		encoded, err := d.encodeLocked()
		if err != nil {
			return nil, err
		}
		d.snapshot = encoded
	}
	return d.snapshot, nil
}

var _ display.Drawer = (*Display)(nil)
var _ http.Handler = (*Display)(nil)
