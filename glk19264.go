// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package glk19264

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/i2c"

	"github.com/promwad/glk19264/image1bit"
)

// Command bytes understood by the module. Every frame starts with the 0xFE
// escape byte. This only implements the subset needed for bitmap output and
// keypad input.
const (
	cmdEscape           byte = 0xFE
	cmdPollKeyPress     byte = 0x26
	cmdReadModuleType   byte = 0x37
	cmdAutoTxKeyOff     byte = 0x4F
	cmdClearScreen      byte = 0x58
	cmdDrawBitmap       byte = 0x64
	cmdTxProtocolSelect byte = 0xA0
)

// settleDelay is the pause the controller needs between receiving a read
// style command and having the reply byte ready on the bus.
const settleDelay = 5 * time.Millisecond

// Bus errors. Both are returned wrapped with operation context.
var (
	// ErrShortWrite is returned when the transport accepted fewer bytes than
	// one frame. The frame is not retried; a pending flush stays pending.
	ErrShortWrite = errors.New("short write")
	// ErrNoReply is returned when a read command did not produce exactly one
	// reply byte after the settle delay.
	ErrNoReply = errors.New("no reply")
)

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	W:                  192,
	H:                  64,
	Addr:               0x28,
	RefreshRate:        5,
	KeypadPollInterval: 500 * time.Millisecond,
	KeypadPollMax:      time.Second,
}

// Opts defines the options for the device.
type Opts struct {
	W int
	H int
	// Addr is the I²C address of the module.
	Addr uint16
	// RefreshRate is the number of display flushes per second. Drawing
	// operations only mark the surface dirty; at most one bitmap transfer
	// happens per 1/RefreshRate interval.
	RefreshRate int
	// KeypadPollInterval is the interval between keypad polls while keys are
	// coming in. While the keypad is idle the interval backs off up to
	// KeypadPollMax.
	KeypadPollInterval time.Duration
	KeypadPollMax      time.Duration
	// Logf receives diagnostics (module type, unknown scan codes, failed
	// flush ticks). nil means silent.
	Logf func(format string, v ...any)
}

// Dev is an open handle to a GLK19264 module.
//
// Implements periph.io/x/conn/v3/display.Drawer, io.WriterAt and
// conn.Resource.
type Dev struct {
	// Bus access. busMu is held for the duration of one command; a read
	// cycle keeps it across the settle delay so the reply byte cannot be
	// claimed by an interleaved command.
	busMu sync.Mutex
	c     conn.Conn
	w     io.Writer

	rect image.Rectangle
	logf func(format string, v ...any)

	// Pixel surface and its pending-flush flag.
	fbMu  sync.Mutex
	fb    *image1bit.HorizontalMSB
	dirty bool

	refresh   time.Duration
	flushStop chan struct{}
	flushDone chan struct{}

	keypadInterval time.Duration
	keypadMax      time.Duration
	kpMu           sync.Mutex
	chKeypad       chan KeyEvent
	kpStop         chan struct{}
	kpDone         chan struct{}
}

// NewI2C returns a Dev object that communicates over I²C.
//
// The startup handshake selects I²C as the reply transport, queries the
// module type (logged only), disables unsolicited key press transmission and
// clears the screen. Only a failure of the final clear aborts; the controller
// may still be booting during the earlier steps and the reply-less commands
// are tolerated failing.
func NewI2C(b i2c.Bus, opts *Opts) (*Dev, error) {
	o := *opts
	if o.Addr == 0 {
		o.Addr = DefaultOpts.Addr
	}
	return newDev(&i2c.Dev{Bus: b, Addr: o.Addr}, nil, &o)
}

// NewWriter returns a Dev object backed by an io.Writer. If the module is
// connected through hardware periph.io doesn't drive (e.g. an RS-232 serial
// port), any transport exposing io.Writer works. Reading the keypad or the
// module type additionally requires the transport to implement io.Reader.
func NewWriter(w io.Writer, opts *Opts) (*Dev, error) {
	return newDev(nil, w, opts)
}

// newDev is the common initialization code independent of the transport.
func newDev(c conn.Conn, w io.Writer, opts *Opts) (*Dev, error) {
	if opts.W <= 0 || opts.W > 255 || opts.W&7 != 0 {
		return nil, fmt.Errorf("glk19264: invalid width %d", opts.W)
	}
	if opts.H <= 0 || opts.H > 255 {
		return nil, fmt.Errorf("glk19264: invalid height %d", opts.H)
	}
	if opts.RefreshRate <= 0 {
		return nil, fmt.Errorf("glk19264: invalid refresh rate %d", opts.RefreshRate)
	}
	d := &Dev{
		c:              c,
		w:              w,
		rect:           image.Rect(0, 0, opts.W, opts.H),
		logf:           opts.Logf,
		fb:             image1bit.NewHorizontalMSB(image.Rect(0, 0, opts.W, opts.H)),
		refresh:        time.Second / time.Duration(opts.RefreshRate),
		keypadInterval: opts.KeypadPollInterval,
		keypadMax:      opts.KeypadPollMax,
	}
	if d.logf == nil {
		d.logf = func(string, ...any) {}
	}
	if d.keypadInterval <= 0 {
		d.keypadInterval = DefaultOpts.KeypadPollInterval
	}
	if d.keypadMax < d.keypadInterval {
		d.keypadMax = d.keypadInterval
	}
	if err := d.initDisplay(); err != nil {
		return nil, err
	}
	d.startFlusher()
	return d, nil
}

// initDisplay runs the startup handshake, strictly ordered.
func (d *Dev) initDisplay() error {
	// Route command replies over this transport rather than RS-232.
	if err := d.writeParam(cmdTxProtocolSelect, 0); err != nil {
		d.logf("glk19264: protocol select: %v", err)
	}
	if typ, err := d.readParam(cmdReadModuleType); err != nil {
		d.logf("glk19264: module type: %v", err)
	} else {
		// Informational only; no documented table of valid values exists.
		d.logf("glk19264: module type %#02x", typ)
	}
	// The keypad is polled; stop the controller pushing presses on its own.
	if err := d.writeCommand(cmdAutoTxKeyOff); err != nil {
		d.logf("glk19264: auto key press off: %v", err)
	}
	if err := d.writeCommand(cmdClearScreen); err != nil {
		return fmt.Errorf("glk19264: clear screen: %w", err)
	}
	return nil
}

// sendFrame transmits p as one atomic bus write.
func (d *Dev) sendFrame(p []byte) error {
	d.busMu.Lock()
	defer d.busMu.Unlock()
	return d.send(p)
}

// send requires busMu to be held.
func (d *Dev) send(p []byte) error {
	if d.c != nil {
		if err := d.c.Tx(p, nil); err != nil {
			return fmt.Errorf("glk19264: %w", err)
		}
		return nil
	}
	n, err := d.w.Write(p)
	if err != nil {
		return fmt.Errorf("glk19264: %w", err)
	}
	if n != len(p) {
		return fmt.Errorf("glk19264: wrote %d of %d bytes: %w", n, len(p), ErrShortWrite)
	}
	return nil
}

// readByte issues the one byte command cmd, waits out the settle delay the
// controller needs to prepare its answer and receives the single reply byte.
func (d *Dev) readByte(cmd byte) (byte, error) {
	d.busMu.Lock()
	defer d.busMu.Unlock()
	if err := d.send([]byte{cmdEscape, cmd}); err != nil {
		return 0, err
	}
	time.Sleep(settleDelay)
	var buf [1]byte
	if d.c != nil {
		if err := d.c.Tx(nil, buf[:]); err != nil {
			return 0, fmt.Errorf("glk19264: %w", err)
		}
		return buf[0], nil
	}
	r, ok := d.w.(io.Reader)
	if !ok {
		return 0, errors.New("glk19264: transport does not implement io.Reader")
	}
	n, err := r.Read(buf[:])
	if n == 1 {
		return buf[0], nil
	}
	if err != nil {
		return 0, fmt.Errorf("glk19264: %w", err)
	}
	return 0, fmt.Errorf("glk19264: received %d bytes: %w", n, ErrNoReply)
}

func (d *Dev) writeCommand(cmd byte) error {
	return d.sendFrame([]byte{cmdEscape, cmd})
}

func (d *Dev) writeParam(cmd, value byte) error {
	return d.sendFrame([]byte{cmdEscape, cmd, value})
}

func (d *Dev) readParam(cmd byte) (byte, error) {
	return d.readByte(cmd)
}

// reverseBits flips the bit order within a byte. The surface stores the
// leftmost of 8 horizontal pixels in the most significant bit while the
// draw-bitmap payload wants it in the least significant bit.
func reverseBits(b byte) byte {
	b = b&0xF0>>4 | b&0x0F<<4
	b = b&0xCC>>2 | b&0x33<<2
	b = b&0xAA>>1 | b&0x55<<1
	return b
}

// ColorModel implements display.Drawer.
//
// It is a one bit color model, as implemented by image1bit.Bit.
func (d *Dev) ColorModel() color.Model {
	return image1bit.BitModel
}

// Bounds implements display.Drawer. Min is guaranteed to be {0, 0}.
func (d *Dev) Bounds() image.Rectangle {
	return d.rect
}

// Draw implements display.Drawer.
//
// Draw only renders into the in-memory surface and returns immediately; the
// bitmap is transmitted by the background flusher on its next tick. Any
// number of draws within one refresh interval results in a single transfer.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	r = r.Intersect(d.rect)
	if r.Empty() {
		return nil
	}
	d.fbMu.Lock()
	draw.Draw(d.fb, r, src, sp, draw.Src)
	d.dirty = true
	d.fbMu.Unlock()
	return nil
}

// Write replaces the whole surface with a pixel stream in HorizontalMSB
// layout, W*H/8 bytes.
func (d *Dev) Write(pixels []byte) (int, error) {
	d.fbMu.Lock()
	defer d.fbMu.Unlock()
	if len(pixels) != len(d.fb.Pix) {
		return 0, fmt.Errorf("glk19264: invalid pixel stream length; expected %d bytes, got %d bytes", len(d.fb.Pix), len(pixels))
	}
	copy(d.fb.Pix, pixels)
	d.dirty = true
	return len(pixels), nil
}

// WriteAt writes p into the surface's backing store at byte offset off.
// Writes past the end are truncated. An offset beyond the end or a write
// that ends up empty is rejected.
func (d *Dev) WriteAt(p []byte, off int64) (int, error) {
	d.fbMu.Lock()
	defer d.fbMu.Unlock()
	total := int64(len(d.fb.Pix))
	if off < 0 || off > total {
		return 0, fmt.Errorf("glk19264: offset %d out of range [0, %d]", off, total)
	}
	if int64(len(p)) > total-off {
		p = p[:total-off]
	}
	if len(p) == 0 {
		return 0, errors.New("glk19264: zero-length write")
	}
	copy(d.fb.Pix[off:], p)
	d.dirty = true
	return len(p), nil
}

// Fill sets every pixel within r.
func (d *Dev) Fill(r image.Rectangle, b image1bit.Bit) error {
	r = r.Intersect(d.rect)
	if r.Empty() {
		return nil
	}
	d.fbMu.Lock()
	draw.Draw(d.fb, r, &image.Uniform{b}, image.Point{}, draw.Src)
	d.dirty = true
	d.fbMu.Unlock()
	return nil
}

// CopyArea copies the pixels within src so that the rectangle's top left
// corner lands on dst. Source and destination may overlap.
func (d *Dev) CopyArea(dst image.Point, src image.Rectangle) error {
	src = src.Intersect(d.rect)
	if src.Empty() {
		return nil
	}
	d.fbMu.Lock()
	tmp := image1bit.NewHorizontalMSB(src)
	draw.Draw(tmp, src, d.fb, src.Min, draw.Src)
	r := image.Rectangle{Min: dst, Max: dst.Add(src.Size())}.Intersect(d.rect)
	draw.Draw(d.fb, r, tmp, src.Min, draw.Src)
	d.dirty = true
	d.fbMu.Unlock()
	return nil
}

// Halt implements conn.Resource. It stops the keypad poller and the flusher,
// clears the screen and closes the transport if it implements io.Closer.
// Release is best-effort: a failed clear does not stop the remaining
// teardown.
func (d *Dev) Halt() error {
	d.stopKeypad()
	d.stopFlusher()
	err := d.writeCommand(cmdClearScreen)
	if d.c == nil {
		if cl, ok := d.w.(io.Closer); ok {
			if cerr := cl.Close(); err == nil {
				err = cerr
			}
		}
	}
	return err
}

func (d *Dev) String() string {
	if d.c != nil {
		return fmt.Sprintf("glk19264.Dev{%s, %s}", d.c, d.rect.Max)
	}
	return fmt.Sprintf("glk19264.Dev{%T, %s}", d.w, d.rect.Max)
}

var _ display.Drawer = &Dev{}
var _ conn.Resource = &Dev{}
var _ io.WriterAt = &Dev{}
