// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package glk19264

import "time"

// bitmapFrame builds the full draw-bitmap frame for the current surface:
// escape, command, origin, dimensions, then every surface byte with its bit
// order reversed to match the controller's convention.
//
// Requires fbMu to be held.
func (d *Dev) bitmapFrame() []byte {
	frame := make([]byte, 0, 6+len(d.fb.Pix))
	frame = append(frame, cmdEscape, cmdDrawBitmap, 0, 0, byte(d.rect.Dx()), byte(d.rect.Dy()))
	for _, b := range d.fb.Pix {
		frame = append(frame, reverseBits(b))
	}
	return frame
}

// Flush transmits the whole surface if it has unflushed mutations. The
// module only supports whole-bitmap writes at this coordinate scheme, so
// there is no differential update.
//
// A transmission failure leaves the surface marked dirty; the next flush
// retries an identical frame. The background flusher calls Flush on every
// tick, so calling it directly is only needed to force an update ahead of
// the next interval.
func (d *Dev) Flush() error {
	d.fbMu.Lock()
	if !d.dirty {
		d.fbMu.Unlock()
		return nil
	}
	// Clear before transmitting: a mutation racing with the transfer sets
	// the flag again and gets picked up by the next tick.
	d.dirty = false
	frame := d.bitmapFrame()
	d.fbMu.Unlock()

	if err := d.sendFrame(frame); err != nil {
		d.fbMu.Lock()
		d.dirty = true
		d.fbMu.Unlock()
		return err
	}
	return nil
}

// startFlusher starts the goroutine that rate-limits bitmap transfers. Each
// tick is a cheap check of the dirty flag unless there is something to send.
func (d *Dev) startFlusher() {
	d.flushStop = make(chan struct{})
	d.flushDone = make(chan struct{})
	go func() {
		defer close(d.flushDone)
		t := time.NewTicker(d.refresh)
		defer t.Stop()
		for {
			select {
			case <-d.flushStop:
				return
			case <-t.C:
				if err := d.Flush(); err != nil {
					// One failed cycle never stops future ticks.
					d.logf("glk19264: flush: %v", err)
				}
			}
		}
	}()
}

func (d *Dev) stopFlusher() {
	if d.flushStop == nil {
		return
	}
	close(d.flushStop)
	<-d.flushDone
	d.flushStop = nil
}
