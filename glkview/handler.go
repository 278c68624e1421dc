// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package glkview

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/textproto"
	"strconv"
)

type client struct {
	refresh   chan struct{}
	terminate chan struct{}
}

// ServeHTTP handles HTTP GET requests and sends a stream of PNG images
// representing the pixel surface in response. With the "once" URL parameter
// set a single still snapshot is sent instead.
func (d *Display) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Query().Get("once") != "" {
		payload, err := d.grabSnapshot()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
		return
	}

	pw := makePartWriter(w)

	w.Header().Set("Content-Type",
		mime.FormatMediaType("multipart/x-mixed-replace", map[string]string{
			"boundary": pw.boundary,
		}))

	c := &client{
		refresh:   make(chan struct{}, 1),
		terminate: make(chan struct{}, 1),
	}

	d.mu.Lock()
	d.clients[c] = struct{}{}
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.clients, c)
		d.mu.Unlock()
	}()

	partHeaders := make(textproto.MIMEHeader)
	partHeaders.Set("Content-Type", "image/png")
	partHeaders.Set("Content-Transfer-Encoding", "binary")

	for {
		payload, err := d.grabSnapshot()
		if err != nil {
			return
		}
		if err := pw.writeFrame(partHeaders, payload); err != nil {
			// Errors cause the request to be silently terminated. There's no
			// good way to deliver an error message to the client within an
			// image stream.
			return
		}

		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}

		select {
		case <-c.refresh:
		case <-c.terminate:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// randomBoundary generates a MIME multipart boundary compatible with RFC 2046
// (section 5.1.1).
func randomBoundary() string {
	var buf [34]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", buf[:])
}

type partWriter struct {
	u        io.Writer
	boundary string
	started  bool
}

func makePartWriter(u io.Writer) partWriter {
	return partWriter{
		u:        u,
		boundary: randomBoundary(),
	}
}

// writeFrame sends a single part of a MIME multipart entity, ensuring it's
// fully written by the time the function returns.
//
// "mime/multipart".Writer is not suitable for writing a neverending stream
// of parts where each must be flushed to the client with the part-ending
// boundary line, hence the hand-rolled writer.
func (w *partWriter) writeFrame(header textproto.MIMEHeader, body []byte) error {
	header.Set("Content-Length", strconv.Itoa(len(body)))

	var buf bytes.Buffer

	if !w.started {
		fmt.Fprintf(&buf, "--%s\r\n", w.boundary)
		w.started = true
	}

	for name := range header {
		for _, value := range header[name] {
			fmt.Fprintf(&buf, "%s: %s\r\n", name, value)
		}
	}

	buf.WriteString("\r\n")

	_, err := buf.WriteTo(w.u)
	if err == nil {
		_, err = w.u.Write(body)
		if err == nil {
			_, err = fmt.Fprintf(w.u, "\r\n--%s\r\n", w.boundary)
		}
	}

	return err
}
