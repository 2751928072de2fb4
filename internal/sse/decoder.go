// Package sse consumes the `data: <json>` event stream produced by the chat backend.
package sse

import (
	"bytes"
	"errors"
	"io"

	"github.com/xiaot623/carechat/internal/domain"
)

// DataPrefix marks a line carrying an event payload.
const DataPrefix = "data: "

// TransportErrorMessage is surfaced to the user when the stream breaks.
const TransportErrorMessage = "I apologize, but I encountered an error. Please try again."

// Handler is called for each event in stream order. A non-nil error stops consumption.
type Handler func(event domain.StreamEvent) error

// Decoder reassembles complete lines across arbitrary chunk boundaries.
// Splitting happens on the '\n' byte, which never occurs inside a multi-byte
// UTF-8 sequence, so a character split across chunks stays buffered intact.
type Decoder struct {
	buf []byte
}

// Write appends a chunk and returns the events of every line it completed.
func (d *Decoder) Write(chunk []byte) []domain.StreamEvent {
	d.buf = append(d.buf, chunk...)

	var events []domain.StreamEvent
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := d.buf[:idx]
		if ev, ok := ParseLine(line); ok {
			events = append(events, ev)
		}
		d.buf = d.buf[idx+1:]
	}

	// Compact so a long stream does not pin every consumed chunk.
	if len(d.buf) == 0 {
		d.buf = nil
	} else if cap(d.buf) > 2*len(d.buf)+4096 {
		d.buf = append([]byte(nil), d.buf...)
	}
	return events
}

// Buffered returns the number of bytes held back as an incomplete line.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// ParseLine decodes one complete line. Lines without the data prefix and
// payloads that fail to parse are reported as not ok.
func ParseLine(line []byte) (domain.StreamEvent, bool) {
	if !bytes.HasPrefix(line, []byte(DataPrefix)) {
		return nil, false
	}
	ev, err := domain.DecodeStreamEvent(line[len(DataPrefix):])
	if err != nil {
		return nil, false
	}
	return ev, true
}

// Consume reads r until EOF, dispatching every parsed event to handler.
// A read failure is delivered once as a transport ErrorFrame and then returned.
// Bytes after the last newline are discarded at EOF.
func Consume(r io.Reader, handler Handler) error {
	var dec Decoder
	chunk := make([]byte, 32*1024)

	for {
		n, readErr := r.Read(chunk)
		if n > 0 {
			for _, ev := range dec.Write(chunk[:n]) {
				if err := handler(ev); err != nil {
					return err
				}
			}
		}

		if errors.Is(readErr, io.EOF) {
			return nil
		}
		if readErr != nil {
			if err := handler(domain.ErrorFrame{Message: TransportErrorMessage, Transport: true}); err != nil {
				return err
			}
			return readErr
		}
	}
}
