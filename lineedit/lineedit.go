// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lineedit turns a raw byte stream from an interactive
// channel into lines. It understands just enough editing for a
// terminal user: backspace and delete erase, CR is dropped, and LF
// ends the line.
//
// Editors never block. Feed is called once per chunk of input, and
// returns at once whether or not a line was completed.
package lineedit

// MaxLine is the longest line an Editor will hold. Bytes beyond it
// are dropped until the line ends.
const MaxLine = 256

const (
	bs  = 0x08
	del = 0x7f
)

// Editor accumulates bytes into a line. The zero value is ready to use.
type Editor struct {
	buf     []byte
	pending []byte
}

// Feed appends b to the input and returns the first completed line,
// if any. Input following a completed line is kept; call Feed again,
// with nil if there is no new input, to get the lines it holds.
func (e *Editor) Feed(b []byte) (string, bool) {
	if len(b) > 0 {
		e.pending = append(e.pending, b...)
	}
	for i, c := range e.pending {
		switch c {
		case '\r':
		case '\n':
			l := string(e.buf)
			e.buf = e.buf[:0]
			e.pending = e.pending[i+1:]
			if len(e.pending) == 0 {
				e.pending = nil
			}
			return l, true
		case bs, del:
			if len(e.buf) > 0 {
				e.buf = e.buf[:len(e.buf)-1]
			}
		default:
			if len(e.buf) < MaxLine {
				e.buf = append(e.buf, c)
			}
		}
	}
	e.pending = nil
	return "", false
}

// Len returns the number of bytes in the partial line.
func (e *Editor) Len() int {
	return len(e.buf)
}

// Reset discards the partial line and any unprocessed input.
func (e *Editor) Reset() {
	e.buf = e.buf[:0]
	e.pending = nil
}
