// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/u-root/shelld/lineedit"
)

// Mode is the application a Dispatcher is routing lines to.
type Mode int

const (
	ModeMenu Mode = iota
	ModeEcho
	ModeBlink
)

func (m Mode) String() string {
	switch m {
	case ModeMenu:
		return "menu"
	case ModeEcho:
		return "echo"
	case ModeBlink:
		return "blink"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

const (
	menu = "\r\nshelld\r\n" +
		"  1     echo\r\n" +
		"  2     blink\r\n" +
		"  quit  close the session\r\n"
	menuPrompt = "> "
	unknown    = "unknown option\r\n"
	goodbye    = "bye\r\n"

	echoBanner = "\r\necho: every line is sent back, 'q' returns to the menu\r\n"
	echoPrompt = "echo> "
)

// Dispatcher routes completed input lines to the active application.
type Dispatcher struct {
	w     io.Writer
	act   Actuator
	mode  Mode
	ed    lineedit.Editor
	blink *Blinker
}

// NewDispatcher returns a Dispatcher in ModeMenu that writes to w. The
// blink application drives a. If a is nil, a Nop is used.
func NewDispatcher(w io.Writer, a Actuator) *Dispatcher {
	if a == nil {
		a = &Nop{}
	}
	return &Dispatcher{w: w, act: a}
}

// Mode returns the active application.
func (d *Dispatcher) Mode() Mode {
	return d.mode
}

// Blinker returns the blink application, or nil if it is not running.
func (d *Dispatcher) Blinker() *Blinker {
	return d.blink
}

// Start prints the menu.
func (d *Dispatcher) Start() error {
	return d.write(menu, menuPrompt)
}

// Input runs b through the line editor and dispatches every line it
// completes. It returns true once the user has asked to close the
// session; input after that is discarded.
func (d *Dispatcher) Input(b []byte, now time.Time) (bool, error) {
	for l, ok := d.ed.Feed(b); ok; l, ok = d.ed.Feed(nil) {
		quit, err := d.Line(l, now)
		if quit || err != nil {
			d.ed.Reset()
			return quit, err
		}
	}
	return false, nil
}

// Tick advances time-driven application state. It is called on every
// iteration of the session loop whether or not input arrived.
func (d *Dispatcher) Tick(now time.Time) error {
	if d.mode != ModeBlink {
		return nil
	}
	return d.blink.Tick(now)
}

// Line dispatches one complete line.
func (d *Dispatcher) Line(l string, now time.Time) (bool, error) {
	v("dispatch %v: %q", d.mode, l)
	switch d.mode {
	case ModeMenu:
		switch strings.TrimSpace(l) {
		case "1":
			d.mode = ModeEcho
			return false, d.write(echoBanner, echoPrompt)
		case "2":
			d.mode = ModeBlink
			d.blink = NewBlinker(d.act, now)
			return false, d.write(blinkBanner, fmt.Sprintf("freq=%.2f Hz\r\n", d.blink.Frequency()), blinkPrompt)
		case "quit":
			return true, d.write(goodbye)
		default:
			return false, d.write(unknown, menuPrompt)
		}

	case ModeEcho:
		if l == "q" {
			return false, d.toMenu()
		}
		return false, d.write(l, "\r\n", echoPrompt)

	case ModeBlink:
		exit, err := d.blink.Line(d.w, l)
		if err != nil || !exit {
			return false, err
		}
		d.blink = nil
		return false, d.toMenu()
	}
	return false, fmt.Errorf("dispatch: unknown mode %v", d.mode)
}

// Close switches the actuator off if blink is running. It is safe to
// call more than once.
func (d *Dispatcher) Close() error {
	if d.blink == nil {
		return nil
	}
	b := d.blink
	d.blink, d.mode = nil, ModeMenu
	return b.Stop()
}

func (d *Dispatcher) toMenu() error {
	d.mode = ModeMenu
	return d.write(menu, menuPrompt)
}

func (d *Dispatcher) write(s ...string) error {
	_, err := io.WriteString(d.w, strings.Join(s, ""))
	return err
}
