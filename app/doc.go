// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package app holds the interactive applications reachable from a
// shelld session, and the Dispatcher that routes input to them.
//
// A Dispatcher owns no goroutines and does no I/O of its own beyond
// writing to the io.Writer it is given. The session loop hands it
// whatever bytes arrived (possibly none) and the current time, once
// per iteration:
//
//	d := app.NewDispatcher(w, led)
//	d.Start()
//	for {
//		b, _ := read()
//		if quit, err := d.Input(b, time.Now()); quit || err != nil {
//			break
//		}
//		d.Tick(time.Now())
//	}
//
// The Dispatcher is in one of three modes: Menu, Echo or Blink.
// Menu understands "1", "2" and "quit". Echo writes every line back.
// Blink toggles an Actuator at a frequency the user adjusts with
// "+", "-" or a number. In Echo and Blink, "q" returns to the menu.
package app
