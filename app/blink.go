// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package app

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Blink frequency limits, in Hz.
const (
	DefaultFrequency = 2.0
	MinFrequency     = 0.1
	MaxFrequency     = 20.0
	FrequencyStep    = 0.5
)

const (
	blinkBanner = "\r\nblink: '+' and '-' change the rate, a number sets it in Hz, 'q' returns to the menu\r\n"
	blinkPrompt = "blink> "
)

// Blinker toggles an Actuator at a user-controlled frequency.
type Blinker struct {
	act  Actuator
	freq float64
	half time.Duration
	last time.Time
	on   bool
}

// NewBlinker returns a Blinker at DefaultFrequency whose first toggle is
// due half a period after now.
func NewBlinker(a Actuator, now time.Time) *Blinker {
	b := &Blinker{act: a, last: now}
	b.SetFrequency(DefaultFrequency)
	return b
}

// Frequency returns the current frequency in Hz.
func (b *Blinker) Frequency() float64 {
	return b.freq
}

// HalfPeriod returns the time between toggles.
func (b *Blinker) HalfPeriod() time.Duration {
	return b.half
}

// On reports whether the actuator was last driven on.
func (b *Blinker) On() bool {
	return b.on
}

// SetFrequency sets the frequency, clamped to [MinFrequency, MaxFrequency].
func (b *Blinker) SetFrequency(f float64) {
	b.freq = math.Min(math.Max(f, MinFrequency), MaxFrequency)
	b.half = time.Duration(500 / b.freq * float64(time.Millisecond))
}

// Tick toggles the actuator if a half period has passed since the last
// toggle.
func (b *Blinker) Tick(now time.Time) error {
	if now.Sub(b.last) < b.half {
		return nil
	}
	b.on = !b.on
	b.last = now
	return b.act.Set(b.on)
}

// Line handles one line of input. It returns true when the user asked
// to leave, in which case the actuator has been switched off.
func (b *Blinker) Line(w io.Writer, l string) (bool, error) {
	switch s := strings.TrimSpace(l); s {
	case "q":
		return true, b.Stop()
	case "+":
		b.SetFrequency(b.freq + FrequencyStep)
	case "-":
		b.SetFrequency(b.freq - FrequencyStep)
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			_, err := io.WriteString(w, blinkPrompt)
			return false, err
		}
		b.SetFrequency(f)
	}
	_, err := fmt.Fprintf(w, "freq=%.2f Hz\r\n%s", b.freq, blinkPrompt)
	return false, err
}

// Stop switches the actuator off.
func (b *Blinker) Stop() error {
	b.on = false
	return b.act.Set(false)
}
