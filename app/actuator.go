// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package app

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// An Actuator is a binary physical output, such as an LED.
type Actuator interface {
	Set(on bool) error
}

// LEDRoot is where Linux exposes LED class devices.
var LEDRoot = "/sys/class/leds"

// LED drives a Linux LED class device through its brightness file.
type LED struct {
	path string
	max  []byte
}

// NewLED returns an LED for the named device, e.g. "led0". The device's
// max_brightness is used for "on" if it can be read.
func NewLED(name string) (*LED, error) {
	dir := filepath.Join(LEDRoot, name)
	if _, err := os.Stat(filepath.Join(dir, "brightness")); err != nil {
		return nil, fmt.Errorf("led %q: %w", name, err)
	}
	max := []byte("1")
	if b, err := os.ReadFile(filepath.Join(dir, "max_brightness")); err == nil && len(b) > 0 {
		max = b
	}
	return &LED{path: filepath.Join(dir, "brightness"), max: max}, nil
}

// Set implements Actuator.
func (l *LED) Set(on bool) error {
	val := []byte("0")
	if on {
		val = l.max
	}
	return os.WriteFile(l.path, val, 0644)
}

// Nop is an Actuator with no hardware behind it. It remembers the last
// value set and how many times it changed.
type Nop struct {
	mu      sync.Mutex
	on      bool
	toggles int
}

// Set implements Actuator.
func (n *Nop) Set(on bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if on != n.on {
		n.toggles++
	}
	n.on = on
	return nil
}

// On reports the last value set.
func (n *Nop) On() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.on
}

// Toggles reports how many times the value changed.
func (n *Nop) Toggles() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.toggles
}
