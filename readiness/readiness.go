// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package readiness tracks network bring-up and decides when the shell
// server may start listening.
//
// Link and address events are posted to a Machine from whatever
// watches the network (see Watch). The Machine's control loop, Run,
// consumes them every PollInterval and is the only writer of the
// state. Anyone may read the state with State.
//
// The states advance in order:
//
//	New -> PhyConnected -> WaitAddress -> AddressAcquired ->
//	UpdateCheck -> UpdateComplete -> Listening
//
// WaitAddress waits up to Timeout for both an IPv4 and an IPv6
// address. If the timer expires with one of them, it moves on; with
// none, it starts again from New, and the first address to arrive
// while the link is still up starts the wait over. Losing the link
// before an address is acquired also resets to New. Losing it later
// passes through Disconnected and back to Listening; the server keeps
// its listener.
//
// OnAcquired runs once, when AddressAcquired has been reached and an
// IPv4 address is known, whichever happens last.
package readiness

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// State is the network state of the device. Numeric order is the
// order of progress.
type State int32

const (
	New State = iota
	PhyConnected
	WaitAddress
	AddressAcquired
	UpdateCheck
	UpdateComplete
	Listening
	Disconnected
)

var stateNames = [...]string{
	New:             "New",
	PhyConnected:    "PhyConnected",
	WaitAddress:     "WaitAddress",
	AddressAcquired: "AddressAcquired",
	UpdateCheck:     "UpdateCheck",
	UpdateComplete:  "UpdateComplete",
	Listening:       "Listening",
	Disconnected:    "Disconnected",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// EventKind says what happened on the network.
type EventKind int

const (
	LinkUp EventKind = iota
	LinkDown
	AddrV4
	AddrV6
)

func (k EventKind) String() string {
	switch k {
	case LinkUp:
		return "link-up"
	case LinkDown:
		return "link-down"
	case AddrV4:
		return "addr-v4"
	case AddrV6:
		return "addr-v6"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one network event. Addr is set for AddrV4 and AddrV6.
type Event struct {
	Kind EventKind
	Addr net.IP
}

// AddrEvent returns an AddrV4 or AddrV6 event for ip.
func AddrEvent(ip net.IP) Event {
	if ip.To4() != nil {
		return Event{Kind: AddrV4, Addr: ip}
	}
	return Event{Kind: AddrV6, Addr: ip}
}

const (
	// PollInterval is how often Run steps the machine.
	PollInterval = 100 * time.Millisecond
	// DefaultTimeout is how long WaitAddress waits for both addresses.
	DefaultTimeout = 10 * time.Second
	// QueueSize bounds the number of unconsumed events.
	QueueSize = 16
)

// Machine is the readiness state machine.
type Machine struct {
	// Timeout bounds WaitAddress.
	Timeout time.Duration
	// OnAcquired is called, at most once, once AddressAcquired has
	// been entered with an IPv4 address. It is called from the
	// control loop and must not block.
	OnAcquired func()
	// OnTransition, if set, is called for every state change.
	OnTransition func(from, to State)

	state    atomic.Int32
	events   chan Event
	deadline time.Time
	link     bool
	v4, v6   bool
	once     sync.Once
}

// NewMachine returns a Machine in state New with the default timeout.
func NewMachine() *Machine {
	return &Machine{
		Timeout: DefaultTimeout,
		events:  make(chan Event, QueueSize),
	}
}

// State returns the current state. It is safe to call from any goroutine.
func (m *Machine) State() State {
	return State(m.state.Load())
}

// Post queues an event for the control loop. It never blocks; it
// returns false if the queue is full and the event was dropped.
func (m *Machine) Post(e Event) bool {
	select {
	case m.events <- e:
		return true
	default:
		log.Printf("readiness: queue full, dropping %v", e.Kind)
		return false
	}
}

// Run steps the machine every PollInterval until ctx is done.
func (m *Machine) Run(ctx context.Context) error {
	t := time.NewTicker(PollInterval)
	defer t.Stop()
	for {
		m.Step(time.Now())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Step consumes all queued events, then makes every transition that
// does not have to wait, as of now.
func (m *Machine) Step(now time.Time) {
	for drained := false; !drained; {
		select {
		case e := <-m.events:
			m.event(e)
		default:
			drained = true
		}
	}
	for m.poll(now) {
	}
}

func (m *Machine) set(s State) {
	from := m.State()
	if from == s {
		return
	}
	m.state.Store(int32(s))
	v("readiness: %v -> %v", from, s)
	if m.OnTransition != nil {
		m.OnTransition(from, s)
	}
	if s == AddressAcquired {
		m.acquired()
	}
}

// acquired runs OnAcquired if an IPv4 address is known.
func (m *Machine) acquired() {
	if m.v4 && m.OnAcquired != nil {
		m.once.Do(m.OnAcquired)
	}
}

func (m *Machine) event(e Event) {
	v("readiness: event %v %v in %v", e.Kind, e.Addr, m.State())
	s := m.State()
	switch e.Kind {
	case LinkUp:
		m.link = true
		if s < PhyConnected {
			m.set(PhyConnected)
		}
	case LinkDown:
		m.link = false
		switch {
		case s <= WaitAddress:
			m.v4, m.v6 = false, false
			m.set(New)
		case s == Disconnected:
		default:
			m.set(Disconnected)
		}
	case AddrV4:
		m.v4 = true
		m.addr(s)
	case AddrV6:
		if e.Addr != nil && e.Addr.IsLinkLocalUnicast() {
			return
		}
		m.v6 = true
		m.addr(s)
	}
}

// addr handles a new address seen in state s. An address after a
// timed out wait, with the link still up, starts the wait again.
func (m *Machine) addr(s State) {
	switch {
	case s == New && m.link:
		m.set(PhyConnected)
	case s >= AddressAcquired:
		m.acquired()
	}
}

// poll makes one transition and reports whether it did.
func (m *Machine) poll(now time.Time) bool {
	switch m.State() {
	case PhyConnected:
		m.deadline = now.Add(m.Timeout)
		m.set(WaitAddress)
	case WaitAddress:
		switch {
		case m.v4 && m.v6:
			m.set(AddressAcquired)
		case now.Before(m.deadline):
			return false
		case m.v4 || m.v6:
			log.Printf("readiness: timeout waiting for all addresses (v4 %v, v6 %v)", m.v4, m.v6)
			m.set(AddressAcquired)
		default:
			log.Printf("readiness: timeout waiting for an address")
			m.set(New)
		}
	case AddressAcquired:
		m.set(UpdateCheck)
	case UpdateCheck:
		// There is no update mechanism.
		m.set(UpdateComplete)
	case UpdateComplete:
		m.set(Listening)
	case Disconnected:
		// Nothing to release; the listener survives link loss.
		m.set(Listening)
	default:
		return false
	}
	return true
}

var v = func(string, ...interface{}) {}

// SetVerbose sets the function used for debug prints.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}
