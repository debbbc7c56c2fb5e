// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package readiness

import (
	"context"
	"errors"
	"fmt"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// Watch posts link and address events for the interface ifname to m
// until ctx is done. The current link state and addresses are posted
// first.
func Watch(ctx context.Context, ifname string, m *Machine) error {
	link, err := netlink.LinkByName(ifname)
	if err != nil {
		return fmt.Errorf("readiness: link %q: %w", ifname, err)
	}
	idx := link.Attrs().Index

	done := make(chan struct{})
	defer close(done)
	links := make(chan netlink.LinkUpdate, QueueSize)
	if err := netlink.LinkSubscribe(links, done); err != nil {
		return fmt.Errorf("readiness: link subscribe: %w", err)
	}
	addrs := make(chan netlink.AddrUpdate, QueueSize)
	if err := netlink.AddrSubscribe(addrs, done); err != nil {
		return fmt.Errorf("readiness: addr subscribe: %w", err)
	}

	up := linkUp(link.Attrs())
	if up {
		m.Post(Event{Kind: LinkUp})
	}
	as, err := netlink.AddrList(link, netlink.FAMILY_ALL)
	if err != nil {
		v("readiness: AddrList(%q): %v", ifname, err)
	}
	for _, a := range as {
		m.Post(AddrEvent(a.IP))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-links:
			if !ok {
				return errors.New("readiness: link updates closed")
			}
			if u.Attrs().Index != idx {
				continue
			}
			if now := linkUp(u.Attrs()); now != up {
				up = now
				if up {
					m.Post(Event{Kind: LinkUp})
				} else {
					m.Post(Event{Kind: LinkDown})
				}
			}
		case u, ok := <-addrs:
			if !ok {
				return errors.New("readiness: address updates closed")
			}
			if u.LinkIndex != idx || !u.NewAddr {
				continue
			}
			m.Post(AddrEvent(u.LinkAddress.IP))
		}
	}
}

// linkUp reports whether a link can carry traffic. Some drivers never
// report an operational state, so for them the RUNNING flag decides.
func linkUp(a *netlink.LinkAttrs) bool {
	if a.OperState == netlink.OperUp {
		return true
	}
	return a.OperState == netlink.OperUnknown && a.RawFlags&unix.IFF_RUNNING != 0
}
