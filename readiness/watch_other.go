// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package readiness

import (
	"context"
	"fmt"
	"net"
)

// Watch posts the current link state and addresses of ifname to m,
// then waits for ctx. Changes are not tracked on this platform.
func Watch(ctx context.Context, ifname string, m *Machine) error {
	ifi, err := net.InterfaceByName(ifname)
	if err != nil {
		return fmt.Errorf("readiness: link %q: %w", ifname, err)
	}
	if ifi.Flags&net.FlagUp == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	m.Post(Event{Kind: LinkUp})
	addrs, err := ifi.Addrs()
	if err != nil {
		v("readiness: %q addresses: %v", ifname, err)
	}
	for _, a := range addrs {
		if n, ok := a.(*net.IPNet); ok {
			m.Post(AddrEvent(n.IP))
		}
	}
	<-ctx.Done()
	return ctx.Err()
}
