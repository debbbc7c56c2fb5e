// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"net"
	"time"
)

const diagWriteTimeout = 2 * time.Second

func diagBanner(addr net.Addr) string {
	port := addr.String()
	if _, p, err := net.SplitHostPort(port); err == nil {
		port = p
	}
	return fmt.Sprintf("shelld TCP diag OK (port %s)\r\n", port)
}

// diag writes a one line banner to every connection on ln and closes
// it, until ctx is done.
func diag(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	banner := []byte(diagBanner(ln.Addr()))
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		verbose("diag: %v", c.RemoteAddr())
		c.SetWriteDeadline(time.Now().Add(diagWriteTimeout)) //nolint
		if _, err := c.Write(banner); err != nil {
			verbose("diag: %v: %v", c.RemoteAddr(), err)
		}
		c.Close()
	}
}
