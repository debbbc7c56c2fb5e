// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/u-root/shelld/app"
	"github.com/u-root/shelld/config"
	"github.com/u-root/shelld/readiness"
	"github.com/u-root/shelld/server"
	"github.com/u-root/shelld/session"
)

type modifier struct {
	name string
	f    func(context.Context, *server.Server) error
}

func (m *modifier) String() string {
	return m.name
}

// modifiers are called once the server is set up and listening, and
// before s.Serve() is called. A modifier that fails is logged and
// skipped; it must leave the server usable.
var modifiers []*modifier

func actuator(name string) app.Actuator {
	if name == "" {
		return &app.Nop{}
	}
	l, err := app.NewLED(name)
	if err != nil {
		log.Printf("SHELLD:LED %q: %v; blink will not drive a light", name, err)
		return &app.Nop{}
	}
	return l
}

// defaultIface returns the first interface that is up and is not a
// loopback.
func defaultIface() (string, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, ifi := range ifs {
		if ifi.Flags&net.FlagUp != 0 && ifi.Flags&net.FlagLoopback == 0 {
			return ifi.Name, nil
		}
	}
	return "", fmt.Errorf("no interface is up")
}

// waitForNetwork runs the readiness machine for ifname and returns once
// an address has been acquired. The machine keeps running until ctx is
// done.
func waitForNetwork(ctx context.Context, ifname string) error {
	m := readiness.NewMachine()
	m.Timeout = *addrTimeout
	acquired := make(chan struct{})
	m.OnAcquired = func() { close(acquired) }
	m.OnTransition = func(from, to readiness.State) {
		verbose("network %s: %v -> %v", ifname, from, to)
	}

	watchErr := make(chan error, 1)
	go func() { watchErr <- readiness.Watch(ctx, ifname, m) }()
	go m.Run(ctx)

	log.Printf("SHELLD:waiting for an address on %s", ifname)
	select {
	case <-acquired:
		return nil
	case err := <-watchErr:
		return fmt.Errorf("watching %s: %w", ifname, err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func serve() error {
	p, err := config.Policy(*user, *password, *passwordHash)
	if err != nil {
		return err
	}
	s, err := server.New(p, *hostKeyFile,
		session.WithActuator(actuator(*led)),
		session.WithHandshakeTimeout(*authTimeout))
	if err != nil {
		return fmt.Errorf("server.New(%q): %w", *hostKeyFile, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// If there is a hup, we stop serving.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Printf("Received %v, shutting down shelld ...", sig)
		cancel()
		if err := s.Close(); err != nil {
			log.Printf("Close: %v", err)
		}
	}()

	if *waitNet {
		name := *iface
		if name == "" {
			if name, err = defaultIface(); err != nil {
				return err
			}
		}
		if err := waitForNetwork(ctx, name); err != nil {
			return err
		}
	}

	ln, err := server.Listen(*network, *port)
	if err != nil {
		return err
	}
	log.Printf("SHELLD:listening on %v", ln.Addr())

	if *diagPort != "" {
		dl, err := server.Listen("tcp", *diagPort)
		if err != nil {
			log.Printf("SHELLD:diag service on port %s: %v", *diagPort, err)
		} else {
			go func() {
				if err := diag(ctx, dl); err != nil {
					log.Printf("SHELLD:diag service on port %s: %v", *diagPort, err)
				}
			}()
		}
	}

	for _, m := range modifiers {
		if err := m.f(ctx, s); err != nil {
			log.Printf("Error %v from modifier %s", err, m)
		}
	}

	if err := s.Serve(ln); !errors.Is(err, server.ErrServerClosed) {
		return fmt.Errorf("s.Serve(): %w", err)
	}
	verbose("server returns")
	return nil
}
