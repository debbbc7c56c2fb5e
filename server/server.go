// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/mdlayher/vsock"
	"github.com/u-root/shelld/auth"
	"github.com/u-root/shelld/session"
	"github.com/u-root/shelld/transport"
	gossh "golang.org/x/crypto/ssh"
)

// DefaultPort is the port shelld listens on when none is given.
const DefaultPort = "22"

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("server: closed")

const (
	anyCID       = math.MaxUint32
	maxTempDelay = time.Second // accept retry backoff cap
)

var v = func(string, ...interface{}) {}

// SetVerbose sets the function used for debug prints.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}

func verbose(f string, a ...interface{}) {
	v("SHELLD:"+f, a...)
}

// Server accepts connections and runs one session at a time.
type Server struct {
	// OnSession, if set, is called with 1 when a session starts and
	// -1 when it ends.
	OnSession func(delta int)

	policy auth.Policy
	signer gossh.Signer
	opts   []session.Option

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	ln     net.Listener
	active transport.Transport
	closed bool
}

// New returns a Server that checks credentials against p and
// identifies itself with the host key in hostKeyFile. If hostKeyFile
// is empty or does not exist, an ephemeral key is used. opts are
// passed to every session.
func New(p auth.Policy, hostKeyFile string, opts ...session.Option) (*Server, error) {
	if p == nil {
		return nil, fmt.Errorf("server: no authentication policy")
	}
	signer, err := transport.HostKey(hostKeyFile)
	if err != nil {
		return nil, err
	}
	verbose("host key %s %s", signer.PublicKey().Type(), gossh.FingerprintSHA256(signer.PublicKey()))
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		policy: p,
		signer: signer,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// PublicKey returns the server's host public key.
func (s *Server) PublicKey() gossh.PublicKey {
	return s.signer.PublicKey()
}

// Serve accepts connections on ln and serves them one at a time. It
// always returns a non-nil error; after Close it is ErrServerClosed.
// Accept errors are logged and retried with a capped backoff until the
// listener is closed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.ln = ln
	s.mu.Unlock()
	defer ln.Close()

	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if tempDelay > maxTempDelay {
				tempDelay = maxTempDelay
			}
			log.Printf("SHELLD:accept error: %v; retrying in %v", err, tempDelay)
			time.Sleep(tempDelay)
			continue
		}
		tempDelay = 0
		if err := s.ServeConn(s.ctx, conn); err != nil {
			verbose("session from %v: %v", conn.RemoteAddr(), err)
		}
	}
}

// ServeConn runs one session on conn and returns when it is over. conn
// is always closed.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) error {
	log.Printf("SHELLD:connection from %v", conn.RemoteAddr())
	t := transport.NewSSH(conn, s.signer)
	if !s.setActive(t) {
		t.Close()
		return ErrServerClosed
	}
	defer s.setActive(nil)

	s.count(1)
	defer s.count(-1)
	return session.New(t, s.policy, s.opts...).Run(ctx)
}

// Close stops the listener and ends the running session, if any.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	if s.active != nil {
		s.active.Close()
	}
	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// setActive records t as the running session's transport. It returns
// false if the server is already closed.
func (s *Server) setActive(t transport.Transport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t != nil && s.closed {
		return false
	}
	s.active = t
	return true
}

func (s *Server) count(delta int) {
	if s.OnSession != nil {
		s.OnSession(delta)
	}
}

// Listen returns a listener for network and port. "tcp" listens on
// every address of both families; "tcp4", "tcp6" and the other net
// networks listen on every address of theirs. For "unix", port is a
// path. For "vsock", port is a vsock port number and the listener
// accepts any context ID.
func Listen(network, port string) (net.Listener, error) {
	// Sadly, vsock is not in the standard Go net package.
	// It should be but ...
	switch network {
	case "vsock":
		p, err := strconv.ParseUint(port, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("vsock port %q: %w", port, err)
		}
		return vsock.ListenContextID(anyCID, uint32(p), nil)

	case "unix", "unixpacket":
		// net.JoinHostPort really ought to work for UDS, but it's very naive.
		// It does not take the network type as a parameter.
		return net.Listen(network, port)
	}
	return net.Listen(network, net.JoinHostPort("", port))
}
