// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	// gliderlabs does the connection plumbing; we only install handlers
	// that turn each callback into a Request for the session.
	"github.com/gliderlabs/ssh"
	"github.com/hashicorp/go-multierror"
	gossh "golang.org/x/crypto/ssh"
)

const (
	// Version is sent to clients as SSH-2.0-Version.
	Version = "shelld"
	// readSize is the most data one Read returns.
	readSize = 256
	queueLen = 8
)

// SSH is a Transport for one accepted SSH connection.
type SSH struct {
	conn net.Conn
	srv  *ssh.Server

	reqs      chan *Request
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	closeOnce sync.Once
	finished  chan struct{}
	started   atomic.Bool

	mu       sync.Mutex
	failed   error
	channels map[ChannelID]*sshChannel
	nextID   ChannelID
}

type sshChannel struct {
	ch     gossh.Channel
	data   chan []byte
	closed bool
}

// NewSSH returns an SSH Transport for conn, identified by signer. Nothing
// is read from conn until Handshake.
func NewSSH(conn net.Conn, signer gossh.Signer) *SSH {
	t := &SSH{
		conn:     conn,
		reqs:     make(chan *Request, queueLen),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		channels: map[ChannelID]*sshChannel{},
	}
	t.srv = &ssh.Server{
		Version:          Version,
		PasswordHandler:  t.password,
		PublicKeyHandler: t.publicKey,
		ChannelHandlers: map[string]ssh.ChannelHandler{
			"session": t.openChannel,
			"default": t.openChannel,
		},
		RequestHandlers: map[string]ssh.RequestHandler{
			"default": t.global,
		},
		ConnectionFailedCallback: t.connFailed,
	}
	t.srv.AddHostKey(signer)
	return t
}

// Handshake implements Transport. Key exchange is complete once the
// client makes its first authentication attempt.
func (t *SSH) Handshake(ctx context.Context) error {
	if t.started.CompareAndSwap(false, true) {
		go func() {
			defer close(t.finished)
			t.srv.HandleConn(t.conn)
		}()
	}
	select {
	case <-t.ready:
		return nil
	case <-t.finished:
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.failed != nil {
			return t.failed
		}
		return ErrClosed
	case <-t.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextRequest implements Transport.
func (t *SSH) NextRequest(ctx context.Context) (*Request, error) {
	select {
	case r := <-t.reqs:
		return r, nil
	case <-t.finished:
		return nil, ErrClosed
	case <-t.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryRequest implements Transport.
func (t *SSH) TryRequest() (*Request, error) {
	select {
	case r := <-t.reqs:
		return r, nil
	case <-t.done:
		return nil, ErrClosed
	default:
		return nil, nil
	}
}

// Reply implements Transport.
func (t *SSH) Reply(r *Request, o Outcome) error {
	v("transport: reply %v %q: %v", r.Type, r.Name, o)
	return r.Answer(o)
}

// Read implements Transport.
func (t *SSH) Read(id ChannelID) ([]byte, error) {
	c, err := t.channel(id)
	if err != nil {
		return nil, err
	}
	select {
	case b, ok := <-c.data:
		if !ok {
			return nil, io.EOF
		}
		return b, nil
	default:
		return nil, nil
	}
}

// Write implements Transport.
func (t *SSH) Write(id ChannelID, b []byte) (int, error) {
	c, err := t.channel(id)
	if err != nil {
		return 0, err
	}
	return c.ch.Write(b)
}

// CloseChannel implements Transport.
func (t *SSH) CloseChannel(id ChannelID) error {
	c, err := t.channel(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	closed := c.closed
	c.closed = true
	t.mu.Unlock()
	if closed {
		return nil
	}

	var result *multierror.Error
	status := gossh.Marshal(struct{ Status uint32 }{0})
	if _, err := c.ch.SendRequest("exit-status", false, status); err != nil && !errors.Is(err, io.EOF) {
		result = multierror.Append(result, err)
	}
	if err := c.ch.Close(); err != nil && !errors.Is(err, io.EOF) {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Close implements Transport.
func (t *SSH) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		if e := t.conn.Close(); e != nil && !errors.Is(e, net.ErrClosed) {
			err = e
		}
		if t.started.Load() {
			<-t.finished
		}
	})
	return err
}

func (t *SSH) channel(id ChannelID) (*sshChannel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.channels[id]
	if !ok {
		return nil, ErrNoChannel
	}
	return c, nil
}

// post hands r to the session and waits for its answer. It runs on
// the SSH library's goroutines.
func (t *SSH) post(r *Request) Outcome {
	t.readyOnce.Do(func() { close(t.ready) })
	select {
	case t.reqs <- r:
	case <-t.done:
		return Failure
	}
	return r.Wait(t.done)
}

func (t *SSH) connFailed(conn net.Conn, err error) {
	v("transport: %v: %v", conn.RemoteAddr(), err)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = err
}

func (t *SSH) password(ctx ssh.Context, password string) bool {
	r := NewRequest(AuthPassword, "password")
	r.User, r.Password = ctx.User(), password
	return t.post(r) == Success
}

func (t *SSH) publicKey(ctx ssh.Context, key ssh.PublicKey) bool {
	r := NewRequest(AuthOther, "publickey")
	r.User = ctx.User()
	return t.post(r) == Success
}

func (t *SSH) global(ctx ssh.Context, srv *ssh.Server, req *gossh.Request) (bool, []byte) {
	return t.post(NewRequest(Global, req.Type)) == Success, nil
}

func (t *SSH) openChannel(srv *ssh.Server, conn *gossh.ServerConn, nc gossh.NewChannel, ctx ssh.Context) {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.mu.Unlock()

	r := NewRequest(ChannelOpen, nc.ChannelType())
	r.Channel = id
	if t.post(r) != Success {
		reason := gossh.Prohibited
		if nc.ChannelType() != "session" {
			reason = gossh.UnknownChannelType
		}
		if err := nc.Reject(reason, "channel refused"); err != nil {
			v("transport: reject %q: %v", nc.ChannelType(), err)
		}
		return
	}
	ch, reqs, err := nc.Accept()
	if err != nil {
		v("transport: accept %q: %v", nc.ChannelType(), err)
		return
	}
	c := &sshChannel{ch: ch, data: make(chan []byte, queueLen)}
	t.mu.Lock()
	t.channels[id] = c
	t.mu.Unlock()
	go c.pump(t.done)

	for req := range reqs {
		o := t.post(channelRequest(id, req))
		if req.WantReply {
			if err := req.Reply(o == Success, nil); err != nil {
				v("transport: reply to %q: %v", req.Type, err)
			}
		}
	}
}

func channelRequest(id ChannelID, req *gossh.Request) *Request {
	var r *Request
	switch req.Type {
	case "pty-req":
		r = NewRequest(PTY, req.Type)
		var p struct {
			Term                         string
			Columns, Rows, Width, Height uint32
			Modes                        string
		}
		if err := gossh.Unmarshal(req.Payload, &p); err == nil {
			r.Term, r.Columns, r.Rows = p.Term, p.Columns, p.Rows
		}
	case "env":
		r = NewRequest(Env, req.Type)
		var e struct{ Name, Value string }
		if err := gossh.Unmarshal(req.Payload, &e); err == nil {
			r.EnvName, r.EnvValue = e.Name, e.Value
		}
	case "shell":
		r = NewRequest(Shell, req.Type)
	default:
		r = NewRequest(ChannelOther, req.Type)
	}
	r.Channel = id
	return r
}

// pump copies channel data into c.data so that Read need not block.
func (c *sshChannel) pump(done <-chan struct{}) {
	defer close(c.data)
	for {
		b := make([]byte, readSize)
		n, err := c.ch.Read(b)
		if n > 0 {
			select {
			case c.data <- b[:n]:
			case <-done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}
