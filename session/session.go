// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/u-root/shelld/app"
	"github.com/u-root/shelld/auth"
	"github.com/u-root/shelld/transport"
)

// ErrAuthFailed is returned by Run when the peer's password was refused.
var ErrAuthFailed = errors.New("session: authentication failed")

// DefaultPollInterval is how long the interactive loop sleeps when no
// input arrived.
const DefaultPollInterval = 10 * time.Millisecond

// authLinger bounds how long a refused peer is kept connected so that
// the refusal reaches it.
const authLinger = time.Second

// State is the protocol state of a Session.
type State int

const (
	Handshaking State = iota
	AwaitingAuth
	AwaitingChannelOpen
	AwaitingChannelRequest
	Interactive
	Closed
)

var stateNames = [...]string{
	Handshaking:            "Handshaking",
	AwaitingAuth:           "AwaitingAuth",
	AwaitingChannelOpen:    "AwaitingChannelOpen",
	AwaitingChannelRequest: "AwaitingChannelRequest",
	Interactive:            "Interactive",
	Closed:                 "Closed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Session is one client connection, from handshake to teardown.
type Session struct {
	// ID tags the session in log output.
	ID string

	t      transport.Transport
	policy auth.Policy
	act    app.Actuator

	poll             time.Duration
	handshakeTimeout time.Duration
	onTransition     func(from, to State)
	now              func() time.Time

	state    State
	deadline time.Time
	user     string
	channel  transport.ChannelID
	open     bool

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Session.
type Option func(*Session)

// WithActuator sets the actuator driven by the blink application.
func WithActuator(a app.Actuator) Option {
	return func(s *Session) {
		s.act = a
	}
}

// WithPollInterval sets how long the interactive loop sleeps when idle.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		s.poll = d
	}
}

// WithHandshakeTimeout bounds the time from the start of Run until the
// peer has authenticated. The default, zero, leaves it to the peer.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.handshakeTimeout = d
	}
}

// WithTransitionHook calls f, from the goroutine running Run, on every
// state change.
func WithTransitionHook(f func(from, to State)) Option {
	return func(s *Session) {
		s.onTransition = f
	}
}

// New returns a Session in the Handshaking state, serving t and
// checking credentials against p.
func New(t transport.Transport, p auth.Policy, opts ...Option) *Session {
	s := &Session{
		ID:     uuid.New().String(),
		t:      t,
		policy: p,
		poll:   DefaultPollInterval,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.act == nil {
		s.act = &app.Nop{}
	}
	if s.poll <= 0 {
		s.poll = DefaultPollInterval
	}
	return s
}

// State returns the current state. It must only be called from the
// goroutine running Run, or after Run has returned.
func (s *Session) State() State {
	return s.state
}

// User returns the authenticated user name, or "" before authentication.
func (s *Session) User() string {
	return s.user
}

// Run drives the session until it is Closed, then tears it down. It
// returns nil if the peer ended the session normally.
func (s *Session) Run(ctx context.Context) error {
	log.Printf("session %s: start", s.ID)
	var err error
	for s.state != Closed {
		var next State
		next, err = s.step(ctx)
		if err != nil {
			next = Closed
		}
		s.set(next)
	}
	if cerr := s.Close(); cerr != nil {
		verbose("%s: close: %v", s.ID, cerr)
	}
	log.Printf("session %s: end: %v", s.ID, err)
	return err
}

func (s *Session) set(to State) {
	if to == s.state {
		return
	}
	from := s.state
	s.state = to
	verbose("%s: %v -> %v", s.ID, from, to)
	if s.onTransition != nil {
		s.onTransition(from, to)
	}
}

func (s *Session) step(ctx context.Context) (State, error) {
	switch s.state {
	case Handshaking:
		return s.handshake(ctx)
	case AwaitingAuth:
		return s.awaitAuth(ctx)
	case AwaitingChannelOpen:
		return s.awaitChannelOpen(ctx)
	case AwaitingChannelRequest:
		return s.awaitChannelRequest(ctx)
	case Interactive:
		return s.interactive(ctx)
	}
	return Closed, fmt.Errorf("session: no step for state %v", s.state)
}

// withDeadline bounds ctx by the authentication deadline, if any.
func (s *Session) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.deadline.IsZero() {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, s.deadline)
}

func (s *Session) handshake(ctx context.Context) (State, error) {
	if s.handshakeTimeout > 0 {
		s.deadline = s.now().Add(s.handshakeTimeout)
	}
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()
	if err := s.t.Handshake(ctx); err != nil {
		return Closed, fmt.Errorf("handshake: %w", err)
	}
	return AwaitingAuth, nil
}

func (s *Session) awaitAuth(ctx context.Context) (State, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()
	r, err := s.t.NextRequest(ctx)
	if err != nil {
		return Closed, err
	}
	if r.Type != transport.AuthPassword {
		verbose("%s: %v %q not handled", s.ID, r.Type, r.Name)
		return AwaitingAuth, s.t.Reply(r, transport.NotHandled)
	}
	if !s.policy.Verify(r.User, r.Password) {
		log.Printf("session %s: authentication failed for %q", s.ID, r.User)
		if err := s.t.Reply(r, transport.Failure); err != nil {
			return Closed, multierror.Append(ErrAuthFailed, err)
		}
		s.linger(ctx)
		return Closed, ErrAuthFailed
	}
	s.user = r.User
	log.Printf("session %s: %q authenticated", s.ID, r.User)
	return AwaitingChannelOpen, s.t.Reply(r, transport.Success)
}

// linger waits for the peer to act on a refusal: the transport sends
// it only once the reply is in, and closing first would lose it. A
// further request is refused without being looked at.
func (s *Session) linger(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, authLinger)
	defer cancel()
	r, err := s.t.NextRequest(ctx)
	if err != nil {
		verbose("%s: after refusal: %v", s.ID, err)
		return
	}
	verbose("%s: refusing %v %q after a failed login", s.ID, r.Type, r.Name)
	if err := s.t.Reply(r, transport.Failure); err != nil {
		verbose("%s: %v", s.ID, err)
	}
}

func (s *Session) awaitChannelOpen(ctx context.Context) (State, error) {
	r, err := s.t.NextRequest(ctx)
	if err != nil {
		return Closed, err
	}
	if r.Type != transport.ChannelOpen || r.Name != "session" {
		verbose("%s: refusing %v %q", s.ID, r.Type, r.Name)
		return AwaitingChannelOpen, s.t.Reply(r, transport.Failure)
	}
	if err := s.t.Reply(r, transport.Success); err != nil {
		return Closed, err
	}
	s.channel, s.open = r.Channel, true
	return AwaitingChannelRequest, nil
}

func (s *Session) awaitChannelRequest(ctx context.Context) (State, error) {
	r, err := s.t.NextRequest(ctx)
	if err != nil {
		return Closed, err
	}
	if r.Channel != s.channel {
		return AwaitingChannelRequest, s.t.Reply(r, transport.Failure)
	}
	switch r.Type {
	case transport.PTY:
		verbose("%s: pty %q %dx%d", s.ID, r.Term, r.Columns, r.Rows)
		return AwaitingChannelRequest, s.t.Reply(r, transport.Success)
	case transport.Env:
		verbose("%s: env %q ignored", s.ID, r.EnvName)
		return AwaitingChannelRequest, s.t.Reply(r, transport.Success)
	case transport.Shell:
		return Interactive, s.t.Reply(r, transport.Success)
	}
	verbose("%s: refusing %v %q", s.ID, r.Type, r.Name)
	return AwaitingChannelRequest, s.t.Reply(r, transport.Failure)
}

// interactive runs the shell until the peer leaves, asks to quit, or
// ctx is done. It always ends in Closed.
func (s *Session) interactive(ctx context.Context) (State, error) {
	d := app.NewDispatcher(channelWriter{t: s.t, id: s.channel}, s.act)
	defer func() {
		if err := d.Close(); err != nil {
			log.Printf("session %s: actuator off: %v", s.ID, err)
		}
	}()
	if err := d.Start(); err != nil {
		return Closed, err
	}
	tick := time.NewTicker(s.poll)
	defer tick.Stop()
	for {
		if err := ctx.Err(); err != nil {
			return Closed, err
		}
		b, err := s.t.Read(s.channel)
		if errors.Is(err, io.EOF) {
			verbose("%s: channel EOF", s.ID)
			return Closed, nil
		}
		if err != nil {
			return Closed, err
		}
		now := s.now()
		quit, err := d.Input(b, now)
		if err != nil {
			return Closed, err
		}
		if quit {
			return Closed, nil
		}
		if err := d.Tick(now); err != nil {
			verbose("%s: tick: %v", s.ID, err)
		}
		if err := s.refusePending(); err != nil {
			return Closed, err
		}
		if len(b) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return Closed, ctx.Err()
		case <-tick.C:
		}
	}
}

// refusePending answers every waiting request with Failure.
func (s *Session) refusePending() error {
	for {
		r, err := s.t.TryRequest()
		if err != nil || r == nil {
			return err
		}
		verbose("%s: refusing %v %q", s.ID, r.Type, r.Name)
		if err := s.t.Reply(r, transport.Failure); err != nil {
			return err
		}
	}
}

// Close closes the session channel, if one was opened, and then the
// transport. Only the first call does anything; later calls return
// the first call's result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var result error
		if s.open {
			if err := s.t.CloseChannel(s.channel); err != nil && !errors.Is(err, transport.ErrClosed) {
				result = multierror.Append(result, err)
			}
		}
		if err := s.t.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		s.closeErr = result
	})
	return s.closeErr
}
