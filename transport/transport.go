// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transport is the boundary between shelld's session state
// machine and the secure transport underneath it.
//
// A Transport turns one accepted connection into a stream of
// Requests, each of which must be answered with Reply, plus
// non-blocking reads and writes on the channels it has opened. The
// session code drives everything from a single goroutine; the
// Transport implementation may use as many as it likes.
//
// SSH is the implementation used by shelld. It is built on
// github.com/gliderlabs/ssh, which in turn uses golang.org/x/crypto/ssh
// for key exchange, encryption and the connection protocol.
package transport

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned once a Transport has been closed, or the
	// peer has gone away.
	ErrClosed = errors.New("transport: closed")
	// ErrNoChannel is returned for a ChannelID the Transport does not know.
	ErrNoChannel = errors.New("transport: no such channel")
	// ErrReplied is returned when a Request is answered twice.
	ErrReplied = errors.New("transport: request already answered")
)

// RequestType identifies a Request.
type RequestType int

const (
	// AuthPassword is a password authentication attempt.
	AuthPassword RequestType = iota
	// AuthOther is an authentication attempt by any other method.
	AuthOther
	// ChannelOpen asks to open a channel of type ChannelType.
	ChannelOpen
	// PTY asks for a pseudo terminal on a channel.
	PTY
	// Env sets an environment variable on a channel.
	Env
	// Shell starts the interactive shell on a channel.
	Shell
	// ChannelOther is any other channel request, e.g. exec or window-change.
	ChannelOther
	// Global is a connection-level request, e.g. keepalive.
	Global
)

var requestNames = [...]string{
	AuthPassword: "auth-password",
	AuthOther:    "auth-other",
	ChannelOpen:  "channel-open",
	PTY:          "pty-req",
	Env:          "env",
	Shell:        "shell",
	ChannelOther: "channel-other",
	Global:       "global",
}

func (t RequestType) String() string {
	if t >= 0 && int(t) < len(requestNames) {
		return requestNames[t]
	}
	return fmt.Sprintf("RequestType(%d)", int(t))
}

// Outcome is the answer to a Request.
type Outcome int

const (
	// Success accepts the request.
	Success Outcome = iota
	// Failure refuses it. For authentication, the peer is told which
	// methods remain.
	Failure
	// NotHandled refuses a request the receiver does not deal with.
	NotHandled
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case NotHandled:
		return "not-handled"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// ChannelID names a channel within one Transport.
type ChannelID uint32

// Request is one message from the peer that needs an answer.
type Request struct {
	Type RequestType
	// Name is the protocol name of the request, e.g. "publickey",
	// "session", "window-change".
	Name string
	// User and Password are set for authentication requests.
	User     string
	Password string
	// Channel is set for ChannelOpen and for channel requests.
	Channel ChannelID
	// Term, Columns and Rows are set for PTY.
	Term          string
	Columns, Rows uint32
	// EnvName and EnvValue are set for Env.
	EnvName, EnvValue string

	reply chan Outcome
}

// NewRequest returns a Request that can be answered with Reply. It is
// for Transport implementations.
func NewRequest(t RequestType, name string) *Request {
	return &Request{Type: t, Name: name, reply: make(chan Outcome, 1)}
}

// Answer delivers o to whoever is waiting on r.
func (r *Request) Answer(o Outcome) error {
	if r.reply == nil {
		return fmt.Errorf("transport: %v request has no reply path", r.Type)
	}
	select {
	case r.reply <- o:
		return nil
	default:
		return ErrReplied
	}
}

// Wait returns the answer to r, or Failure if done is closed first.
func (r *Request) Wait(done <-chan struct{}) Outcome {
	select {
	case o := <-r.reply:
		return o
	case <-done:
		return Failure
	}
}

// Transport is one secured connection.
type Transport interface {
	// Handshake completes the transport-level handshake. It returns
	// once the peer is ready to authenticate.
	Handshake(ctx context.Context) error
	// NextRequest blocks until the peer sends a request. It returns
	// ErrClosed if the connection is gone.
	NextRequest(ctx context.Context) (*Request, error)
	// TryRequest is NextRequest without blocking. It returns nil, nil
	// if no request is waiting.
	TryRequest() (*Request, error)
	// Reply answers a request.
	Reply(r *Request, o Outcome) error
	// Read returns whatever data has arrived on ch without blocking.
	// It returns nil, nil if there is none, and io.EOF once the peer
	// has closed ch and all data has been read.
	Read(ch ChannelID) ([]byte, error)
	// Write writes b to ch.
	Write(ch ChannelID, b []byte) (int, error)
	// CloseChannel closes ch, reporting exit status 0 to the peer.
	CloseChannel(ch ChannelID) error
	// Close releases the connection. It is safe to call more than once.
	Close() error
}

var v = func(string, ...interface{}) {}

// SetVerbose sets the function used for debug prints.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}
