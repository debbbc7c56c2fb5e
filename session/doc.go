// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package session runs one shelld session over a transport.Transport.
//
// New(t, policy) creates a Session. Run drives it through its states:
//
//	Handshaking -> AwaitingAuth -> AwaitingChannelOpen ->
//	AwaitingChannelRequest -> Interactive -> Closed
//
// Every request the peer sends is answered exactly once. Requests a
// state does not deal with are refused and the state is kept. A single
// failed password attempt closes the session.
//
// Once a shell has been requested, the session loop reads the channel
// without blocking, feeds what it reads to an app.Dispatcher, lets the
// dispatcher advance its timers, and refuses anything else the peer
// asks for. It sleeps one poll interval only when no input arrived.
//
// Run returns when the session reaches Closed. Teardown happens on
// every path out of Run and can be repeated with Close.
package session
