// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package server is for building shelld servers.
//
// A shelld server is an ssh server that accepts one connection at a
// time and runs a session.Session on it. The session authenticates the
// peer with a single user name and password and then offers a small
// menu of line-oriented applications. There is no command execution.
//
// The basic flow of setting up a server is similar to most such servers:
// a call to New, preceded or followed by a call to Listen to get a
// socket, and a call to Serve with the listener. Serve accepts a
// connection, runs its session to completion, and only then accepts
// the next one. Connections that arrive while a session is running
// wait in the listen backlog.
//
// Close stops the server, ending the running session if there is one.
// Serve then returns ErrServerClosed.
package server
