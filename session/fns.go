// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import "github.com/u-root/shelld/transport"

var v = func(string, ...interface{}) {}

// SetVerbose sets the function used for debug prints.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}

func verbose(f string, a ...interface{}) {
	v("session:"+f, a...)
}

// channelWriter is an io.Writer for one channel of a Transport.
type channelWriter struct {
	t  transport.Transport
	id transport.ChannelID
}

func (w channelWriter) Write(b []byte) (int, error) {
	return w.t.Write(w.id, b)
}
