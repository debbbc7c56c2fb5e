// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package app

var v = func(string, ...interface{}) {}

// SetVerbose sets the function used for debug prints.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}
