// Copyright 2022-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Decentralized Services (aka ds)
// Inspired by http://man.cat-v.org/inferno/8/cs
//
// This package advertises a shelld server with DNS-SD.
//
// Beyond the service record itself, the TXT record carries meta-data
// about the system and the number of sessions currently running
// ("tenants"), so a browser can tell a busy server from an idle one.
package ds
