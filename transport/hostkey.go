// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"

	gossh "golang.org/x/crypto/ssh"
)

// HostKey returns the host key stored at path. If path is empty or
// names a file that does not exist, a new ed25519 key is generated.
// Generated keys are never written out, so they last only as long as
// the process.
func HostKey(path string) (gossh.Signer, error) {
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			s, err := gossh.ParsePrivateKey(b)
			if err != nil {
				return nil, fmt.Errorf("host key %q: %w", path, err)
			}
			return s, nil
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("host key: %w", err)
		}
		v("transport: no host key at %q, using an ephemeral key", path)
	}
	return GenerateHostKey()
}

// GenerateHostKey returns a new ed25519 host key.
func GenerateHostKey() (gossh.Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	s, err := gossh.NewSignerFromKey(priv)
	if err != nil {
		return nil, fmt.Errorf("host key signer: %w", err)
	}
	return s, nil
}
