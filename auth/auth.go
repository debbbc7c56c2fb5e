// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package auth decides whether a presented user and password may open
// a shell session. The session code only sees the Policy interface, so
// the reference pair can be replaced without touching it.
package auth

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// Policy verifies a credential pair.
type Policy interface {
	Verify(user, password string) bool
}

// PolicyFunc adapts a function to a Policy.
type PolicyFunc func(user, password string) bool

// Verify implements Policy.
func (f PolicyFunc) Verify(user, password string) bool {
	return f(user, password)
}

// Fixed accepts exactly one user and password, compared byte for byte.
type Fixed struct {
	User     string
	Password string
}

// Verify implements Policy. Both fields are always compared so the
// time taken does not depend on which one is wrong.
func (f Fixed) Verify(user, password string) bool {
	u := subtle.ConstantTimeCompare([]byte(user), []byte(f.User))
	p := subtle.ConstantTimeCompare([]byte(password), []byte(f.Password))
	return u&p == 1
}

// Hashed is a Fixed policy whose password is stored as a bcrypt hash.
type Hashed struct {
	User string
	Hash []byte
}

// NewHashed hashes password and returns a Hashed policy for user.
func NewHashed(user, password string) (*Hashed, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &Hashed{User: user, Hash: h}, nil
}

// Verify implements Policy.
func (h *Hashed) Verify(user, password string) bool {
	u := subtle.ConstantTimeCompare([]byte(user), []byte(h.User)) == 1
	p := bcrypt.CompareHashAndPassword(h.Hash, []byte(password)) == nil
	return u && p
}
