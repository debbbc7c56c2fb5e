// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/u-root/shelld/auth"
)

// unsetenv removes k from the environment for the rest of the test.
func unsetenv(t *testing.T, k string) {
	t.Helper()
	old, ok := os.LookupEnv(k)
	if err := os.Unsetenv(k); err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Cleanup(func() { os.Setenv(k, old) })
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"USER", "PASSWORD", "PORT", "NETWORK", "ADDR_TIMEOUT", "WAIT_NET"} {
		unsetenv(t, Prefix+"_"+k)
	}
	s, err := Load()
	if err != nil {
		t.Fatalf("Load(): %v != nil", err)
	}
	if s.User != "shelld" || s.Port != "22" || s.Network != "tcp" {
		t.Errorf("Load(): %+v, want user shelld, port 22, network tcp", s)
	}
	if s.AddrTimeout != 10*time.Second || !s.WaitNet {
		t.Errorf("Load(): readiness defaults %v %v, want 10s true", s.AddrTimeout, s.WaitNet)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("SHELLD_USER", "gopher")
	t.Setenv("SHELLD_PORT", "2222")
	t.Setenv("SHELLD_ADDR_TIMEOUT", "250ms")
	t.Setenv("SHELLD_DNSSD", "true")
	s, err := Load()
	if err != nil {
		t.Fatalf("Load(): %v != nil", err)
	}
	if s.User != "gopher" || s.Port != "2222" || s.AddrTimeout != 250*time.Millisecond || !s.DNSSD {
		t.Errorf("Load(): %+v does not reflect the environment", s)
	}

	t.Setenv("SHELLD_ADDR_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Errorf("Load() with a bad duration: nil != an error")
	}
}

func TestPolicy(t *testing.T) {
	if _, err := Policy("shelld", "", ""); !errors.Is(err, ErrNoPassword) {
		t.Errorf("Policy without a password: %v != %v", err, ErrNoPassword)
	}

	p, err := Policy("shelld", "blinkenlights", "")
	if err != nil {
		t.Fatalf("Policy: %v != nil", err)
	}
	if !p.Verify("shelld", "blinkenlights") || p.Verify("shelld", "x") {
		t.Errorf("fixed policy does not check the password")
	}

	h, err := auth.NewHashed("shelld", "secret")
	if err != nil {
		t.Fatalf("NewHashed: %v != nil", err)
	}
	p, err = Policy("shelld", "ignored", string(h.Hash))
	if err != nil {
		t.Fatalf("Policy: %v != nil", err)
	}
	if !p.Verify("shelld", "secret") || p.Verify("shelld", "ignored") {
		t.Errorf("hashed policy does not check against the hash")
	}
}
