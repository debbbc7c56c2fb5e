// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config reads shelld settings from the environment. The
// settings are the defaults for shelld's command line flags.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/u-root/shelld/auth"
)

// Prefix is prepended to every variable name, e.g. SHELLD_PORT.
const Prefix = "SHELLD"

// ErrNoPassword is returned by Policy when neither a password nor a
// password hash is set.
var ErrNoPassword = errors.New("config: no password or password hash set")

// Settings are shelld's environment settings.
type Settings struct {
	User         string `envconfig:"USER" default:"shelld"`
	Password     string `envconfig:"PASSWORD" default:""`
	PasswordHash string `envconfig:"PASSWORD_HASH" default:""`

	Port     string `envconfig:"PORT" default:"22"`
	Network  string `envconfig:"NETWORK" default:"tcp"`
	HostKey  string `envconfig:"HOST_KEY" default:""`
	DiagPort string `envconfig:"DIAG_PORT" default:""`

	// AuthTimeout bounds handshake and authentication. Zero means no bound.
	AuthTimeout time.Duration `envconfig:"AUTH_TIMEOUT" default:"0s"`

	// Readiness
	Iface       string        `envconfig:"IFACE" default:""`
	AddrTimeout time.Duration `envconfig:"ADDR_TIMEOUT" default:"10s"`
	WaitNet     bool          `envconfig:"WAIT_NET" default:"true"`

	LED   string `envconfig:"LED" default:""`
	DNSSD bool   `envconfig:"DNSSD" default:"false"`
}

// Load returns the settings in the environment, with defaults for
// anything unset.
func Load() (Settings, error) {
	var s Settings
	if err := envconfig.Process(Prefix, &s); err != nil {
		return s, fmt.Errorf("config: %w", err)
	}
	return s, nil
}

// Policy returns the authentication policy for user and either a
// bcrypt hash or a plain password. The hash wins if both are set.
func Policy(user, password, hash string) (auth.Policy, error) {
	switch {
	case hash != "":
		return &auth.Hashed{User: user, Hash: []byte(hash)}, nil
	case password != "":
		return &auth.Fixed{User: user, Password: password}, nil
	}
	return nil, ErrNoPassword
}
