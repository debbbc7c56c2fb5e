// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// shelld is a small password-authenticated ssh shell server.
//
// It waits for the network to come up on one interface, then serves
// one ssh session at a time. Each session offers a menu with an echo
// application and an application that blinks an LED.
//
// Synopsis:
//
//	shelld [OPTIONS]
//
// Every option defaults to the value of an environment variable, e.g.
// -sp defaults to $SHELLD_PORT. The password is best given as a bcrypt
// hash in $SHELLD_PASSWORD_HASH.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/u-root/shelld/app"
	"github.com/u-root/shelld/config"
	"github.com/u-root/shelld/readiness"
	"github.com/u-root/shelld/server"
	"github.com/u-root/shelld/session"
	"github.com/u-root/shelld/transport"
	"github.com/u-root/u-root/pkg/ulog"
)

var (
	user         *string
	password     *string
	passwordHash *string
	hostKeyFile  *string
	port         *string
	network      *string
	diagPort     *string
	iface        *string
	addrTimeout  *time.Duration
	authTimeout  *time.Duration
	waitNet      *bool
	led          *string
	dsEnabled    *bool

	debug = flag.Bool("d", false, "enable debug prints")
	klog  = flag.Bool("klog", false, "Log shelld messages in kernel log, not stdout")

	// v allows debug printing.
	// Do not call it directly, call verbose instead.
	v = func(string, ...interface{}) {}
)

func verbose(f string, a ...interface{}) {
	v("SHELLD:"+f, a...)
}

// flags defines the flags whose defaults come from the environment.
func flags(fs *flag.FlagSet, c config.Settings) {
	user = fs.String("user", c.User, "user name clients must log in as")
	password = fs.String("password", c.Password, "password clients must give")
	passwordHash = fs.String("passwordHash", c.PasswordHash, "bcrypt hash of the password; overrides -password")
	hostKeyFile = fs.String("hk", c.HostKey, "file for host key; an ephemeral key is used if it does not exist")
	port = fs.String("sp", c.Port, "shell port")
	network = fs.String("net", c.Network, "network to use")
	diagPort = fs.String("diag", c.DiagPort, "if set, port for the diagnostic banner service")
	iface = fs.String("iface", c.Iface, "interface to wait for; default is the first one that is up")
	addrTimeout = fs.Duration("addrTimeout", c.AddrTimeout, "how long to wait for both IPv4 and IPv6 addresses")
	authTimeout = fs.Duration("authTimeout", c.AuthTimeout, "if non-zero, how long a client has to log in")
	waitNet = fs.Bool("waitNet", c.WaitNet, "wait for an address before serving")
	led = fs.String("led", c.LED, "name of the LED under /sys/class/leds driven by the blink application")
	dsEnabled = fs.Bool("dnssd", c.DNSSD, "advertise service using DNSSD")
	dsFlags(fs)
}

func commonsetup() {
	if !*debug {
		return
	}
	v = log.Printf
	if *klog {
		ulog.KernelLog.Reinit()
		v = ulog.KernelLog.Printf
	}
	server.SetVerbose(v)
	session.SetVerbose(v)
	transport.SetVerbose(v)
	readiness.SetVerbose(v)
	app.SetVerbose(v)
}

func main() {
	c, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	flags(flag.CommandLine, c)
	flag.Parse()
	commonsetup()
	log.Printf("SHELLD:running as a server")
	if err := serve(); err != nil {
		log.Fatal(err)
	}
}
