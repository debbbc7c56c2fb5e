// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"

	"github.com/u-root/shelld/ds"
	"github.com/u-root/shelld/server"
)

var (
	dsInstance  *string
	dsDomain    *string
	dsService   *string
	dsInterface *string
	dsTxtStr    *string
)

func init() {
	modifiers = append(modifiers, &modifier{f: servemDNS, name: "mDNS"})
}

func dsFlags(fs *flag.FlagSet) {
	dsInstance = fs.String("dsInstance", "", "DNSSD instance name")
	dsDomain = fs.String("dsDomain", ds.DefaultDomain, "DNSSD domain")
	dsService = fs.String("dsService", ds.DefaultService, "DNSSD Service Type")
	dsInterface = fs.String("dsInterface", "", "DNSSD Interface")
	dsTxtStr = fs.String("dsTxt", "", "DNSSD key-value pair string parameterizing advertisement")
}

// servemDNS advertises s and keeps its tenant count in the TXT record.
func servemDNS(ctx context.Context, s *server.Server) error {
	if !*dsEnabled {
		return nil
	}
	if *debug {
		ds.Verbose(log.Printf)
	}
	p, err := strconv.Atoi(*port)
	if err != nil {
		return fmt.Errorf("could not parse port: %s, %w", *port, err)
	}
	txt := ds.ParseKv(*dsTxtStr)
	v("Advertising w/dnssd %q", txt)

	a, err := ds.Register(ctx, ds.Config{
		Instance: *dsInstance,
		Domain:   *dsDomain,
		Service:  *dsService,
		Iface:    *dsInterface,
		Port:     p,
		Txt:      txt,
	})
	if err != nil {
		return fmt.Errorf("could not advertise with dns-sd: %w", err)
	}
	s.OnSession = a.Tenant
	return nil
}
