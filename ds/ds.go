// Copyright 2022-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ds

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brutella/dnssd"
)

const (
	// DefaultService is the service type shelld advertises.
	DefaultService = "_ssh._tcp"
	// DefaultDomain is the domain shelld advertises in.
	DefaultDomain = "local"

	timeFormat = "15:04:05.000"
	dsUpdate   = 60 * time.Second // server meta-data refresh
)

var v = func(string, ...interface{}) {}

// Verbose sets the function used for debug prints.
func Verbose(f func(string, ...interface{})) {
	v = f
}

// Config describes one advertisement.
type Config struct {
	// Instance defaults to DefaultInstance().
	Instance string
	Domain   string
	Service  string
	// Iface limits the advertisement to one interface. Empty means all.
	Iface string
	Port  int
	// Txt is the static part of the TXT record.
	Txt map[string]string
}

// ParseKv parses a DNS-SD key value string, k1=v1,k2=v2, into a map.
// A key with no value is set to "true".
func ParseKv(arg string) map[string]string {
	txt := make(map[string]string)
	if len(arg) == 0 {
		return txt
	}
	for _, pair := range strings.Split(arg, ",") {
		z := strings.SplitN(pair, "=", 2)
		if len(z) > 1 {
			txt[z[0]] = z[1]
		} else {
			txt[z[0]] = "true"
		}
	}
	return txt
}

// DefaultInstance returns the host name with a -shelld suffix.
func DefaultInstance() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "shelld"
	}
	return hostname + "-shelld"
}

// DefaultTxt fills in arch, os and cores if they are not set.
func DefaultTxt(txt map[string]string) {
	if len(txt["arch"]) == 0 {
		txt["arch"] = runtime.GOARCH
	}
	if len(txt["os"]) == 0 {
		txt["os"] = runtime.GOOS
	}
	if len(txt["cores"]) == 0 {
		txt["cores"] = strconv.Itoa(runtime.NumCPU())
	}
}

// Advertiser keeps a service advertised and its TXT record current.
type Advertiser struct {
	cfg    Config
	cancel context.CancelFunc

	mu      sync.Mutex
	tenants int
	txt     map[string]string
	refresh chan struct{}
}

func newAdvertiser(cfg Config) *Advertiser {
	if cfg.Instance == "" {
		cfg.Instance = DefaultInstance()
	}
	if cfg.Domain == "" {
		cfg.Domain = DefaultDomain
	}
	if cfg.Service == "" {
		cfg.Service = DefaultService
	}
	txt := make(map[string]string, len(cfg.Txt))
	for k, val := range cfg.Txt {
		txt[k] = val
	}
	DefaultTxt(txt)
	a := &Advertiser{cfg: cfg, txt: txt, refresh: make(chan struct{}, 1)}
	a.update(0)
	return a
}

// Register starts advertising cfg until ctx is done or Close is called.
func Register(ctx context.Context, cfg Config) (*Advertiser, error) {
	a := newAdvertiser(cfg)
	v("ds: advertising %s.%s.%s. port %d", strings.Trim(a.cfg.Instance, "."), strings.Trim(a.cfg.Service, "."), strings.Trim(a.cfg.Domain, "."), a.cfg.Port)

	resp, err := dnssd.NewResponder()
	if err != nil {
		return nil, fmt.Errorf("dnssd responder: %w", err)
	}
	var ifaces []string
	if len(a.cfg.Iface) > 0 {
		ifaces = append(ifaces, a.cfg.Iface)
	}
	srv, err := dnssd.NewService(dnssd.Config{
		Name:   a.cfg.Instance,
		Type:   a.cfg.Service,
		Domain: a.cfg.Domain,
		Port:   a.cfg.Port,
		Ifaces: ifaces,
		Text:   a.Txt(),
	})
	if err != nil {
		return nil, fmt.Errorf("dnssd service: %w", err)
	}
	handle, err := resp.Add(srv)
	if err != nil {
		return nil, fmt.Errorf("dnssd add: %w", err)
	}

	ctx, a.cancel = context.WithCancel(ctx)
	go func() {
		if err := resp.Respond(ctx); err != nil && ctx.Err() == nil {
			v("ds: responder: %v", err)
		}
		v("ds: responder exited")
	}()
	go func() {
		t := time.NewTicker(dsUpdate)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-a.refresh:
			case <-t.C:
			}
			handle.UpdateText(a.update(0), resp)
			v("%s ds: %s updated", time.Now().Format(timeFormat), handle.Service().ServiceInstanceName())
		}
	}()
	return a, nil
}

// Tenant adds delta to the session count and schedules a TXT record
// update. It never blocks.
func (a *Advertiser) Tenant(delta int) {
	v("ds: tenant delta %d", delta)
	a.update(delta)
	select {
	case a.refresh <- struct{}{}:
	default:
	}
}

// Tenants returns the current session count.
func (a *Advertiser) Tenants() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tenants
}

// Txt returns a copy of the current TXT record.
func (a *Advertiser) Txt() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	txt := make(map[string]string, len(a.txt))
	for k, val := range a.txt {
		txt[k] = val
	}
	return txt
}

// update adds delta to the tenant count, refreshes the system
// meta-data, and returns a copy of the new TXT record.
func (a *Advertiser) update(delta int) map[string]string {
	a.mu.Lock()
	a.tenants += delta
	updateSysInfo(a.txt)
	a.txt["tenants"] = strconv.Itoa(a.tenants)
	a.mu.Unlock()
	return a.Txt()
}

// Close stops the advertisement.
func (a *Advertiser) Close() {
	v("ds: stopping")
	if a.cancel != nil {
		a.cancel()
	}
}
