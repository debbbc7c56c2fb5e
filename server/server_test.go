// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/u-root/shelld/auth"
	"github.com/u-root/shelld/session"
	gossh "golang.org/x/crypto/ssh"
)

var policy = &auth.Fixed{User: "shelld", Password: "blinkenlights"}

func TestListen(t *testing.T) {
	d := t.TempDir()
	for _, tt := range []struct {
		network, port string
		ok            bool
	}{
		{network: "tcp", port: "0", ok: true},
		{network: "tcp4", port: "0", ok: true},
		{network: "unix", port: filepath.Join(d, "sock"), ok: true},
		{network: "tcp", port: "no-such-port", ok: false},
		{network: "vsock", port: "not-a-number", ok: false},
		{network: "carrier-pigeon", port: "22", ok: false},
	} {
		ln, err := Listen(tt.network, tt.port)
		if (err == nil) != tt.ok {
			t.Errorf("Listen(%q, %q): err %v, want ok %v", tt.network, tt.port, err, tt.ok)
			continue
		}
		if err != nil {
			continue
		}
		if got := ln.Addr().Network(); got != tt.network && !(tt.network == "tcp4" && got == "tcp") {
			t.Errorf("Listen(%q, %q).Addr().Network(): %q != %q", tt.network, tt.port, got, tt.network)
		}
		ln.Close()
	}
}

func TestNewHostKey(t *testing.T) {
	d := t.TempDir()
	hk := filepath.Join(d, "hostkey")
	if err := os.WriteFile(hk, hostKey, 0600); err != nil {
		t.Fatal(err)
	}
	s, err := New(policy, hk)
	if err != nil {
		t.Fatalf("New(policy, %q): %v != nil", hk, err)
	}
	if got := gossh.FingerprintSHA256(s.PublicKey()); got != hostKeyFingerprint {
		t.Errorf("host key fingerprint: %q != %q", got, hostKeyFingerprint)
	}
	pub, _, _, _, err := gossh.ParseAuthorizedKey(hostKeyPub)
	if err != nil {
		t.Fatalf("ParseAuthorizedKey: %v != nil", err)
	}
	if !bytes.Equal(pub.Marshal(), s.PublicKey().Marshal()) {
		t.Errorf("host public key does not match %s", hostKeyPub)
	}

	if _, err := New(policy, filepath.Join(d, "missing")); err != nil {
		t.Errorf("New with a missing host key: %v != nil", err)
	}

	bad := filepath.Join(d, "bad")
	if err := os.WriteFile(bad, []byte("not a key"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(policy, bad); err == nil {
		t.Errorf("New with a corrupt host key: nil != an error")
	}
	if _, err := New(nil, ""); err == nil {
		t.Errorf("New without a policy: nil != an error")
	}
}

func TestServeClose(t *testing.T) {
	v = t.Logf
	s, err := New(policy, "")
	if err != nil {
		t.Fatalf("New: %v != nil", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen(): %v != nil", err)
	}
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ln) }()
	time.Sleep(50 * time.Millisecond)
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v != nil", err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, ErrServerClosed) {
			t.Errorf("Serve: %v != %v", err, ErrServerClosed)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return after Close")
	}
	if err := s.Serve(ln); !errors.Is(err, ErrServerClosed) {
		t.Errorf("Serve after Close: %v != %v", err, ErrServerClosed)
	}
}

// flaky is a listener whose Accept fails n times and then reports that
// it is closed.
type flaky struct {
	net.Listener
	mu    sync.Mutex
	n     int
	calls int
}

func (f *flaky) Accept() (net.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.n {
		return nil, errors.New("accept: out of file descriptors")
	}
	return nil, net.ErrClosed
}

func TestServeRetriesAccept(t *testing.T) {
	v = t.Logf
	s, err := New(policy, "")
	if err != nil {
		t.Fatalf("New: %v != nil", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen(): %v != nil", err)
	}
	f := &flaky{Listener: ln, n: 3}
	if err := s.Serve(f); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Serve: %v != %v", err, net.ErrClosed)
	}
	if f.calls != 4 {
		t.Errorf("Accept called %d times, want 4", f.calls)
	}
}

// output collects everything the server sends.
type output struct {
	mu  sync.Mutex
	buf bytes.Buffer
	eof chan struct{}
}

func collect(r io.Reader) *output {
	o := &output{eof: make(chan struct{})}
	go func() {
		defer close(o.eof)
		b := make([]byte, 512)
		for {
			n, err := r.Read(b)
			o.mu.Lock()
			o.buf.Write(b[:n])
			o.mu.Unlock()
			if err != nil {
				return
			}
		}
	}()
	return o
}

func (o *output) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

// waitFor waits until the output contains want, counting from offset
// from, and returns the offset just past it.
func (o *output) waitFor(t *testing.T, from int, want string) int {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s := o.String()
		if i := strings.Index(s[from:], want); i >= 0 {
			return from + i + len(want)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("output %q: no %q after offset %d", o.String(), want, from)
	return 0
}

func start(t *testing.T, onSession func(int), opts ...session.Option) (*Server, string) {
	t.Helper()
	s, err := New(policy, "", opts...)
	if err != nil {
		t.Fatalf("New: %v != nil", err)
	}
	s.OnSession = onSession
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen(): %v != nil", err)
	}
	go s.Serve(ln)
	t.Cleanup(func() { s.Close() })
	return s, ln.Addr().String()
}

func dial(addr, user, pw string) (*gossh.Client, error) {
	return gossh.Dial("tcp", addr, &gossh.ClientConfig{
		User:            user,
		Auth:            []gossh.AuthMethod{gossh.Password(pw)},
		HostKeyCallback: gossh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
}

type shell struct {
	c   *gossh.Client
	s   *gossh.Session
	in  io.WriteCloser
	out *output
}

func openShell(t *testing.T, addr string) *shell {
	t.Helper()
	c, err := dial(addr, "shelld", "blinkenlights")
	if err != nil {
		t.Fatalf("Dial(%q): %v != nil", addr, err)
	}
	s, err := c.NewSession()
	if err != nil {
		t.Fatalf("NewSession: %v != nil", err)
	}
	if err := s.RequestPty("xterm", 24, 80, gossh.TerminalModes{}); err != nil {
		t.Fatalf("RequestPty: %v != nil", err)
	}
	if err := s.Setenv("LANG", "C"); err != nil {
		t.Fatalf("Setenv: %v != nil", err)
	}
	in, err := s.StdinPipe()
	if err != nil {
		t.Fatalf("StdinPipe: %v != nil", err)
	}
	stdout, err := s.StdoutPipe()
	if err != nil {
		t.Fatalf("StdoutPipe: %v != nil", err)
	}
	if err := s.Shell(); err != nil {
		t.Fatalf("Shell: %v != nil", err)
	}
	return &shell{c: c, s: s, in: in, out: collect(stdout)}
}

func (sh *shell) send(t *testing.T, line string) {
	t.Helper()
	if _, err := io.WriteString(sh.in, line+"\r\n"); err != nil {
		t.Fatalf("write %q: %v != nil", line, err)
	}
}

func TestSessionEndToEnd(t *testing.T) {
	v = t.Logf
	var mu sync.Mutex
	var tenants []int
	n := 0
	_, addr := start(t, func(delta int) {
		mu.Lock()
		defer mu.Unlock()
		n += delta
		tenants = append(tenants, n)
	})

	sh := openShell(t, addr)
	off := sh.out.waitFor(t, 0, "> ")
	sh.send(t, "1")
	off = sh.out.waitFor(t, off, "echo> ")
	sh.send(t, "hello")
	off = sh.out.waitFor(t, off, "hello\r\necho> ")
	sh.send(t, "q")
	off = sh.out.waitFor(t, off, "quit  close the session\r\n> ")
	sh.send(t, "quit")
	sh.out.waitFor(t, off, "bye\r\n")

	select {
	case <-sh.out.eof:
	case <-time.After(5 * time.Second):
		t.Fatalf("stream not closed after quit: %q", sh.out.String())
	}
	if err := sh.s.Wait(); err != nil {
		t.Errorf("session Wait: %v != nil", err)
	}
	sh.c.Close()

	// The server is free for the next client.
	sh = openShell(t, addr)
	sh.out.waitFor(t, 0, "> ")
	sh.send(t, "quit")
	<-sh.out.eof
	sh.c.Close()

	// The count drops once teardown is done, which can be after the
	// client sees the stream close.
	var got string
	for i := 0; i < 500; i++ {
		mu.Lock()
		got = fmt.Sprint(tenants)
		mu.Unlock()
		if got == "[1 0 1 0]" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("session counts %s != [1 0 1 0]", got)
}

func TestSessionBadPassword(t *testing.T) {
	v = t.Logf
	_, addr := start(t, nil)
	for _, tt := range []struct{ user, pw string }{
		{user: "shelld", pw: "wrong"},
		{user: "root", pw: "blinkenlights"},
	} {
		c, err := dial(addr, tt.user, tt.pw)
		if err == nil {
			c.Close()
			t.Fatalf("Dial(%q, %q): nil != an error", tt.user, tt.pw)
		}
		// The client only says this once it has the server's refusal.
		if !strings.Contains(err.Error(), "unable to authenticate") {
			t.Errorf("Dial(%q, %q): %v, want the refusal", tt.user, tt.pw, err)
		}
	}

	// A client that retries is told no before the connection ends.
	var mu sync.Mutex
	attempts := 0
	c, err := gossh.Dial("tcp", addr, &gossh.ClientConfig{
		User: "shelld",
		Auth: []gossh.AuthMethod{gossh.RetryableAuthMethod(gossh.PasswordCallback(func() (string, error) {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			return "wrong", nil
		}), 3)},
		HostKeyCallback: gossh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
	if err == nil {
		c.Close()
		t.Fatalf("Dial with retries: nil != an error")
	}
	mu.Lock()
	if attempts < 2 {
		t.Errorf("password attempts %d (%v), want at least 2", attempts, err)
	}
	mu.Unlock()
	// A failed client does not wedge the server.
	sh := openShell(t, addr)
	sh.out.waitFor(t, 0, "> ")
	sh.send(t, "quit")
	<-sh.out.eof
	sh.c.Close()
}

func TestSessionsAreSerial(t *testing.T) {
	v = t.Logf
	_, addr := start(t, nil)
	first := openShell(t, addr)
	first.out.waitFor(t, 0, "> ")

	second := make(chan *gossh.Client, 1)
	errc := make(chan error, 1)
	go func() {
		c, err := dial(addr, "shelld", "blinkenlights")
		if err != nil {
			errc <- err
			return
		}
		second <- c
	}()

	select {
	case <-second:
		t.Fatalf("second client authenticated while the first session was running")
	case err := <-errc:
		t.Fatalf("second Dial: %v != nil", err)
	case <-time.After(300 * time.Millisecond):
	}

	first.send(t, "quit")
	<-first.out.eof
	first.c.Close()

	select {
	case c := <-second:
		c.Close()
	case err := <-errc:
		t.Fatalf("second Dial: %v != nil", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("second client never got a session")
	}
}

func TestCloseEndsSession(t *testing.T) {
	v = t.Logf
	s, addr := start(t, nil, session.WithPollInterval(time.Millisecond))
	sh := openShell(t, addr)
	sh.out.waitFor(t, 0, "> ")
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v != nil", err)
	}
	select {
	case <-sh.out.eof:
	case <-time.After(5 * time.Second):
		t.Fatalf("session still open after Close")
	}
	sh.c.Close()
}
