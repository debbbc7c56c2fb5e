// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lineedit

import (
	"strings"
	"testing"
)

func TestFeed(t *testing.T) {
	var tests = []struct {
		name string
		in   string
		out  string
		ok   bool
	}{
		{name: "plain", in: "hello\n", out: "hello", ok: true},
		{name: "crlf", in: "hello\r\n", out: "hello", ok: true},
		{name: "delete", in: "abc\x7fd\n", out: "abd", ok: true},
		{name: "backspace", in: "abc\x08\x08x\n", out: "ax", ok: true},
		{name: "erase empty", in: "\x7f\x7fa\n", out: "a", ok: true},
		{name: "empty line", in: "\n", out: "", ok: true},
		{name: "partial", in: "abc", out: "", ok: false},
		{name: "cr only", in: "abc\r", out: "", ok: false},
	}

	for _, tt := range tests {
		var e Editor
		l, ok := e.Feed([]byte(tt.in))
		if l != tt.out || ok != tt.ok {
			t.Errorf("%s: Feed(%q): (%q, %v) != (%q, %v)", tt.name, tt.in, l, ok, tt.out, tt.ok)
		}
	}
}

func TestFeedChunks(t *testing.T) {
	var e Editor
	for _, c := range []string{"he", "l", "lo\r"} {
		if l, ok := e.Feed([]byte(c)); ok {
			t.Fatalf("Feed(%q): got line %q before LF", c, l)
		}
	}
	if e.Len() != 5 {
		t.Fatalf("Len(): %d != 5", e.Len())
	}
	l, ok := e.Feed([]byte("\n"))
	if !ok || l != "hello" {
		t.Fatalf("Feed(\"\\n\"): (%q, %v) != (%q, true)", l, ok, "hello")
	}
	if e.Len() != 0 {
		t.Fatalf("Len() after line: %d != 0", e.Len())
	}
}

func TestFeedMultipleLines(t *testing.T) {
	var e Editor
	var got []string
	for l, ok := e.Feed([]byte("1\nhello\nq\npart")); ok; l, ok = e.Feed(nil) {
		got = append(got, l)
	}
	want := []string{"1", "hello", "q"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("lines: %q != %q", got, want)
	}
	l, ok := e.Feed([]byte("ial\n"))
	if !ok || l != "partial" {
		t.Fatalf("Feed(\"ial\\n\"): (%q, %v) != (%q, true)", l, ok, "partial")
	}
}

func TestFeedBound(t *testing.T) {
	for _, n := range []int{MaxLine - 1, MaxLine, MaxLine + 1, 4 * MaxLine} {
		var e Editor
		l, ok := e.Feed([]byte(strings.Repeat("a", n) + "\n"))
		if !ok {
			t.Errorf("Feed(%d bytes): no line", n)
			continue
		}
		want := n
		if want > MaxLine {
			want = MaxLine
		}
		if len(l) != want {
			t.Errorf("Feed(%d bytes): len %d != %d", n, len(l), want)
		}
	}

	// Once full, erasing makes room again.
	var e Editor
	e.Feed([]byte(strings.Repeat("a", MaxLine+10)))
	l, _ := e.Feed([]byte("\x7fb\n"))
	if len(l) != MaxLine || l[MaxLine-1] != 'b' {
		t.Errorf("erase at bound: len %d, last %q; want %d, 'b'", len(l), l[len(l)-1], MaxLine)
	}
}

func TestReset(t *testing.T) {
	var e Editor
	e.Feed([]byte("abc\ndef"))
	e.Reset()
	if l, ok := e.Feed(nil); ok {
		t.Fatalf("Feed(nil) after Reset: got %q", l)
	}
	if e.Len() != 0 {
		t.Fatalf("Len() after Reset: %d != 0", e.Len())
	}
}
