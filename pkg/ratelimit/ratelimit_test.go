// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"testing"
	"time"
)

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time {
	return c.t
}

func TestTokenBucket(t *testing.T) {
	c := &clock{t: time.Now()}
	tb := newTokenBucket(3, 2, c.now)

	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("Expected token %d to be available", i)
		}
	}
	if tb.Allow() {
		t.Fatal("Expected empty bucket")
	}

	c.t = c.t.Add(250 * time.Millisecond)
	if tb.Allow() {
		t.Error("Half a token is not enough")
	}
	c.t = c.t.Add(250 * time.Millisecond)
	if !tb.Allow() {
		t.Error("Expected a token after 500ms at 2 tokens/s")
	}

	c.t = c.t.Add(time.Hour)
	if got := tb.Available(); got != 3 {
		t.Errorf("Expected refill capped at capacity 3, got %d", got)
	}
}

func TestLimiter_PerClient(t *testing.T) {
	l := NewLimiter(1, 0, 10)
	defer l.Close()

	if !l.Allow("10.0.0.1") {
		t.Fatal("Expected first connection to be allowed")
	}
	if l.Allow("10.0.0.1") {
		t.Error("Expected second connection to be limited")
	}
	if !l.Allow("10.0.0.2") {
		t.Error("Other clients have their own bucket")
	}

	l.Remove("10.0.0.1")
	if !l.Allow("10.0.0.1") {
		t.Error("Expected a fresh bucket after Remove")
	}
}

func TestLimiter_MaxClients(t *testing.T) {
	l := NewLimiter(10, 10, 2)
	defer l.Close()

	l.Allow("a")
	l.Allow("b")
	if l.Allow("c") {
		t.Error("Expected new clients to be refused at capacity")
	}
	if l.Stats() != 2 {
		t.Errorf("Expected 2 clients, got %d", l.Stats())
	}
}

func TestLimiter_Cleanup(t *testing.T) {
	c := &clock{t: time.Now()}
	l := NewLimiter(10, 10, 10)
	defer l.Close()
	l.now = c.now

	l.Allow("old")
	c.t = c.t.Add(10 * time.Minute)
	l.Allow("new")

	l.cleanup()
	if l.Stats() != 1 {
		t.Errorf("Expected idle client evicted, got %d clients", l.Stats())
	}
}

func TestClientKey(t *testing.T) {
	tests := map[string]string{
		"192.0.2.1:5555":   "192.0.2.1",
		"[2001:db8::1]:80": "2001:db8::1",
		"pipe":             "pipe",
	}
	for in, want := range tests {
		if got := ClientKey(in); got != want {
			t.Errorf("ClientKey(%q) = %q, want %q", in, got, want)
		}
	}
}
