// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package breaker

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

func TestCircuitBreaker_Trips(t *testing.T) {
	cb := New(Config{MaxFailures: 3, ResetTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		if err := cb.Call(func() error { return errBackend }); !errors.Is(err, errBackend) {
			t.Fatalf("Call %d: expected backend error, got %v", i, err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("Expected open circuit, got %s", cb.State())
	}

	called := false
	err := cb.Call(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Errorf("Expected ErrCircuitOpen without calling, got %v (called=%v)", err, called)
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := New(Config{MaxFailures: 2})

	_ = cb.Call(func() error { return errBackend })
	_ = cb.Call(func() error { return nil })
	_ = cb.Call(func() error { return errBackend })

	if state, failures, _ := cb.Stats(); state != StateClosed || failures != 1 {
		t.Errorf("Expected closed with 1 failure, got %s with %d", state, failures)
	}
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	now := time.Now()
	cb := New(Config{MaxFailures: 1, ResetTimeout: time.Second, SuccessThreshold: 2})
	cb.now = func() time.Time { return now }

	_ = cb.Call(func() error { return errBackend })
	if cb.State() != StateOpen {
		t.Fatalf("Expected open, got %s", cb.State())
	}

	now = now.Add(2 * time.Second)
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("Expected probe call to pass, got %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("Expected half open, got %s", cb.State())
	}
	_ = cb.Call(func() error { return nil })
	if cb.State() != StateClosed {
		t.Errorf("Expected closed after 2 successes, got %s", cb.State())
	}

	// A failure while half open reopens immediately.
	_ = cb.Call(func() error { return errBackend })
	now = now.Add(2 * time.Second)
	_ = cb.Call(func() error { return errBackend })
	if cb.State() != StateOpen {
		t.Errorf("Expected open after half open failure, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenLimit(t *testing.T) {
	now := time.Now()
	cb := New(Config{MaxFailures: 1, ResetTimeout: time.Second, HalfOpenRequests: 1})
	cb.now = func() time.Time { return now }

	_ = cb.Call(func() error { return errBackend })
	now = now.Add(2 * time.Second)

	if err := cb.Allow(); err != nil {
		t.Fatalf("Expected first probe to pass, got %v", err)
	}
	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected second probe to be rejected, got %v", err)
	}
	cb.Done(true)
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	cb := New(Config{MaxFailures: 1})
	changes := make(chan State, 1)
	cb.OnStateChange(func(from, to State) { changes <- to })

	_ = cb.Call(func() error { return errBackend })

	select {
	case to := <-changes:
		if to != StateOpen {
			t.Errorf("Expected transition to open, got %s", to)
		}
	case <-time.After(time.Second):
		t.Error("Expected a state change notification")
	}
}

func TestTransport(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		io.WriteString(w, "ok")
	}))
	defer backend.Close()

	cb := New(Config{MaxFailures: 2, ResetTimeout: time.Minute})
	client := &http.Client{Transport: NewTransport(nil, cb)}

	get := func() error {
		resp, err := client.Get(backend.URL)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}

	if err := get(); err != nil {
		t.Fatalf("Expected success, got %v", err)
	}

	status.Store(http.StatusBadGateway)
	_ = get()
	_ = get()
	if cb.State() != StateOpen {
		t.Fatalf("Expected 5xx responses to open the circuit, got %s", cb.State())
	}

	err := get()
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
}

func TestState_String(t *testing.T) {
	if StateHalfOpen.String() != "half_open" || State(9).String() != "unknown" {
		t.Error("Unexpected state names")
	}
}
