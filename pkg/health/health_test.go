// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestChecker_Health(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(c *Checker)
		want    Status
		ready   int
		healthy int
		nchecks int
	}{
		{
			name:    "all healthy",
			setup:   func(c *Checker) { c.Register("a", func(context.Context) error { return nil }) },
			want:    StatusHealthy,
			ready:   http.StatusOK,
			healthy: http.StatusOK,
			nchecks: 1,
		},
		{
			name: "degraded",
			setup: func(c *Checker) {
				c.Register("a", func(context.Context) error { return nil })
				c.Register("b", func(context.Context) error { return errors.New("slow") })
			},
			want:    StatusDegraded,
			ready:   http.StatusServiceUnavailable,
			healthy: http.StatusOK,
			nchecks: 2,
		},
		{
			name: "critical failure",
			setup: func(c *Checker) {
				c.Register("a", func(context.Context) error { return errors.New("slow") })
				c.RegisterCritical("backend", func(context.Context) error { return errors.New("down") })
			},
			want:    StatusUnhealthy,
			ready:   http.StatusServiceUnavailable,
			healthy: http.StatusServiceUnavailable,
			nchecks: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(time.Minute)
			tt.setup(c)

			status, checks := c.Health(context.Background())
			if status != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, status)
			}
			if len(checks) != tt.nchecks {
				t.Errorf("Expected %d checks, got %d", tt.nchecks, len(checks))
			}

			rec := httptest.NewRecorder()
			c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			if rec.Code != tt.ready {
				t.Errorf("Readiness: expected %d, got %d", tt.ready, rec.Code)
			}

			rec = httptest.NewRecorder()
			c.HTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != tt.healthy {
				t.Errorf("Health: expected %d, got %d", tt.healthy, rec.Code)
			}

			var body struct {
				Status Status  `json:"status"`
				Checks []Check `json:"checks"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode body: %v", err)
			}
			if body.Status != tt.want {
				t.Errorf("Body: expected %s, got %s", tt.want, body.Status)
			}
		})
	}
}

func TestChecker_Cache(t *testing.T) {
	c := NewChecker(time.Hour)
	calls := 0
	c.Register("counted", func(context.Context) error { calls++; return nil })

	c.Health(context.Background())
	c.Health(context.Background())
	if calls != 1 {
		t.Errorf("Expected cached result, check ran %d times", calls)
	}
}

func TestLivenessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestBackendCheck(t *testing.T) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	addr := l.Addr().String()

	check, err := BackendCheck("http://"+addr+"/voms", time.Second)
	if err != nil {
		t.Fatalf("BackendCheck() error = %v", err)
	}
	if err := check(context.Background()); err != nil {
		t.Errorf("Expected reachable backend, got %v", err)
	}

	l.Close()
	if err := check(context.Background()); err == nil {
		t.Error("Expected closed backend to fail")
	}

	if _, err := BackendCheck("://bad", time.Second); err == nil {
		t.Error("Expected invalid URL error")
	}
}

func TestGoroutineCheck(t *testing.T) {
	reported := 0
	check := GoroutineCheck(1, func(n int) { reported = n })
	if err := check(context.Background()); err == nil {
		t.Error("Expected failure with a limit of 1 goroutine")
	}
	if reported == 0 {
		t.Error("Expected goroutine count to be reported")
	}
	if err := GoroutineCheck(0, nil)(context.Background()); err != nil {
		t.Errorf("Zero limit disables the check, got %v", err)
	}
}
