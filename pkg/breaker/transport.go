// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package breaker

import (
	"fmt"
	"net/http"
)

// Transport is an http.RoundTripper guarded by a circuit breaker. Transport
// errors and 5xx responses count as failures.
type Transport struct {
	Base    http.RoundTripper
	Breaker *CircuitBreaker
}

var _ http.RoundTripper = (*Transport)(nil)

// NewTransport wraps base. A nil base uses http.DefaultTransport.
func NewTransport(base http.RoundTripper, cb *CircuitBreaker) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Breaker: cb}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.Breaker.Allow(); err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Redacted(), err)
	}

	resp, err := t.Base.RoundTrip(req)
	t.Breaker.Done(err == nil && resp.StatusCode < http.StatusInternalServerError)
	return resp, err
}
