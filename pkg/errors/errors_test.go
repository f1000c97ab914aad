// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	if err := New("write response", "legacy", "s1", "192.0.2.1:1", nil); err != nil {
		t.Errorf("Expected nil for nil error, got %v", err)
	}

	err := New("write response", "legacy", "s1", "192.0.2.1:1", ErrOutputShutdown)
	if !Is(err, ErrOutputShutdown) {
		t.Error("Expected GatewayError to unwrap to its cause")
	}
	if got, want := err.Error(), "legacy write response [s1] 192.0.2.1:1: output shut down"; got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	var gerr *GatewayError
	if !errors.As(err, &gerr) || gerr.Protocol != "legacy" {
		t.Errorf("Expected *GatewayError, got %T", err)
	}

	anon := New("classify", "http", "", "192.0.2.1:1", ErrBufferExhausted)
	if got, want := anon.Error(), "http classify 192.0.2.1:1: input buffer exhausted"; got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Expected nil for nil error")
	}

	err := Wrap(ErrBackendUnavailable, "dial backend")
	if !Is(err, ErrBackendUnavailable) {
		t.Error("Expected wrapped error to match its cause")
	}
	if err.Error() != "dial backend: backend unavailable" {
		t.Errorf("Unexpected message %q", err.Error())
	}
}
