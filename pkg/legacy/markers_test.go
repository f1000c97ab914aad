// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package legacy

import (
	"errors"
	"net/http"
	"reflect"
	"testing"
)

func TestNewMarkers(t *testing.T) {
	tests := []struct {
		name    string
		headers []Header
		want    []Header
		wantErr bool
	}{
		{
			name:    "canonicalized",
			headers: []Header{{Name: "x-voms-legacy", Value: " true "}, {Name: "accept", Value: "text/xml"}},
			want:    []Header{{Name: "X-Voms-Legacy", Value: "true"}, {Name: "Accept", Value: "text/xml"}},
		},
		{name: "empty table", wantErr: true},
		{name: "empty name", headers: []Header{{Name: " ", Value: "x"}}, wantErr: true},
		{name: "name with colon", headers: []Header{{Name: "X:Y", Value: "x"}}, wantErr: true},
		{name: "value with newline", headers: []Header{{Name: "X-A", Value: "a\r\nB: c"}}, wantErr: true},
		{name: "duplicate after canonicalization", headers: []Header{{Name: "x-a", Value: "1"}, {Name: "X-A", Value: "2"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMarkers(tt.headers...)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidMarker) {
					t.Fatalf("Expected ErrInvalidMarker, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewMarkers() error = %v", err)
			}
			if got := m.Headers(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestParseMarkers(t *testing.T) {
	m, err := ParseMarkers("X-Voms-Legacy=true, Accept=text/xml,")
	if err != nil {
		t.Fatalf("ParseMarkers() error = %v", err)
	}
	if got := m.String(); got != "X-Voms-Legacy=true,Accept=text/xml" {
		t.Errorf("Unexpected table %q", got)
	}
	if got := m.Names(); !reflect.DeepEqual(got, []string{"X-Voms-Legacy", "Accept"}) {
		t.Errorf("Unexpected names %v", got)
	}
	if m.Flag().Name != "X-Voms-Legacy" {
		t.Errorf("Expected the first entry as flag, got %v", m.Flag())
	}

	for _, bad := range []string{"", "X-Voms-Legacy", "A=1,B"} {
		if _, err := ParseMarkers(bad); !errors.Is(err, ErrInvalidMarker) {
			t.Errorf("ParseMarkers(%q): expected ErrInvalidMarker, got %v", bad, err)
		}
	}
}

func TestMarkers_HeadersIsACopy(t *testing.T) {
	m := DefaultMarkers()
	hs := m.Headers()
	hs[0].Value = "false"
	if m.Flag().Value != DefaultMarkerValue {
		t.Error("Headers() must not expose the internal table")
	}
}

func TestMarkers_IsLegacy(t *testing.T) {
	m := DefaultMarkers()

	tests := []struct {
		name   string
		header http.Header
		want   bool
	}{
		{name: "nil header", header: nil, want: false},
		{name: "missing", header: http.Header{"Accept": {"*/*"}}, want: false},
		{name: "flag set", header: http.Header{"X-Voms-Legacy": {"true"}}, want: true},
		{name: "other value", header: http.Header{"X-Voms-Legacy": {"yes"}}, want: false},
		{name: "empty values", header: http.Header{"X-Voms-Legacy": {}}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.IsLegacy(tt.header); got != tt.want {
				t.Errorf("IsLegacy() = %v, want %v", got, tt.want)
			}
		})
	}
}
