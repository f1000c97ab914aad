// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package legacy

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	// DefaultMarkerName is the header that flags a translated request.
	DefaultMarkerName = "X-Voms-Legacy"

	// DefaultMarkerValue is the value of DefaultMarkerName.
	DefaultMarkerValue = "true"
)

// ErrInvalidMarker is returned for malformed marker header definitions.
var ErrInvalidMarker = errors.New("invalid marker header")

// Header is a single header field.
type Header struct {
	Name  string
	Value string
}

// Markers is the fixed, ordered set of headers injected into every
// translated request. The first entry is the flag the response side looks
// for. A Markers value is immutable and safe to share between connections.
type Markers struct {
	headers []Header
}

// NewMarkers builds a marker table. Names are canonicalized; at least one
// header is required and names must be unique.
func NewMarkers(headers ...Header) (*Markers, error) {
	if len(headers) == 0 {
		return nil, fmt.Errorf("%w: empty table", ErrInvalidMarker)
	}

	seen := make(map[string]struct{}, len(headers))
	hs := make([]Header, 0, len(headers))
	for _, h := range headers {
		name := strings.TrimSpace(h.Name)
		if name == "" || strings.ContainsAny(name, " \t\r\n:") {
			return nil, fmt.Errorf("%w: name %q", ErrInvalidMarker, h.Name)
		}
		if strings.ContainsAny(h.Value, "\r\n") {
			return nil, fmt.Errorf("%w: value for %q", ErrInvalidMarker, h.Name)
		}
		name = http.CanonicalHeaderKey(name)
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidMarker, name)
		}
		seen[name] = struct{}{}
		hs = append(hs, Header{Name: name, Value: strings.TrimSpace(h.Value)})
	}

	return &Markers{headers: hs}, nil
}

// DefaultMarkers returns the table holding only the default flag header.
func DefaultMarkers() *Markers {
	return &Markers{headers: []Header{{Name: DefaultMarkerName, Value: DefaultMarkerValue}}}
}

// ParseMarkers parses a "Name=Value,Name=Value" list.
func ParseMarkers(s string) (*Markers, error) {
	var hs []Header
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not Name=Value", ErrInvalidMarker, pair)
		}
		hs = append(hs, Header{Name: name, Value: value})
	}
	return NewMarkers(hs...)
}

// Headers returns a copy of the table in emission order.
func (m *Markers) Headers() []Header {
	hs := make([]Header, len(m.headers))
	copy(hs, m.headers)
	return hs
}

// Names returns the canonical header names of the table.
func (m *Markers) Names() []string {
	names := make([]string, len(m.headers))
	for i, h := range m.headers {
		names[i] = h.Name
	}
	return names
}

// Flag returns the header that identifies a translated request.
func (m *Markers) Flag() Header {
	return m.headers[0]
}

// IsLegacy reports whether h carries the flag header.
func (m *Markers) IsLegacy(h http.Header) bool {
	if h == nil {
		return false
	}
	flag := m.headers[0]
	vs, ok := h[flag.Name]
	return ok && len(vs) > 0 && vs[0] == flag.Value
}

// String returns the table in "Name=Value,Name=Value" form.
func (m *Markers) String() string {
	parts := make([]string, len(m.headers))
	for i, h := range m.headers {
		parts[i] = h.Name + "=" + h.Value
	}
	return strings.Join(parts, ",")
}
