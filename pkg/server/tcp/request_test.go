// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	gwerrors "github.com/absmach/vomsgw/pkg/errors"
	"github.com/absmach/vomsgw/pkg/parser"
)

func TestRequestBuilder(t *testing.T) {
	b := &requestBuilder{}
	b.reset("192.0.2.1:4321", nil)

	if err := b.StartRequest(http.MethodGet, "/voms/atlas/generate-ac?fqans=%2Fatlas", "HTTP/1.1"); err != nil {
		t.Fatalf("StartRequest failed: %v", err)
	}
	b.ParsedHeader("host", "voms.example.org")
	b.ParsedHeader("x-voms-legacy", "true")
	if err := b.HeaderComplete(); err != nil {
		t.Fatalf("HeaderComplete failed: %v", err)
	}

	req := b.request()
	if req == nil {
		t.Fatal("Expected a request")
	}
	if req.Host != "voms.example.org" {
		t.Errorf("Expected host voms.example.org, got %q", req.Host)
	}
	if _, ok := req.Header["Host"]; ok {
		t.Error("Expected Host to be kept out of the header map")
	}
	if req.Header.Get("X-Voms-Legacy") != "true" {
		t.Error("Expected marker header to be canonicalized")
	}
	if req.URL.Path != "/voms/atlas/generate-ac" || req.URL.Query().Get("fqans") != "/atlas" {
		t.Errorf("Unexpected URL %v", req.URL)
	}
	if req.ProtoMajor != 1 || req.ProtoMinor != 1 {
		t.Errorf("Expected HTTP/1.1, got %d.%d", req.ProtoMajor, req.ProtoMinor)
	}
	if req.RemoteAddr != "192.0.2.1:4321" {
		t.Errorf("Expected remote address to be set, got %q", req.RemoteAddr)
	}
	if req.Body != http.NoBody {
		t.Error("Expected an empty body")
	}

	b.next()
	if b.request() != nil {
		t.Error("Expected next to clear the request")
	}
	if b.remoteAddr != "192.0.2.1:4321" {
		t.Error("Expected next to keep the remote address")
	}
}

func TestRequestBuilder_Errors(t *testing.T) {
	cases := []struct {
		name    string
		run     func(b *requestBuilder) error
		wantErr error
	}{
		{
			name: "header before request line",
			run: func(b *requestBuilder) error {
				return b.ParsedHeader("Host", "x")
			},
			wantErr: errNoRequestLine,
		},
		{
			name: "complete before request line",
			run: func(b *requestBuilder) error {
				return b.HeaderComplete()
			},
			wantErr: errNoRequestLine,
		},
		{
			name: "bad version",
			run: func(b *requestBuilder) error {
				b.StartRequest(http.MethodGet, "/", "HTTP/x")
				return b.HeaderComplete()
			},
			wantErr: gwerrors.ErrProtocolViolation,
		},
		{
			name: "bad uri",
			run: func(b *requestBuilder) error {
				b.StartRequest(http.MethodGet, "no-slash", "HTTP/1.1")
				return b.HeaderComplete()
			},
			wantErr: gwerrors.ErrProtocolViolation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := &requestBuilder{}
			if err := tc.run(b); !errors.Is(err, tc.wantErr) {
				t.Errorf("Expected %v, got %v", tc.wantErr, err)
			}
			if b.request() != nil {
				t.Error("Expected no request")
			}
		})
	}
}

func TestDrain(t *testing.T) {
	cases := []struct {
		name string
		body io.ReadCloser
		want bool
	}{
		{name: "no body", body: http.NoBody, want: true},
		{name: "short body", body: &requestBody{rc: io.NopCloser(strings.NewReader("hello"))}, want: true},
		{name: "oversized body", body: &requestBody{rc: io.NopCloser(strings.NewReader(strings.Repeat("x", maxDrain+1)))}, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := drain(tc.body); got != tc.want {
				t.Errorf("Expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestRequestBody_CloseKeepsReader(t *testing.T) {
	rb := &requestBody{rc: io.NopCloser(strings.NewReader("abc"))}
	if err := rb.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	got, err := io.ReadAll(rb)
	if err != nil || string(got) != "abc" {
		t.Errorf("Expected body to stay readable, got %q, %v", got, err)
	}
	if !rb.eof {
		t.Error("Expected EOF to be recorded")
	}
}

type recordingGenerator struct {
	flushes []bool
	bodies  []string
	err     error
}

func (g *recordingGenerator) Flush(res *parser.Response, final bool) (int, error) {
	g.flushes = append(g.flushes, final)
	g.bodies = append(g.bodies, res.Body.String())
	n := res.Body.Len()
	res.Body.Reset()
	return n, g.err
}

func (g *recordingGenerator) Persistent() bool {
	return true
}

func TestResponseWriter(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	gen := &recordingGenerator{}
	w := newResponseWriter(parser.NewResponse(req), gen, 4)

	w.WriteHeader(http.StatusContinue)
	w.Write([]byte("ab"))
	w.Write([]byte("cdef"))
	w.Write([]byte("g"))
	n, err := w.finish()

	if err != nil {
		t.Fatalf("finish failed: %v", err)
	}
	if n != 7 {
		t.Errorf("Expected 7 bytes written, got %d", n)
	}
	if w.status() != http.StatusOK {
		t.Errorf("Expected implicit 200, got %d", w.status())
	}
	if want := []bool{false, true}; len(gen.flushes) != 2 || gen.flushes[0] != want[0] || gen.flushes[1] != want[1] {
		t.Errorf("Expected flushes %v, got %v", want, gen.flushes)
	}
	if gen.bodies[0] != "abcdef" || gen.bodies[1] != "g" {
		t.Errorf("Unexpected flushed bodies %q", gen.bodies)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Errorf("Expected sniffed content type, got %q", ct)
	}
}

func TestResponseWriter_Error(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	gen := &recordingGenerator{err: gwerrors.ErrOutputShutdown}
	w := newResponseWriter(parser.NewResponse(req), gen, 1)

	w.WriteHeader(http.StatusAccepted)
	w.WriteHeader(http.StatusTeapot)
	if _, err := w.Write([]byte("x")); !errors.Is(err, gwerrors.ErrOutputShutdown) {
		t.Errorf("Expected write error, got %v", err)
	}
	if _, err := w.Write([]byte("y")); !errors.Is(err, gwerrors.ErrOutputShutdown) {
		t.Errorf("Expected sticky write error, got %v", err)
	}
	if w.status() != http.StatusAccepted {
		t.Errorf("Expected first status to win, got %d", w.status())
	}
}
