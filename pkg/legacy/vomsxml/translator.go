// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package vomsxml translates legacy VOMS XML requests into calls to the REST
// endpoint of a VOMS server.
//
// A legacy request looks like:
//
//	<?xml version="1.0" encoding="US-ASCII"?>
//	<voms>
//	  <command>G/atlas</command>
//	  <command>B/atlas/production:admin</command>
//	  <lifetime>43200</lifetime>
//	  <targets>host.example.org</targets>
//	</voms>
//
// and becomes:
//
//	GET /voms/atlas/generate-ac?fqans=%2Fatlas%2C%2Fatlas%2Fproduction%2FRole%3Dadmin&lifetime=43200&targets=host.example.org HTTP/1.1
package vomsxml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/absmach/vomsgw/pkg/legacy"
)

const (
	// DefaultPrefix is the path prefix of the REST endpoint.
	DefaultPrefix = "/voms"

	endpoint = "generate-ac"
	version  = "HTTP/1.1"
)

// Command prefixes of the legacy protocol.
const (
	cmdAll        = 'A'
	cmdNone       = 'N'
	cmdGroup      = 'G'
	cmdRole       = 'R'
	cmdGroupRole  = 'B'
	roleSeparator = ":"
)

type request struct {
	XMLName  xml.Name `xml:"voms"`
	Commands []string `xml:"command"`
	Order    string   `xml:"order"`
	Targets  string   `xml:"targets"`
	Lifetime string   `xml:"lifetime"`
	Base64   string   `xml:"base64"`
	Version  string   `xml:"version"`
}

// Translator implements legacy.Translator for the VOMS XML dialect.
// It is stateless and safe for concurrent use.
type Translator struct {
	prefix string
}

var _ legacy.Translator = (*Translator)(nil)

// New creates a translator targeting endpoints under prefix.
func New(prefix string) *Translator {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return &Translator{prefix: prefix}
}

// Translate implements legacy.Translator. It fails on malformed or
// incomplete documents.
func (t *Translator) Translate(data []byte) (legacy.Request, bool) {
	req, err := decode(data)
	if err != nil {
		return legacy.Request{}, false
	}

	uri, err := t.uri(req)
	if err != nil {
		return legacy.Request{}, false
	}

	return legacy.Request{Method: "GET", URI: uri, Version: version}, true
}

func decode(data []byte) (request, error) {
	var req request
	d := xml.NewDecoder(bytes.NewReader(data))
	d.CharsetReader = charsetReader
	if err := d.Decode(&req); err != nil {
		return request{}, err
	}
	return req, nil
}

// Legacy clients declare US-ASCII, which is a subset of UTF-8.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "us-ascii", "ascii", "iso646-us":
		return input, nil
	default:
		return nil, fmt.Errorf("unsupported charset %q", charset)
	}
}

func (t *Translator) uri(req request) (string, error) {
	var (
		vo     string
		fqans  []string
		q      = url.Values{}
		groups = make(map[string]struct{})
	)

	for _, c := range req.Commands {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		fqan, cvo := command(c)
		if vo == "" {
			vo = cvo
		}
		if fqan == "" {
			continue
		}
		if _, ok := groups[fqan]; ok {
			continue
		}
		groups[fqan] = struct{}{}
		fqans = append(fqans, fqan)
	}

	// Role-only commands are relative to the VO.
	for i, f := range fqans {
		if strings.HasPrefix(f, "Role=") && vo != "" {
			fqans[i] = "/" + vo + "/" + f
		}
	}

	if len(fqans) > 0 {
		q.Set("fqans", strings.Join(fqans, ","))
	}
	if lt := strings.TrimSpace(req.Lifetime); lt != "" {
		seconds, err := strconv.Atoi(lt)
		if err != nil || seconds < 0 {
			return "", fmt.Errorf("invalid lifetime %q", lt)
		}
		if seconds > 0 {
			q.Set("lifetime", strconv.Itoa(seconds))
		}
	}
	if order := strings.TrimSpace(req.Order); order != "" {
		q.Set("order", order)
	}
	if targets := strings.TrimSpace(req.Targets); targets != "" {
		q.Set("targets", targets)
	}

	path := t.prefix + "/" + endpoint
	if vo != "" {
		path = t.prefix + "/" + url.PathEscape(vo) + "/" + endpoint
	}
	if len(q) == 0 {
		return path, nil
	}
	return path + "?" + q.Encode(), nil
}

// command returns the FQAN a single command asks for and the VO it names,
// if any.
func command(c string) (fqan, vo string) {
	arg := c[1:]
	switch c[0] {
	case cmdAll, cmdNone:
		return "", ""
	case cmdGroup:
		return arg, voOf(arg)
	case cmdRole:
		if arg == "" {
			return "", ""
		}
		return "Role=" + arg, ""
	case cmdGroupRole:
		group, role, ok := strings.Cut(arg, roleSeparator)
		if !ok || role == "" {
			return group, voOf(group)
		}
		return group + "/Role=" + role, voOf(group)
	default:
		return c, voOf(c)
	}
}

func voOf(group string) string {
	if !strings.HasPrefix(group, "/") {
		return ""
	}
	vo, _, _ := strings.Cut(group[1:], "/")
	return vo
}
