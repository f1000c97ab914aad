// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package vomsxml

import (
	"testing"

	"github.com/absmach/vomsgw/pkg/legacy"
)

const prolog = `<?xml version="1.0" encoding="US-ASCII"?>`

func TestTranslator_Translate(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		input   string
		wantURI string
	}{
		{
			name:    "group and role",
			input:   prolog + `<voms><command>G/atlas</command><command>B/atlas/production:admin</command><lifetime>43200</lifetime><targets>host.example.org</targets></voms>`,
			wantURI: "/voms/atlas/generate-ac?fqans=%2Fatlas%2C%2Fatlas%2Fproduction%2FRole%3Dadmin&lifetime=43200&targets=host.example.org",
		},
		{
			name:    "all without vo",
			input:   `<voms><command>A</command></voms>`,
			wantURI: "/voms/generate-ac",
		},
		{
			name:    "role relative to vo",
			input:   `<voms><command>G/cms</command><command>Rpilot</command></voms>`,
			wantURI: "/voms/cms/generate-ac?fqans=%2Fcms%2C%2Fcms%2FRole%3Dpilot",
		},
		{
			name:    "duplicates removed",
			input:   `<voms><command>G/cms</command><command>G/cms</command></voms>`,
			wantURI: "/voms/cms/generate-ac?fqans=%2Fcms",
		},
		{
			name:    "unknown command passed through",
			input:   `<voms><command>/dteam/Role=NULL</command></voms>`,
			wantURI: "/voms/dteam/generate-ac?fqans=%2Fdteam%2FRole%3DNULL",
		},
		{
			name:    "order and custom prefix",
			prefix:  "api/",
			input:   `<voms><command>G/lhcb</command><order>/lhcb</order><lifetime>0</lifetime></voms>`,
			wantURI: "/api/lhcb/generate-ac?fqans=%2Flhcb&order=%2Flhcb",
		},
		{
			name:    "empty document",
			input:   `<voms/>`,
			wantURI: "/voms/generate-ac",
		},
		{
			name:    "trailing bytes ignored",
			input:   "<voms><command>N</command></voms>\n",
			wantURI: "/voms/generate-ac",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(tt.prefix)
			got, ok := tr.Translate([]byte(tt.input))
			if !ok {
				t.Fatalf("Translate(%q) failed", tt.input)
			}
			want := legacy.Request{Method: "GET", URI: tt.wantURI, Version: "HTTP/1.1"}
			if got != want {
				t.Errorf("Expected %+v, got %+v", want, got)
			}
		})
	}
}

func TestTranslator_Failures(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "truncated", input: `<voms><command>A</comm`},
		{name: "unterminated root", input: `<voms><command>A</command>`},
		{name: "prolog only", input: prolog},
		{name: "wrong root", input: `<request path="/services/foo"/>`},
		{name: "bad lifetime", input: `<voms><lifetime>forever</lifetime></voms>`},
		{name: "negative lifetime", input: `<voms><lifetime>-1</lifetime></voms>`},
		{name: "unsupported charset", input: `<?xml version="1.0" encoding="EBCDIC"?><voms/>`},
	}

	tr := New("")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, ok := tr.Translate([]byte(tt.input)); ok {
				t.Errorf("Expected failure, got %+v", got)
			}
		})
	}
}

func TestTranslator_Deterministic(t *testing.T) {
	tr := New("")
	input := []byte(`<voms><command>G/atlas</command><targets>a,b</targets><order>/atlas</order></voms>`)
	first, _ := tr.Translate(input)
	for i := 0; i < 10; i++ {
		if got, _ := tr.Translate(input); got != first {
			t.Fatalf("Expected stable output %+v, got %+v", first, got)
		}
	}
}
