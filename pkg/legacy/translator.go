// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package legacy

// Request holds the request line synthesized from a legacy payload.
type Request struct {
	Method  string
	URI     string
	Version string
}

// IsZero reports whether r is unset.
func (r Request) IsZero() bool {
	return r == Request{}
}

// Translator turns accumulated legacy bytes into an HTTP request line.
//
// Translate is given everything buffered since the first '<'. It returns
// false when the bytes do not (yet) form a complete request. It must not
// retain or modify data, and must return the same result for the same
// input: a failed call is retried later with a longer byte window.
type Translator interface {
	Translate(data []byte) (Request, bool)
}

// TranslatorFunc adapts a function to the Translator interface.
type TranslatorFunc func(data []byte) (Request, bool)

// Translate calls f(data).
func (f TranslatorFunc) Translate(data []byte) (Request, bool) {
	return f(data)
}
