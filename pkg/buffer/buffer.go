// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package buffer provides the fixed-capacity input buffer shared by the
// legacy and standard request parsers of a connection.
//
// A Buffer is a byte region with two cursors: the get index (next unread
// byte) and the put index (next free slot). Bytes between the two are
// unread. Both cursors can be saved and restored verbatim, which lets a
// parser attempt a parse and roll back if the attempt fails.
package buffer

import (
	"io"

	gwerrors "github.com/absmach/vomsgw/pkg/errors"
)

// DefaultSize is the default buffer capacity.
const DefaultSize = 16 * 1024

// Buffer is a fixed-capacity byte buffer with get and put cursors.
// It is not safe for concurrent use.
type Buffer struct {
	data []byte
	get  int
	put  int
}

// New creates an empty buffer with the given capacity.
func New(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{data: make([]byte, size)}
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	return b.put - b.get
}

// Space returns the number of bytes that can be appended without compacting.
func (b *Buffer) Space() int {
	return len(b.data) - b.put
}

// GetIndex returns the read cursor.
func (b *Buffer) GetIndex() int {
	return b.get
}

// PutIndex returns the write cursor.
func (b *Buffer) PutIndex() int {
	return b.put
}

// SetGetIndex moves the read cursor. It panics if i is out of range.
func (b *Buffer) SetGetIndex(i int) {
	if i < 0 || i > b.put {
		panic("buffer: get index out of range")
	}
	b.get = i
}

// SetPutIndex moves the write cursor. It panics if i is out of range.
func (b *Buffer) SetPutIndex(i int) {
	if i < b.get || i > len(b.data) {
		panic("buffer: put index out of range")
	}
	b.put = i
}

// Peek returns the next unread byte without consuming it.
// The buffer must not be empty.
func (b *Buffer) Peek() byte {
	return b.data[b.get]
}

// Get consumes and returns the next unread byte.
// The buffer must not be empty.
func (b *Buffer) Get() byte {
	c := b.data[b.get]
	b.get++
	return c
}

// Skip consumes up to n unread bytes and returns how many were consumed.
func (b *Buffer) Skip(n int) int {
	if n > b.Len() {
		n = b.Len()
	}
	b.get += n
	return n
}

// Bytes returns the unread bytes. The slice aliases the buffer and is only
// valid until the next mutating call.
func (b *Buffer) Bytes() []byte {
	return b.data[b.get:b.put]
}

// Compact moves the unread bytes to the start of the buffer.
func (b *Buffer) Compact() {
	if b.get == 0 {
		return
	}
	n := copy(b.data, b.data[b.get:b.put])
	b.get = 0
	b.put = n
}

// Clear discards all bytes and resets both cursors.
func (b *Buffer) Clear() {
	b.get = 0
	b.put = 0
}

// Fill reads once from r into the free space of the buffer and returns the
// number of bytes added. Consumed space is reclaimed first. If the buffer
// has no room left, the buffered bytes are discarded and
// ErrBufferExhausted is returned.
func (b *Buffer) Fill(r io.Reader) (int, error) {
	if b.Space() == 0 {
		b.Compact()
	}
	if b.Space() == 0 {
		b.Clear()
		return 0, gwerrors.ErrBufferExhausted
	}
	n, err := r.Read(b.data[b.put:])
	if n > 0 {
		b.put += n
	}
	return n, err
}

// Write appends p to the buffer. It returns ErrBufferExhausted, having
// written nothing, if p does not fit.
func (b *Buffer) Write(p []byte) (int, error) {
	if len(p) > b.Space() {
		b.Compact()
	}
	if len(p) > b.Space() {
		return 0, gwerrors.ErrBufferExhausted
	}
	n := copy(b.data[b.put:], p)
	b.put += n
	return n, nil
}

// Read drains unread bytes into p. It returns io.EOF once the buffer is
// empty, which makes a Buffer usable as the head of an io.MultiReader.
func (b *Buffer) Read(p []byte) (int, error) {
	if b.Len() == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, b.data[b.get:b.put])
	b.get += n
	return n, nil
}
