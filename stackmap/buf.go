// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stackmap

import (
	"encoding/binary"
	"fmt"

	"github.com/aclements/go-stackmap/arch"
)

// layout is the data layout of a stack map section. The format is
// little-endian regardless of the target architecture.
var layout = arch.NewLayout(binary.LittleEndian)

// A buf is a decoding cursor over a borrowed byte range. It records the
// first error encountered and turns all later reads into no-ops, so
// decoders can do a sequence of reads and check the error once.
//
// off is the absolute offset of the next byte relative to the beginning
// of the section, so errors can report a position that is meaningful to
// the caller even when the buf covers an interior range.
type buf struct {
	data []byte
	off  int64
	err  error
}

func makeBuf(data []byte, off int64) buf {
	return buf{data: data, off: off}
}

func (b *buf) error(msg string) {
	if b.err == nil {
		b.err = &DecodeError{Off: b.off, Msg: msg}
	}
}

func (b *buf) underflow(n int, what string) {
	if b.err == nil {
		b.err = &DecodeError{
			Off: b.off,
			Msg: fmt.Sprintf("section truncated: need %d bytes for %s, have %d", n, what, len(b.data)),
		}
	}
}

// bytes consumes and returns the next n bytes. The result aliases the
// underlying section data and must not be modified.
func (b *buf) bytes(n int, what string) []byte {
	if b.err != nil {
		return nil
	}
	if len(b.data) < n {
		b.underflow(n, what)
		return nil
	}
	p := b.data[:n:n]
	b.data = b.data[n:]
	b.off += int64(n)
	return p
}

func (b *buf) skip(n int, what string) {
	b.bytes(n, what)
}

func (b *buf) uint8(what string) uint8 {
	p := b.bytes(1, what)
	if p == nil {
		return 0
	}
	return p[0]
}

func (b *buf) uint16(what string) uint16 {
	p := b.bytes(2, what)
	if p == nil {
		return 0
	}
	return layout.Uint16(p)
}

func (b *buf) uint32(what string) uint32 {
	p := b.bytes(4, what)
	if p == nil {
		return 0
	}
	return layout.Uint32(p)
}

func (b *buf) uint64(what string) uint64 {
	p := b.bytes(8, what)
	if p == nil {
		return 0
	}
	return layout.Uint64(p)
}

func (b *buf) int32(what string) int32 {
	return int32(b.uint32(what))
}

// empty reports whether the cursor has consumed all of its data.
func (b *buf) empty() bool {
	return len(b.data) == 0
}
