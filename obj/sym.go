// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import "strconv"

// A SymID uniquely identifies a symbol within an object file. Symbols
// within an object file are always numbered sequentially from 0.
//
// This does not necessarily correspond to the symbol indexing scheme
// used by a given object format.
type SymID uint32

// NoSym is a placeholder SymID used to indicate "no symbol".
const NoSym = ^SymID(0)

func (id SymID) String() string {
	if id == NoSym {
		return "NoSym"
	}
	return strconv.FormatUint(uint64(id), 10)
}

// A Sym is a symbol in an object file.
type Sym struct {
	// Name is the string name of this symbol.
	Name string
	// Section is the section this symbol is defined in, or nil if
	// this symbol is not defined in any section.
	Section *Section
	// Value is the value of this symbol. For a defined symbol, this
	// is an absolute address within Section.
	Value uint64
	// Size is the size of this symbol in bytes, or 0 if unknown.
	Size uint64
	// Kind gives the general kind of this symbol.
	Kind SymKind
	// Local indicates this symbol is not visible outside the object
	// that defines it.
	Local bool
}

// SymKind indicates the general kind of a symbol. The exact mappings
// from different object formats to these kinds is generally fuzzy, so
// different versions of this package may change how symbols are
// categorized.
type SymKind uint8

const (
	// SymUnknown indicates a symbol could not be categorized into one
	// of the supported kinds.
	SymUnknown SymKind = '?'
	// SymUndef symbols are not defined in this object (they would be
	// resolved by linking against other objects).
	SymUndef SymKind = 'U'
	// SymText symbols are in an executable code section.
	SymText SymKind = 'T'
	// SymData symbols are in a data section. This includes read-only
	// and zero-initialized (BSS) data.
	SymData SymKind = 'D'
	// SymSection symbols represent a section. Some object formats put
	// sections in the symbol table and others don't.
	SymSection SymKind = 'S'
)

// String returns a string representation of k. This is a single
// character in the style of "nm".
func (k SymKind) String() string {
	return string([]byte{byte(k)})
}
