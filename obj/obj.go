// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package obj extracts sections and symbols from object files.
//
// It provides the plumbing the stackmap package deliberately leaves
// out: opening an ELF or Mach-O binary, finding the stack map section,
// and handing its raw bytes (memory-mapped where possible) to the
// decoder.
package obj

import (
	"fmt"
	"io"

	"github.com/aclements/go-stackmap/arch"
)

// Open attempts to open r as a known object file format.
func Open(r io.ReaderAt) (File, error) {
	if isElf, f, err := openElf(r); isElf {
		return f, err
	}
	if isMachO, f, err := openMachO(r); isMachO {
		return f, err
	}
	return nil, fmt.Errorf("unrecognized object file format")
}

// A File represents an object file.
type File interface {
	// Close closes this object file, releasing any OS resources used
	// by it. Referencing a Data object returned from this File after
	// closing it may panic.
	Close()

	// Info returns metadata about the whole object file.
	Info() FileInfo

	// Sections returns a slice of sections in this object file,
	// indexed by SectionID. Each section has a name that generally
	// follows a platform convention, such as ".text" or ".data".
	Sections() []*Section

	// Section returns the i'th section. If i is out of range, it
	// panics.
	Section(i SectionID) *Section

	// sectionData implements Section.Data. On success, it should
	// populate *d and return d, nil. If there's an error, it should
	// return nil and the error.
	sectionData(s *Section, addr, size uint64, d *Data) (*Data, error)

	// ResolveAddr finds the Section containing the given address in
	// the loaded address space, or nil if addr is not in the loaded
	// address space. Not all sections are loaded, and some object
	// files (ELF relocatable objects, say) have no loaded address
	// space at all.
	ResolveAddr(addr uint64) *Section

	// Syms returns the symbols defined in this object file. The
	// caller must not modify the returned slice.
	Syms() []Sym
}

type FileInfo struct {
	// Arch is the machine architecture of this object file, or
	// nil if unknown.
	Arch *arch.Arch
}

// SectionID is an index for a section in an object file. These indexes
// are compact and start at 0.
//
// These may not correspond to any section numbering used by the object
// format itself; see Section.RawID for this. For example, ELF section
// number 0 is reserved, so this slice starts at section 1 in ELF
// objects.
type SectionID int

// A Section is a contiguous region of address space in an object file.
type Section struct {
	// File is the object file containing this section.
	File File

	// Name is the name of this section. This typically follows
	// platform conventions, such as ".text" or ".data", but isn't
	// necessarily meaningful.
	Name string

	// ID is the obj-internal index of this section.
	ID SectionID

	// RawID is the index of this section in the underlying format's
	// representation, or -1 if this is not meaningful.
	RawID int

	// Addr is the virtual address at which this section begins in
	// memory, or 0 if this section is not loaded into memory.
	Addr uint64

	// Size is the size of this section in memory, in bytes.
	Size uint64

	mapped bool
}

// Data reads size bytes of data from this section, starting at the
// given address. It panics if the requested byte range is out of range
// for the section.
func (s *Section) Data(addr, size uint64) (*Data, error) {
	// This approach allows the allocation of Data to be inlined into
	// the caller, where it can often be stack-allocated.
	var d Data
	return s.File.sectionData(s, addr, size, &d)
}

// Bounds returns the starting address and size in bytes of Section s.
func (s *Section) Bounds() (addr, size uint64) {
	return s.Addr, s.Size
}

// Mapped indicates a section is loaded into the address space at
// Section.Addr.
func (s *Section) Mapped() bool {
	return s.mapped
}

// SetMapped sets the Mapped flag to v.
func (s *Section) SetMapped(v bool) {
	s.mapped = v
}

// roundDown2 rounds x down to a multiple of y, where y must be a
// power of 2.
func roundDown2(x, y uint64) uint64 {
	if y&(y-1) != 0 {
		panic("y must be a power of 2")
	}
	return x &^ (y - 1)
}

// roundUp2 rounds x up to a multiple of y, where y must be a power
// of 2.
func roundUp2(x, y uint64) uint64 {
	if y&(y-1) != 0 {
		panic("y must be a power of 2")
	}
	return (x + y - 1) &^ (y - 1)
}
