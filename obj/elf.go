// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"debug/elf"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/aclements/go-stackmap/arch"
)

type elfFile struct {
	f    *elf.File
	arch *arch.Arch

	// fd is the mmap-able FD of this file, or ^0.
	fd uintptr
	// pageSize is the system page size for mmapping.
	pageSize uint64

	// relocatable is true if this is a REL-type file. In this case,
	// there's no meaningful mapped address space.
	relocatable bool

	// sections contains the sections of this object file, indexed by
	// internal ID (not ELF section number).
	sections []*elfSection

	// shnToSection maps ELF section numbers to *elfSection objects.
	shnToSection []*elfSection

	symsOnce sync.Once
	syms     []Sym
}

type elfSection struct {
	*Section

	elf *elf.Section

	dataOnce sync.Once
	data     []byte
	dataErr  error
	mmapped  []byte // if non-nil, original mmap of this section
}

func (s *elfSection) String() string {
	return fmt.Sprintf("%s [%d]", s.Name, s.RawID)
}

var elfArches = map[elf.Machine]*arch.Arch{
	elf.EM_X86_64:  arch.AMD64,
	elf.EM_386:     arch.I386,
	elf.EM_AARCH64: arch.ARM64,
}

func openElf(r io.ReaderAt) (bool, File, error) {
	// Is this an ELF file?
	var magic [4]uint8
	if _, err := r.ReadAt(magic[0:], 0); err != nil {
		return false, nil, err
	}
	if magic[0] != '\x7f' || magic[1] != 'E' || magic[2] != 'L' || magic[3] != 'F' {
		return false, nil, nil
	}
	// If there are errors past this point, we assume it's ELF and we
	// should report the error.

	ff, err := elf.NewFile(r)
	if err != nil {
		return true, nil, err
	}

	f := &elfFile{f: ff, arch: elfArches[ff.Machine]}
	f.relocatable = ff.Type == elf.ET_REL

	// Is this a real file we can mmap?
	if file, ok := r.(*os.File); ok {
		f.fd = file.Fd()
		f.pageSize = uint64(syscall.Getpagesize())
	} else {
		f.fd = ^uintptr(0)
	}

	// Process section table.
	f.shnToSection = make([]*elfSection, len(ff.Sections))
	for elfID, elfSect := range ff.Sections {
		if elfSect.Type == elf.SHT_NULL {
			continue
		}

		s := &Section{
			File:  f,
			Name:  elfSect.Name,
			ID:    SectionID(len(f.sections)),
			RawID: elfID,
			Addr:  elfSect.Addr,
			Size:  elfSect.Size,
		}
		if !f.relocatable && elfSect.Flags&elf.SHF_ALLOC != 0 {
			// Allocatable sections in relocatable objects only get
			// meaningful addresses after linking, so we don't treat
			// them as mapped.
			s.SetMapped(true)
		}

		es := &elfSection{Section: s, elf: elfSect}
		f.sections = append(f.sections, es)
		f.shnToSection[elfID] = es
	}

	return true, f, nil
}

func (f *elfFile) Close() {
	// Release mmaps.
	for _, s := range f.sections {
		if s.mmapped != nil {
			mmapped := s.mmapped
			s.data = nil
			s.mmapped = nil
			syscall.Munmap(mmapped)
		}
	}
}

func (f *elfFile) Info() FileInfo {
	return FileInfo{f.arch}
}

func (f *elfFile) Sections() []*Section {
	out := make([]*Section, len(f.sections))
	for i, es := range f.sections {
		out[i] = es.Section
	}
	return out
}

func (f *elfFile) Section(i SectionID) *Section {
	return f.sections[i].Section
}

func (f *elfFile) Syms() []Sym {
	f.symsOnce.Do(func() {
		f.syms = f.elfSyms()
	})
	return f.syms
}

// elfSyms combines the static and dynamic symbol tables into []Sym.
func (f *elfFile) elfSyms() []Sym {
	var out []Sym
	add := func(syms []elf.Symbol, err error) {
		if err != nil {
			// A file with no symbol table still has sections worth
			// dumping, so a missing or bad table is not fatal.
			return
		}
		for _, s := range syms {
			sym := Sym{
				Name:  s.Name,
				Value: s.Value,
				Size:  s.Size,
				Kind:  SymUnknown,
				Local: elf.ST_BIND(s.Info) == elf.STB_LOCAL,
			}
			switch {
			case s.Section == elf.SHN_UNDEF:
				sym.Kind = SymUndef
			case s.Section < elf.SectionIndex(len(f.shnToSection)):
				es := f.shnToSection[s.Section]
				if es == nil {
					break
				}
				sym.Section = es.Section
				if elf.ST_TYPE(s.Info) == elf.STT_SECTION {
					sym.Kind = SymSection
					if sym.Name == "" {
						sym.Name = es.Name
					}
				} else if es.elf.Flags&elf.SHF_EXECINSTR != 0 {
					sym.Kind = SymText
				} else {
					sym.Kind = SymData
				}
			}
			out = append(out, sym)
		}
	}
	add(f.f.Symbols())
	add(f.f.DynamicSymbols())
	return out
}

func (f *elfFile) sectionData(s *Section, addr, size uint64, d *Data) (*Data, error) {
	es := f.sections[s.ID]

	// Validate requested range.
	if addr+size < addr {
		panic("address overflow")
	}
	if addr < es.Addr || addr+size > es.Addr+es.Size {
		panic(fmt.Sprintf("requested data [0x%x, 0x%x) is outside section [0x%x, 0x%x)", addr, addr+size, es.Addr, es.Addr+es.Size))
	}

	bytes, err := f.sectionBytes(es)
	if err != nil {
		return nil, err
	}

	var layout arch.Layout
	if f.arch != nil {
		layout = f.arch.Layout
	}
	*d = Data{Addr: addr, P: bytes[addr-es.Addr:][:size], Layout: layout}
	return d, nil
}

func (f *elfFile) sectionBytes(s *elfSection) (data []byte, err error) {
	s.dataOnce.Do(func() {
		s.data, s.mmapped, s.dataErr = f.sectionBytesUncached(s)
	})
	return s.data, s.dataErr
}

func (f *elfFile) sectionBytesUncached(s *elfSection) (data []byte, mmapped []byte, err error) {
	es := s.elf

	// TODO: Make the mmap path cross-platform.
	if es.Type == elf.SHT_NOBITS {
		// There's no data to read; the section is all zeros in memory.
		return make([]byte, es.Size), nil, nil
	}

	// Memory map the section when possible.
	if f.fd != ^uintptr(0) && es.Flags&elf.SHF_COMPRESSED == 0 && es.Size > 0 {
		start := roundDown2(es.Offset, f.pageSize)
		end := roundUp2(es.Offset+es.Size, f.pageSize)
		data, err = syscall.Mmap(int(f.fd), int64(start), int(end-start), syscall.PROT_READ, syscall.MAP_SHARED|syscall.MAP_FILE)
		if err == nil {
			return data[es.Offset-start:][:es.Size], data, nil
		}
	}

	// Mmapping failed or wasn't possible. Read into the heap.
	data, err = io.ReadAll(es.Open())
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(data)) != es.Size {
		return nil, nil, fmt.Errorf("reading section %s: got %d bytes, want %d", s, len(data), es.Size)
	}
	return data, nil, nil
}

func (f *elfFile) ResolveAddr(addr uint64) *Section {
	if f.relocatable {
		// Relocatable object files don't have any meaningful load
		// addresses (even though sections can be marked allocatable).
		return nil
	}
	for _, es := range f.sections {
		if !es.Mapped() {
			continue
		}
		if es.Addr <= addr && addr-es.Addr < es.Size {
			return es.Section
		}
	}
	return nil
}
