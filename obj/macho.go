// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"debug/macho"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/aclements/go-stackmap/arch"
)

type machoFile struct {
	f        *macho.File
	arch     *arch.Arch
	sections []*machoSection
	symbols  []Sym
}

type machoSection struct {
	*Section

	macho *macho.Section

	dataOnce sync.Once
	data     []byte
	dataErr  error
}

func (s *machoSection) String() string {
	return fmt.Sprintf("%s [%d]", s.Name, s.RawID)
}

var machoArches = map[macho.Cpu]*arch.Arch{
	macho.CpuAmd64: arch.AMD64,
	macho.Cpu386:   arch.I386,
	macho.CpuArm64: arch.ARM64,
}

func openMachO(r io.ReaderAt) (bool, File, error) {
	// Is this a 64-bit Mach-O file? Magic is 0xFEEDFACF (LE).
	var magic [4]uint8
	if _, err := r.ReadAt(magic[0:], 0); err != nil {
		return false, nil, err // file too short
	}
	if magic[3] != '\xFE' || magic[2] != '\xED' || magic[1] != '\xFA' || magic[0] != '\xCF' {
		return false, nil, nil // not Mach-O
	}

	// All errors after this point should return (true, _, err).

	ff, err := macho.NewFile(r)
	if err != nil {
		return true, nil, err
	}
	f := &machoFile{f: ff, arch: machoArches[ff.Cpu]}

	// Read section table.
	for rawID, machoSect := range ff.Sections {
		s := &Section{
			File:  f,
			Name:  machoSect.Name,
			ID:    SectionID(len(f.sections)), // 0-based
			RawID: rawID,                      // 0-based
			Addr:  machoSect.Addr,
			Size:  machoSect.Size,
		}
		s.SetMapped(true)

		ms := &machoSection{Section: s, macho: machoSect}
		f.sections = append(f.sections, ms)
	}

	// Read symbol table. Mach-O symbols don't carry sizes, so each
	// symbol gets the distance to the next symbol address.
	if ff.Symtab != nil {
		const stabTypeMask = 0xE0

		var addrs []uint64
		for _, s := range ff.Symtab.Syms {
			if s.Type&stabTypeMask != 0 {
				continue // Skip stab debug info.
			}
			addrs = append(addrs, s.Value)
		}
		sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

		for _, s := range ff.Symtab.Syms {
			if s.Type&stabTypeMask != 0 {
				continue
			}

			sym := Sym{Name: s.Name, Value: s.Value, Kind: SymUnknown}
			i := sort.Search(len(addrs), func(x int) bool { return addrs[x] > s.Value })
			if i < len(addrs) {
				sym.Size = addrs[i] - s.Value
			}

			if s.Sect == 0 {
				sym.Kind = SymUndef
			} else if int(s.Sect) <= len(f.sections) {
				sect := ff.Sections[s.Sect-1]
				sym.Section = f.sections[s.Sect-1].Section
				switch sect.Seg {
				case "__TEXT":
					sym.Kind = SymText
				case "__DATA", "__DATA_CONST":
					sym.Kind = SymData
				}
			}
			f.symbols = append(f.symbols, sym)
		}
	}

	return true, f, nil
}

func (f *machoFile) Close() {}

func (f *machoFile) Info() FileInfo {
	return FileInfo{Arch: f.arch}
}

func (f *machoFile) Sections() []*Section {
	out := make([]*Section, len(f.sections))
	for i, ms := range f.sections {
		out[i] = ms.Section
	}
	return out
}

func (f *machoFile) Section(i SectionID) *Section {
	return f.sections[i].Section
}

func (f *machoFile) Syms() []Sym {
	return f.symbols
}

func (f *machoFile) sectionData(s *Section, addr, size uint64, d *Data) (*Data, error) {
	ms := f.sections[s.ID]

	// Validate requested range.
	if addr+size < addr {
		panic("address overflow")
	}
	if addr < ms.Addr || addr+size > ms.Addr+ms.Size {
		panic(fmt.Sprintf("requested data [0x%x, 0x%x) is outside section [0x%x, 0x%x)", addr, addr+size, ms.Addr, ms.Addr+ms.Size))
	}

	bytes, err := f.sectionBytes(ms)
	if err != nil {
		return nil, err
	}

	var layout arch.Layout
	if f.arch != nil {
		layout = f.arch.Layout
	}
	*d = Data{Addr: addr, P: bytes[addr-ms.Addr:][:size], Layout: layout}
	return d, nil
}

func (f *machoFile) sectionBytes(s *machoSection) (data []byte, err error) {
	s.dataOnce.Do(func() {
		// TODO: do the same mmap optimizations as ELF.
		s.data, s.dataErr = io.ReadAll(s.macho.Open())
		if s.dataErr == nil && uint64(len(s.data)) != s.macho.Size {
			s.data, s.dataErr = nil, fmt.Errorf("reading section %s: got %d bytes, want %d", s, len(s.data), s.macho.Size)
		}
	})
	return s.data, s.dataErr
}

func (f *machoFile) ResolveAddr(addr uint64) *Section {
	for _, ms := range f.sections {
		if ms.Addr <= addr && addr-ms.Addr < ms.Size {
			return ms.Section
		}
	}
	return nil
}
