// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/aclements/go-stackmap/arch"
)

// elfBuilder assembles a minimal ELF64 executable image in memory.
// Tests use it instead of checked-in binaries so fixtures stay
// self-describing.
type elfBuilder struct {
	sections []elfTestSection
}

type elfTestSection struct {
	name    string
	typ     elf.SectionType
	flags   elf.SectionFlag
	addr    uint64
	data    []byte
	link    uint32
	info    uint32
	entsize uint64
}

func (b *elfBuilder) add(s elfTestSection) int {
	b.sections = append(b.sections, s)
	return len(b.sections) // +1 for the reserved null section
}

func (b *elfBuilder) build() []byte {
	le := binary.LittleEndian

	// Section name table, including its own name.
	shstrtab := []byte{0}
	nameOff := make([]uint32, len(b.sections)+1)
	for i, s := range b.sections {
		nameOff[i] = uint32(len(shstrtab))
		shstrtab = append(shstrtab, s.name...)
		shstrtab = append(shstrtab, 0)
	}
	nameOff[len(b.sections)] = uint32(len(shstrtab))
	shstrtab = append(shstrtab, ".shstrtab"...)
	shstrtab = append(shstrtab, 0)

	const ehsize = 64
	const shentsize = 64
	shnum := len(b.sections) + 2 // + null section + .shstrtab

	// Lay out section data after the ELF header.
	out := make([]byte, ehsize)
	offsets := make([]uint64, len(b.sections)+1)
	for i, s := range b.sections {
		offsets[i] = uint64(len(out))
		out = append(out, s.data...)
	}
	offsets[len(b.sections)] = uint64(len(out))
	out = append(out, shstrtab...)
	for len(out)%8 != 0 {
		out = append(out, 0)
	}
	shoff := uint64(len(out))

	shdr := func(name uint32, typ elf.SectionType, flags elf.SectionFlag, addr, off, size uint64, link, info uint32, entsize uint64) {
		var h [shentsize]byte
		le.PutUint32(h[0:], name)
		le.PutUint32(h[4:], uint32(typ))
		le.PutUint64(h[8:], uint64(flags))
		le.PutUint64(h[16:], addr)
		le.PutUint64(h[24:], off)
		le.PutUint64(h[32:], size)
		le.PutUint32(h[40:], link)
		le.PutUint32(h[44:], info)
		le.PutUint64(h[48:], 1) // addralign
		le.PutUint64(h[56:], entsize)
		out = append(out, h[:]...)
	}
	shdr(0, elf.SHT_NULL, 0, 0, 0, 0, 0, 0, 0)
	for i, s := range b.sections {
		shdr(nameOff[i], s.typ, s.flags, s.addr, offsets[i], uint64(len(s.data)), s.link, s.info, s.entsize)
	}
	shdr(nameOff[len(b.sections)], elf.SHT_STRTAB, 0, 0, offsets[len(b.sections)], uint64(len(shstrtab)), 0, 0, 0)

	// ELF header.
	ehdr := out[:ehsize]
	copy(ehdr, elf.ELFMAG)
	ehdr[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ehdr[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ehdr[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	le.PutUint16(ehdr[16:], uint16(elf.ET_EXEC))
	le.PutUint16(ehdr[18:], uint16(elf.EM_X86_64))
	le.PutUint32(ehdr[20:], uint32(elf.EV_CURRENT))
	le.PutUint64(ehdr[24:], 0x401000) // e_entry
	le.PutUint64(ehdr[40:], shoff)
	le.PutUint16(ehdr[52:], ehsize)
	le.PutUint16(ehdr[58:], shentsize)
	le.PutUint16(ehdr[60:], uint16(shnum))
	le.PutUint16(ehdr[62:], uint16(shnum-1)) // e_shstrndx

	return out
}

// sym64 encodes one ELF64 symbol table entry.
func sym64(name uint32, info uint8, shndx uint16, value, size uint64) []byte {
	var out [24]byte
	le := binary.LittleEndian
	le.PutUint32(out[0:], name)
	out[4] = info
	le.PutUint16(out[6:], shndx)
	le.PutUint64(out[8:], value)
	le.PutUint64(out[16:], size)
	return out[:]
}

var testStackMapData = []byte{
	3, 0, 0, 0, // version 3
	0, 0, 0, 0, // no functions
	0, 0, 0, 0, // no constants
	0, 0, 0, 0, // no records
}

// buildTestElf returns an ELF image with a .text section, a stack map
// section with the given name, and a symbol table defining main.
func buildTestElf(stackMapName string) []byte {
	text := bytes.Repeat([]byte{0xc3}, 16)
	strtab := []byte("\x00main\x00")
	symtab := append(
		sym64(0, 0, 0, 0, 0),
		sym64(1, byte(elf.STB_GLOBAL)<<4|byte(elf.STT_FUNC), 1, 0x401000, 16)...)

	var b elfBuilder
	b.add(elfTestSection{
		name:  ".text",
		typ:   elf.SHT_PROGBITS,
		flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR,
		addr:  0x401000,
		data:  text,
	})
	b.add(elfTestSection{
		name:  stackMapName,
		typ:   elf.SHT_PROGBITS,
		flags: elf.SHF_ALLOC,
		addr:  0x402000,
		data:  testStackMapData,
	})
	symtabShn := b.add(elfTestSection{
		name:    ".symtab",
		typ:     elf.SHT_SYMTAB,
		data:    symtab,
		info:    1, // first non-local symbol
		entsize: 24,
	})
	strtabShn := b.add(elfTestSection{
		name: ".strtab",
		typ:  elf.SHT_STRTAB,
		data: strtab,
	})
	b.sections[symtabShn-1].link = uint32(strtabShn)
	return b.build()
}

func TestOpenElf(t *testing.T) {
	f, err := Open(bytes.NewReader(buildTestElf(ElfStackMapSection)))
	if err != nil {
		t.Fatalf("opening test ELF: %v", err)
	}
	defer f.Close()

	if got := f.Info().Arch; got != arch.AMD64 {
		t.Errorf("want arch amd64, got %v", got)
	}

	// The null section is dropped.
	var names []string
	for _, s := range f.Sections() {
		names = append(names, s.Name)
	}
	want := []string{".text", ElfStackMapSection, ".symtab", ".strtab", ".shstrtab"}
	if len(names) != len(want) {
		t.Fatalf("want sections %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("want sections %v, got %v", want, names)
		}
	}

	// Address resolution only hits mapped sections.
	if s := f.ResolveAddr(0x401005); s == nil || s.Name != ".text" {
		t.Errorf("resolving 0x401005: want .text, got %v", s)
	}
	if s := f.ResolveAddr(0x500000); s != nil {
		t.Errorf("resolving 0x500000: want nil, got %v", s)
	}

	// Stack map extraction.
	d, err := StackMapData(f)
	if err != nil {
		t.Fatalf("extracting stack map section: %v", err)
	}
	if !bytes.Equal(d.P, testStackMapData) {
		t.Errorf("stack map data: want %x, got %x", testStackMapData, d.P)
	}
	if d.Addr != 0x402000 {
		t.Errorf("stack map address: want 0x402000, got %#x", d.Addr)
	}

	// Symbols.
	var main *Sym
	for i, s := range f.Syms() {
		if s.Name == "main" {
			main = &f.Syms()[i]
		}
	}
	if main == nil {
		t.Fatal("no main symbol")
	}
	if main.Kind != SymText || main.Value != 0x401000 || main.Size != 16 || main.Local {
		t.Errorf("main symbol: got %+v", *main)
	}
	if main.Section == nil || main.Section.Name != ".text" {
		t.Errorf("main symbol section: got %v", main.Section)
	}
}

func TestOpenElfFromFile(t *testing.T) {
	// Opening from an *os.File takes the mmap path for section data.
	path := filepath.Join(t.TempDir(), "stackmaps.elf")
	if err := os.WriteFile(path, buildTestElf(ElfStackMapSection), 0o666); err != nil {
		t.Fatal(err)
	}
	osf, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer osf.Close()

	f, err := Open(osf)
	if err != nil {
		t.Fatalf("opening test ELF: %v", err)
	}
	defer f.Close()

	d, err := StackMapData(f)
	if err != nil {
		t.Fatalf("extracting stack map section: %v", err)
	}
	if !bytes.Equal(d.P, testStackMapData) {
		t.Errorf("stack map data: want %x, got %x", testStackMapData, d.P)
	}
}

func TestNoStackMaps(t *testing.T) {
	f, err := Open(bytes.NewReader(buildTestElf(".not_stackmaps")))
	if err != nil {
		t.Fatalf("opening test ELF: %v", err)
	}
	defer f.Close()

	if _, err := StackMapData(f); err != ErrNoStackMaps {
		t.Errorf("want ErrNoStackMaps, got %v", err)
	}
}

func TestOpenNotObject(t *testing.T) {
	if _, err := Open(bytes.NewReader([]byte("not an object file"))); err == nil {
		t.Error("want error opening non-object data")
	}
}
