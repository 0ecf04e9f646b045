// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"github.com/aclements/go-stackmap/asm"
	"github.com/aclements/go-stackmap/obj"
	"github.com/aclements/go-stackmap/symtab"
)

// A patchNamer resolves addresses in an object file to symbol names
// and instructions.
type patchNamer struct {
	file obj.File
	tab  *symtab.Table
}

func newPatchNamer(file obj.File) *patchNamer {
	return &patchNamer{file: file, tab: symtab.NewTable(file.Syms())}
}

// symName returns the name and base address of the symbol containing
// addr, or "" if there is none. It has the signature asm.Inst.GoSyntax
// expects of a symbol lookup.
func (n *patchNamer) symName(addr uint64) (string, uint64) {
	id := n.tab.Addr(addr)
	if id == obj.NoSym {
		return "", 0
	}
	sym := n.tab.Sym(id)
	return sym.Name, sym.Value
}

// instAt disassembles the instruction at pc, or returns "" if pc can't
// be resolved to code. Disassembly starts at the beginning of the
// containing symbol when one is known, since x86 instruction
// boundaries can't be recovered from an interior address.
func (n *patchNamer) instAt(pc uint64) string {
	arch := n.file.Info().Arch
	if arch == nil {
		return ""
	}
	s := n.file.ResolveAddr(pc)
	if s == nil {
		return ""
	}

	start := pc
	if id := n.tab.Addr(pc); id != obj.NoSym {
		if sym := n.tab.Sym(id); sym.Section == s {
			start = sym.Value
		}
	}
	base, size := s.Bounds()
	end := base + size
	// A single x86 instruction is at most 15 bytes; one page from the
	// symbol start is plenty.
	if end > pc+4096 {
		end = pc + 4096
	}
	if start >= end {
		return ""
	}

	data, err := s.Data(start, end-start)
	if err != nil {
		return ""
	}
	seq, err := asm.Disasm(arch, data.P, start)
	if err != nil {
		return ""
	}
	for i := 0; i < seq.Len(); i++ {
		inst := seq.Get(i)
		if inst.PC() == pc {
			return inst.GoSyntax(n.symName)
		}
		if inst.PC() > pc {
			break
		}
	}
	return ""
}
