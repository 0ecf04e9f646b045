// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symtab implements symbol lookup by name and address.
package symtab

import (
	"sort"

	"github.com/aclements/go-stackmap/obj"
)

// Table facilitates fast symbol lookup by name and address.
type Table struct {
	// syms is the original syms slice, by SymID.
	syms []obj.Sym

	// addr contains the starting addresses of symbols in mapped
	// sections, ordered by address. Lookup checks the symbol's size,
	// so the gaps between symbols don't need to be represented.
	addr []symAddr

	// name indexes non-local symbols by name.
	name map[string]obj.SymID
}

type symAddr struct {
	addr uint64
	id   obj.SymID
}

// NewTable creates a new table for syms. syms must be indexed by
// obj.SymID.
func NewTable(syms []obj.Sym) *Table {
	name := make(map[string]obj.SymID)
	var addr []symAddr
	for i, s := range syms {
		if !s.Local && s.Name != "" {
			name[s.Name] = obj.SymID(i)
		}
		// Zero-sized symbols can't be the result of an address lookup,
		// and section symbols would shadow every symbol inside them.
		if s.Section != nil && s.Section.Mapped() && s.Size != 0 && s.Kind != obj.SymSection {
			addr = append(addr, symAddr{s.Value, obj.SymID(i)})
		}
	}
	sort.Slice(addr, func(i, j int) bool {
		if addr[i].addr != addr[j].addr {
			return addr[i].addr < addr[j].addr
		}
		// Break address ties toward the smaller symbol so the most
		// specific one wins.
		return syms[addr[i].id].Size > syms[addr[j].id].Size
	})
	return &Table{syms, addr, name}
}

// Sym returns the symbol with the given ID. If id is out of range, it
// panics.
func (t *Table) Sym(id obj.SymID) obj.Sym {
	return t.syms[id]
}

// Addr returns the ID of the symbol containing the given mapped
// address, or NoSym if no symbol contains it.
//
// Only the symbol starting closest to addr is considered, so a symbol
// strictly nested inside another shadows the outer one for the
// addresses it covers.
func (t *Table) Addr(addr uint64) obj.SymID {
	i := sort.Search(len(t.addr), func(i int) bool { return t.addr[i].addr > addr })
	if i == 0 {
		return obj.NoSym
	}
	s := &t.syms[t.addr[i-1].id]
	if addr-s.Value < s.Size {
		return t.addr[i-1].id
	}
	return obj.NoSym
}

// Name returns the ID of the non-local symbol with the given name, or
// NoSym if there is none.
func (t *Table) Name(name string) obj.SymID {
	if id, ok := t.name[name]; ok {
		return id
	}
	return obj.NoSym
}
