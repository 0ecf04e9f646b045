// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stackmap decodes LLVM stack map sections.
//
// A stack map section (".llvm_stackmaps" in ELF objects) records, for
// each patch point the compiler emitted, where the live values are at
// that instruction: in a register, at a known offset from a register,
// or a constant. Debuggers, garbage collectors, and JIT patchers use
// this to interpret machine state at a patch point.
//
// The decoder is lazy and zero-copy. New takes the raw section bytes
// and the values produced by the iterators borrow from that buffer for
// their entire lifetime; nothing is copied except scalar fields
// extracted during decoding. Record boundaries within a stack map are
// discovered eagerly, because records are variable-length and the
// function table can only be interpreted once the record stream has
// been split into records, but record contents are decoded on demand.
// One consequence is that structural errors in any record of a stack
// map are reported when the stack map itself is decoded, while content
// errors (say, a bad location kind) are reported only when the
// enclosing record is reached.
//
// The traversal mirrors the section structure: a Reader yields
// StackMaps, a StackMap yields Funcs, a Func yields Records, and a
// Record yields Locations and LiveOuts. Each iterator's Next returns
// nil at the end of its sequence, in the manner of debug/dwarf.
// Decoding is a pure function of the section bytes, so independent
// traversals of the same buffer are safe from multiple goroutines, but
// a single iterator must not be shared.
package stackmap

// Version is the only stack map format version this package decodes.
const Version = 3

const (
	headerSize    = 4
	funcEntrySize = 8 * 3
	constantSize  = 8
)

// A Reader iterates over the stack maps in a section. A section usually
// contains a single stack map, but the format allows several to be
// concatenated (for example by linking objects that each carry one).
type Reader struct {
	data []byte
	off  int64
}

// New returns a Reader over the raw contents of a stack map section.
// The Reader and everything decoded from it borrow data; the caller
// must not modify it.
func New(data []byte) *Reader {
	return &Reader{data: data}
}

// Next returns the next stack map in the section, or nil if the section
// has been fully consumed. A nonempty remainder that does not decode as
// a complete stack map is an error, not end of iteration.
func (r *Reader) Next() (*StackMap, error) {
	if len(r.data) == 0 {
		return nil, nil
	}
	b := makeBuf(r.data, r.off)
	sm, err := parseStackMap(&b)
	if err != nil {
		return nil, err
	}
	r.data = b.data
	r.off = b.off
	return sm, nil
}

// A StackMap is one decoded stack map. Its function table and records
// are views into the section buffer and are decoded on demand.
type StackMap struct {
	version      uint8
	numFunctions uint32

	// funcTable holds the raw per-function entries, funcEntrySize
	// each, and funcOff is its section offset.
	funcTable []byte
	funcOff   int64
	// constants is the decoded constant pool.
	constants []uint64
	records   []rawRecord
}

// A rawRecord is the byte range of one record, discovered during the
// eager boundary scan.
type rawRecord struct {
	data []byte
	off  int64
}

// Version returns the stack map format version. It is always Version;
// other versions fail to decode.
func (sm *StackMap) Version() uint8 { return sm.version }

// NumFunctions returns the number of functions in the stack map.
func (sm *StackMap) NumFunctions() int { return int(sm.numFunctions) }

// NumRecords returns the total number of records in the stack map,
// across all functions.
func (sm *StackMap) NumRecords() int { return len(sm.records) }

// Constants returns the stack map's constant pool. Constant-kind
// locations that don't fit the inline encoding refer to this pool by
// index. The caller must not modify the returned slice.
func (sm *StackMap) Constants() []uint64 { return sm.constants }

// Funcs returns an iterator over the stack map's functions.
func (sm *StackMap) Funcs() *FuncIter {
	return &FuncIter{
		b:         makeBuf(sm.funcTable, sm.funcOff),
		remaining: sm.numFunctions,
		records:   sm.records,
		constants: sm.constants,
	}
}

// parseStackMap decodes one complete stack map from b, leaving b
// positioned at the first byte after it. Any failure, including a
// structural error in any record, aborts the decode.
func parseStackMap(b *buf) (*StackMap, error) {
	// Header. The version is checked before the reserved fields are
	// even read, so an unsupported version is reported no matter what
	// follows it.
	verOff := b.off
	version := b.uint8("stack map version")
	if b.err != nil {
		return nil, b.err
	}
	if version != Version {
		return nil, &UnsupportedVersionError{Off: verOff, Version: version}
	}
	resOff := b.off
	res8 := b.uint8("stack map header")
	res16 := b.uint16("stack map header")
	if b.err != nil {
		return nil, b.err
	}
	if res8 != 0 || res16 != 0 {
		return nil, &MalformedHeaderError{Off: resOff}
	}

	numFunctions := b.uint32("function count")
	numConstants := b.uint32("constant count")
	numRecords := b.uint32("record count")

	// The function table is retained raw; its entries are decoded as
	// the FuncIter reaches them.
	funcOff := b.off
	funcTable := b.bytes(int(numFunctions)*funcEntrySize, "function table")

	// The constant pool is decoded eagerly. Each value is read by
	// explicit little-endian decoding rather than by reinterpreting
	// the raw bytes, which would assume both the host byte order and
	// 8-byte alignment of the section data.
	poolBytes := b.bytes(int(numConstants)*constantSize, "constant pool")
	if b.err != nil {
		return nil, b.err
	}
	var constants []uint64
	if numConstants > 0 {
		constants = make([]uint64, numConstants)
		for i := range constants {
			constants[i] = layout.Uint64(poolBytes[i*constantSize:])
		}
	}

	// Scan the record stream. Records are variable-length, so the only
	// way to find each record's extent is to decode it; we keep the
	// raw byte range and drop the decoded fields, deferring content
	// decoding until the record is reached through its function.
	var records []rawRecord
	if numRecords > 0 {
		records = make([]rawRecord, 0, numRecords)
	}
	for i := uint32(0); i < numRecords; i++ {
		start := *b
		if _, err := parseRecord(b, constants); err != nil {
			return nil, err
		}
		n := len(start.data) - len(b.data)
		records = append(records, rawRecord{data: start.data[:n:n], off: start.off})
	}

	return &StackMap{
		version:      version,
		numFunctions: numFunctions,
		funcTable:    funcTable,
		funcOff:      funcOff,
		constants:    constants,
		records:      records,
	}, nil
}
