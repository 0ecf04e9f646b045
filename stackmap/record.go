// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stackmap

// A FuncIter iterates over the functions of a stack map.
//
// The iterator walks the function table and the pre-scanned record
// sequence in lockstep, handing each function the leading sub-sequence
// of records its entry claims. The two must end together: records left
// over when the table is exhausted, or a function claiming more records
// than remain, are a FunctionRecordMismatchError.
type FuncIter struct {
	b         buf
	remaining uint32
	records   []rawRecord
	constants []uint64
}

// Remaining returns the number of functions left to yield, as declared
// by the stack map header. Callers may use it to pre-size a result
// container but must not rely on it if iteration stops early with an
// error.
func (it *FuncIter) Remaining() int { return int(it.remaining) }

// Next returns the next function, or nil at the end of the table.
func (it *FuncIter) Next() (*Func, error) {
	if it.b.empty() {
		if len(it.records) != 0 {
			return nil, &FunctionRecordMismatchError{Off: it.b.off, Extra: len(it.records)}
		}
		return nil, nil
	}

	entryOff := it.b.off
	address := it.b.uint64("function address")
	stackSize := it.b.uint64("function stack size")
	recordCount := it.b.uint64("function record count")
	if it.b.err != nil {
		return nil, it.b.err
	}
	if recordCount > uint64(len(it.records)) {
		return nil, &FunctionRecordMismatchError{
			Off:   entryOff,
			Extra: len(it.records) - int(recordCount),
		}
	}

	// Split the shared record sequence: this function gets the head,
	// later functions the tail.
	head, tail := it.records[:recordCount], it.records[recordCount:]
	it.records = tail
	if it.remaining > 0 {
		it.remaining--
	}
	return &Func{
		Address:   address,
		StackSize: stackSize,
		records:   head,
		constants: it.constants,
	}, nil
}

// A Func is one function in a stack map, with the records for the patch
// points inside it.
type Func struct {
	// Address is the virtual address of the function's entry point.
	Address uint64
	// StackSize is the size of the function's stack frame in bytes.
	StackSize uint64

	records   []rawRecord
	constants []uint64
}

// NumRecords returns the number of records belonging to this function.
func (f *Func) NumRecords() int { return len(f.records) }

// Records returns an iterator over the function's records.
func (f *Func) Records() *RecordIter {
	return &RecordIter{records: f.records, constants: f.constants}
}

// A RecordIter iterates over the records of a function, decoding each
// record's contents from its raw byte range on demand.
type RecordIter struct {
	records   []rawRecord
	constants []uint64
}

// Remaining returns the number of records left to yield.
func (it *RecordIter) Remaining() int { return len(it.records) }

// Next returns the next record, or nil at the end of the sequence.
func (it *RecordIter) Next() (*Record, error) {
	if len(it.records) == 0 {
		return nil, nil
	}
	raw := it.records[0]
	b := makeBuf(raw.data, raw.off)
	rec, err := parseRecord(&b, it.constants)
	if err != nil {
		return nil, err
	}
	// The boundary scan sized this range by decoding it, so a re-decode
	// that doesn't consume it exactly means the decoder itself changed
	// behavior between the two passes.
	if !b.empty() {
		return nil, &DecodeError{Off: b.off, Msg: "record decode did not consume its byte range"}
	}
	it.records = it.records[1:]
	return rec, nil
}

// A Record describes the live values at one patch point.
type Record struct {
	// PatchPointID is the compiler-assigned identifier of the patch
	// point.
	PatchPointID uint64
	// InstructionOffset is the byte offset of the patch point's
	// instruction from the function's entry point.
	InstructionOffset uint32

	numLocations uint16
	numLiveOuts  uint16
	locations    []byte // raw location entries, locationSize each
	locationsOff int64
	liveOuts     []byte // raw live-out entries, liveOutSize each
	liveOutsOff  int64
	constants    []uint64
}

// NumLocations returns the number of location entries in the record.
func (r *Record) NumLocations() int { return int(r.numLocations) }

// NumLiveOuts returns the number of live-out entries in the record.
func (r *Record) NumLiveOuts() int { return int(r.numLiveOuts) }

// Locations returns an iterator over the record's locations.
func (r *Record) Locations() *LocationIter {
	return &LocationIter{
		b:         makeBuf(r.locations, r.locationsOff),
		constants: r.constants,
	}
}

// LiveOuts returns an iterator over the record's live-outs.
func (r *Record) LiveOuts() *LiveOutIter {
	return &LiveOutIter{b: makeBuf(r.liveOuts, r.liveOutsOff)}
}

// padding returns the number of filler bytes after n consumed bytes so
// the next field starts on an align boundary.
func padding(n, align int) int {
	return (align - n%align) % align
}

// parseRecord decodes one record starting at b's cursor, leaving b
// positioned at the first byte after the record's trailing padding. It
// is used both by the boundary scan, which keeps only the consumed
// byte range, and by RecordIter, which keeps the result.
//
// The two reserved u16 fields inside the record are skipped without
// checking that they are zero. This is deliberately asymmetric with
// the header and location decoders, which do validate their reserved
// fields: it matches what LLVM's own stack map consumers accept.
func parseRecord(b *buf, constants []uint64) (*Record, error) {
	start := len(b.data)

	patchPointID := b.uint64("record patch point ID")
	instructionOffset := b.uint32("record instruction offset")
	b.skip(2, "record")
	numLocations := b.uint16("record location count")

	locOff := b.off
	locations := b.bytes(int(numLocations)*locationSize, "location entries")
	b.skip(padding(start-len(b.data), 8), "record padding")

	b.skip(2, "record")
	numLiveOuts := b.uint16("record live-out count")

	liveOff := b.off
	liveOuts := b.bytes(int(numLiveOuts)*liveOutSize, "live-out entries")
	b.skip(padding(start-len(b.data), 8), "record padding")

	if b.err != nil {
		return nil, b.err
	}
	return &Record{
		PatchPointID:      patchPointID,
		InstructionOffset: instructionOffset,
		numLocations:      numLocations,
		numLiveOuts:       numLiveOuts,
		locations:         locations,
		locationsOff:      locOff,
		liveOuts:          liveOuts,
		liveOutsOff:       liveOff,
		constants:         constants,
	}, nil
}
