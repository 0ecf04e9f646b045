// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stackmap

import "fmt"

const (
	locationSize = 12
	liveOutSize  = 4
)

// Location kind tags as they appear in the section. Tag 5 (constant
// pool index) is resolved at decode time, so decoded Locations only
// ever carry the first four kinds.
const (
	tagRegister      = 1
	tagDirect        = 2
	tagIndirect      = 3
	tagConstant      = 4
	tagConstantIndex = 5
)

// A LocationKind says how to interpret a Location.
type LocationKind uint8

const (
	// Register means the value is in the register Reg.
	Register LocationKind = iota + 1
	// Direct means the value is the address Reg + Offset (typically an
	// alloca slot in the frame).
	Direct
	// Indirect means the value is in memory at address Reg + Offset
	// (typically a spill slot).
	Indirect
	// Constant means the value is the constant Constant. Small
	// constants are stored inline in the location entry; larger ones
	// are stored in the stack map's constant pool and resolved when
	// the location is decoded.
	Constant
)

func (k LocationKind) String() string {
	switch k {
	case Register:
		return "Register"
	case Direct:
		return "Direct"
	case Indirect:
		return "Indirect"
	case Constant:
		return "Constant"
	}
	return fmt.Sprintf("LocationKind(%d)", uint8(k))
}

// A Location describes where one live value is at a patch point.
//
// Which fields are meaningful depends on Kind: Reg for Register, Reg
// and Offset for Direct and Indirect, and Constant for Constant. Size
// is meaningful for every kind.
type Location struct {
	Kind LocationKind
	// Reg is the DWARF register number.
	Reg uint16
	// Offset is the signed offset from Reg.
	Offset int32
	// Constant is the constant value, with pool references already
	// resolved.
	Constant uint64
	// Size is the size of the value in bytes.
	Size uint16
}

func (l Location) String() string {
	switch l.Kind {
	case Register:
		return fmt.Sprintf("Register R#%d", l.Reg)
	case Direct:
		return fmt.Sprintf("Direct R#%d + %d", l.Reg, l.Offset)
	case Indirect:
		return fmt.Sprintf("Indirect [R#%d + %d]", l.Reg, l.Offset)
	case Constant:
		return fmt.Sprintf("Constant %d", l.Constant)
	}
	return fmt.Sprintf("Location(%d)", uint8(l.Kind))
}

// A LocationIter iterates over the locations of a record.
type LocationIter struct {
	b         buf
	constants []uint64
}

// Remaining returns the number of locations left to yield.
func (it *LocationIter) Remaining() int { return len(it.b.data) / locationSize }

// Next returns the next location. At the end of the sequence it
// returns nil.
func (it *LocationIter) Next() (*Location, error) {
	if it.b.empty() {
		return nil, nil
	}
	loc, err := parseLocation(&it.b, it.constants)
	if err != nil {
		return nil, err
	}
	return loc, nil
}

// parseLocation decodes one fixed-size location entry.
func parseLocation(b *buf, constants []uint64) (*Location, error) {
	tagOff := b.off
	tag := b.uint8("location kind")
	res8Off := b.off
	res8 := b.uint8("location")
	size := b.uint16("location size")
	reg := b.uint16("location register")
	res16Off := b.off
	res16 := b.uint16("location")
	offsetOrIndex := b.int32("location offset")
	if b.err != nil {
		return nil, b.err
	}
	if res8 != 0 {
		return nil, &MalformedReservedError{Off: res8Off}
	}
	if res16 != 0 {
		return nil, &MalformedReservedError{Off: res16Off}
	}

	loc := &Location{Reg: reg, Size: size}
	switch tag {
	case tagRegister:
		loc.Kind = Register
	case tagDirect:
		loc.Kind = Direct
		loc.Offset = offsetOrIndex
	case tagIndirect:
		loc.Kind = Indirect
		loc.Offset = offsetOrIndex
	case tagConstant:
		loc.Kind = Constant
		loc.Constant = uint64(uint32(offsetOrIndex))
	case tagConstantIndex:
		if offsetOrIndex < 0 || int(offsetOrIndex) >= len(constants) {
			return nil, &InvalidConstantIndexError{
				Off:          tagOff,
				Index:        offsetOrIndex,
				NumConstants: len(constants),
			}
		}
		loc.Kind = Constant
		loc.Constant = constants[offsetOrIndex]
	default:
		return nil, &InvalidLocationKindError{Off: tagOff, Tag: tag}
	}
	return loc, nil
}

// A LiveOut names a register that still holds a live value immediately
// after a patch point.
type LiveOut struct {
	// Reg is the DWARF register number.
	Reg uint16
	// Size is the number of bytes of Reg that are live.
	Size uint8
}

func (l LiveOut) String() string {
	return fmt.Sprintf("R#%d (%d bytes)", l.Reg, l.Size)
}

// A LiveOutIter iterates over the live-outs of a record.
type LiveOutIter struct {
	b buf
}

// Remaining returns the number of live-outs left to yield.
func (it *LiveOutIter) Remaining() int { return len(it.b.data) / liveOutSize }

// Next returns the next live-out. At the end of the sequence it
// returns nil.
func (it *LiveOutIter) Next() (*LiveOut, error) {
	if it.b.empty() {
		return nil, nil
	}
	reg := it.b.uint16("live-out register")
	// The live-out reserved byte is not validated, like the record's
	// reserved fields and unlike the header's and locations'.
	it.b.skip(1, "live-out")
	size := it.b.uint8("live-out size")
	if it.b.err != nil {
		return nil, it.b.err
	}
	return &LiveOut{Reg: reg, Size: size}, nil
}
