// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stackmap

import "fmt"

// A DecodeError reports a structural problem in a stack map section,
// such as a field that extends past the end of the section. Off is the
// byte offset of the problem, relative to the beginning of the section
// data passed to New.
type DecodeError struct {
	Off int64
	Msg string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("offset %#x: %s", e.Off, e.Msg)
}

// An UnsupportedVersionError reports a stack map whose version tag is
// not the supported version (3).
type UnsupportedVersionError struct {
	Off     int64
	Version uint8
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("offset %#x: unsupported stack map version %d (only version %d is supported)", e.Off, e.Version, Version)
}

// A MalformedHeaderError reports a nonzero reserved field in a stack
// map header.
type MalformedHeaderError struct {
	Off int64
}

func (e *MalformedHeaderError) Error() string {
	return fmt.Sprintf("offset %#x: reserved header field is not zero", e.Off)
}

// A MalformedReservedError reports a nonzero reserved field in a
// location entry.
type MalformedReservedError struct {
	Off int64
}

func (e *MalformedReservedError) Error() string {
	return fmt.Sprintf("offset %#x: reserved location field is not zero", e.Off)
}

// A FunctionRecordMismatchError reports that the record counts declared
// by the function table do not exactly partition the stack map's record
// stream. Extra is the number of records left over after the function
// table was exhausted, or negative if a function claimed more records
// than remained.
type FunctionRecordMismatchError struct {
	Off   int64
	Extra int
}

func (e *FunctionRecordMismatchError) Error() string {
	if e.Extra < 0 {
		return fmt.Sprintf("offset %#x: function claims %d more records than the stack map contains", e.Off, -e.Extra)
	}
	return fmt.Sprintf("offset %#x: %d records not claimed by any function", e.Off, e.Extra)
}

// An InvalidConstantIndexError reports a constant-kind location whose
// constant pool index is out of range.
type InvalidConstantIndexError struct {
	Off          int64
	Index        int32
	NumConstants int
}

func (e *InvalidConstantIndexError) Error() string {
	return fmt.Sprintf("offset %#x: constant pool index %d out of range [0, %d)", e.Off, e.Index, e.NumConstants)
}

// An InvalidLocationKindError reports a location entry with an
// unrecognized kind tag.
type InvalidLocationKindError struct {
	Off int64
	Tag uint8
}

func (e *InvalidLocationKindError) Error() string {
	return fmt.Sprintf("offset %#x: invalid location kind %d", e.Off, e.Tag)
}
