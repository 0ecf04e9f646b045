// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import "errors"

// Section names used for LLVM stack maps.
const (
	// ElfStackMapSection is the stack map section name in ELF objects.
	ElfStackMapSection = ".llvm_stackmaps"
	// MachoStackMapSection is the stack map section name in Mach-O
	// objects.
	MachoStackMapSection = "__llvm_stackmaps"
)

// ErrNoStackMaps indicates an object file has no stack map section.
var ErrNoStackMaps = errors.New("object has no stack map section")

// StackMapSection returns the section of f holding LLVM stack maps, or
// ErrNoStackMaps if there is none.
func StackMapSection(f File) (*Section, error) {
	for _, s := range f.Sections() {
		if s.Name == ElfStackMapSection || s.Name == MachoStackMapSection {
			return s, nil
		}
	}
	return nil, ErrNoStackMaps
}

// StackMapData returns the raw contents of f's stack map section,
// suitable for passing to stackmap.New, or ErrNoStackMaps if f has no
// stack map section.
func StackMapData(f File) (*Data, error) {
	s, err := StackMapSection(f)
	if err != nil {
		return nil, err
	}
	return s.Data(s.Bounds())
}
