// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import "github.com/aclements/go-stackmap/arch"

// Data represents byte data in an object file.
type Data struct {
	// Addr is the address at which this data starts.
	//
	// If this Data is for a Section, this is the base address of the
	// section.
	Addr uint64

	// P stores the raw byte data. This may alias a read-only file
	// mapping; callers must not modify it.
	P []byte

	// Layout specifies the byte order of this data. This is inferred
	// from the object file's architecture, and hence may not be
	// correct for sections that have a fixed byte order regardless of
	// the host order (the stack map section is one: it is always
	// little-endian).
	Layout arch.Layout
}
