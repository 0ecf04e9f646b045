// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arch provides basic descriptions of CPU architectures.
package arch

// An Arch describes a CPU architecture.
type Arch struct {
	// Layout is the byte order of this architecture.
	Layout Layout

	// GoArch is the GOARCH value for this architecture.
	GoArch string
}

var (
	AMD64 = &Arch{Layout{0}, "amd64"}
	I386  = &Arch{Layout{0}, "386"}
	ARM64 = &Arch{Layout{0}, "arm64"}
)

// String returns the GOARCH value of a.
func (a *Arch) String() string {
	if a == nil {
		return "<nil>"
	}
	return a.GoArch
}
