// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"io"

	"golang.org/x/arch/arm64/arm64asm"
)

func disasmARM64(text []byte, pc uint64) Seq {
	var out arm64Seq
	for len(text) >= 4 {
		inst, err := arm64asm.Decode(text)
		if err != nil || inst.Op == 0 {
			inst = arm64asm.Inst{}
		}
		out = append(out, arm64Inst{inst, pc})

		const size = 4
		text = text[size:]
		pc += uint64(size)
	}
	return out
}

type arm64Seq []arm64Inst

func (s arm64Seq) Len() int {
	return len(s)
}

func (s arm64Seq) Get(i int) Inst {
	return &s[i]
}

type arm64Inst struct {
	arm64asm.Inst
	pc uint64
}

func (i *arm64Inst) GoSyntax(symName func(uint64) (string, uint64)) string {
	if i.Op == 0 {
		return "?"
	}

	var text io.ReaderAt = nil // TODO: populate
	return arm64asm.GoSyntax(i.Inst, i.pc, symName, text)
}

func (i *arm64Inst) PC() uint64 {
	return i.pc
}

func (i *arm64Inst) Len() int { return 4 }
