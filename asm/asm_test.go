// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"strings"
	"testing"

	"github.com/aclements/go-stackmap/arch"
)

func TestDisasmAMD64(t *testing.T) {
	// PUSHQ BP; RET
	seq, err := Disasm(arch.AMD64, []byte{0x55, 0xc3}, 0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if seq.Len() != 2 {
		t.Fatalf("want 2 instructions, got %d", seq.Len())
	}
	checkInst(t, seq.Get(0), 0x1000, 1, "PUSH")
	checkInst(t, seq.Get(1), 0x1001, 1, "RET")
}

func TestDisasmARM64(t *testing.T) {
	// RET
	seq, err := Disasm(arch.ARM64, []byte{0xc0, 0x03, 0x5f, 0xd6}, 0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if seq.Len() != 1 {
		t.Fatalf("want 1 instruction, got %d", seq.Len())
	}
	checkInst(t, seq.Get(0), 0x1000, 4, "RET")
}

func checkInst(t *testing.T, inst Inst, pc uint64, size int, op string) {
	t.Helper()
	if inst.PC() != pc {
		t.Errorf("want PC %#x, got %#x", pc, inst.PC())
	}
	if inst.Len() != size {
		t.Errorf("want %d-byte instruction, got %d", size, inst.Len())
	}
	if text := inst.GoSyntax(nil); !strings.Contains(text, op) {
		t.Errorf("want %s instruction, got %q", op, text)
	}
}

func TestDisasmUnsupported(t *testing.T) {
	unknown := &arch.Arch{GoArch: "mips"}
	if _, err := Disasm(unknown, []byte{0}, 0); err == nil {
		t.Error("want error for unsupported architecture")
	}
}
