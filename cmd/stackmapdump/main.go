// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Stackmapdump prints the LLVM stack maps recorded in a binary.
//
// For each stack map in the binary's stack map section it prints every
// function, each function's patch point records, and each record's
// locations and live-outs. With -s it labels function addresses with
// symbol names, and with -d it disassembles the instruction at each
// patch point.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aclements/go-stackmap/obj"
	"github.com/aclements/go-stackmap/stackmap"
)

func main() {
	var d dumper
	cmd := &cobra.Command{
		Use:          "stackmapdump [flags] binary",
		Short:        "print the LLVM stack maps recorded in a binary",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if d.verbose {
				log, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				defer log.Sync()
				d.log = log.Sugar()
			} else {
				d.log = zap.NewNop().Sugar()
			}
			return d.dump(args[0])
		},
	}
	cmd.Flags().BoolVarP(&d.symbolize, "syms", "s", true, "label function addresses with symbol names")
	cmd.Flags().BoolVarP(&d.disasm, "disasm", "d", false, "disassemble the instruction at each patch point")
	cmd.Flags().BoolVarP(&d.verbose, "verbose", "v", false, "log debug diagnostics to stderr")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	headStyle = color.New(color.Bold)
	symStyle  = color.New(color.FgGreen)
	asmStyle  = color.New(color.FgCyan)
)

type dumper struct {
	symbolize bool
	disasm    bool
	verbose   bool

	log *zap.SugaredLogger

	file  obj.File
	names *patchNamer
}

func (d *dumper) dump(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	file, err := obj.Open(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer file.Close()
	d.file = file
	d.log.Debugw("opened object", "path", path, "arch", file.Info().Arch)

	data, err := obj.StackMapData(file)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	d.log.Debugw("found stack map section", "bytes", len(data.P))

	if d.symbolize || d.disasm {
		d.names = newPatchNamer(file)
	}

	r := stackmap.New(data.P)
	for i := 0; ; i++ {
		sm, err := r.Next()
		if err != nil {
			return fmt.Errorf("%s: decoding stack maps: %w", path, err)
		}
		if sm == nil {
			if i == 0 {
				fmt.Println("no stack maps")
			}
			return nil
		}
		headStyle.Printf("Stack map #%d: ", i)
		fmt.Printf("version: %d\n", sm.Version())
		if err := d.dumpStackMap(sm); err != nil {
			return fmt.Errorf("%s: decoding stack maps: %w", path, err)
		}
		fmt.Println()
	}
}

func (d *dumper) dumpStackMap(sm *stackmap.StackMap) error {
	d.log.Debugw("decoded stack map",
		"functions", sm.NumFunctions(),
		"constants", len(sm.Constants()),
		"records", sm.NumRecords())
	fmt.Printf("%d functions:\n", sm.NumFunctions())

	funcs := sm.Funcs()
	for {
		fn, err := funcs.Next()
		if err != nil {
			return err
		}
		if fn == nil {
			return nil
		}
		if err := d.dumpFunc(fn); err != nil {
			return err
		}
	}
}

func (d *dumper) dumpFunc(fn *stackmap.Func) error {
	fmt.Printf("  address: %#x", fn.Address)
	if d.symbolize {
		if name, _ := d.names.symName(fn.Address); name != "" {
			fmt.Print(" ")
			symStyle.Printf("(%s)", name)
		}
	}
	fmt.Printf(", stack size: %d\n", fn.StackSize)
	fmt.Printf("  %d records:\n", fn.NumRecords())

	records := fn.Records()
	for {
		rec, err := records.Next()
		if err != nil {
			return err
		}
		if rec == nil {
			return nil
		}
		if err := d.dumpRecord(fn, rec); err != nil {
			return err
		}
	}
}

func (d *dumper) dumpRecord(fn *stackmap.Func, rec *stackmap.Record) error {
	fmt.Printf("    ID: %#x, instruction offset: %#x\n", rec.PatchPointID, rec.InstructionOffset)
	if d.disasm {
		pc := fn.Address + uint64(rec.InstructionOffset)
		if text := d.names.instAt(pc); text != "" {
			fmt.Print("    at: ")
			asmStyle.Println(text)
		}
	}

	fmt.Printf("    %d locations:\n", rec.NumLocations())
	locs := rec.Locations()
	for i := 0; ; i++ {
		loc, err := locs.Next()
		if err != nil {
			return err
		}
		if loc == nil {
			break
		}
		fmt.Printf("      #%d: %s, size: %d\n", i, loc, loc.Size)
	}

	fmt.Printf("    %d live-outs: [ ", rec.NumLiveOuts())
	liveOuts := rec.LiveOuts()
	for {
		lo, err := liveOuts.Next()
		if err != nil {
			return err
		}
		if lo == nil {
			break
		}
		fmt.Printf("%s ", lo)
	}
	fmt.Println("]")
	return nil
}
