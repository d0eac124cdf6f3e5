package main

import (
	"io"
	"os"

	"ciacore/emu"
	"ciacore/emu/log"
)

// traceMain runs a trace script on a fresh machine, or on the machine
// restored from args.Load, and optionally saves the resulting state.
func traceMain(args Trace, cfg emu.Config) error {
	f, err := os.Open(args.Script)
	if err != nil {
		return err
	}
	script, err := emu.LoadScript(f)
	f.Close()
	if err != nil {
		return err
	}

	m := emu.NewMachine(cfg)
	log.AddContext(m)
	defer log.RemoveContext(m)

	if args.Load != "" {
		if err := loadMachine(m, args.Load); err != nil {
			return err
		}
	}

	var out io.Writer = os.Stdout
	if args.Out != nil {
		defer args.Out.Close()
		out = args.Out
	}
	if err := m.RunScript(script, out); err != nil {
		return err
	}

	if args.Save != "" {
		return saveMachine(m, args.Save)
	}
	return nil
}

func loadMachine(m *emu.Machine, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return m.LoadState(f)
}

func saveMachine(m *emu.Machine, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.SaveState(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
