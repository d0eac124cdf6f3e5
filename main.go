package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"ciacore/emu"
)

func main() {
	cli := parseArgs(os.Args[1:])

	switch cli.mode {
	case versionMode:
		printVersion()
		return
	}

	path := cli.Config
	if path == "" {
		path = emu.DefaultConfigPath()
	}
	cfg := emu.LoadConfigOrDefault(path)

	switch cli.mode {
	case soakMode:
		checkf(soakMain(cli.Soak, cfg, os.Stdout), "soak failed")
	case traceMode:
		checkf(traceMain(cli.Trace, cfg), "trace failed")
	}
}

func printVersion() {
	version := "(devel)"
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" {
		version = bi.Main.Version
	}
	fmt.Println("ciacore", version)
}
