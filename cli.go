package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"ciacore/emu/log"
)

type mode byte

const (
	soakMode    mode = iota // Snapshot round trip checker
	traceMode               // Run a trace script
	versionMode             // Show ciacore version
)

type (
	CLI struct {
		Soak    Soak    `cmd:"" help:"Check that snapshots restore machines exactly, on random traffic."`
		Trace   Trace   `cmd:"" help:"Run a TOML script of timed accesses on a machine."`
		Version Version `cmd:"" help:"Show ciacore version."`

		Config string     `name:"config" help:"${config_help}" type:"path"`
		Log    logModMask `help:"${log_help}" placeholder:"mod0,mod1,..."`

		mode mode
	}

	Soak struct {
		Seeds  uint64 `name:"seeds" help:"Number of seeds to run." default:"16"`
		First  uint64 `name:"first" help:"First seed." default:"0"`
		Cycles int64  `name:"cycles" help:"Cycles compared after each restore." default:"100000"`
		Jobs   int    `name:"jobs" help:"${jobs_help}" default:"0"`
	}

	Trace struct {
		Script string   `arg:"" name:"/path/to/script.toml" help:"Trace script." type:"existingfile"`
		Out    *outfile `name:"out" help:"Write the trace to a file." placeholder:"FILE|stdout|stderr"`
		Load   string   `name:"load" help:"Load a machine snapshot before running the script." type:"existingfile"`
		Save   string   `name:"save" help:"Save a machine snapshot after running the script." type:"path"`
	}

	Version struct{}
)

var vars = kong.Vars{
	"config_help": "Configuration file. (default: config.toml in the user config directory)",
	"log_help":    "Enable logging for specified modules.",
	"jobs_help":   "Seeds run in parallel, 0 means one per CPU.",
}

func parseArgs(args []string) CLI {
	var cfg CLI
	parser, err := kong.New(&cfg,
		kong.Name("ciacore"),
		kong.Description("Cycle exact 6526/8521 CIA emulation core."),
		kong.UsageOnError(),
		kong.Help(printHelp),
		vars)
	if err != nil {
		panic(err)
	}

	ctx, err := parser.Parse(args)
	checkf(err, "failed to parse command line")
	checkf(ctx.Error, "failed to parse command line")

	switch ctx.Command() {
	case "soak":
		cfg.mode = soakMode
	case "trace </path/to/script.toml>":
		cfg.mode = traceMode
	case "version":
		cfg.mode = versionMode
	}
	return cfg
}

// printHelp appends the log modules to the default help.
func printHelp(options kong.HelpOptions, ctx *kong.Context) error {
	if err := kong.DefaultHelpPrinter(options, ctx); err != nil {
		return err
	}
	fmt.Fprintf(ctx.Stdout, "\nLog modules (--log, comma-separated, or 'all', 'no'):\n  %s\n",
		strings.Join(log.ModuleNames(), ", "))
	return nil
}

// parseLogModules parses a --log value: comma-separated module names, "all"
// for every module or "no" to silence logging entirely.
func parseLogModules(s string) (mask log.ModuleMask, off bool, err error) {
	for name := range strings.SplitSeq(s, ",") {
		switch name = strings.TrimSpace(name); name {
		case "all":
			mask = log.ModuleMaskAll
		case "no":
			off = true
		default:
			mod, ok := log.ModuleByName(name)
			if !ok {
				return 0, false, fmt.Errorf("unknown log module %q", name)
			}
			mask |= mod.Mask()
		}
	}
	if off && mask != 0 {
		return 0, false, fmt.Errorf("cannot combine 'no' with other log modules")
	}
	return mask, off, nil
}

type logModMask log.ModuleMask

// Decode enables the modules listed on the command line.
//
// Implements kong.MapperValue interface.
func (lm logModMask) Decode(ctx *kong.DecodeContext) error {
	var val string
	if err := ctx.Scan.PopValueInto("log", &val); err != nil {
		return err
	}
	mask, off, err := parseLogModules(val)
	if err != nil {
		return err
	}
	if off {
		log.Disable()
		return nil
	}
	log.EnableDebugModules(mask)
	return nil
}

// outfile is an output destination given as FILE, stdout or stderr.
type outfile struct {
	*os.File
}

// Implements kong.MapperValue interface.
func (f *outfile) Decode(ctx *kong.DecodeContext) error {
	var name string
	if err := ctx.Scan.PopValueInto("file", &name); err != nil {
		return err
	}
	switch name {
	case "stdout":
		f.File = os.Stdout
	case "stderr":
		f.File = os.Stderr
	default:
		fd, err := os.Create(name)
		if err != nil {
			return err
		}
		f.File = fd
	}
	return nil
}

// Close closes the file, unless it's one of the standard outputs.
func (f *outfile) Close() error {
	if f.File == os.Stdout || f.File == os.Stderr {
		return nil
	}
	return f.File.Close()
}

func checkf(err error, format string, args ...any) {
	if err == nil {
		return
	}
	fatalf(format+".\n"+err.Error(), args...)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal error:")
	fmt.Fprintf(os.Stderr, "\n\t%s\n", fmt.Sprintf(format, args...))
	os.Exit(1)
}
