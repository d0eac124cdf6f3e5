package log

import (
	"bytes"
	"strings"
	"testing"

	"gopkg.in/Sirupsen/logrus.v0"
)

type clkContext struct{ clk int64 }

func (c *clkContext) AddLogContext(e *EntryZ) { e.Int64("clk", c.clk) }

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	std := logrus.StandardLogger()
	prev := std.Out
	std.Out = &buf
	t.Cleanup(func() { std.Out = prev })
	return &buf
}

func TestDisabledModuleReturnsNil(t *testing.T) {
	DisableDebugModules(ModuleMaskAll)

	if e := ModTimer.DebugZ("hidden"); e != nil {
		t.Fatalf("DebugZ on disabled module = %v, want nil", e)
	}
	// Field methods on a nil entry must not panic.
	ModTimer.DebugZ("hidden").Hex8("cr", 0x11).Int64("clk", 3).End()
}

func TestEntryZFieldsAndContext(t *testing.T) {
	buf := captureOutput(t)
	EnableDebugModules(ModIRQ.Mask())
	t.Cleanup(func() { DisableDebugModules(ModuleMaskAll) })

	ctx := &clkContext{clk: 1234}
	AddContext(ctx)
	t.Cleanup(func() { RemoveContext(ctx) })

	ModIRQ.DebugZ("raise").Hex8("flags", 0x81).Bool("line", true).End()

	out := buf.String()
	for _, want := range []string{"raise", "flags=81", "line=true", "clk=1234", "_mod=irq"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q does not contain %q", out, want)
		}
	}
}

func TestModuleByName(t *testing.T) {
	for _, name := range ModuleNames() {
		mod, ok := ModuleByName(name)
		if !ok {
			t.Fatalf("ModuleByName(%q) not found", name)
		}
		if mod.String() != name {
			t.Errorf("Module(%d).String() = %q, want %q", mod, mod.String(), name)
		}
	}
	if _, ok := ModuleByName("ppu"); ok {
		t.Errorf("ModuleByName(ppu) found, want not found")
	}
}
