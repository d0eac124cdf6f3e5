package emu

import (
	"bytes"
	"fmt"
	"math/rand/v2"
)

// SoakResult sums up a successful soak run.
type SoakResult struct {
	Seed     uint64
	SavedAt  int64 // cycle of the snapshot
	Compared int64 // cycles compared after the restore
	Reads    int
}

// Soak checks that a snapshot restores a machine exactly. It runs random
// traffic on a machine, snapshots it at a random cycle, restores the snapshot
// in a fresh machine, then replays the same traffic on both and compares
// every read and the interrupt lines for at least the given number of cycles.
func Soak(cfg Config, seed uint64, cycles int64) (SoakResult, error) {
	res := SoakResult{Seed: seed}
	rng := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))

	orig := NewMachine(cfg)
	for _, a := range RandomTraffic(rng, 1000+rng.Int64N(20000)) {
		orig.Apply(a)
	}

	var buf bytes.Buffer
	if err := orig.SaveState(&buf); err != nil {
		return res, fmt.Errorf("seed %d: save: %w", seed, err)
	}
	res.SavedAt = orig.Now()

	restored := NewMachine(cfg)
	if err := restored.LoadState(&buf); err != nil {
		return res, fmt.Errorf("seed %d: load: %w", seed, err)
	}

	for i, a := range RandomTraffic(rng, cycles) {
		vo, read := orig.Apply(a)
		vr, _ := restored.Apply(a)
		if read {
			res.Reads++
			if vo != vr {
				return res, fmt.Errorf("seed %d: access %d at cycle %d: read $%04X = $%02X, restored machine read $%02X",
					seed, i, orig.Now(), a.Addr, vo, vr)
			}
		}
		if err := compareLines(orig, restored); err != nil {
			return res, fmt.Errorf("seed %d: access %d at cycle %d: %w", seed, i, orig.Now(), err)
		}
	}
	res.Compared = orig.Now() - res.SavedAt
	return res, nil
}

func compareLines(orig, restored *Machine) error {
	irqo, clko := orig.IRQ()
	irqr, clkr := restored.IRQ()
	if irqo != irqr || clko != clkr {
		return fmt.Errorf("IRQ %t@%d, restored machine %t@%d", irqo, clko, irqr, clkr)
	}
	nmio, clko := orig.NMI()
	nmir, clkr := restored.NMI()
	if nmio != nmir || clko != clkr {
		return fmt.Errorf("NMI %t@%d, restored machine %t@%d", nmio, clko, nmir, clkr)
	}
	return nil
}
