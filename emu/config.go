package emu

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"ciacore/emu/log"
	"ciacore/hw/cia"
	"ciacore/hw/hwdefs"
)

type Config struct {
	Machine   MachineConfig   `toml:"machine"`
	Emulation EmulationConfig `toml:"emulation"`
}

type MachineConfig struct {
	Standard  string `toml:"standard"` // pal | ntsc
	CIA1Model string `toml:"cia1_model"`
	CIA2Model string `toml:"cia2_model"`
}

type EmulationConfig struct {
	StoreOffset int64 `toml:"store_offset"`
	IdleHorizon int64 `toml:"idle_horizon"`
	TODJitter   bool  `toml:"tod_jitter"`
}

// DefaultConfig is a PAL machine with two original 6526.
func DefaultConfig() Config {
	return Config{
		Machine: MachineConfig{
			Standard:  "pal",
			CIA1Model: "6526",
			CIA2Model: "6526",
		},
		Emulation: EmulationConfig{
			StoreOffset: 1,
			IdleHorizon: cia.DefaultIdleHorizon,
			TODJitter:   true,
		},
	}
}

// Check replaces invalid values with their defaults.
func (cfg *Config) Check() {
	def := DefaultConfig()

	switch strings.ToLower(cfg.Machine.Standard) {
	case "pal", "ntsc":
		cfg.Machine.Standard = strings.ToLower(cfg.Machine.Standard)
	default:
		log.ModEmu.Warnf("Invalid video standard %q, fallback to %q", cfg.Machine.Standard, def.Machine.Standard)
		cfg.Machine.Standard = def.Machine.Standard
	}
	for _, model := range []*string{&cfg.Machine.CIA1Model, &cfg.Machine.CIA2Model} {
		if _, err := cia.ParseRevision(*model); err != nil {
			log.ModEmu.Warnf("Invalid CIA model %q, fallback to %q", *model, def.Machine.CIA1Model)
			*model = def.Machine.CIA1Model
		}
	}
	if cfg.Emulation.StoreOffset < 0 {
		log.ModEmu.Warnf("Invalid store offset %d, fallback to %d", cfg.Emulation.StoreOffset, def.Emulation.StoreOffset)
		cfg.Emulation.StoreOffset = def.Emulation.StoreOffset
	}
	if cfg.Emulation.IdleHorizon <= 0 {
		cfg.Emulation.IdleHorizon = def.Emulation.IdleHorizon
	}
}

// Clocks returns the CPU frequency and the TOD pin frequency of the
// configured video standard.
func (cfg *MachineConfig) Clocks() (cpuHz, lineHz int64) {
	if cfg.Standard == "ntsc" {
		return hwdefs.NTSCCPUClock, hwdefs.NTSCLineHz
	}
	return hwdefs.PALCPUClock, hwdefs.PALLineHz
}

// chipConfig builds the configuration of one of the CIAs. The model must have
// been validated by Check.
func (cfg *Config) chipConfig(name, model string) cia.Config {
	rev, err := cia.ParseRevision(model)
	if err != nil {
		panic(err)
	}
	cpuHz, lineHz := cfg.Machine.Clocks()
	return cia.Config{
		Name:        name,
		Revision:    rev,
		CPUClock:    cpuHz,
		LineHz:      lineHz,
		StoreOffset: cfg.Emulation.StoreOffset,
		IdleHorizon: cfg.Emulation.IdleHorizon,
		TODJitter:   cfg.Emulation.TODJitter,
	}
}

// ConfigDir returns the ciacore configuration directory, creating it the first
// time it's called.
var ConfigDir = sync.OnceValue(func() string {
	base, err := os.UserConfigDir()
	if err != nil {
		log.ModEmu.Fatalf("failed to locate the user config directory: %v", err)
	}
	dir := filepath.Join(base, "ciacore")
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.ModEmu.Fatalf("failed to create directory %s: %v", dir, err)
	}
	return dir
})

const cfgFilename = "config.toml"

// DefaultConfigPath is the path of the configuration file in ConfigDir.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), cfgFilename)
}

// LoadConfigOrDefault loads the configuration at path, or provide a default
// one. Missing keys keep their default value.
func LoadConfigOrDefault(path string) Config {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !os.IsNotExist(err) {
			log.ModEmu.Warnf("Invalid config file %s, using defaults: %v", path, err)
		}
		return DefaultConfig()
	}
	cfg.Check()
	return cfg
}

// SaveConfig writes cfg at path.
func SaveConfig(path string, cfg Config) error {
	buf, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, buf, 0644)
}
