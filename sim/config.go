package sim

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds the simulator parameters. Addresses are physical.
type Config struct {
	// Isa is the ISA string, e.g. "rv64imafdcvhsu". The prefix picks
	// the register width; the remaining letters populate MISA.
	Isa string `json:"isa"`

	// MemoryLimit caps the physical address space in bytes.
	MemoryLimit uint64 `json:"memory_limit"`

	// VlenBytes is the vector register width in bytes.
	VlenBytes int `json:"vlen_bytes"`

	// ClintBase is the base address of the core-local interruptor.
	ClintBase uint64 `json:"clint_base"`

	// TohostAddr is the base of the HTIF tohost/fromhost pair.
	TohostAddr uint64 `json:"tohost_addr"`

	// ConsoleBase is the base of the MMIO console device.
	ConsoleBase uint64 `json:"console_base"`

	// MaxInstructions stops the run after this many instructions.
	// Zero means unlimited.
	MaxInstructions uint64 `json:"max_instructions"`

	// IllegalLimit stops the run after this many illegal-instruction
	// exceptions. Zero disables the limit.
	IllegalLimit uint64 `json:"illegal_limit"`

	// DecodeCacheSize is the decode cache slot count (power of two).
	DecodeCacheSize uint64 `json:"decode_cache_size"`

	// CacheSets and CacheWays shape the cache-line trace model.
	CacheSets int `json:"cache_sets"`
	CacheWays int `json:"cache_ways"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Isa:             "rv64imafdcvhsu",
		MemoryLimit:     1 << 32,
		VlenBytes:       16,
		ClintBase:       0x200_0000,
		TohostAddr:      0x8000_1000,
		ConsoleBase:     0x1000_0000,
		DecodeCacheSize: 4096,
		CacheSets:       64,
		CacheWays:       4,
	}
}

// LoadConfig reads a Config from a JSON file. Missing fields keep
// their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
