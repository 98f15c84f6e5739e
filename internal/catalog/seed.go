package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the YAML document used to load the catalog into the store.
type Seed struct {
	Claims    []ReferenceClaim      `yaml:"claims"`
	Templates []InstructionTemplate `yaml:"templates"`
}

func ParseSeed(b []byte) (Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Seed{}, fmt.Errorf("parse catalog seed: %w", err)
	}
	return s, nil
}

func LoadSeed(path string) (Seed, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read catalog seed: %w", err)
	}
	return ParseSeed(b)
}

// Snapshot builds a snapshot directly from the seed.
func (s Seed) Snapshot() (*Snapshot, error) {
	return NewSnapshot(s.Claims, s.Templates)
}
