package assembly

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TimingBeforeClosingArguments is the only FinalInstructionsTiming value that
// emits the final pre-argument instruction.
const TimingBeforeClosingArguments = "before_closing_arguments"

type Role struct {
	Name   string `json:"name" yaml:"name"`
	Gender string `json:"gender" yaml:"gender"`
}

type Roles struct {
	Judge         Role `json:"judge" yaml:"judge"`
	Clerk         Role `json:"clerk" yaml:"clerk"`
	Bailiff       Role `json:"bailiff" yaml:"bailiff"`
	CourtReporter Role `json:"court_reporter" yaml:"court_reporter"`
}

// Config carries the case-specific values read during assembly. It is never
// modified by the engine.
type Config struct {
	Plaintiffs              []string          `json:"plaintiffs" yaml:"plaintiffs"`
	Defendants              []string          `json:"defendants" yaml:"defendants"`
	Roles                   Roles             `json:"roles" yaml:"roles"`
	IncludeOath             bool              `json:"include_oath" yaml:"include_oath"`
	ExpertWitnesses         bool              `json:"expert_witnesses" yaml:"expert_witnesses"`
	InterpreterNeeded       bool              `json:"interpreter_needed" yaml:"interpreter_needed"`
	FinalInstructionsTiming string            `json:"final_instructions_timing" yaml:"final_instructions_timing"`
	Extra                   map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// ParseConfig reads a case config from YAML or JSON.
func ParseConfig(b []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("parse case config: %w", err)
	}
	return c, nil
}

func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read case config: %w", err)
	}
	return ParseConfig(b)
}

type Pronouns struct {
	Subject    string
	Object     string
	Possessive string
}

func (p Pronouns) String() string {
	return p.Subject + "/" + p.Object + "/" + p.Possessive
}

// PronounsFor maps a gender tag to pronoun forms. Anything other than male or
// female gets the neutral set.
func PronounsFor(gender string) Pronouns {
	switch strings.ToLower(strings.TrimSpace(gender)) {
	case "male", "m", "man":
		return Pronouns{"he", "him", "his"}
	case "female", "f", "woman":
		return Pronouns{"she", "her", "her"}
	default:
		return Pronouns{"they", "them", "their"}
	}
}
