package theme

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var defaultPresetsYAML []byte

// ErrUnknownVariable is returned for overrides naming a variable the preset
// does not declare.
var ErrUnknownVariable = errors.New("unknown theme variable")

// ErrUnknownPreset is returned when a preset name is not loaded.
var ErrUnknownPreset = errors.New("unknown theme preset")

// Variable is one CSS custom property. Colour variables carry Hex and the
// derived HSL; anything else (radius) carries Value.
type Variable struct {
	Name  string `yaml:"name" json:"name"`
	Hex   string `yaml:"hex,omitempty" json:"hex,omitempty"`
	HSL   string `yaml:"hsl,omitempty" json:"hsl,omitempty"`
	Value string `yaml:"value,omitempty" json:"value,omitempty"`
}

// IsColor reports whether the variable is a colour.
func (v Variable) IsColor() bool { return v.Hex != "" }

// CSSValue is the right-hand side of the declaration.
func (v Variable) CSSValue() string {
	if v.IsColor() {
		return v.HSL
	}
	return v.Value
}

// Preset is a named pair of light and dark variable lists. List order is
// the declaration order in generated CSS.
type Preset struct {
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Light       []Variable `yaml:"light" json:"light"`
	Dark        []Variable `yaml:"dark" json:"dark"`
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// ParsePresets decodes a presets document and fills in missing HSL values.
func ParsePresets(data []byte) ([]Preset, error) {
	var doc presetFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing presets: %w", err)
	}
	if len(doc.Presets) == 0 {
		return nil, errors.New("parsing presets: no presets defined")
	}

	seen := make(map[string]bool)
	for i := range doc.Presets {
		p := &doc.Presets[i]
		if p.Name == "" {
			return nil, fmt.Errorf("parsing presets: preset %d has no name", i)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("parsing presets: duplicate preset %q", p.Name)
		}
		seen[p.Name] = true
		for _, vars := range [][]Variable{p.Light, p.Dark} {
			if err := completeVariables(vars); err != nil {
				return nil, fmt.Errorf("preset %s: %w", p.Name, err)
			}
		}
	}
	return doc.Presets, nil
}

func completeVariables(vars []Variable) error {
	for i := range vars {
		v := &vars[i]
		if v.Name == "" {
			return errors.New("variable without a name")
		}
		if !v.IsColor() {
			continue
		}
		hex, err := NormalizeHex(v.Hex)
		if err != nil {
			return fmt.Errorf("%s: %w", v.Name, err)
		}
		v.Hex = hex
		if v.HSL == "" {
			if v.HSL, err = HexToHSL(hex); err != nil {
				return fmt.Errorf("%s: %w", v.Name, err)
			}
		}
	}
	return nil
}

// DefaultPresets returns the built-in presets.
func DefaultPresets() []Preset {
	presets, err := ParsePresets(defaultPresetsYAML)
	if err != nil {
		panic(fmt.Sprintf("theme: built-in presets are invalid: %v", err))
	}
	return presets
}

// Set holds the active presets; it is safe for concurrent use and can be
// reloaded from a file at runtime.
type Set struct {
	mu      sync.RWMutex
	presets []Preset
	path    string
}

// NewSet returns a set holding the built-in presets.
func NewSet() *Set {
	return &Set{presets: DefaultPresets()}
}

// LoadSet reads presets from path. An empty path yields the built-in set.
func LoadSet(path string) (*Set, error) {
	s := NewSet()
	if path == "" {
		return s, nil
	}
	s.path = path
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the presets file backing the set, if any.
func (s *Set) Path() string {
	return s.path
}

// Reload re-reads the presets file. On error the current presets stay.
func (s *Set) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading presets: %w", err)
	}
	presets, err := ParsePresets(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.presets = presets
	s.mu.Unlock()
	return nil
}

// All returns a copy of every preset.
func (s *Set) All() []Preset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Preset, len(s.presets))
	for i, p := range s.presets {
		out[i] = p.clone()
	}
	return out
}

// Get returns a copy of the named preset; an empty name selects the first.
func (s *Set) Get(name string) (Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if name == "" && len(s.presets) > 0 {
		return s.presets[0].clone(), nil
	}
	for _, p := range s.presets {
		if strings.EqualFold(p.Name, name) {
			return p.clone(), nil
		}
	}
	return Preset{}, fmt.Errorf("%w: %s", ErrUnknownPreset, name)
}

func (p Preset) clone() Preset {
	p.Light = append([]Variable(nil), p.Light...)
	p.Dark = append([]Variable(nil), p.Dark...)
	return p
}
