package theme

import (
	"fmt"
	"strings"
)

// Overrides replace variable values per mode. Colour variables take a hex
// colour; other variables take the raw CSS value.
type Overrides struct {
	Light map[string]string `json:"light,omitempty"`
	Dark  map[string]string `json:"dark,omitempty"`
}

// Apply returns a copy of p with the overrides applied.
func (o Overrides) Apply(p Preset) (Preset, error) {
	p = p.clone()
	if err := applyMode(p.Light, o.Light); err != nil {
		return Preset{}, fmt.Errorf("light: %w", err)
	}
	if err := applyMode(p.Dark, o.Dark); err != nil {
		return Preset{}, fmt.Errorf("dark: %w", err)
	}
	return p, nil
}

func applyMode(vars []Variable, values map[string]string) error {
	for name, value := range values {
		i := indexOf(vars, name)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrUnknownVariable, name)
		}
		if !vars[i].IsColor() {
			vars[i].Value = value
			continue
		}
		hex, err := NormalizeHex(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		hsl, err := HexToHSL(hex)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		vars[i].Hex, vars[i].HSL = hex, hsl
	}
	return nil
}

func indexOf(vars []Variable, name string) int {
	for i, v := range vars {
		if v.Name == name {
			return i
		}
	}
	return -1
}

// GenerateCSS renders the ":root" (light) and ".dark" blocks.
func GenerateCSS(p Preset, o Overrides) (string, error) {
	p, err := o.Apply(p)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	writeBlock(&sb, ":root", p.Light)
	sb.WriteString("\n")
	writeBlock(&sb, ".dark", p.Dark)
	return strings.TrimSuffix(sb.String(), "\n"), nil
}

func writeBlock(sb *strings.Builder, selector string, vars []Variable) {
	sb.WriteString(selector)
	sb.WriteString(" {\n")
	for _, v := range vars {
		fmt.Fprintf(sb, "  --%s: %s;\n", v.Name, v.CSSValue())
	}
	sb.WriteString("}\n")
}
