package main

import (
	"fmt"
	"strings"

	"github.com/devtoolbox/backend/internal/theme"
	"github.com/spf13/cobra"
)

func newThemeCommand() *cobra.Command {
	var (
		presetsPath string
		presetName  string
		sets        []string
		list        bool
	)

	cmd := &cobra.Command{
		Use:   "theme",
		Short: "Print theme CSS variables for a preset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set := theme.NewSet()
			if presetsPath != "" {
				loaded, err := theme.LoadSet(presetsPath)
				if err != nil {
					return err
				}
				set = loaded
			}

			out := cmd.OutOrStdout()
			if list {
				rows := [][]string{}
				for _, p := range set.All() {
					rows = append(rows, []string{p.Name, p.Description})
				}
				fmt.Fprintln(out, renderTable([]string{"Preset", "Description"}, rows, nil))
				return nil
			}

			preset, err := set.Get(presetName)
			if err != nil {
				return err
			}
			overrides, err := parseOverrides(sets)
			if err != nil {
				return err
			}
			css, err := theme.GenerateCSS(preset, overrides)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, css)
			return nil
		},
	}

	cmd.Flags().StringVar(&presetsPath, "presets", "", "YAML presets file (built-in presets when empty)")
	cmd.Flags().StringVarP(&presetName, "preset", "p", "", "Preset name (first preset when empty)")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Override a variable, e.g. light.primary=#2563eb")
	cmd.Flags().BoolVar(&list, "list", false, "List available presets")

	return cmd
}

// parseOverrides reads mode.name=value pairs.
func parseOverrides(pairs []string) (theme.Overrides, error) {
	o := theme.Overrides{Light: map[string]string{}, Dark: map[string]string{}}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return o, fmt.Errorf("invalid override %q: expected mode.name=value", pair)
		}
		mode, name, ok := strings.Cut(key, ".")
		if !ok || name == "" {
			return o, fmt.Errorf("invalid override %q: expected mode.name=value", pair)
		}
		switch strings.ToLower(mode) {
		case "light":
			o.Light[name] = value
		case "dark":
			o.Dark[name] = value
		default:
			return o, fmt.Errorf("invalid override %q: mode must be light or dark", pair)
		}
	}
	return o, nil
}
