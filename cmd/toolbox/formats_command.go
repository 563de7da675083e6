package main

import (
	"fmt"

	"github.com/devtoolbox/backend/internal/models"
	"github.com/spf13/cobra"
)

func newFormatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported output formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0)
			for _, f := range models.Formats() {
				rows = append(rows, []string{string(f), "." + f.Extension(), f.ContentType()})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Format", "Extension", "Content type"}, rows, nil))
			return nil
		},
	}
}
