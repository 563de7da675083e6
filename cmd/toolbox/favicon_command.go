package main

import (
	"github.com/devtoolbox/backend/internal/convert"
	"github.com/devtoolbox/backend/internal/models"
	"github.com/devtoolbox/backend/internal/queue"
	"github.com/spf13/cobra"
)

func newFaviconCommand(ctx *commandContext) *cobra.Command {
	var (
		sizes  string
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "favicon <image>",
		Short: "Pack an image into a multi-size favicon.ico",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := parseSizeList(sizes)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				list = convert.DefaultFaviconSizes
			}
			settings := queue.Settings{Format: models.FormatICO, Sizes: list}
			return runBatch(cmd, ctx, settings, args, outDir)
		},
	}

	cmd.Flags().StringVar(&sizes, "sizes", "", "Comma separated icon sizes (default 16,32,48,64,128)")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Output directory")

	return cmd
}
