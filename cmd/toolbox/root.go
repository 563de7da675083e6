package main

import (
	"net/http"
	"os"
	"time"

	"github.com/devtoolbox/backend/internal/convert"
	"github.com/devtoolbox/backend/internal/queue"
	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8089"

type commandContext struct {
	server  string
	local   bool
	quality int
	timeout time.Duration
}

// converter picks the in-process service or the remote endpoint.
func (c *commandContext) converter() queue.Converter {
	if c.local {
		return convert.NewService(c.quality)
	}
	return convert.NewClient(c.server, &http.Client{Timeout: c.timeout})
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "toolbox",
		Short:         "Dev Toolbox image and theme CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	server := os.Getenv("TOOLBOX_SERVER")
	if server == "" {
		server = defaultServer
	}
	rootCmd.PersistentFlags().StringVar(&ctx.server, "server", server, "Toolbox server base URL")
	rootCmd.PersistentFlags().BoolVar(&ctx.local, "local", false, "Convert in-process instead of calling the server")
	rootCmd.PersistentFlags().IntVar(&ctx.quality, "default-quality", convert.DefaultQuality, "Encoder quality used by --local when --quality is unset")
	rootCmd.PersistentFlags().DurationVar(&ctx.timeout, "timeout", 5*time.Minute, "Per-file request timeout")

	rootCmd.AddCommand(newConvertCommand(ctx))
	rootCmd.AddCommand(newFaviconCommand(ctx))
	rootCmd.AddCommand(newThemeCommand())
	rootCmd.AddCommand(newFormatsCommand())

	return rootCmd
}
