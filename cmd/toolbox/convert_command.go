package main

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/devtoolbox/backend/internal/convert"
	"github.com/devtoolbox/backend/internal/models"
	"github.com/devtoolbox/backend/internal/queue"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type convertFlags struct {
	format  string
	quality int
	width   int
	height  int
	sizes   string
	outDir  string
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	flags := &convertFlags{}

	cmd := &cobra.Command{
		Use:   "convert <file>...",
		Short: "Convert image files and write the results to a directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := models.ParseFormat(flags.format)
			if err != nil {
				return err
			}
			sizes, err := parseSizeList(flags.sizes)
			if err != nil {
				return err
			}
			settings := queue.Settings{
				Format:  format,
				Quality: flags.quality,
				Width:   flags.width,
				Height:  flags.height,
				Sizes:   sizes,
			}
			return runBatch(cmd, ctx, settings, args, flags.outDir)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", string(models.DefaultFormat), "Target format")
	cmd.Flags().IntVarP(&flags.quality, "quality", "q", 0, "Encoder quality 1-100 (0 uses the converter default)")
	cmd.Flags().IntVar(&flags.width, "width", 0, "Fit output within this width")
	cmd.Flags().IntVar(&flags.height, "height", 0, "Fit output within this height")
	cmd.Flags().StringVar(&flags.sizes, "sizes", "", "Comma separated icon sizes for ico output")
	cmd.Flags().StringVarP(&flags.outDir, "out", "o", ".", "Output directory")

	return cmd
}

// runBatch loads every file into one batch, converts them in order and
// writes whatever converted to outDir. Failed files are reported in the
// table; the command fails only when nothing converted.
func runBatch(cmd *cobra.Command, ctx *commandContext, settings queue.Settings, paths []string, outDir string) error {
	uploads := make([]models.Upload, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		uploads = append(uploads, models.Upload{
			Name:        filepath.Base(path),
			ContentType: mime.TypeByExtension(filepath.Ext(path)),
			Data:        data,
		})
	}

	stderr := cmd.ErrOrStderr()
	var bar *progressbar.ProgressBar
	if isTerminal(stderr) {
		bar = progressbar.NewOptions(len(uploads),
			progressbar.OptionSetWriter(stderr),
			progressbar.OptionSetDescription("Converting"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	notifier := queue.NotifierFunc(func(e queue.Event) {
		if bar == nil {
			return
		}
		switch e.Type {
		case queue.EventEntryConverted, queue.EventEntryFailed:
			_ = bar.Add(1)
		case queue.EventEntryConverting:
			bar.Describe(e.Name)
		}
	})

	batch := queue.NewBatch(uuid.New().String(), settings, ctx.converter(), nil, notifier)
	defer batch.Close()

	if _, err := batch.Enqueue(uploads); err != nil {
		return err
	}
	summary, err := batch.ConvertAll(cmd.Context())
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return err
	}

	written, err := writeDownloads(outDir, batch.DownloadAll())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printEntries(out, batch.Entries(), written)
	fmt.Fprintf(out, "%d converted, %d failed\n", summary.Converted, summary.Failed)

	if summary.Converted == 0 {
		return fmt.Errorf("no files converted")
	}
	return nil
}

func writeDownloads(dir string, downloads []models.Download) (map[string]string, error) {
	if len(downloads) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	written := make(map[string]string, len(downloads))
	names := models.NewNameSet()
	for _, d := range downloads {
		name := names.Unique(d.Filename)
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, d.Data, 0644); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written[d.EntryID] = path
	}
	return written, nil
}

func printEntries(w io.Writer, entries []models.Entry, written map[string]string) {
	headers := []string{"File", "Status", "Input", "Output", "Result"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		output := "-"
		result := e.Error
		if e.Status == models.EntryStatusConverted {
			output = humanize.Bytes(uint64(e.ResultSize))
			result = written[e.ID]
		}
		rows = append(rows, []string{
			e.Name,
			string(e.Status),
			humanize.Bytes(uint64(e.Size)),
			output,
			result,
		})
	}
	fmt.Fprintln(w, renderTable(headers, rows, aligns))
}

func parseSizeList(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var sizes []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid size %q", part)
		}
		sizes = append(sizes, n)
	}
	return convert.NormalizeSizes(sizes)
}
