package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/chaz8081/gostt-server/internal/config"
	"github.com/chaz8081/gostt-server/internal/models"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Manage whisper.cpp model files",
	}
	modelsCmd.AddCommand(newModelsDownloadCommand(ctx))
	modelsCmd.AddCommand(newModelsListCommand(ctx))
	return modelsCmd
}

// modelDir returns the directory the configured primary model lives in.
func modelDir(cfg *config.Config) string {
	if cfg.Transcribe.ModelPath != "" {
		return filepath.Dir(cfg.Transcribe.ModelPath)
	}
	return config.DefaultModelsDir()
}

func newModelsDownloadCommand(ctx *commandContext) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "download [NAME...]",
		Short: "Download ggml models (default: the configured primary and fallback models)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			names := args
			if len(names) == 0 {
				for _, p := range []string{cfg.Transcribe.ModelPath, cfg.Transcribe.FallbackModelPath} {
					if p != "" {
						names = append(names, filepath.Base(p))
					}
				}
			}
			if dir == "" {
				dir = modelDir(cfg)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Models will be downloaded to: %s\n\n", dir)
			d := models.NewDownloader(dir, out)
			if _, err := d.DownloadAll(cmd.Context(), names); err != nil {
				return err
			}
			fmt.Fprintln(out, "\nAll models downloaded successfully!")
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Destination directory (default: the configured model directory)")
	return cmd
}

func newModelsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show known models and which are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir := modelDir(cfg)

			rows := make([][]string, 0, len(models.Known))
			for _, name := range models.Known {
				file, _ := models.FileName(name)
				status, size := "-", "-"
				if info, err := os.Stat(filepath.Join(dir, file)); err == nil {
					status = "installed"
					size = humanize.Bytes(uint64(info.Size()))
				}
				switch filepath.Join(dir, file) {
				case cfg.Transcribe.ModelPath:
					status += " (primary)"
				case cfg.Transcribe.FallbackModelPath:
					status += " (fallback)"
				}
				rows = append(rows, []string{name, file, status, size})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Name", "File", "Status", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}
