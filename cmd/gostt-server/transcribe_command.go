package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/gostt-server/internal/service"
	"github.com/chaz8081/gostt-server/internal/transcribe"
)

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var reference string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "transcribe FILE",
		Short: "Transcribe an audio file without starting the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			svc, cleanup, err := buildService(cmd.Context(), cfg, ctx.log())
			if err != nil {
				return err
			}
			defer cleanup()

			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open audio: %w", err)
			}
			defer func() { _ = f.Close() }()

			size := int64(-1)
			if info, err := f.Stat(); err == nil {
				size = info.Size()
			}

			res, err := svc.Transcribe(cmd.Context(), service.Upload{
				Filename: filepath.Base(path),
				Body:     f,
				Size:     size,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"status":         "success",
					"transcription":  res.Transcription,
					"audio_duration": service.FormatDuration(res.DurationSeconds),
					"filename":       res.Filename,
					"id":             res.ID,
					"model":          res.Model,
					"cached":         res.Cached,
				})
			}

			fmt.Fprintln(out, res.Transcription)
			fmt.Fprintf(out, "\n(%s, %s, took %s)\n",
				service.FormatDuration(res.DurationSeconds), res.Model, res.ProcessingTime.Round(time.Millisecond))

			if reference != "" && !res.Failed {
				fmt.Fprintln(out, transcribe.ComputeWER(reference, res.Transcription))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&reference, "reference", "", "Reference transcript; prints the word error rate")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the HTTP-style JSON response")
	return cmd
}
