package main

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/chaz8081/gostt-server/internal/service"
	"github.com/chaz8081/gostt-server/internal/store"
)

const historyTextWidth = 48

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent transcriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Driver == "none" {
				return fmt.Errorf("history is disabled (store.driver is \"none\")")
			}

			st, err := store.Open(cmd.Context(), cfg.Store)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			recs, err := st.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, "No transcriptions yet.")
				return nil
			}
			fmt.Fprintln(out, renderHistory(recs))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of rows")
	return cmd
}

func renderHistory(recs []store.Record) string {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			shortID(r.ID),
			humanize.Time(r.CreatedAt),
			r.Filename,
			service.FormatDuration(r.DurationSeconds),
			humanize.Bytes(uint64(r.SizeBytes)),
			r.Model,
			truncate(r.Transcription, historyTextWidth),
		})
	}
	return renderTable(
		[]string{"ID", "When", "File", "Duration", "Size", "Model", "Text"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	)
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}
