package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-to-archive/manifest"
	"github.com/dhcgn/mbox-to-archive/pgindex"
)

const dateLayout = "2006-01-02"

// NewSearchCommand builds the "search" sub-command over the Postgres unit index.
func NewSearchCommand() *cobra.Command {
	var (
		dsn, kind, folder, since, until string
		limit                           int
	)

	cmd := &cobra.Command{
		Use:   "search [terms...]",
		Short: "Search archived units in the Postgres index",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := buildQuery(strings.Join(args, " "), kind, folder, since, until, limit)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			idx, err := pgindex.Open(ctx, dsn)
			if err != nil {
				return err
			}
			defer idx.Close()

			hits, err := idx.Search(ctx, q)
			if err != nil {
				return fmt.Errorf("search index: %w", err)
			}
			printHits(cmd.OutOrStdout(), hits)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&dsn, "pg-dsn", "", "Postgres DSN (falls back to "+pgindex.EnvDSN+" env var)")
	flags.StringVar(&kind, "kind", "", "Only units of this kind: folder, message, attachment")
	flags.StringVar(&folder, "folder", "", "Only units whose folder path contains this text")
	flags.StringVar(&since, "since", "", "Only messages sent on or after this date (YYYY-MM-DD)")
	flags.StringVar(&until, "until", "", "Only messages sent before this date (YYYY-MM-DD)")
	flags.IntVar(&limit, "limit", 50, "Maximum number of results, 0 for all")
	return cmd
}

func buildQuery(text, kind, folder, since, until string, limit int) (pgindex.Query, error) {
	q := pgindex.Query{Text: text, Folder: folder, Limit: limit}
	switch k := manifest.Kind(strings.ToLower(kind)); k {
	case "":
	case manifest.KindFolder, manifest.KindMessage, manifest.KindAttachment:
		q.Kind = k
	default:
		return q, fmt.Errorf("invalid --kind: %s", kind)
	}

	var err error
	if since != "" {
		if q.Since, err = time.Parse(dateLayout, since); err != nil {
			return q, fmt.Errorf("invalid --since: %w", err)
		}
	}
	if until != "" {
		if q.Until, err = time.Parse(dateLayout, until); err != nil {
			return q, fmt.Errorf("invalid --until: %w", err)
		}
	}
	if limit < 0 {
		return q, fmt.Errorf("--limit must not be negative")
	}
	return q, nil
}

func printHits(out io.Writer, hits []pgindex.Hit) {
	if len(hits) == 0 {
		fmt.Fprintln(out, "No matching units.")
		return
	}
	for _, h := range hits {
		date := "-"
		if !h.Date.IsZero() {
			date = h.Date.Format(dateLayout)
		}
		fmt.Fprintf(out, "%s  %-10s %s  %s\n    %s\n", date, h.Kind, h.From, h.Subject, h.Path)
	}
}
