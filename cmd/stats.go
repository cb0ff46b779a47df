package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-to-archive/config"
	"github.com/dhcgn/mbox-to-archive/diag"
	"github.com/dhcgn/mbox-to-archive/extract"
	"github.com/dhcgn/mbox-to-archive/filter"
	"github.com/dhcgn/mbox-to-archive/stats"
)

const csvLimit = 1000

// NewStatsCommand builds the "stats" sub-command: a statistics-only walk that
// prints the top senders, subjects and folders and saves CSV reports.
func NewStatsCommand() *cobra.Command {
	var (
		reportDir string
		topN      int
	)

	cmd := &cobra.Command{
		Use:   "stats [source]",
		Short: "Analyse a mailbox and show statistics without writing an archive",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := cmd.Flags().Set("source", args[0]); err != nil {
					return err
				}
			}
			if err := cmd.Flags().Set("stats-only", "true"); err != nil {
				return err
			}
			cfg, err := config.LoadConfig(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Analyzing source:", cfg.Source)
			return runStats(cmd, cfg, out, reportDir, topN)
		},
	}

	if err := config.RegisterFlags(cmd); err != nil {
		panic(err)
	}
	cmd.Flags().StringVarP(&reportDir, "output", "o", ".", "Output directory for CSV reports")
	cmd.Flags().IntVarP(&topN, "top", "t", 10, "Number of top items to display in statistics")
	return cmd
}

func runStats(cmd *cobra.Command, cfg config.Config, out io.Writer, reportDir string, topN int) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	f, err := NewFilter(cfg)
	if err != nil {
		return err
	}
	src, err := OpenSource(ctx, cfg, diag.Discard(), nil)
	if err != nil {
		return err
	}
	defer src.Close()

	collector := stats.NewCollector()
	seen := 0
	events := func(evt stats.Event) {
		collector.Apply(evt)
		if evt.Type == stats.EventTypeMessage {
			seen++
			if seen%250 == 0 {
				// ANSI escape code to clear screen and move cursor to top-left
				fmt.Fprint(out, "\033[H\033[2J")
				printStats(out, collector, f, topN)
			}
		}
	}

	o := extract.New(extract.Options{
		Mode:                  extract.ModeStatistics,
		RootName:              cfg.RootName,
		Policy:                extract.FilterPolicy(f, extract.StatisticsOnly),
		ContinueOnFolderError: cfg.ContinueOnFolderError,
		Events:                events,
	}, diag.Discard())
	if _, err := o.RunContext(ctx, src); err != nil {
		return fmt.Errorf("analyse source: %w", err)
	}

	printStats(out, collector, f, topN)

	if err := saveCSVReports(collector.Breakdown(), reportDir, csvLimit); err != nil {
		return fmt.Errorf("error saving CSV reports: %w", err)
	}
	fmt.Fprintf(out, "\nReports saved to directory: %s\n", reportDir)
	return nil
}

func printStats(out io.Writer, collector *stats.Collector, f *filter.Filter, topN int) {
	summary := collector.Snapshot()
	total := summary.Messages + summary.Filtered
	var filterPercent float64
	if total > 0 {
		filterPercent = float64(summary.Filtered) / float64(total) * 100
	}
	fmt.Fprintf(out, "Processed %d messages in %d folders (skipped %d by filters, %.2f%%, %d undecodable)...\n\n",
		summary.Messages, summary.Folders, summary.Filtered, filterPercent, summary.Skipped)

	filterStats := f.GetStats()
	sections := []struct {
		title    string
		patterns []string
		hits     map[string]int
	}{
		{"Include Header Filters", filterStats.IncludeHeaderPatterns, filterStats.IncludeHeaderHits},
		{"Include Body Filters", filterStats.IncludeBodyPatterns, filterStats.IncludeBodyHits},
		{"Exclude Header Filters", filterStats.ExcludeHeaderPatterns, filterStats.ExcludeHeaderHits},
		{"Exclude Body Filters", filterStats.ExcludeBodyPatterns, filterStats.ExcludeBodyHits},
	}
	hasFilterStats := false
	for _, s := range sections {
		if len(s.patterns) == 0 {
			continue
		}
		hasFilterStats = true
		fmt.Fprintf(out, "%s:\n", s.title)
		printFilterHits(out, s.patterns, s.hits)
		fmt.Fprintln(out)
	}
	if hasFilterStats {
		fmt.Fprintln(out, "---")
		fmt.Fprintln(out)
	}

	breakdown := collector.Breakdown()
	for _, r := range reports(breakdown) {
		fmt.Fprintf(out, "Top %d %s:\n", topN, r.title)
		stats.PrettyPrintTop(out, r.counts, topN)
		fmt.Fprintln(out)
	}
}

type report struct {
	title  string
	file   string
	counts map[string]int
}

func reports(b stats.Breakdown) []report {
	return []report{
		{"Senders", "report_senders.csv", b.Senders},
		{"Subjects", "report_subjects.csv", b.Subjects},
		{"Folders", "report_folders.csv", b.Folders},
	}
}

func saveCSVReports(b stats.Breakdown, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, r := range reports(b) {
		if err := writeCSV(filepath.Join(dir, r.file), stats.Top(r.counts, limit)); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(path string, pairs []stats.Pair) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"Value", "Count"}); err != nil {
		return err
	}
	for _, p := range pairs {
		if err := writer.Write([]string{p.Key, strconv.Itoa(p.Value)}); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}

func printFilterHits(out io.Writer, patterns []string, hits map[string]int) {
	type pair struct {
		Pattern string
		Count   int
	}
	pairs := make([]pair, 0, len(patterns))
	for _, pattern := range patterns {
		pairs = append(pairs, pair{pattern, hits[pattern]})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Count != pairs[j].Count {
			return pairs[i].Count > pairs[j].Count
		}
		return pairs[i].Pattern < pairs[j].Pattern
	})

	for _, p := range pairs {
		if p.Count > 0 {
			fmt.Fprintf(out, "  ✓ %s: %d hits\n", p.Pattern, p.Count)
		} else {
			fmt.Fprintf(out, "  ✗ %s: 0 hits\n", p.Pattern)
		}
	}
}
