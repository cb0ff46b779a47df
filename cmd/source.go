// Package cmd holds the sub-commands and the wiring they share with the root
// command.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dhcgn/mbox-to-archive/config"
	"github.com/dhcgn/mbox-to-archive/diag"
	"github.com/dhcgn/mbox-to-archive/dirtree"
	"github.com/dhcgn/mbox-to-archive/extract"
	"github.com/dhcgn/mbox-to-archive/filter"
	"github.com/dhcgn/mbox-to-archive/imap"
	"github.com/dhcgn/mbox-to-archive/mbox"
	"github.com/dhcgn/mbox-to-archive/source"
)

// OpenSource opens the mailbox container cfg points at.
func OpenSource(ctx context.Context, cfg config.Config, sink diag.Sink, logger *slog.Logger) (source.Source, error) {
	switch cfg.SourceType {
	case config.SourceMbox:
		src, err := mbox.Open(mbox.Options{Path: cfg.Source, Dialect: cfg.MboxDialect, Sink: sink})
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.SourceEML:
		if _, err := os.Stat(cfg.Source); err != nil {
			return nil, fmt.Errorf("open eml: %w", err)
		}
		return source.OpenEML(cfg.Source), nil
	case config.SourceDir:
		src, err := dirtree.Open(dirtree.Options{Path: cfg.Source, Dialect: cfg.MboxDialect, Sink: sink})
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.SourceIMAP:
		src, err := imap.Open(ctx, imap.Options{
			Host:               cfg.IMAPHost,
			Port:               cfg.IMAPPort,
			Username:           cfg.IMAPUser,
			Password:           cfg.IMAPPass,
			UseTLS:             cfg.UseTLS,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			Mailbox:            cfg.IMAPMailbox,
		}, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unsupported source type %q", cfg.SourceType)
	}
}

// NewFilter builds the message filter from the include and exclude flags.
func NewFilter(cfg config.Config) (*filter.Filter, error) {
	f, err := filter.New(filter.Options{
		IncludeHeader: cfg.IncludeHeader,
		IncludeBody:   cfg.IncludeBody,
		ExcludeHeader: cfg.ExcludeHeader,
		ExcludeBody:   cfg.ExcludeBody,
	})
	if err != nil {
		return nil, fmt.Errorf("create filter: %w", err)
	}
	return f, nil
}

// CountMessages walks the source once in statistics mode with its own filter
// so the hit counters of the real run stay untouched.
func CountMessages(ctx context.Context, cfg config.Config, logger *slog.Logger) (extract.Report, error) {
	f, err := NewFilter(cfg)
	if err != nil {
		return extract.Report{}, err
	}
	src, err := OpenSource(ctx, cfg, diag.Discard(), logger)
	if err != nil {
		return extract.Report{}, err
	}
	defer src.Close()

	o := extract.New(extract.Options{
		Mode:                  extract.ModeStatistics,
		RootName:              cfg.RootName,
		Policy:                extract.FilterPolicy(f, extract.StatisticsOnly),
		ContinueOnFolderError: cfg.ContinueOnFolderError,
	}, diag.Discard())
	return o.RunContext(ctx, src)
}
