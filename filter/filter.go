package filter

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/dhcgn/mbox-to-archive/header"
)

// Options captures the filtering configuration.
type Options struct {
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
}

// Filter holds compiled regex patterns for filtering messages.
type Filter struct {
	includeMode    bool
	excludeMode    bool
	includeHeader  []*regexp.Regexp
	includeBody    []*regexp.Regexp
	excludeHeader  []*regexp.Regexp
	excludeBody    []*regexp.Regexp
	needHeaderText bool
	needBodyText   bool

	mu   sync.Mutex
	hits map[*regexp.Regexp]int
}

// Stats reports, per pattern class, the configured patterns and how many
// messages each one matched.
type Stats struct {
	IncludeHeaderPatterns []string
	IncludeHeaderHits     map[string]int
	IncludeBodyPatterns   []string
	IncludeBodyHits       map[string]int
	ExcludeHeaderPatterns []string
	ExcludeHeaderHits     map[string]int
	ExcludeBodyPatterns   []string
	ExcludeBodyHits       map[string]int
}

// New creates a new Filter from the provided options.
func New(opts Options) (*Filter, error) {
	includeHeader, err := compilePatterns(opts.IncludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile include-header pattern: %w", err)
	}
	includeBody, err := compilePatterns(opts.IncludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile include-body pattern: %w", err)
	}
	excludeHeader, err := compilePatterns(opts.ExcludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-header pattern: %w", err)
	}
	excludeBody, err := compilePatterns(opts.ExcludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-body pattern: %w", err)
	}

	includeActive := len(includeHeader) > 0 || len(includeBody) > 0
	excludeActive := len(excludeHeader) > 0 || len(excludeBody) > 0
	if includeActive && excludeActive {
		return nil, fmt.Errorf("include and exclude filters are mutually exclusive")
	}

	return &Filter{
		includeMode:    includeActive,
		excludeMode:    excludeActive,
		includeHeader:  includeHeader,
		includeBody:    includeBody,
		excludeHeader:  excludeHeader,
		excludeBody:    excludeBody,
		needHeaderText: len(includeHeader) > 0 || len(excludeHeader) > 0,
		needBodyText:   len(includeBody) > 0 || len(excludeBody) > 0,
		hits:           make(map[*regexp.Regexp]int),
	}, nil
}

// Allows returns true if the message passes the filter criteria.
func (f *Filter) Allows(header, body []byte) bool {
	var headerText, bodyText string
	if f.needHeaderText {
		headerText = string(header)
	}
	if f.needBodyText {
		bodyText = string(body)
	}

	if f.includeMode {
		headerHit := f.matchAny(f.includeHeader, headerText)
		bodyHit := f.matchAny(f.includeBody, bodyText)
		return headerHit || bodyHit
	}

	if f.excludeMode {
		headerHit := f.matchAny(f.excludeHeader, headerText)
		bodyHit := f.matchAny(f.excludeBody, bodyText)
		if headerHit || bodyHit {
			return false
		}
	}

	return true
}

// AllowsMessage splits a raw message at the first blank line and applies Allows.
func (f *Filter) AllowsMessage(raw []byte) bool {
	hdr, body := header.Split(raw)
	return f.Allows(hdr, body)
}

// Active reports whether any pattern is configured.
func (f *Filter) Active() bool {
	return f.includeMode || f.excludeMode
}

// GetStats returns a snapshot of the per-pattern hit counts.
func (f *Filter) GetStats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	collect := func(patterns []*regexp.Regexp) ([]string, map[string]int) {
		names := make([]string, 0, len(patterns))
		hits := make(map[string]int, len(patterns))
		for _, re := range patterns {
			names = append(names, re.String())
			hits[re.String()] += f.hits[re]
		}
		return names, hits
	}

	var s Stats
	s.IncludeHeaderPatterns, s.IncludeHeaderHits = collect(f.includeHeader)
	s.IncludeBodyPatterns, s.IncludeBodyHits = collect(f.includeBody)
	s.ExcludeHeaderPatterns, s.ExcludeHeaderHits = collect(f.excludeHeader)
	s.ExcludeBodyPatterns, s.ExcludeBodyHits = collect(f.excludeBody)
	return s
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// matchAny reports whether any pattern matches and counts a hit for every
// matching pattern.
func (f *Filter) matchAny(patterns []*regexp.Regexp, text string) bool {
	if len(patterns) == 0 {
		return false
	}
	matched := false
	for _, re := range patterns {
		if re.MatchString(text) {
			matched = true
			f.mu.Lock()
			f.hits[re]++
			f.mu.Unlock()
		}
	}
	return matched
}
