package model

import "time"

// DateRange is a possibly empty [Earliest, Latest] interval. Zero times are absent.
type DateRange struct {
	Earliest time.Time
	Latest   time.Time
}

// Empty reports whether no date has been folded into the range.
func (r DateRange) Empty() bool {
	return r.Earliest.IsZero() && r.Latest.IsZero()
}

// Extend returns the range widened to include t. A zero t leaves the range unchanged.
func (r DateRange) Extend(t time.Time) DateRange {
	if t.IsZero() {
		return r
	}
	return r.Merge(DateRange{Earliest: t, Latest: t})
}

// Merge returns the smallest range covering both r and other.
func (r DateRange) Merge(other DateRange) DateRange {
	out := r
	if !other.Earliest.IsZero() && (out.Earliest.IsZero() || other.Earliest.Before(out.Earliest)) {
		out.Earliest = other.Earliest
	}
	if !other.Latest.IsZero() && (out.Latest.IsZero() || other.Latest.After(out.Latest)) {
		out.Latest = other.Latest
	}
	return out
}

// FolderStats accumulates counts and dates for a folder subtree.
type FolderStats struct {
	Messages   int
	Subfolders int
	Dates      DateRange
}

// Merge folds a child subtree's statistics into s. The child itself counts as one subfolder.
func (s *FolderStats) Merge(child FolderStats) {
	s.Messages += child.Messages
	s.Subfolders += child.Subfolders + 1
	s.Dates = s.Dates.Merge(child.Dates)
}
