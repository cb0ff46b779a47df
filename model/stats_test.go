package model

import (
	"testing"
	"time"
)

func day(d int) time.Time {
	return time.Date(2020, time.January, d, 12, 0, 0, 0, time.UTC)
}

func TestDateRange_Extend(t *testing.T) {
	var r DateRange
	if !r.Empty() {
		t.Fatal("zero range should be empty")
	}

	r = r.Extend(time.Time{})
	if !r.Empty() {
		t.Fatal("absent date must not populate the range")
	}

	r = r.Extend(day(5)).Extend(day(2)).Extend(time.Time{}).Extend(day(9))
	if !r.Earliest.Equal(day(2)) || !r.Latest.Equal(day(9)) {
		t.Fatalf("range = %v..%v, want %v..%v", r.Earliest, r.Latest, day(2), day(9))
	}
}

func TestDateRange_MergeAlgebra(t *testing.T) {
	dates := []time.Time{day(7), {}, day(3), day(15), {}, day(1)}

	fold := func(order []int) DateRange {
		var r DateRange
		for _, i := range order {
			r = r.Merge(DateRange{}.Extend(dates[i]))
		}
		return r
	}

	orders := [][]int{
		{0, 1, 2, 3, 4, 5},
		{5, 4, 3, 2, 1, 0},
		{2, 0, 5, 1, 3, 4},
	}
	want := fold(orders[0])
	for _, order := range orders[1:] {
		if got := fold(order); got != want {
			t.Errorf("fold(%v) = %v, want %v", order, got, want)
		}
	}

	a := DateRange{}.Extend(day(4))
	b := DateRange{}.Extend(day(2)).Extend(day(6))
	c := DateRange{}.Extend(day(8))
	if a.Merge(b).Merge(c) != a.Merge(b.Merge(c)) {
		t.Error("merge is not associative")
	}
	if a.Merge(b) != b.Merge(a) {
		t.Error("merge is not commutative")
	}
}

func TestDateRange_AllAbsent(t *testing.T) {
	var r DateRange
	for i := 0; i < 3; i++ {
		r = r.Merge(DateRange{}.Extend(time.Time{}))
	}
	if !r.Empty() {
		t.Fatalf("expected empty range, got %v", r)
	}
}

func TestFolderStats_Merge(t *testing.T) {
	parent := FolderStats{Messages: 2, Dates: DateRange{}.Extend(day(10))}
	child := FolderStats{Messages: 3, Subfolders: 1, Dates: DateRange{}.Extend(day(1))}

	parent.Merge(child)
	if parent.Messages != 5 {
		t.Errorf("Messages = %d, want 5", parent.Messages)
	}
	if parent.Subfolders != 2 {
		t.Errorf("Subfolders = %d, want 2", parent.Subfolders)
	}
	if !parent.Dates.Earliest.Equal(day(1)) || !parent.Dates.Latest.Equal(day(10)) {
		t.Errorf("Dates = %v", parent.Dates)
	}
}

func TestMessage_BestDate(t *testing.T) {
	m := Message{ReceivedAt: day(3)}
	if !m.BestDate().Equal(day(3)) {
		t.Error("expected received date fallback")
	}
	m.SentAt = day(2)
	if !m.BestDate().Equal(day(2)) {
		t.Error("expected sent date to win")
	}
}
