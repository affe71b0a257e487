package grading

import (
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

// RankEntry is one student's total going into ranking.
type RankEntry struct {
	ID    string
	Total decimal.Decimal
}

// Ranked is a ranked entry with its position.
type Ranked struct {
	RankEntry
	Position int
	Label    string
}

// Rank orders entries by total descending and numbers them 1..N in that order.
// Equal totals still get distinct positions; ties fall back to ID ascending so output is stable.
func Rank(entries []RankEntry) []Ranked {
	sorted := make([]RankEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := sorted[i].Total.Cmp(sorted[j].Total); c != 0 {
			return c > 0
		}
		return sorted[i].ID < sorted[j].ID
	})

	out := make([]Ranked, len(sorted))
	for i, e := range sorted {
		out[i] = Ranked{RankEntry: e, Position: i + 1, Label: Ordinal(i + 1)}
	}
	return out
}

// Ordinal formats n with its English suffix: 1st, 2nd, 3rd, 11th, 21st, 113th.
func Ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}
