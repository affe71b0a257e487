package grading

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/school-results-api/internal/models"
)

// NotApplicable labels scores that fall outside every configured band.
const NotApplicable = "N/A"

// Resolution is the grade and remark a score maps to.
type Resolution struct {
	Grade   string `json:"grade"`
	Remarks string `json:"remarks"`
}

// Unresolved is returned for scores in a configuration gap.
var Unresolved = Resolution{Grade: NotApplicable, Remarks: NotApplicable}

// Bands is a band set ordered by minimum score.
type Bands []models.GradingSystem

// NewBands copies and orders a band set.
func NewBands(list []models.GradingSystem) Bands {
	out := make(Bands, len(list))
	copy(out, list)
	sort.Slice(out, func(i, j int) bool { return out[i].MinScore.LessThan(out[j].MinScore) })
	return out
}

// Resolve maps score, rounded for display, to its band. Bands with a whole-number max also own
// the fractional tail below the next whole number (49.99 falls in 0..49) unless another band
// starts inside that tail. Anything else outside every band resolves to N/A.
func (b Bands) Resolve(score decimal.Decimal) Resolution {
	s := Display(score)
	for i, band := range b {
		if s.LessThan(band.MinScore) {
			break
		}
		if !s.GreaterThan(band.MaxScore) {
			return Resolution{Grade: band.Grade, Remarks: band.Remarks}
		}
		if !band.MaxScore.Equal(band.MaxScore.Truncate(0)) {
			continue
		}
		if s.GreaterThanOrEqual(band.MaxScore.Add(decimal.NewFromInt(1))) {
			continue
		}
		if i+1 < len(b) && !s.LessThan(b[i+1].MinScore) {
			continue
		}
		return Resolution{Grade: band.Grade, Remarks: band.Remarks}
	}
	return Unresolved
}

// Overlaps reports whether two closed bands intersect.
func Overlaps(a, b models.GradingSystem) bool {
	return !a.MinScore.GreaterThan(b.MaxScore) && !b.MinScore.GreaterThan(a.MaxScore)
}

// FindOverlap returns the first existing band, other than candidate itself, that candidate intersects.
func FindOverlap(candidate models.GradingSystem, existing []models.GradingSystem) *models.GradingSystem {
	for i := range existing {
		if candidate.ID != "" && existing[i].ID == candidate.ID {
			continue
		}
		if Overlaps(candidate, existing[i]) {
			return &existing[i]
		}
	}
	return nil
}
