package grading

import "github.com/shopspring/decimal"

// WeightLimit is the per (term, section, subject) weight budget.
var WeightLimit = decimal.NewFromInt(100)

// WeightCheck is the outcome of checking a weight against the budget.
type WeightCheck struct {
	CurrentTotal decimal.Decimal
	Proposed     decimal.Decimal
	Remaining    decimal.Decimal
	Allowed      bool
}

// CanAdd checks whether weight fits next to current, the sum of the other assessments in the triple.
func CanAdd(current, weight decimal.Decimal) WeightCheck {
	proposed := current.Add(weight)
	remaining := WeightLimit.Sub(current)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return WeightCheck{
		CurrentTotal: current,
		Proposed:     proposed,
		Remaining:    remaining,
		Allowed:      !proposed.GreaterThan(WeightLimit),
	}
}

// Remaining returns how much weight is left after total.
func Remaining(total decimal.Decimal) decimal.Decimal {
	left := WeightLimit.Sub(total)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}
