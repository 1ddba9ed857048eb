// Package savings spreads a savings total over the twelve months of a budget year.
package savings

import (
	"fmt"

	apperrors "budgetledger/internal/errors"
	"budgetledger/internal/models"

	"github.com/shopspring/decimal"
)

// Tolerance is the largest accepted gap between a custom schedule's sum and its total.
var Tolerance = decimal.New(1, -2)

var twelve = decimal.NewFromInt(models.MonthsPerYear)

// Params carries the strategy-specific inputs.
// Month is read by SINGLE_MONTH, Schedule by CUSTOM.
type Params struct {
	Month    int
	Schedule models.MonthlyValues
}

// Distribute returns a twelve-slot distribution of total for strategy.
// Every slot from 1 to 12 is present in the result, zero where nothing is saved.
func Distribute(total decimal.Decimal, strategy models.SavingStrategy, params Params) (models.MonthlyValues, error) {
	if !total.IsPositive() {
		return nil, invalid("total amount must be greater than zero")
	}
	if !total.Equal(total.Round(2)) {
		return nil, invalid("total amount must have at most two decimal places")
	}

	switch strategy {
	case models.SavingStrategyEven:
		return even(total), nil
	case models.SavingStrategySingleMonth:
		return singleMonth(total, params.Month)
	case models.SavingStrategyCustom:
		return custom(total, params.Schedule)
	default:
		return nil, invalid(fmt.Sprintf("unsupported strategy %q", strategy))
	}
}

// even floors each month to the cent and folds the remainder into month 1,
// so the slots sum to total exactly.
func even(total decimal.Decimal) models.MonthlyValues {
	base := total.Div(twelve).RoundFloor(2)
	out := zeroYear()
	for m := 2; m <= models.MonthsPerYear; m++ {
		out[m] = base
	}
	out[1] = total.Sub(base.Mul(decimal.NewFromInt(models.MonthsPerYear - 1)))
	return out
}

func singleMonth(total decimal.Decimal, month int) (models.MonthlyValues, error) {
	if !models.ValidMonth(month) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidMonth,
			fmt.Sprintf("month %d is outside 1-12", month))
	}
	out := zeroYear()
	out[month] = total
	return out, nil
}

func custom(total decimal.Decimal, schedule models.MonthlyValues) (models.MonthlyValues, error) {
	if len(schedule) == 0 {
		return nil, invalid("custom schedule is empty")
	}

	out := zeroYear()
	allZero := true
	for _, month := range schedule.Months() {
		amount := schedule[month]
		if !models.ValidMonth(month) {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidMonth,
				fmt.Sprintf("month %d is outside 1-12", month))
		}
		if amount.IsNegative() {
			return nil, invalid(fmt.Sprintf("month %d has a negative amount", month))
		}
		if !amount.IsZero() {
			allZero = false
		}
		out[month] = amount
	}
	if allZero {
		return nil, invalid("custom schedule has no non-zero month")
	}

	if diff := schedule.Sum().Sub(total).Abs(); diff.GreaterThan(Tolerance) {
		return nil, invalid(fmt.Sprintf("custom schedule sums to %s, expected %s",
			schedule.Sum().StringFixed(2), total.StringFixed(2)))
	}
	return out, nil
}

func zeroYear() models.MonthlyValues {
	out := make(models.MonthlyValues, models.MonthsPerYear)
	for m := 1; m <= models.MonthsPerYear; m++ {
		out[m] = decimal.Zero
	}
	return out
}

func invalid(msg string) error {
	return apperrors.WithMessage(apperrors.ErrInvalidDistribution, msg)
}
