package models

import (
	"sort"

	"github.com/shopspring/decimal"
)

// MonthsPerYear is the number of monthly plan slots on a budget line.
const MonthsPerYear = 12

// MonthlyValues is a sparse month (1-12) to amount mapping.
type MonthlyValues map[int]decimal.Decimal

// ValidMonth reports whether m is a calendar month number.
func ValidMonth(m int) bool {
	return m >= 1 && m <= MonthsPerYear
}

// Months returns the months present in ascending order.
func (v MonthlyValues) Months() []int {
	months := make([]int, 0, len(v))
	for m := range v {
		months = append(months, m)
	}
	sort.Ints(months)
	return months
}

// Sum returns the total of all present months.
func (v MonthlyValues) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, amount := range v {
		total = total.Add(amount)
	}
	return total
}

// Get returns the amount for month m, or zero when absent.
func (v MonthlyValues) Get(m int) decimal.Decimal {
	if amount, ok := v[m]; ok {
		return amount
	}
	return decimal.Zero
}
