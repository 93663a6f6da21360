package utils

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	day = 24 * time.Hour

	// PriceScale is the number of decimal places prices are rounded to.
	PriceScale = 2
)

// PriceBreakdown provides detailed cost breakdown
type PriceBreakdown struct {
	BilledDays int64
	DailyRate  decimal.Decimal
	Total      decimal.Decimal
}

// BillableDays returns the number of started days between start and end,
// never less than one.
func BillableDays(start, end time.Time) (int64, error) {
	if !end.After(start) {
		return 0, fmt.Errorf("end must be after start")
	}
	d := end.Sub(start)
	days := int64(d / day)
	if d%day != 0 {
		days++
	}
	if days < 1 {
		days = 1
	}
	return days, nil
}

// CalculateTotalPrice computes dailyRate × billable days rounded to cents.
func CalculateTotalPrice(dailyRate decimal.Decimal, start, end time.Time) (decimal.Decimal, error) {
	b, err := CalculatePriceWithBreakdown(dailyRate, start, end)
	if err != nil {
		return decimal.Zero, err
	}
	return b.Total, nil
}

// CalculatePriceWithBreakdown calculates the price and returns how it was derived.
func CalculatePriceWithBreakdown(dailyRate decimal.Decimal, start, end time.Time) (PriceBreakdown, error) {
	if dailyRate.IsNegative() {
		return PriceBreakdown{}, fmt.Errorf("daily rate must not be negative: %s", dailyRate)
	}
	days, err := BillableDays(start, end)
	if err != nil {
		return PriceBreakdown{}, err
	}
	total := dailyRate.Mul(decimal.NewFromInt(days)).Round(PriceScale)
	return PriceBreakdown{
		BilledDays: days,
		DailyRate:  dailyRate,
		Total:      total,
	}, nil
}
