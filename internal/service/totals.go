package service

import (
	"fmt"
	"math"
	"time"

	"onisai/internal/domain"
)

// ComputeDayTotals sums the day's completed trips. Each runtime is rounded
// to whole minutes on its own before summing.
func ComputeDayTotals(day string, summaries []*domain.SummaryRecord, driveLimit time.Duration) domain.DayTotals {
	totals := domain.DayTotals{Day: day, DriveLimit: driveLimit}
	for _, s := range summaries {
		totals.Trips++
		totals.Earnings += s.Offer.Fare
		totals.DriveMinutes += RoundedMinutes(s.RuntimeSeconds)
	}
	totals.Earnings = math.Round(totals.Earnings*100) / 100

	remaining := driveLimit - time.Duration(totals.DriveMinutes)*time.Minute
	if remaining < 0 {
		remaining = 0
	}
	totals.RemainingLimit = remaining
	return totals
}

// FormatHM renders a duration as "Xh Ym".
func FormatHM(d time.Duration) string {
	mins := int(d / time.Minute)
	if mins < 0 {
		mins = 0
	}
	return fmt.Sprintf("%dh %dm", mins/60, mins%60)
}
