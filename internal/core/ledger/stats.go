package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"catcafe/internal/core/model"
	"catcafe/internal/core/rewards"
)

// StatsSource aggregates stored sessions.
type StatsSource interface {
	Stats(ctx context.Context) (model.Stats, error)
	CompletionTimes(ctx context.Context) ([]time.Time, error)
}

// Summarize returns history totals with the streak as of now.
func Summarize(ctx context.Context, source StatsSource, now time.Time, loc *time.Location) (model.Stats, error) {
	stats, err := source.Stats(ctx)
	if err != nil {
		return model.Stats{}, fmt.Errorf("load stats: %w", err)
	}
	completions, err := source.CompletionTimes(ctx)
	if err != nil {
		return model.Stats{}, fmt.Errorf("load completions: %w", err)
	}
	stats.Streak = rewards.Streak(completions, now, loc)
	return stats, nil
}

// Describe renders stats as short lines for a dialog.
func Describe(stats model.Stats) string {
	lines := []string{
		fmt.Sprintf("Sessions completed: %d", stats.Completed),
		fmt.Sprintf("Given up: %d", stats.Abandoned),
		fmt.Sprintf("Ended by leaving: %d", stats.AwayTooLong),
		fmt.Sprintf("Focused: %s", formatFocus(stats.FocusTime)),
		fmt.Sprintf("Coins: %d", stats.Coins),
		fmt.Sprintf("Streak: %d %s", stats.Streak, plural(stats.Streak, "day", "days")),
	}
	return strings.Join(lines, "\n")
}

func formatFocus(focus time.Duration) string {
	minutes := int(focus / time.Minute)
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
}

func plural(count int, one, many string) string {
	if count == 1 {
		return one
	}
	return many
}

// FocusSource lists stored sessions by end time.
type FocusSource interface {
	Between(ctx context.Context, from, to time.Time) ([]model.SessionEntry, error)
}

// FocusByDay sums focused time per local calendar day for sessions that
// ended in [from, to). Days without sessions are included with zero.
func FocusByDay(ctx context.Context, source FocusSource, from, to time.Time, loc *time.Location) ([]model.DayFocus, error) {
	if loc == nil {
		loc = time.Local
	}
	entries, err := source.Between(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	var days []model.DayFocus
	index := make(map[time.Time]int)
	for day := startOfDay(from, loc); day.Before(to); day = day.AddDate(0, 0, 1) {
		index[day] = len(days)
		days = append(days, model.DayFocus{Day: day})
	}
	for _, entry := range entries {
		if i, ok := index[startOfDay(entry.EndedAt, loc)]; ok {
			days[i].Focused += entry.Focused
		}
	}
	return days, nil
}

// Breakdown reports focused time for today, the last seven days and the
// current month as of now.
func Breakdown(ctx context.Context, source FocusSource, now time.Time, loc *time.Location) (model.FocusBreakdown, error) {
	if loc == nil {
		loc = time.Local
	}
	today := startOfDay(now, loc)
	weekStart := today.AddDate(0, 0, -6)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
	from := weekStart
	if monthStart.Before(from) {
		from = monthStart
	}

	days, err := FocusByDay(ctx, source, from, today.AddDate(0, 0, 1), loc)
	if err != nil {
		return model.FocusBreakdown{}, err
	}
	var breakdown model.FocusBreakdown
	for _, day := range days {
		if !day.Day.Before(monthStart) {
			breakdown.Month += day.Focused
		}
		if day.Day.Before(weekStart) {
			continue
		}
		breakdown.Week += day.Focused
		breakdown.Days = append(breakdown.Days, day)
		if day.Day.Equal(today) {
			breakdown.Today = day.Focused
		}
	}
	return breakdown, nil
}

// DescribeBreakdown renders the period totals and the last seven days.
func DescribeBreakdown(breakdown model.FocusBreakdown) string {
	lines := []string{
		fmt.Sprintf("Today: %s", formatFocus(breakdown.Today)),
		fmt.Sprintf("Last 7 days: %s", formatFocus(breakdown.Week)),
		fmt.Sprintf("This month: %s", formatFocus(breakdown.Month)),
	}
	for _, day := range breakdown.Days {
		lines = append(lines, fmt.Sprintf("  %s  %s", day.Day.Format("Mon Jan 2"), formatFocus(day.Focused)))
	}
	return strings.Join(lines, "\n")
}

func startOfDay(value time.Time, loc *time.Location) time.Time {
	local := value.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
