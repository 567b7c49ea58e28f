// Package rewards computes the coins a finished focus session earns.
package rewards

import "time"

const (
	// CoinsPerMinute is the base rate for focused time.
	CoinsPerMinute = 1
	// StreakBonusPerDay is the extra share of coins for each streak day.
	StreakBonusPerDay = 0.10
	// MaxStreakBonus caps the streak multiplier.
	MaxStreakBonus = 1.0
)

// Multiplier returns the coin multiplier for a streak of days.
func Multiplier(streak int) float64 {
	if streak <= 0 {
		return 1
	}
	bonus := float64(streak) * StreakBonusPerDay
	if bonus > MaxStreakBonus {
		bonus = MaxStreakBonus
	}
	return 1 + bonus
}

// Coins returns the reward for focused time; partial minutes earn nothing.
func Coins(focused time.Duration, streak int) int {
	minutes := int(focused / time.Minute)
	if minutes <= 0 {
		return 0
	}
	// Integer percent avoids 1.1*10 landing just below 11.
	percent := int(Multiplier(streak)*100 + 0.5)
	return minutes * CoinsPerMinute * percent / 100
}

// Streak counts consecutive calendar days with a completed session, ending
// today or yesterday. Days are compared in loc.
func Streak(completions []time.Time, today time.Time, loc *time.Location) int {
	if len(completions) == 0 {
		return 0
	}
	if loc == nil {
		loc = time.Local
	}
	days := make(map[time.Time]struct{}, len(completions))
	for _, completedAt := range completions {
		days[dayOf(completedAt, loc)] = struct{}{}
	}

	cursor := dayOf(today, loc)
	if _, ok := days[cursor]; !ok {
		cursor = cursor.AddDate(0, 0, -1)
		if _, ok := days[cursor]; !ok {
			return 0
		}
	}

	streak := 0
	for {
		if _, ok := days[cursor]; !ok {
			return streak
		}
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
}

func dayOf(value time.Time, loc *time.Location) time.Time {
	local := value.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
