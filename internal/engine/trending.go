package engine

import (
	"math"
	"time"

	"github.com/Priya8975/zap-goal-tracker/internal/domain"
)

const (
	secondsPerDay = 24 * 60 * 60

	// trending weights
	weightPercentage   = 0.3
	weightRecentCount  = 10
	weightRecentAmount = 0.5
	weightAge          = 20
	ageDecayDays       = 30
)

// CalculateTrendingScore ranks goal by completion, activity in the 24 hours
// before now and how recently it was created. Scores only have relative meaning.
// All receipts are considered for activity, including ones past ClosedAt.
func CalculateTrendingScore(goal *domain.Goal, progress domain.Progress, receipts []domain.Receipt, now time.Time) float64 {
	nowUnix := now.Unix()

	ageInDays := float64(nowUnix-goal.CreatedAt) / secondsPerDay
	ageFactor := math.Max(0, 1-ageInDays/ageDecayDays)

	oneDayAgo := nowUnix - secondsPerDay
	var recentCount int
	var recentAmount int64
	for _, r := range receipts {
		if r.Timestamp > oneDayAgo {
			recentCount++
			recentAmount += r.Amount
		}
	}

	return progress.Percentage*weightPercentage +
		float64(recentCount)*weightRecentCount +
		(float64(recentAmount)/1_000_000)*weightRecentAmount +
		ageFactor*weightAge
}
