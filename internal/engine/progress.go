package engine

import (
	"time"

	"github.com/Priya8975/zap-goal-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// CalculateProgress sums the receipts that count toward goal at time now.
//
// Receipts timestamped after ClosedAt are excluded regardless of now, while
// IsClosed compares ClosedAt with now. A goal whose deadline is still ahead
// therefore reports IsClosed=false even though late receipts are filtered.
func CalculateProgress(goal *domain.Goal, receipts []domain.Receipt, now time.Time) domain.Progress {
	isClosed := goal.ClosedAt != nil && *goal.ClosedAt < now.Unix()

	var raised int64
	count := 0
	for _, r := range receipts {
		if goal.ClosedAt != nil && r.Timestamp > *goal.ClosedAt {
			continue
		}
		raised += r.Amount
		count++
	}

	return domain.Progress{
		Raised:     raised,
		Target:     goal.Amount,
		Percentage: Percentage(raised, goal.Amount),
		ZapCount:   count,
		IsClosed:   isClosed,
	}
}

// Percentage returns raised/target*100 rounded to two decimal places.
// It returns 0 for a non-positive target.
func Percentage(raised, target int64) float64 {
	if target <= 0 {
		return 0
	}
	pct := decimal.NewFromInt(raised).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(target)).
		Round(2)
	return pct.InexactFloat64()
}

// Status derives the display state of a goal from its progress.
func Status(p domain.Progress) domain.GoalStatus {
	switch {
	case p.IsClosed:
		return domain.StatusClosed
	case p.Percentage >= 100:
		return domain.StatusCompleted
	case p.Percentage >= 80:
		return domain.StatusAlmostThere
	default:
		return domain.StatusOpen
	}
}
