package core

import "budget/internal/period"

// CategoryStat is the spending of one category against its monthly budget.
type CategoryStat struct {
	CategoryID    int64  `json:"id"`
	Name          string `json:"name"`
	MonthlyBudget Money  `json:"monthlyBudgetCents"`
	TotalSpent    Money  `json:"totalSpentCents"`
	Remaining     Money  `json:"remainingCents"`
}

// PeriodStats summarises a budget period.
type PeriodStats struct {
	Period      period.Range    `json:"period"`
	Label       string          `json:"label"`
	StartDay    period.StartDay `json:"monthStartDay"`
	Categories  []CategoryStat  `json:"categories"`
	TotalSpent  Money           `json:"totalSpentCents"`
	TotalBudget Money           `json:"totalBudgetCents"`
}

// OverBudget returns the categories whose spending exceeds their budget.
func (p PeriodStats) OverBudget() []CategoryStat {
	var over []CategoryStat
	for _, c := range p.Categories {
		if c.MonthlyBudget.Cents > 0 && c.Remaining.Cents < 0 {
			over = append(over, c)
		}
	}
	return over
}
