package summary

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/benvon/finance-advisor/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	topMerchantCount     = 10
	topIncomeSourceCount = 5

	stableThreshold   = 0.15
	moderateThreshold = 0.30
)

var hundred = decimal.NewFromInt(100)

// money rounds to cents for output
func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// percent returns part/whole*100 rounded to two places, or 0 when whole is zero
func percent(part, whole decimal.Decimal) float64 {
	if whole.IsZero() {
		return 0
	}
	return part.Div(whole).Mul(hundred).Round(2).InexactFloat64()
}

func partition(txns []*models.Transaction) (income, expenses []*models.Transaction) {
	for _, t := range txns {
		switch t.Type {
		case models.TransactionTypeIncome:
			income = append(income, t)
		case models.TransactionTypeExpense:
			expenses = append(expenses, t)
		}
	}
	return income, expenses
}

type bucket struct {
	name  string
	total decimal.Decimal
	count int
}

// groupBy sums absolute amounts per key and returns buckets sorted by total descending,
// ties broken by name. Transactions with an empty key are skipped.
func groupBy(txns []*models.Transaction, key func(*models.Transaction) string) []bucket {
	index := make(map[string]*bucket)
	for _, t := range txns {
		k := key(t)
		if k == "" {
			continue
		}
		b, ok := index[k]
		if !ok {
			b = &bucket{name: k}
			index[k] = b
		}
		b.total = b.total.Add(t.Amount.Abs())
		b.count++
	}

	out := make([]bucket, 0, len(index))
	for _, b := range index {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].total.Cmp(out[j].total); c != 0 {
			return c > 0
		}
		return out[i].name < out[j].name
	})
	return out
}

func total(txns []*models.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range txns {
		sum = sum.Add(t.Amount.Abs())
	}
	return sum
}

func categoryKey(t *models.Transaction) string {
	if c := strings.TrimSpace(t.Category); c != "" {
		return c
	}
	return "Uncategorized"
}

func merchantKey(t *models.Transaction) string {
	if t.Merchant == nil {
		return ""
	}
	return strings.TrimSpace(*t.Merchant)
}

var cent = decimal.New(1, -2)

// shares returns each bucket's percentage of whole to two places. Values are floored and
// the leftover hundredths go to the largest remainders, so shares of buckets that cover
// whole sum to exactly 100.
func shares(buckets []bucket, whole decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(buckets))
	if whole.IsZero() {
		for i := range out {
			out[i] = decimal.Zero
		}
		return out
	}

	remainders := make([]int, len(buckets))
	rest := make([]decimal.Decimal, len(buckets))
	exactSum, allocated := decimal.Zero, decimal.Zero
	for i, b := range buckets {
		exact := b.total.Mul(hundred).Div(whole)
		out[i] = exact.RoundFloor(2)
		rest[i] = exact.Sub(out[i])
		remainders[i] = i
		exactSum = exactSum.Add(exact)
		allocated = allocated.Add(out[i])
	}

	sort.SliceStable(remainders, func(a, b int) bool {
		return rest[remainders[a]].Cmp(rest[remainders[b]]) > 0
	})
	left := exactSum.Round(2).Sub(allocated).Div(cent).IntPart()
	for k := 0; int64(k) < left && k < len(remainders); k++ {
		i := remainders[k]
		out[i] = out[i].Add(cent)
	}
	return out
}

func categoryAmounts(buckets []bucket, whole decimal.Decimal, limit int) []models.CategoryAmount {
	pct := shares(buckets, whole)
	if limit > 0 && len(buckets) > limit {
		buckets = buckets[:limit]
	}
	out := make([]models.CategoryAmount, 0, len(buckets))
	for i, b := range buckets {
		out = append(out, models.CategoryAmount{
			Category:   b.name,
			Amount:     money(b.total),
			Percentage: pct[i].InexactFloat64(),
			Count:      b.count,
		})
	}
	return out
}

func summarizeIncome(income []*models.Transaction) models.IncomeSummary {
	sum := total(income)
	return models.IncomeSummary{
		Total:          money(sum),
		MonthlyAverage: money(sum.Div(decimal.NewFromInt(WindowMonths))),
		TopSources:     categoryAmounts(groupBy(income, categoryKey), sum, topIncomeSourceCount),
	}
}

func summarizeExpenses(expenses []*models.Transaction) models.ExpenseSummary {
	sum := total(expenses)

	merchants := groupBy(expenses, merchantKey)
	if len(merchants) > topMerchantCount {
		merchants = merchants[:topMerchantCount]
	}
	top := make([]models.MerchantAmount, 0, len(merchants))
	for _, m := range merchants {
		top = append(top, models.MerchantAmount{Merchant: m.name, Amount: money(m.total), Count: m.count})
	}

	return models.ExpenseSummary{
		Total:          money(sum),
		MonthlyAverage: money(sum.Div(decimal.NewFromInt(WindowMonths))),
		Categories:     categoryAmounts(groupBy(expenses, categoryKey), sum, 0),
		TopMerchants:   top,
	}
}

// signedBalance is the account's contribution to net worth. Liability balances are
// subtracted whatever sign the institution reports them with.
func signedBalance(typ models.AccountType, balance decimal.Decimal) decimal.Decimal {
	if typ.IsLiability() {
		return balance.Abs().Neg()
	}
	return balance
}

func summarizeAccounts(accounts []*models.Account) models.AccountSummary {
	byType := make(map[models.AccountType]*models.AccountTypeBalance)
	sums := make(map[models.AccountType]decimal.Decimal)
	netWorth := decimal.Zero

	for _, a := range accounts {
		entry, ok := byType[a.Type]
		if !ok {
			entry = &models.AccountTypeBalance{Type: a.Type}
			byType[a.Type] = entry
		}
		entry.Count++
		sums[a.Type] = sums[a.Type].Add(a.Balance)
		netWorth = netWorth.Add(signedBalance(a.Type, a.Balance))
	}

	out := make([]models.AccountTypeBalance, 0, len(byType))
	for typ, entry := range byType {
		entry.Balance = money(sums[typ])
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })

	return models.AccountSummary{ByType: out, NetWorth: money(netWorth)}
}

func summarizeRecurring(items []*models.RecurringTransaction) models.RecurringSummary {
	monthly := decimal.Zero
	out := make([]models.RecurringItem, 0, len(items))
	for _, rt := range items {
		if !rt.IsActive || rt.Type != models.TransactionTypeExpense {
			continue
		}
		equiv := rt.Amount.Abs().Mul(rt.Frequency.MonthlyFactor())
		monthly = monthly.Add(equiv)
		out = append(out, models.RecurringItem{
			Name:              rt.Name,
			Category:          rt.Category,
			Amount:            money(rt.Amount.Abs()),
			Frequency:         rt.Frequency,
			MonthlyEquivalent: money(equiv),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MonthlyEquivalent > out[j].MonthlyEquivalent })
	return models.RecurringSummary{MonthlyTotal: money(monthly), Count: len(out), Items: out}
}

// netWorthTrend sums, per account, the earliest and the latest snapshot in the window.
// Snapshots must be ordered oldest first.
func netWorthTrend(snapshots []*models.NetWorthSnapshot, accounts []*models.Account) models.NetWorthTrend {
	types := make(map[uuid.UUID]models.AccountType, len(accounts))
	for _, a := range accounts {
		types[a.ID] = a.Type
	}

	first := make(map[uuid.UUID]*models.NetWorthSnapshot)
	last := make(map[uuid.UUID]*models.NetWorthSnapshot)
	for _, s := range snapshots {
		if f, ok := first[s.AccountID]; !ok || s.Date.Before(f.Date) {
			first[s.AccountID] = s
		}
		if l, ok := last[s.AccountID]; !ok || !s.Date.Before(l.Date) {
			last[s.AccountID] = s
		}
	}

	start, end := decimal.Zero, decimal.Zero
	for id, s := range first {
		start = start.Add(signedBalance(types[id], s.Balance))
	}
	for id, s := range last {
		end = end.Add(signedBalance(types[id], s.Balance))
	}
	change := end.Sub(start)

	return models.NetWorthTrend{
		Start:         money(start),
		End:           money(end),
		Change:        money(change),
		ChangePercent: percent(change, start.Abs()),
	}
}

func summarizeInvestments(holdings []*models.InvestmentHolding) models.InvestmentSummary {
	totalValue := decimal.Zero
	for _, h := range holdings {
		totalValue = totalValue.Add(h.Value)
	}

	out := make([]models.HoldingSummary, 0, len(holdings))
	byType := make(map[string]decimal.Decimal)
	for _, h := range holdings {
		typ := h.Security.Type
		if typ == "" {
			typ = "other"
		}
		byType[typ] = byType[typ].Add(h.Value)
		out = append(out, models.HoldingSummary{
			Symbol:     h.Security.Symbol,
			Name:       h.Security.Name,
			Type:       typ,
			Value:      money(h.Value),
			Percentage: percent(h.Value, totalValue),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })

	allocation := make([]models.AllocationShare, 0, len(byType))
	for typ, value := range byType {
		allocation = append(allocation, models.AllocationShare{
			Type:       typ,
			Value:      money(value),
			Percentage: percent(value, totalValue),
		})
	}
	sort.Slice(allocation, func(i, j int) bool {
		if allocation[i].Value != allocation[j].Value {
			return allocation[i].Value > allocation[j].Value
		}
		return allocation[i].Type < allocation[j].Type
	})

	return models.InvestmentSummary{TotalValue: money(totalValue), Holdings: out, Allocation: allocation}
}

func goalProgress(goals []*models.SavingsGoal) []models.GoalProgress {
	out := make([]models.GoalProgress, 0, len(goals))
	for _, g := range goals {
		out = append(out, models.GoalProgress{
			Name:            g.Name,
			TargetAmount:    money(g.TargetAmount),
			CurrentAmount:   money(g.CurrentAmount),
			ProgressPercent: percent(g.CurrentAmount, g.TargetAmount),
			Deadline:        g.Deadline,
			Status:          g.Status,
		})
	}
	return out
}

// monthlyBuckets sums expenses into WindowMonths consecutive month-long buckets covering
// w, returned oldest first. Bounds step back from the anchor day the same way Start does,
// so the oldest bucket begins at w.Start and the newest ends at w.End.
func monthlyBuckets(expenses []*models.Transaction, w Window) []decimal.Decimal {
	totals := make([]decimal.Decimal, WindowMonths)
	for i := range totals {
		totals[i] = decimal.Zero
	}
	anchor := w.AnchorDay()
	bounds := make([]time.Time, WindowMonths+1)
	bounds[0] = w.End
	for i := 1; i <= WindowMonths; i++ {
		bounds[i] = anchor.AddDate(0, -i, 0)
	}
	for _, t := range expenses {
		for i := 0; i < WindowMonths; i++ {
			start, end := bounds[i+1], bounds[i]
			if !t.Date.Before(start) && t.Date.Before(end) {
				totals[WindowMonths-1-i] = totals[WindowMonths-1-i].Add(t.Amount.Abs())
				break
			}
		}
	}
	return totals
}

// coefficientOfVariation is the population standard deviation over the mean, 0 when the
// mean is 0
func coefficientOfVariation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if mean == 0 {
		return 0
	}
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq/float64(len(values))) / mean
}

// classifyVolatility maps a coefficient of variation to a volatility level
func classifyVolatility(cv float64) models.VolatilityLevel {
	switch {
	case cv < stableThreshold:
		return models.VolatilityStable
	case cv < moderateThreshold:
		return models.VolatilityModerate
	default:
		return models.VolatilityHigh
	}
}

func highestSpendingWeekday(expenses []*models.Transaction) string {
	var byDay [7]decimal.Decimal
	seen := false
	for _, t := range expenses {
		day := t.Date.UTC().Weekday()
		byDay[day] = byDay[day].Add(t.Amount.Abs())
		seen = true
	}
	if !seen {
		return ""
	}
	best := time.Sunday
	for d := time.Monday; d <= time.Saturday; d++ {
		if byDay[d].GreaterThan(byDay[best]) {
			best = d
		}
	}
	return best.String()
}

func behavior(expenses []*models.Transaction, w Window) models.BehaviorStatistics {
	buckets := monthlyBuckets(expenses, w)
	monthly := make([]float64, len(buckets))
	for i, b := range buckets {
		monthly[i] = money(b)
	}

	avg := decimal.Zero
	if len(expenses) > 0 {
		avg = total(expenses).Div(decimal.NewFromInt(int64(len(expenses))))
	}

	cv := coefficientOfVariation(monthly)
	return models.BehaviorStatistics{
		AverageTransactionSize: money(avg),
		MonthlyExpenseTotals:   monthly,
		SpendingVolatility:     classifyVolatility(cv),
		CoefficientOfVariation: math.Round(cv*10000) / 10000,
		HighestSpendingWeekday: highestSpendingWeekday(expenses),
	}
}
