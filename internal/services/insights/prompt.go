package insights

import (
	"fmt"
	"strings"
	"time"

	"github.com/benvon/finance-advisor/internal/models"
)

const insightSystemPrompt = "You are a careful personal finance analyst. You review a user's financial summary and point out the few observations most worth acting on. Respond with valid JSON only."

func buildInsightPrompt(summaryJSON []byte, now time.Time) string {
	categories := make([]string, 0, len(models.InsightCategories))
	for _, c := range models.InsightCategories {
		categories = append(categories, fmt.Sprintf("%q", c))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Today is %s. Here is the user's financial summary for the last six months:\n\n", now.Format("2006-01-02"))
	b.Write(summaryJSON)
	b.WriteString(`

Write between 3 and 5 insights. Each insight must be specific to the numbers above, mention
the amount or percentage it is based on, and suggest one concrete next step. Do not invent
accounts or transactions that are not in the summary.

Priority 1 is the most important and 5 the least.

Respond with a JSON object in this format:
{
  "insights": [
    {"category": `)
	b.WriteString(strings.Join(categories, " | "))
	b.WriteString(`, "title": "short headline", "body": "two or three sentences", "priority": 1}
  ]
}`)
	return b.String()
}
