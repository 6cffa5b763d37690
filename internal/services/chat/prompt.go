package chat

import (
	"fmt"
	"strings"
	"time"
)

func buildSystemPrompt(summaryJSON []byte, now time.Time) string {
	var b strings.Builder
	b.WriteString(`You are a friendly, knowledgeable financial assistant inside a personal finance app.
Answer the user's questions using the financial summary below. Quote the actual numbers when
they are relevant, keep answers short and practical, and say so when the summary does not
contain what you would need to answer. Never recommend specific securities to buy or sell.
Do not add a disclaimer; the app adds one.`)
	fmt.Fprintf(&b, "\n\nToday is %s.\n\nFinancial summary (JSON):\n", now.Format(time.DateOnly))
	b.Write(summaryJSON)
	return b.String()
}
