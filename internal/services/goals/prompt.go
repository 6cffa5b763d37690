package goals

import (
	"fmt"
	"strings"
	"time"
)

const goalSystemPrompt = "You are a helpful assistant that turns a user's description of something they want to save for into a structured savings goal. Respond with valid JSON only."

func buildGoalPrompt(input string, history []string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Today is %s.\n", now.Format(time.DateOnly))

	if len(history) > 0 {
		b.WriteString("\nRecent conversation, oldest first:\n")
		for _, line := range history {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\nUser input: %q\n", input)
	b.WriteString(`
Extract the savings goal the user describes. Resolve relative dates ("by next summer",
"in two years") against today's date. Use null for anything the user did not say.
Set confidence between 0 and 1 to reflect how clearly the input describes a savings goal;
use a value below 0.5 when it does not describe one at all.

Respond with a JSON object in this format:
{
  "name": "short goal name" | null,
  "target_amount": 5000 | null,
  "deadline": "YYYY-MM-DD" | null,
  "confidence": 0.0
}`)
	return b.String()
}
