package assistant

import (
	"fmt"
	"strings"

	"atlas/app/core/intent"
)

// followupQuestions maps (intent type, missing entity kind) to the clarifying
// question asked when that kind is absent.
var followupQuestions = map[intent.Type]map[string]string{
	intent.TypeWeather: {
		"location": "Which city or location would you like the weather for?",
		"datetime": "For what date would you like the weather forecast?",
	},
	intent.TypeReminder: {
		"topic":    "What would you like me to remind you about?",
		"datetime": "When would you like to be reminded? (e.g., 'tomorrow at 3pm', 'in 2 hours')",
	},
	intent.TypeSearch: {
		"topic": "What would you like me to search for?",
	},
	intent.TypeCalendar: {
		"datetime": "When would you like to schedule this? (e.g., 'tomorrow at 2pm', 'next Monday')",
		"topic":    "What is this meeting or event about?",
	},
	intent.TypeEmail: {
		"person": "Who would you like to send this email to?",
		"topic":  "What is the subject or content of the email?",
	},
}

// FollowupQuestion builds the clarifying prompt for the missing entity kinds
// of an intent. A single missing kind yields its mapped question, or a
// generic sentence naming the kind. Multiple missing kinds are joined into
// one combined prompt in requirement order.
func FollowupQuestion(intentType intent.Type, missing []string) string {
	questions := followupQuestions[intentType]

	if len(missing) == 1 {
		kind := missing[0]
		if q, ok := questions[kind]; ok {
			return q
		}
		return fmt.Sprintf("I need more information about the %s.", kind)
	}

	parts := make([]string, 0, len(missing))
	for _, kind := range missing {
		if q, ok := questions[kind]; ok {
			parts = append(parts, q)
		} else {
			parts = append(parts, kind)
		}
	}
	return "I need to know: " + strings.Join(parts, ", ")
}
