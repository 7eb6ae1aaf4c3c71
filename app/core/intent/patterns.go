package intent

import "regexp"

// patternRule groups trigger patterns with the action vocabulary that is
// valid for matches of those patterns.
type patternRule struct {
	patterns []*regexp.Regexp
	actions  []string
}

// catalogEntry binds an intent type to its pattern rules. Catalog order is
// load-bearing: the classifier replaces its best candidate only on strict
// confidence improvement, so earlier entries win all ties.
type catalogEntry struct {
	intent Type
	rules  []patternRule
}

// entityExtractor binds an entity kind to its extraction patterns. Kinds are
// iterated in declaration order, which fixes the order of extracted entities.
type entityExtractor struct {
	kind     string
	patterns []*regexp.Regexp
}

// actionFamily maps a canonical action to the keywords that imply it when no
// action identifier appears literally in the text.
type actionFamily struct {
	action   string
	keywords []string
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		out = append(out, regexp.MustCompile(expr))
	}
	return out
}

func loadCatalog() []catalogEntry {
	return []catalogEntry{
		{
			intent: TypeCalendar,
			rules: []patternRule{{
				patterns: compileAll(
					`(?:schedule|create|add|set up|book)\s+(?:a\s+)?(?:meeting|appointment|event)`,
					`(?:what|when)\s+(?:is|are)\s+(?:my|the)\s+(?:next|upcoming)\s+(?:meeting|appointment|event)`,
					`(?:cancel|delete|remove)\s+(?:my|the)\s+(?:meeting|appointment|event)`,
					`(?:reschedule|move|change)\s+(?:my|the)\s+(?:meeting|appointment|event)`,
					`(?:check|show|list)\s+(?:my|the)\s+(?:calendar|schedule|appointments)`,
				),
				actions: []string{"create", "read", "update", "delete", "list"},
			}},
		},
		{
			intent: TypeEmail,
			rules: []patternRule{{
				patterns: compileAll(
					`(?:send|compose|write)\s+(?:an?\s+)?email`,
					`(?:check|read|show)\s+(?:my\s+)?(?:email|inbox|messages)`,
					`(?:reply|respond)\s+to\s+(?:the\s+)?email`,
					`(?:forward|share)\s+(?:this\s+|the\s+)?email`,
					`(?:delete|remove)\s+(?:this\s+|the\s+)?email`,
				),
				actions: []string{"send", "read", "reply", "forward", "delete"},
			}},
		},
		{
			intent: TypeReminder,
			rules: []patternRule{{
				patterns: compileAll(
					`(?:remind|alert)\s+me\s+(?:to|about)`,
					`(?:set|create|add)\s+(?:a\s+)?(?:reminder|alert|notification)`,
					`(?:don't\s+forget|remember)\s+to`,
					`(?:what|show)\s+(?:are\s+)?(?:my\s+)?(?:reminders|alerts|tasks)`,
					`(?:cancel|delete|remove)\s+(?:the\s+)?(?:reminder|alert)`,
				),
				actions: []string{"create", "read", "update", "delete", "list"},
			}},
		},
		{
			intent: TypeWeather,
			rules: []patternRule{{
				patterns: compileAll(
					`(?:what|how)(?:'s)?\s+(?:is\s+|will\s+)?(?:the\s+)?weather`,
					`(?:weather\s+)?(?:forecast|report|conditions)`,
					`(?:is\s+it|will\s+it)\s+(?:rain|snow|sunny|cloudy)`,
					`(?:temperature|temp)\s+(?:today|tomorrow|outside)`,
					`(?:should\s+i|do\s+i\s+need)\s+(?:bring\s+)?(?:an?\s+)?(?:umbrella|jacket|coat)`,
				),
				actions: []string{"current", "forecast", "conditions"},
			}},
		},
		{
			intent: TypeNews,
			rules: []patternRule{{
				patterns: compileAll(
					`(?:what|show)\s+(?:is|are)\s+(?:the\s+)?(?:latest\s+)?news`,
					`(?:news|headlines|updates)\s+(?:about|on|for)`,
					`(?:what|anything)\s+(?:new|happening)\s+(?:in|about|with)`,
					`(?:current\s+)?(?:events|affairs|happenings)`,
					`(?:breaking|latest)\s+news`,
				),
				actions: []string{"headlines", "search", "category"},
			}},
		},
		{
			intent: TypeSearch,
			rules: []patternRule{{
				patterns: compileAll(
					`(?:search|look up|find|google)\s+(?:for\s+)?`,
					`(?:what|who|where|when|why|how)\s+(?:is|are|was|were|do|does|did)`,
					`(?:tell|show)\s+me\s+(?:about|more\s+about)`,
					`(?:information|info|details)\s+(?:about|on|for)`,
					`(?:can\s+you\s+)?(?:help\s+me\s+)?(?:find|locate)`,
				),
				actions: []string{"web_search", "information", "lookup"},
			}},
		},
	}
}

func loadEntityExtractors() []entityExtractor {
	return []entityExtractor{
		{
			kind: "datetime",
			patterns: compileAll(
				`(?i)(?:today|tomorrow|yesterday)`,
				`(?i)(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday)`,
				`(?i)(?:january|february|march|april|may|june|july|august|september|october|november|december)`,
				`(?i)\d{1,2}:\d{2}(?:\s*(?:am|pm))?`,
				`(?i)\d{1,2}/\d{1,2}(?:/\d{2,4})?`,
				`(?i)(?:in\s+)?\d+\s+(?:minutes?|hours?|days?|weeks?|months?)`,
				`(?i)(?:next|this)\s+(?:week|month|year)`,
				`(?i)(?:at\s+)?\d{1,2}(?::\d{2})?\s*(?:am|pm)`,
			),
		},
		{
			kind: "location",
			patterns: compileAll(
				`(?i)(?:in|at|near|around)\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*`,
				`(?i)[A-Z][a-z]+,\s*[A-Z]{2}`,
				`(?i)\d+\s+[A-Za-z\s]+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd)`,
			),
		},
		{
			kind: "person",
			patterns: compileAll(
				`(?i)(?:with|to|from)\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*`,
				`(?i)[A-Z][a-z]+@[a-z]+\.[a-z]+`,
			),
		},
		{
			kind: "duration",
			patterns: compileAll(
				`(?i)\d+\s+(?:minutes?|hours?|days?|weeks?|months?|years?)`,
				`(?i)(?:for\s+)?\d+\s*(?:min|hr|h|d|w|m|y)`,
				`(?i)(?:half\s+an?\s+|quarter\s+)?hour`,
			),
		},
		{
			kind: "topic",
			patterns: compileAll(
				`(?i)(?:about|regarding|concerning)\s+([^,.!?]+)`,
				`(?i)(?:subject|topic):\s*([^,.!?]+)`,
			),
		},
	}
}

func loadActionFamilies() []actionFamily {
	return []actionFamily{
		{action: "create", keywords: []string{"create", "add", "set", "schedule", "send", "compose"}},
		{action: "read", keywords: []string{"show", "list", "check", "read", "what", "when"}},
		{action: "update", keywords: []string{"update", "change", "modify", "edit", "reschedule"}},
		{action: "delete", keywords: []string{"delete", "remove", "cancel"}},
	}
}

func loadChatIndicators() []string {
	return []string{
		"hello", "hi", "hey", "good morning", "good afternoon", "good evening",
		"how are you", "what's up", "thanks", "thank you", "please", "sorry",
		"yes", "no", "okay", "ok", "sure", "maybe", "i think", "i believe",
	}
}
