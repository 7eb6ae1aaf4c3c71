package intent

// requirementTable maps (intent type, action) to the entity kinds that must
// be present before a capability handler may run. Absent pairs mean "no
// requirements", not an error.
var requirementTable = map[Type]map[string][]string{
	TypeCalendar: {
		"create": {"datetime"},
		"read":   {},
		"update": {"datetime"},
		"delete": {"datetime"},
		"list":   {},
	},
	TypeEmail: {
		"send":    {"person", "topic"},
		"read":    {},
		"reply":   {"topic"},
		"forward": {"person"},
		"delete":  {},
	},
	TypeReminder: {
		"create": {"datetime", "topic"},
		"read":   {},
		"update": {"datetime", "topic"},
		"delete": {"topic"},
		"list":   {},
	},
	TypeWeather: {
		"current":    {},
		"forecast":   {"datetime"},
		"conditions": {"location"},
	},
	TypeNews: {
		"headlines": {},
		"search":    {"topic"},
		"category":  {"topic"},
	},
	TypeSearch: {
		"web_search":  {"topic"},
		"information": {"topic"},
		"lookup":      {"topic"},
	},
}

// RequiredEntities returns the entity kinds required for the given intent
// type and action, in requirement order. Unknown pairs yield an empty list.
func RequiredEntities(intentType Type, action string) []string {
	actions, ok := requirementTable[intentType]
	if !ok {
		return nil
	}
	required, ok := actions[action]
	if !ok {
		return nil
	}
	out := make([]string, len(required))
	copy(out, required)
	return out
}

// MissingEntities reports which required kinds have no extracted entity,
// preserving requirement order. Entity confidence and value are irrelevant;
// presence of the kind is all that counts.
func MissingEntities(entities []Entity, required []string) []string {
	present := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		present[e.Kind] = struct{}{}
	}

	var missing []string
	for _, kind := range required {
		if _, ok := present[kind]; !ok {
			missing = append(missing, kind)
		}
	}
	return missing
}
