package intent

// Type identifies the task domain a user utterance belongs to.
type Type string

const (
	TypeCalendar    Type = "calendar"
	TypeEmail       Type = "email"
	TypeReminder    Type = "reminder"
	TypeWeather     Type = "weather"
	TypeNews        Type = "news"
	TypeSearch      Type = "search"
	TypeGeneralChat Type = "general_chat"
	TypeUnknown     Type = "unknown"
)

// Types lists every intent type in catalog declaration order.
func Types() []Type {
	return []Type{
		TypeCalendar,
		TypeEmail,
		TypeReminder,
		TypeWeather,
		TypeNews,
		TypeSearch,
		TypeGeneralChat,
		TypeUnknown,
	}
}

// Entity is a structured value extracted from user text, independent of the
// recognized intent. Start/End are byte offsets into the source text.
type Entity struct {
	Kind       string  `json:"kind"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
}

// Intent is the recognizer's decision for a single request. It is immutable
// after construction; callers must not mutate Entities.
type Intent struct {
	Type       Type     `json:"type"`
	Confidence float64  `json:"confidence"`
	Action     string   `json:"action,omitempty"`
	Entities   []Entity `json:"entities"`
	RawText    string   `json:"raw_text"`
}

// EntityValues returns the values of all entities of the given kind, in
// extraction order.
func (i Intent) EntityValues(kind string) []string {
	var values []string
	for _, e := range i.Entities {
		if e.Kind == kind {
			values = append(values, e.Value)
		}
	}
	return values
}

// FirstEntity returns the first extracted entity of the given kind.
func (i Intent) FirstEntity(kind string) (Entity, bool) {
	for _, e := range i.Entities {
		if e.Kind == kind {
			return e, true
		}
	}
	return Entity{}, false
}
