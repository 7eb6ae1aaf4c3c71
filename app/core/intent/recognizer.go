package intent

import (
	"strings"
	"unicode/utf8"
)

const (
	// generalChatConfidence is assigned when no domain pattern matches but the
	// text carries a conversational indicator.
	generalChatConfidence = 0.7

	// entityConfidence is the fixed confidence of every extracted entity.
	entityConfidence = 0.8

	matchBaseConfidence = 0.8
	exactMatchBonus     = 0.15
	lengthBonusWeight   = 0.1
)

// Recognizer classifies free-form text into an Intent using the static
// pattern catalog, and extracts entities in an intent-independent pass.
//
// All tables are built once at construction and never mutated afterwards, so
// a single Recognizer is safe for unrestricted concurrent use.
type Recognizer struct {
	catalog        []catalogEntry
	extractors     []entityExtractor
	families       []actionFamily
	chatIndicators []string
}

func NewRecognizer() *Recognizer {
	return &Recognizer{
		catalog:        loadCatalog(),
		extractors:     loadEntityExtractors(),
		families:       loadActionFamilies(),
		chatIndicators: loadChatIndicators(),
	}
}

// Recognize classifies text and extracts its entities. It is pure and
// deterministic: the same input always yields the same Intent.
//
// Classification runs over the lower-cased, trimmed text; candidates are
// replaced only on strict confidence improvement, so the first pattern seen
// in catalog order wins all ties. Entity extraction runs over the
// original-case text with case-insensitive patterns.
func (r *Recognizer) Recognize(text string) Intent {
	normalized := strings.ToLower(strings.TrimSpace(text))

	bestType := TypeUnknown
	bestConfidence := 0.0
	bestAction := ""

	for _, entry := range r.catalog {
		for _, rule := range entry.rules {
			for _, pattern := range rule.patterns {
				loc := pattern.FindStringIndex(normalized)
				if loc == nil {
					continue
				}
				confidence := scoreMatch(normalized[loc[0]:loc[1]], normalized)
				if confidence > bestConfidence {
					bestConfidence = confidence
					bestType = entry.intent
					bestAction = r.resolveAction(normalized, rule.actions)
				}
			}
		}
	}

	if bestType == TypeUnknown && r.isGeneralChat(normalized) {
		bestType = TypeGeneralChat
		bestConfidence = generalChatConfidence
	}

	return Intent{
		Type:       bestType,
		Confidence: bestConfidence,
		Action:     bestAction,
		Entities:   r.extractEntities(text),
		RawText:    text,
	}
}

// scoreMatch scores a single pattern match against the normalized text:
// base 0.8, +0.15 when the match covers the whole text, plus up to +0.1
// proportional to match length, clamped to 1.0.
func scoreMatch(matched, text string) float64 {
	confidence := matchBaseConfidence

	if text != "" && matched == text {
		confidence += exactMatchBonus
	}

	textLen := utf8.RuneCountInString(text)
	if textLen > 0 {
		ratio := float64(utf8.RuneCountInString(matched)) / float64(textLen)
		confidence += ratio * lengthBonusWeight
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

// resolveAction picks the action for a winning rule: first a literal
// occurrence of a valid action identifier in the text, then the keyword
// families in fixed order (a family fires only when its action belongs to
// the rule's vocabulary), and finally the rule's first action, or "none"
// when the vocabulary is empty.
func (r *Recognizer) resolveAction(text string, validActions []string) string {
	for _, action := range validActions {
		if strings.Contains(text, action) {
			return action
		}
	}

	for _, family := range r.families {
		if !containsString(validActions, family.action) {
			continue
		}
		for _, keyword := range family.keywords {
			if strings.Contains(text, keyword) {
				return family.action
			}
		}
	}

	if len(validActions) > 0 {
		return validActions[0]
	}
	return "none"
}

func (r *Recognizer) isGeneralChat(text string) bool {
	for _, indicator := range r.chatIndicators {
		if strings.Contains(text, indicator) {
			return true
		}
	}
	return false
}

// extractEntities runs every extractor pattern over the original-case text
// and records all non-overlapping matches per pattern. Overlapping captures
// across kinds or patterns are kept as-is; nothing is deduplicated.
func (r *Recognizer) extractEntities(text string) []Entity {
	var entities []Entity
	for _, extractor := range r.extractors {
		for _, pattern := range extractor.patterns {
			for _, loc := range pattern.FindAllStringIndex(text, -1) {
				entities = append(entities, Entity{
					Kind:       extractor.kind,
					Value:      strings.TrimSpace(text[loc[0]:loc[1]]),
					Confidence: entityConfidence,
					Start:      loc[0],
					End:        loc[1],
				})
			}
		}
	}
	return entities
}

func containsString(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
