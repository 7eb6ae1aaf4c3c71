package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"atlas/app/core/assistant"
	"atlas/app/core/intent"
)

// knowledgeDoc is the offline answer bank the search capability consults
// before admitting it has nothing. Entries are matched on name and aliases.
const knowledgeDoc = `{
	"topics": [
		{
			"name": "climate change",
			"aliases": ["global warming"],
			"summary": "Climate change refers to long-term shifts in temperatures and weather patterns, driven since the 1800s primarily by burning fossil fuels."
		},
		{
			"name": "artificial intelligence",
			"aliases": ["ai", "machine learning"],
			"summary": "Artificial intelligence is the field of building systems that perform tasks which normally require human intelligence, such as perception, reasoning and language."
		},
		{
			"name": "go",
			"aliases": ["golang"],
			"summary": "Go is a statically typed, compiled programming language designed at Google, known for built-in concurrency support and fast build times."
		},
		{
			"name": "coffee",
			"aliases": ["espresso"],
			"summary": "Coffee is a brewed drink prepared from roasted coffee beans and is one of the most consumed beverages in the world."
		}
	]
}`

// SearchHandler answers lookup requests from the embedded knowledge document.
// It has no network access; unmatched queries are echoed back as such.
type SearchHandler struct {
	doc string
}

func NewSearchHandler() *SearchHandler {
	return &SearchHandler{doc: knowledgeDoc}
}

func (h *SearchHandler) Execute(ctx context.Context, it intent.Intent, entities []intent.Entity, reqContext map[string]interface{}) (assistant.HandlerResponse, error) {
	topic := stripTopicPrefix(firstValue(entities, "topic"))
	if topic == "" {
		topic = it.RawText
	}

	if name, summary, ok := h.lookup(topic); ok {
		return assistant.HandlerResponse{
			Success: true,
			Message: summary,
			Data: map[string]interface{}{
				"query":   topic,
				"matched": name,
				"source":  "local knowledge",
			},
		}, nil
	}

	return assistant.HandlerResponse{
		Success: true,
		Message: fmt.Sprintf("I don't have local knowledge about %q yet.", topic),
		Data: map[string]interface{}{
			"query":   topic,
			"matched": "",
			"source":  "local knowledge",
		},
	}, nil
}

func (h *SearchHandler) Capability() assistant.Capability {
	return assistant.Capability{
		Name:        "search",
		Description: "Look up information on a topic",
		Actions:     []string{"web_search", "information", "lookup"},
		Examples: []string{
			"Search for information about climate change",
			"Tell me about artificial intelligence",
			"Look up golang",
		},
	}
}

// lookup scans the knowledge document for an entry whose name or alias
// appears in the query, or vice versa.
func (h *SearchHandler) lookup(query string) (name, summary string, ok bool) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return "", "", false
	}

	for _, entry := range gjson.Get(h.doc, "topics").Array() {
		terms := []string{entry.Get("name").String()}
		for _, alias := range entry.Get("aliases").Array() {
			terms = append(terms, alias.String())
		}
		for _, term := range terms {
			term = strings.ToLower(term)
			if term == "" {
				continue
			}
			if strings.Contains(query, term) || strings.Contains(term, query) {
				return entry.Get("name").String(), entry.Get("summary").String(), true
			}
		}
	}
	return "", "", false
}
