package handlers

import (
	"context"
	"strings"
	"testing"

	"atlas/app/core/intent"
)

func TestSearchMatchesKnowledgeTopic(t *testing.T) {
	h := NewSearchHandler()
	it := intent.Intent{Type: intent.TypeSearch, Action: "information", RawText: "search for information about climate change"}
	entities := []intent.Entity{{Kind: "topic", Value: "about climate change"}}

	resp, err := h.Execute(context.Background(), it, entities, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !resp.Success || resp.Data["matched"] != "climate change" {
		t.Fatalf("unexpected response: %#v", resp)
	}
	if !strings.Contains(resp.Message, "Climate change") {
		t.Fatalf("expected the topic summary: %q", resp.Message)
	}
}

func TestSearchMatchesAlias(t *testing.T) {
	h := NewSearchHandler()
	it := intent.Intent{Type: intent.TypeSearch, Action: "lookup", RawText: "look up golang"}
	entities := []intent.Entity{{Kind: "topic", Value: "about golang"}}

	resp, err := h.Execute(context.Background(), it, entities, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Data["matched"] != "go" {
		t.Fatalf("alias should resolve to the canonical topic: %#v", resp.Data)
	}
}

func TestSearchUnknownTopicEchoesQuery(t *testing.T) {
	h := NewSearchHandler()
	it := intent.Intent{Type: intent.TypeSearch, Action: "web_search", RawText: "search for quantum basket weaving"}
	entities := []intent.Entity{{Kind: "topic", Value: "about quantum basket weaving"}}

	resp, err := h.Execute(context.Background(), it, entities, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !resp.Success {
		t.Fatalf("unknown topics are not errors: %#v", resp)
	}
	if resp.Data["matched"] != "" || resp.Data["query"] != "quantum basket weaving" {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestSearchFallsBackToRawText(t *testing.T) {
	h := NewSearchHandler()
	it := intent.Intent{Type: intent.TypeSearch, Action: "web_search", RawText: "tell me about coffee"}

	resp, err := h.Execute(context.Background(), it, nil, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Data["matched"] != "coffee" {
		t.Fatalf("raw text fallback should still match: %#v", resp.Data)
	}
}
