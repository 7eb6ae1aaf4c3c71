package intent

import (
	"reflect"
	"testing"
)

func TestRequiredEntitiesKnownPairs(t *testing.T) {
	cases := []struct {
		intentType Type
		action     string
		want       []string
	}{
		{TypeWeather, "current", nil},
		{TypeWeather, "conditions", []string{"location"}},
		{TypeReminder, "create", []string{"datetime", "topic"}},
		{TypeEmail, "send", []string{"person", "topic"}},
		{TypeSearch, "web_search", []string{"topic"}},
	}
	for _, tc := range cases {
		got := RequiredEntities(tc.intentType, tc.action)
		if len(got) == 0 && len(tc.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s/%s: got %#v, want %#v", tc.intentType, tc.action, got, tc.want)
		}
	}
}

func TestRequiredEntitiesUnknownPairsArePermissive(t *testing.T) {
	if got := RequiredEntities(TypeWeather, "no_such_action"); len(got) != 0 {
		t.Fatalf("unknown action must yield no requirements, got %#v", got)
	}
	if got := RequiredEntities(TypeGeneralChat, "create"); len(got) != 0 {
		t.Fatalf("unmapped intent must yield no requirements, got %#v", got)
	}
	if got := RequiredEntities(TypeUnknown, ""); len(got) != 0 {
		t.Fatalf("unknown intent must yield no requirements, got %#v", got)
	}
}

func TestRequiredEntitiesReturnsCopy(t *testing.T) {
	first := RequiredEntities(TypeReminder, "create")
	first[0] = "mutated"

	second := RequiredEntities(TypeReminder, "create")
	if !reflect.DeepEqual(second, []string{"datetime", "topic"}) {
		t.Fatalf("requirement table must not be mutable through callers, got %#v", second)
	}
}

func TestMissingEntitiesPreservesRequirementOrder(t *testing.T) {
	entities := []Entity{
		{Kind: "person", Value: "to Bob", Confidence: 0.8},
	}

	missing := MissingEntities(entities, []string{"datetime", "person", "topic"})
	if !reflect.DeepEqual(missing, []string{"datetime", "topic"}) {
		t.Fatalf("unexpected missing list: %#v", missing)
	}
}

func TestMissingEntitiesIgnoresConfidence(t *testing.T) {
	entities := []Entity{
		{Kind: "datetime", Value: "tomorrow", Confidence: 0},
	}

	if missing := MissingEntities(entities, []string{"datetime"}); len(missing) != 0 {
		t.Fatalf("a present kind counts regardless of confidence, got %#v", missing)
	}
}
