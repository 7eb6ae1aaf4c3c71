package handlers

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"atlas/app/core/assistant"
	"atlas/app/core/intent"
)

const fallbackLocation = "your current location"

// weatherTable is the deterministic condition bank: a location always maps to
// the same entry, so repeated queries answer consistently without a live
// provider behind them.
var weatherTable = []struct {
	condition string
	tempC     int
}{
	{"sunny", 24},
	{"partly cloudy", 19},
	{"overcast", 15},
	{"light rain", 12},
	{"clear", 21},
	{"windy", 17},
}

// WeatherHandler answers weather questions from the canned condition bank.
type WeatherHandler struct {
	homeLocation string
}

func NewWeatherHandler(homeLocation string) *WeatherHandler {
	return &WeatherHandler{homeLocation: strings.TrimSpace(homeLocation)}
}

func (h *WeatherHandler) Execute(ctx context.Context, it intent.Intent, entities []intent.Entity, reqContext map[string]interface{}) (assistant.HandlerResponse, error) {
	location := h.resolveLocation(entities)
	entry := weatherTable[locationSlot(location)]

	switch it.Action {
	case "forecast":
		day := firstValue(entities, "datetime")
		if day == "" {
			day = "tomorrow"
		}
		return assistant.HandlerResponse{
			Success: true,
			Message: fmt.Sprintf("The forecast for %s in %s is %s with a high of %d°C.", day, location, entry.condition, entry.tempC+2),
			Data: map[string]interface{}{
				"location":    location,
				"day":         day,
				"condition":   entry.condition,
				"high_temp_c": entry.tempC + 2,
				"low_temp_c":  entry.tempC - 5,
			},
		}, nil
	case "conditions":
		return assistant.HandlerResponse{
			Success: true,
			Message: fmt.Sprintf("Current conditions in %s: %s, %d°C.", location, entry.condition, entry.tempC),
			Data: map[string]interface{}{
				"location":      location,
				"condition":     entry.condition,
				"temperature_c": entry.tempC,
			},
		}, nil
	default: // current
		return assistant.HandlerResponse{
			Success: true,
			Message: fmt.Sprintf("It's currently %s and %d°C in %s.", entry.condition, entry.tempC, location),
			Data: map[string]interface{}{
				"location":      location,
				"condition":     entry.condition,
				"temperature_c": entry.tempC,
			},
		}, nil
	}
}

func (h *WeatherHandler) Capability() assistant.Capability {
	return assistant.Capability{
		Name:        "weather",
		Description: "Get current weather and forecasts",
		Actions:     []string{"current", "forecast", "conditions"},
		Examples: []string{
			"What's the weather like?",
			"Will it rain tomorrow?",
			"What's the temperature in Paris?",
		},
	}
}

func (h *WeatherHandler) resolveLocation(entities []intent.Entity) string {
	if loc := firstValue(entities, "location"); loc != "" {
		return stripLocationPrefix(loc)
	}
	if h.homeLocation != "" {
		return h.homeLocation
	}
	return fallbackLocation
}

// stripLocationPrefix drops the leading preposition the extractor keeps as
// part of the match ("in Berlin" -> "Berlin").
func stripLocationPrefix(value string) string {
	fields := strings.Fields(value)
	if len(fields) > 1 {
		switch strings.ToLower(fields[0]) {
		case "in", "at", "near", "around":
			return strings.Join(fields[1:], " ")
		}
	}
	return value
}

func locationSlot(location string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(location)))
	return int(h.Sum32() % uint32(len(weatherTable)))
}

func firstValue(entities []intent.Entity, kind string) string {
	for _, e := range entities {
		if e.Kind == kind {
			return e.Value
		}
	}
	return ""
}
