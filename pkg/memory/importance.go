package memory

import (
	"math"
	"strings"
)

// Base importance by item kind. Human input ranks highest, ambient system
// noise lowest.
var kindBaseImportance = map[Kind]float64{
	KindUser:        0.8,
	KindAssistant:   0.6,
	KindSystem:      0.3,
	KindTool:        0.4,
	KindObservation: 0.5,
	KindHuman:       0.9,
	KindReasoning:   0.7,
}

// scoreImportance computes the insert-time importance for an item that
// arrived without one: base score by kind plus length, question/emphasis,
// human-interaction and tool-call boosts, clamped to 1.0.
func scoreImportance(item Item) float64 {
	score, ok := kindBaseImportance[item.Kind]
	if !ok {
		score = 0.5
	}
	score += math.Min(float64(len(item.Content))/1000, 0.2)
	if strings.Contains(item.Content, "?") {
		score += 0.1
	}
	if strings.Contains(item.Content, "!") {
		score += 0.05
	}
	if item.Metadata.HumanInteraction {
		score += 0.2
	}
	if item.Metadata.ToolCall != "" {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
